package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/depconfctl/internal/configtree"
	"github.com/codex-k8s/depconfctl/internal/env"
	"github.com/codex-k8s/depconfctl/internal/recommend"
)

type fakeRecommender struct {
	resp     *recommend.Response
	err      error
	requests []*recommend.Request
}

func (f *fakeRecommender) Recommend(_ context.Context, req *recommend.Request) (*recommend.Response, error) {
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func strPtr(s string) *string { return &s }

func testTree() *configtree.Tree {
	yarn := &configtree.ServiceConfig{
		ServiceName: "YARN",
		Installed:   true,
		Configs: []*configtree.Property{
			{Name: "vcores", Filename: "yarn-site.xml", Value: "8", SavedValue: strPtr("8")},
			{Name: "memory", Filename: "yarn-site.xml", Value: "512", SavedValue: strPtr("512")},
		},
		ConfigGroups: []*configtree.ConfigGroup{
			{Name: "Default", IsDefault: true},
			{Name: "Big", Hosts: []string{"h1"}},
		},
	}
	hdfs := &configtree.ServiceConfig{
		ServiceName:  "HDFS",
		Installed:    true,
		Configs:      []*configtree.Property{{Name: "dfs.replication", Filename: "hdfs-site.xml", Value: "3"}},
		ConfigGroups: []*configtree.ConfigGroup{{Name: "Default", IsDefault: true}},
	}
	return &configtree.Tree{
		Mode:            configtree.ModeService,
		Services:        []*configtree.ServiceConfig{yarn, hdfs},
		Hosts:           []string{"h1"},
		SelectedService: "YARN",
	}
}

func memoryResponse(value string) *recommend.Response {
	return &recommend.Response{Resources: []recommend.Resource{{
		Recommendations: &recommend.Recommendations{Blueprint: &recommend.Blueprint{
			Configurations: recommend.SiteConfigurations{
				"yarn-site": {Properties: map[string]recommend.Scalar{"memory": recommend.StringValue(value)}},
			},
		}},
	}}}
}

func TestParseEdits(t *testing.T) {
	edits, err := ParseEdits(env.Vars{"yarn-site.xml/vcores": "4", "memory": "1024"}, "yarn-site")
	require.NoError(t, err)
	assert.Equal(t, []Edit{
		{Site: "yarn-site", Name: "memory", Value: "1024"},
		{Site: "yarn-site", Name: "vcores", Value: "4"},
	}, edits)

	_, err = ParseEdits(env.Vars{"memory": "1"}, "")
	assert.Error(t, err)
	_, err = ParseEdits(env.Vars{"yarn-site/": "1"}, "")
	assert.Error(t, err)
}

func TestEngine_ApplyEdits(t *testing.T) {
	t.Run("default group", func(t *testing.T) {
		tree := testTree()
		e := NewEngine(recommend.NewAdvisor(tree, nil, nil), nil, nil)

		changed, err := e.ApplyEdits([]Edit{
			{Site: "yarn-site", Name: "vcores", Value: "4"},
			{Site: "yarn-site", Name: "memory", Value: "512"},
			{Site: "hdfs-site", Name: "dfs.replication", Value: "2"},
		})
		require.NoError(t, err)
		assert.Equal(t, []recommend.ChangedConfig{
			{Type: "hdfs-site", Name: "dfs.replication"},
			{Type: "yarn-site", Name: "vcores"},
		}, changed)
		assert.Equal(t, "4", tree.Service("YARN").Property("vcores", "yarn-site").Value)
	})

	t.Run("custom group", func(t *testing.T) {
		tree := testTree()
		tree.SelectedGroup = "Big"
		e := NewEngine(recommend.NewAdvisor(tree, nil, nil), nil, nil)

		changed, err := e.ApplyEdits([]Edit{{Site: "yarn-site", Name: "vcores", Value: "16"}})
		require.NoError(t, err)
		require.Len(t, changed, 1)

		vcores := tree.Service("YARN").Property("vcores", "yarn-site")
		assert.Equal(t, "8", vcores.Value)
		override := vcores.Override("Big")
		require.NotNil(t, override)
		assert.Equal(t, "16", override.Value)
		assert.True(t, override.IsNotSaved)

		_, err = e.ApplyEdits([]Edit{{Site: "hdfs-site", Name: "dfs.replication", Value: "1"}})
		assert.Error(t, err)
	})

	t.Run("unknown property", func(t *testing.T) {
		e := NewEngine(recommend.NewAdvisor(testTree(), nil, nil), nil, nil)
		_, err := e.ApplyEdits([]Edit{{Site: "yarn-site", Name: "nope", Value: "1"}})
		assert.Error(t, err)
		_, err = e.ApplyEdits([]Edit{{Site: "hive-site", Name: "x", Value: "1"}})
		assert.Error(t, err)
	})
}

func TestEngine_Recommend(t *testing.T) {
	changed := []recommend.ChangedConfig{{Type: "yarn-site", Name: "vcores"}}

	t.Run("reconcile only", func(t *testing.T) {
		tree := testTree()
		advisor := recommend.NewAdvisor(tree, nil, nil)
		client := &fakeRecommender{resp: memoryResponse("1024")}

		res, err := NewEngine(advisor, client, nil).Recommend(context.Background(), changed, Options{})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), res.Seq)
		assert.Equal(t, 1, res.Pending)
		assert.False(t, res.Applied)
		require.Len(t, client.requests, 1)
		assert.Equal(t, recommend.RecommendDependencies, client.requests[0].Recommend)
		assert.Equal(t, "512", tree.Service("YARN").Property("memory", "yarn-site").Value)
	})

	t.Run("auto apply", func(t *testing.T) {
		tree := testTree()
		advisor := recommend.NewAdvisor(tree, nil, nil)
		client := &fakeRecommender{resp: memoryResponse("1024")}

		res, err := NewEngine(advisor, client, nil).Recommend(context.Background(), changed, Options{AutoApply: true})
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, 1, res.Report.Updated)
		assert.Equal(t, "1024", tree.Service("YARN").Property("memory", "yarn-site").Value)
		assert.Empty(t, advisor.Records())
	})

	t.Run("initial seeds installer initial values", func(t *testing.T) {
		tree := testTree()
		tree.Mode = configtree.ModeInstaller
		tree.Service("YARN").Installed = false
		advisor := recommend.NewAdvisor(tree, nil, nil)
		client := &fakeRecommender{resp: memoryResponse("2048")}

		res, err := NewEngine(advisor, client, nil).Recommend(context.Background(), nil, Options{Initial: true, AutoApply: true})
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Zero(t, res.Pending)
		memory := tree.Service("YARN").Property("memory", "yarn-site")
		assert.Equal(t, "2048", configtree.Deref(memory.InitialValue))
		assert.Equal(t, "2048", configtree.Deref(memory.RecommendedValue))
		assert.Equal(t, "512", memory.Value)
	})

	t.Run("nothing to ask", func(t *testing.T) {
		client := &fakeRecommender{}
		res, err := NewEngine(recommend.NewAdvisor(testTree(), nil, nil), client, nil).Recommend(context.Background(), nil, Options{})
		require.NoError(t, err)
		assert.Zero(t, res.Seq)
		assert.Empty(t, client.requests)
	})

	t.Run("fetch failure", func(t *testing.T) {
		advisor := recommend.NewAdvisor(testTree(), nil, nil)
		cause := errors.New("connection refused")
		_, err := NewEngine(advisor, &fakeRecommender{err: cause}, nil).Recommend(context.Background(), changed, Options{})
		require.Error(t, err)
		assert.True(t, recommend.IsFetchError(err))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, uint64(1), advisor.Counters().Settled)
	})

	t.Run("malformed reply", func(t *testing.T) {
		advisor := recommend.NewAdvisor(testTree(), nil, nil)
		malformed := &recommend.MalformedResponseError{Reason: "missing resources"}
		_, err := NewEngine(advisor, &fakeRecommender{err: malformed}, nil).Recommend(context.Background(), changed, Options{})
		require.Error(t, err)
		assert.True(t, recommend.IsMalformedResponse(err))
		assert.False(t, recommend.IsFetchError(err))
		assert.Zero(t, advisor.Counters().Settled)
		assert.Empty(t, advisor.Records())
	})

	t.Run("no client", func(t *testing.T) {
		advisor := recommend.NewAdvisor(testTree(), nil, nil)
		_, err := NewEngine(advisor, nil, nil).Recommend(context.Background(), changed, Options{})
		assert.True(t, recommend.IsFetchError(err))
	})
}

func TestFileRecommender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "response.json")
	body := `{"resources":[{"recommendations":{"blueprint":{"configurations":{"yarn-site":{"properties":{"memory":"4096"}}}}}}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	tree := testTree()
	advisor := recommend.NewAdvisor(tree, nil, nil)
	res, err := NewEngine(advisor, FileRecommender{Path: path}, nil).Recommend(
		context.Background(),
		[]recommend.ChangedConfig{{Type: "yarn-site", Name: "vcores"}},
		Options{AutoApply: true},
	)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "4096", tree.Service("YARN").Property("memory", "yarn-site").Value)

	_, err = FileRecommender{Path: filepath.Join(t.TempDir(), "missing.json")}.Recommend(context.Background(), nil)
	assert.Error(t, err)
}
