package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/depconfctl/internal/configtree"
	"github.com/codex-k8s/depconfctl/internal/env"
)

func TestLoadSession(t *testing.T) {
	t.Setenv("AMBARI_PASSWORD", "")

	s, ctx, err := LoadSession(filepath.Join("testdata", "session.yaml"), LoadOptions{
		UserVars: env.Vars{"MEMORY": "4096"},
	})
	require.NoError(t, err)

	assert.Equal(t, StackRef{Name: "HDP", Version: "3.1.0"}, ctx.Stack)
	assert.Equal(t, "https://ambari.example:8443", s.Server.URL)
	assert.Equal(t, "admin", s.Server.User)
	assert.Empty(t, s.Server.Password)

	timeout, err := s.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, timeout)

	v, err := s.StackVersion()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v.Major())

	require.Len(t, s.Services, 2)
	assert.Equal(t, "4096", s.Services[0].Properties[0].Value)
	assert.Equal(t, "32768", s.Attributes[0].Bounds["maximum"])
}

func TestSession_Tree(t *testing.T) {
	t.Setenv("AMBARI_PASSWORD", "")
	s, _, err := LoadSession(filepath.Join("testdata", "session.yaml"), LoadOptions{})
	require.NoError(t, err)

	tree, err := s.Tree()
	require.NoError(t, err)

	assert.Equal(t, configtree.ModeService, tree.Mode)
	assert.Equal(t, "YARN", tree.Sites["yarn-site"])
	assert.Equal(t, "MAPREDUCE2", tree.ServiceForSite("mapred-site"))

	yarn := tree.Service("YARN")
	require.NotNil(t, yarn)
	memory := yarn.Property("yarn.nodemanager.resource.memory-mb", "yarn-site")
	require.NotNil(t, memory)
	assert.Equal(t, "2048", memory.Value)
	assert.Equal(t, "8192", memory.Override("HighMem").Value)
	assert.Equal(t, "yarn.nodemanager.resource.memory-mb", memory.DisplayName)

	mr := tree.Service("MAPREDUCE2")
	assert.Equal(t, "mapred-site.xml", mr.Configs[0].Filename)

	group := tree.SelectedConfigGroup()
	require.NotNil(t, group)
	assert.Equal(t, "MR-HighMem", group.DependentConfigGroups["MAPREDUCE2"], "dependent groups are filled in")

	attrs := tree.Attribute("yarn.nodemanager.resource.memory-mb", "yarn-site")
	require.NotNil(t, attrs)
	assert.Equal(t, "131072", attrs.GroupBounds["HighMem"]["maximum"])
}

func TestSession_TreeDefaultsGroup(t *testing.T) {
	s := &Session{
		Stack:    StackRef{Name: "HDP", Version: "3.1"},
		Services: []ServiceSpec{{Name: "HDFS", Properties: []PropertySpec{{Name: "dfs.replication", File: "hdfs-site", Value: "3"}}}},
	}
	tree, err := s.Tree()
	require.NoError(t, err)
	def := tree.Service("HDFS").DefaultGroup()
	require.NotNil(t, def)
	assert.Equal(t, "Default", def.Name)
}

func TestSession_TreeInvalid(t *testing.T) {
	s := &Session{
		Stack: StackRef{Name: "HDP", Version: "3.1"},
		Services: []ServiceSpec{{
			Name:       "HDFS",
			Properties: []PropertySpec{{Name: "a", File: "hdfs-site", Overrides: []OverrideSpec{{Group: "Missing"}}}},
		}},
	}
	_, err := s.Tree()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown group")
}

func TestSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		session Session
		errMsg  string
	}{
		{name: "missing stack", session: Session{Stack: StackRef{Version: "1.0"}}, errMsg: "stack.name"},
		{name: "bad version", session: Session{Stack: StackRef{Name: "HDP", Version: "latest"}}, errMsg: "stack.version"},
		{name: "bad timeout", session: Session{Stack: StackRef{Name: "HDP", Version: "1.0"}, Server: ServerConfig{Timeout: "soon"}}, errMsg: "server.timeout"},
		{name: "bad mode", session: Session{Stack: StackRef{Name: "HDP", Version: "1.0"}, Mode: "wizard"}, errMsg: "unknown mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSession_WriteFileRoundTrip(t *testing.T) {
	t.Setenv("AMBARI_PASSWORD", "")
	s, _, err := LoadSession(filepath.Join("testdata", "session.yaml"), LoadOptions{})
	require.NoError(t, err)
	tree, err := s.Tree()
	require.NoError(t, err)

	memory := tree.Service("YARN").Property("yarn.nodemanager.resource.memory-mb", "yarn-site")
	memory.Value = "3072"
	memory.RecommendedValue = configtree.StringPtr("3072")
	tree.Service("MAPREDUCE2").Configs[0].SetOverride("MR-HighMem", "2048", true)
	s.UpdateFromTree(tree)
	s.EnvFiles = nil

	out := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, s.WriteFile(out))

	reloaded, _, err := LoadSession(out, LoadOptions{})
	require.NoError(t, err)
	again, err := reloaded.Tree()
	require.NoError(t, err)

	memory = again.Service("YARN").Property("yarn.nodemanager.resource.memory-mb", "yarn-site")
	assert.Equal(t, "3072", memory.Value)
	assert.Equal(t, "3072", configtree.Deref(memory.RecommendedValue))
	override := again.Service("MAPREDUCE2").Configs[0].Override("MR-HighMem")
	require.NotNil(t, override)
	assert.True(t, override.IsNotSaved)
	assert.Equal(t, "HighMem", reloaded.SelectedGroup)
}

func TestLoadAndRender_Errors(t *testing.T) {
	_, _, err := LoadAndRender("", LoadOptions{})
	assert.Error(t, err)

	_, _, err = LoadAndRender(filepath.Join(t.TempDir(), "missing.yaml"), LoadOptions{})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("stack:\n  name: {{ .Nope }\n"), 0o644))
	_, _, err = LoadAndRender(bad, LoadOptions{})
	assert.Error(t, err)
}

func TestFuncs(t *testing.T) {
	ctx := TemplateContext{EnvMap: env.Vars{"A": "1"}}
	out, err := RenderTemplate("t", []byte(`{{ envOr "A" "x" }}-{{ envOr "B" "y" }}-{{ slug "My Group_1" }}-{{ default "" "d" }}`), ctx)
	require.NoError(t, err)
	assert.Equal(t, "1-y-my-group-1-d", string(out))
}
