package recommend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalar_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		isNull bool
	}{
		{name: "string", input: `"1024"`, want: "1024"},
		{name: "integer", input: `2048`, want: "2048"},
		{name: "float", input: `0.75`, want: "0.75"},
		{name: "bool", input: `true`, want: "true"},
		{name: "null", input: `null`, isNull: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Scalar
			require.NoError(t, json.Unmarshal([]byte(tt.input), &s))
			assert.Equal(t, tt.isNull, s.IsNull())
			assert.Equal(t, tt.want, s.String())
		})
	}

	var s Scalar
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &s))
}

func TestDecodeResponse(t *testing.T) {
	body := []byte(`{
	  "resources": [{
	    "recommendations": {
	      "blueprint": {
	        "configurations": {
	          "yarn-site": {
	            "properties": {"memory": 1024, "vcores": "4"},
	            "property_attributes": {"memory": {"maximum": "8192", "minimum": null}, "old": {"delete": "true"}}
	          }
	        }
	      },
	      "config-groups": [{
	        "configurations": {"yarn-site": {"properties": {"memory": "2048"}}},
	        "dependent_configurations": {"mapred-site": {"properties": {"map.memory": "512"}}},
	        "hosts": ["h1"]
	      }]
	    }
	  }]
	}`)

	resp, err := DecodeResponse(body)
	require.NoError(t, err)

	configs, err := resp.Configurations()
	require.NoError(t, err)
	site := configs["yarn-site"]
	assert.Equal(t, "1024", site.Properties["memory"].String())
	assert.Equal(t, "4", site.Properties["vcores"].String())
	assert.True(t, site.PropertyAttributes["memory"]["minimum"].IsNull())
	assert.Equal(t, "true", site.PropertyAttributes["old"]["delete"].String())

	group := resp.GroupRecommendation()
	require.NotNil(t, group)
	assert.Equal(t, []string{"h1"}, group.Hosts)
	assert.Equal(t, "512", group.DependentConfigurations["mapred-site"].Properties["map.memory"].String())
}

func TestDecodeResponse_Malformed(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{}`,
		`{"resources": [{}]}`,
		`{"resources": [{"recommendations": {}}]}`,
		`{"resources": [{"recommendations": {"blueprint": {}}}]}`,
	} {
		_, err := DecodeResponse([]byte(body))
		require.Error(t, err, body)
		assert.True(t, IsMalformedResponse(err), body)
	}
}

func TestBuildRequest(t *testing.T) {
	t.Run("no changes", func(t *testing.T) {
		assert.Nil(t, BuildRequest(newTestTree(), nil, false))
	})

	t.Run("initial", func(t *testing.T) {
		req := BuildRequest(newTestTree(), nil, true)
		require.NotNil(t, req)
		assert.Equal(t, RecommendConfigurations, req.Recommend)
		assert.Empty(t, req.ChangedConfigurations)
		assert.Equal(t, []string{"YARN", "MAPREDUCE2"}, req.Services)
		assert.Equal(t, []string{"h1", "h2"}, req.Hosts)
		assert.Equal(t, "512", req.Recommendations.Blueprint.Configurations["yarn-site"].Properties["memory"])
		assert.Equal(t, "256", req.Recommendations.Blueprint.Configurations["mapred-site"].Properties["map.memory"])
		assert.Empty(t, req.Recommendations.ConfigGroups)
	})

	t.Run("dependencies in custom group", func(t *testing.T) {
		tree := newTestTree()
		tree.SelectedGroup = "HighMem"
		changed := []ChangedConfig{{Type: "yarn-site", Name: "container.size"}}

		req := BuildRequest(tree, changed, false)
		require.NotNil(t, req)
		assert.Equal(t, RecommendDependencies, req.Recommend)
		assert.Equal(t, changed, req.ChangedConfigurations)
		require.Len(t, req.Recommendations.ConfigGroups, 1)
		group := req.Recommendations.ConfigGroups[0]
		assert.Equal(t, []string{"h1"}, group.Hosts)
		assert.Equal(t, map[string]string{"container.size": "4096"}, group.Configurations[0]["yarn-site"].Properties)

		data, err := json.Marshal(req)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"changed_configurations":[{"type":"yarn-site","name":"container.size"}]`)
		assert.Contains(t, string(data), `"config_groups"`)
	})
}
