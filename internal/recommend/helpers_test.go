package recommend

import (
	"fmt"
	"sort"

	"github.com/codex-k8s/depconfctl/internal/configtree"
)

func ptr(s string) *string { return &s }

// newTestTree builds a YARN/MAPREDUCE2 tree. YARN is selected in its default group.
func newTestTree() *configtree.Tree {
	yarn := &configtree.ServiceConfig{
		ServiceName:           "YARN",
		DisplayName:           "YARN",
		Installed:             true,
		DependentServiceNames: []string{"MAPREDUCE2"},
		Configs: []*configtree.Property{
			{Name: "memory", Filename: "yarn-site.xml", ServiceName: "YARN", Value: "512", SavedValue: ptr("512")},
			{Name: "vcores", Filename: "yarn-site.xml", ServiceName: "YARN", Value: "8", SavedValue: ptr("8")},
			{Name: "obsolete_prop", Filename: "yarn-site.xml", ServiceName: "YARN", Value: "x", SavedValue: ptr("x")},
			{
				Name: "container.size", Filename: "yarn-site.xml", ServiceName: "YARN", Value: "1024", SavedValue: ptr("1024"),
				Overrides: []*configtree.Override{
					{Group: "HighMem", Value: "4096", SavedValue: ptr("4096")},
					{Group: "LowMem", Value: "256", SavedValue: ptr("256")},
				},
			},
		},
		ConfigGroups: []*configtree.ConfigGroup{
			{Name: "Default", IsDefault: true},
			{Name: "HighMem", Hosts: []string{"h1"}, DependentConfigGroups: map[string]string{"MAPREDUCE2": "MR-HighMem"}},
			{Name: "LowMem", Hosts: []string{"h2"}},
		},
	}
	mapred := &configtree.ServiceConfig{
		ServiceName: "MAPREDUCE2",
		DisplayName: "MapReduce2",
		Installed:   true,
		Configs: []*configtree.Property{
			{Name: "map.memory", Filename: "mapred-site.xml", ServiceName: "MAPREDUCE2", Value: "256", SavedValue: ptr("256")},
		},
		ConfigGroups: []*configtree.ConfigGroup{
			{Name: "Default", IsDefault: true},
			{Name: "MR-HighMem", Hosts: []string{"h1"}},
		},
	}
	return &configtree.Tree{
		Mode:     configtree.ModeService,
		Services: []*configtree.ServiceConfig{yarn, mapred},
		Sites: map[string]string{
			"yarn-site":   "YARN",
			"mapred-site": "MAPREDUCE2",
		},
		Attributes: map[string]*configtree.StackPropertyAttributes{
			"memory_yarn-site": {Name: "memory", Site: "yarn-site", Bounds: configtree.Bounds{"minimum": "256", "maximum": "8192"}},
		},
		Hosts:           []string{"h1", "h2"},
		SelectedService: "YARN",
		SelectedGroup:   "Default",
	}
}

type siteSpec struct {
	props map[string]Scalar
	attrs map[string]map[string]Scalar
}

func props(kv ...string) map[string]Scalar {
	out := make(map[string]Scalar)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = StringValue(kv[i+1])
	}
	return out
}

func response(sites map[string]siteSpec) *Response {
	configs := make(SiteConfigurations)
	for site, spec := range sites {
		configs[site] = SiteRecommendation{Properties: spec.props, PropertyAttributes: spec.attrs}
	}
	return &Response{Resources: []Resource{{
		Recommendations: &Recommendations{Blueprint: &Blueprint{Configurations: configs}},
	}}}
}

// reconcile runs one full request/response cycle through the advisor.
func reconcile(a *Advisor, resp *Response, initial bool, changed ...ChangedConfig) error {
	if len(changed) == 0 && !initial {
		changed = []ChangedConfig{{Type: "yarn-site", Name: "trigger"}}
	}
	_, seq := a.BeginRequest(changed, initial)
	return a.HandleResponse(seq, resp)
}

// snapshot flattens every property and override value of the tree.
func snapshot(tree *configtree.Tree) []string {
	var out []string
	for _, svc := range tree.Services {
		for _, cp := range svc.Configs {
			out = append(out, fmt.Sprintf("%s/%s/%s=%s notSaved=%t", svc.ServiceName, cp.Filename, cp.Name, cp.Value, cp.IsNotSaved))
			for _, o := range cp.Overrides {
				out = append(out, fmt.Sprintf("%s/%s/%s[%s]=%s notSaved=%t", svc.ServiceName, cp.Filename, cp.Name, o.Group, o.Value, o.IsNotSaved))
			}
		}
	}
	sort.Strings(out)
	return out
}
