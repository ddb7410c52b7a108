package recommend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/codex-k8s/depconfctl/internal/configtree"
)

const (
	// RecommendDependencies asks for values of properties depending on changed ones.
	RecommendDependencies = "configuration-dependencies"
	// RecommendConfigurations asks for a full set of recommended values.
	RecommendConfigurations = "configurations"
)

// ChangedConfig identifies an edited property in a request.
type ChangedConfig struct {
	// Type is the file tag, e.g. "yarn-site".
	Type string `json:"type"`
	Name string `json:"name"`
}

// SiteProperties is the properties block of one site in a request snapshot.
type SiteProperties struct {
	Properties map[string]string `json:"properties"`
}

// Request is the body sent to the recommendation service.
type Request struct {
	Recommend             string                 `json:"recommend"`
	Hosts                 []string               `json:"hosts"`
	Services              []string               `json:"services"`
	ChangedConfigurations []ChangedConfig        `json:"changed_configurations,omitempty"`
	Recommendations       RequestRecommendations `json:"recommendations"`
}

// RequestRecommendations carries the current tree snapshot.
type RequestRecommendations struct {
	Blueprint    RequestBlueprint     `json:"blueprint"`
	ConfigGroups []RequestConfigGroup `json:"config_groups,omitempty"`
}

// RequestBlueprint holds every service's configs keyed by site.
type RequestBlueprint struct {
	Configurations map[string]SiteProperties `json:"configurations"`
}

// RequestConfigGroup carries the overrides of the active non-default group.
type RequestConfigGroup struct {
	Configurations []map[string]SiteProperties `json:"configurations"`
	Hosts          []string                    `json:"hosts"`
}

// BuildRequest snapshots tree into a recommendation request. It returns nil when
// there is nothing to ask for: no changed configs and not an initial request.
func BuildRequest(tree *configtree.Tree, changed []ChangedConfig, initial bool) *Request {
	if len(changed) == 0 && !initial {
		return nil
	}

	req := &Request{
		Recommend: RecommendConfigurations,
		Hosts:     append([]string(nil), tree.Hosts...),
		Services:  tree.ServiceNames(),
		Recommendations: RequestRecommendations{
			Blueprint: RequestBlueprint{Configurations: buildConfigsJSON(tree)},
		},
	}
	if len(changed) > 0 {
		req.Recommend = RecommendDependencies
		req.ChangedConfigurations = append([]ChangedConfig(nil), changed...)
	}

	if group := tree.SelectedConfigGroup(); group != nil && !group.IsDefault && len(group.Hosts) > 0 {
		if svc := tree.SelectedServiceConfig(); svc != nil {
			req.Recommendations.ConfigGroups = []RequestConfigGroup{buildConfigGroupJSON(svc.Configs, group)}
		}
	}
	return req
}

func buildConfigsJSON(tree *configtree.Tree) map[string]SiteProperties {
	out := make(map[string]SiteProperties)
	for _, svc := range tree.Services {
		for _, cp := range svc.Configs {
			tag := cp.FileTag()
			site, ok := out[tag]
			if !ok {
				site = SiteProperties{Properties: make(map[string]string)}
				out[tag] = site
			}
			site.Properties[cp.Name] = cp.Value
		}
	}
	return out
}

func buildConfigGroupJSON(configs []*configtree.Property, group *configtree.ConfigGroup) RequestConfigGroup {
	configurations := make(map[string]SiteProperties)
	for _, cp := range configs {
		o := cp.Override(group.Name)
		if o == nil {
			continue
		}
		tag := cp.FileTag()
		site, ok := configurations[tag]
		if !ok {
			site = SiteProperties{Properties: make(map[string]string)}
			configurations[tag] = site
		}
		site.Properties[cp.Name] = o.Value
	}
	return RequestConfigGroup{
		Configurations: []map[string]SiteProperties{configurations},
		Hosts:          append([]string(nil), group.Hosts...),
	}
}

// Scalar is a payload value that may arrive as a JSON string, number, boolean or null.
type Scalar struct {
	value string
	valid bool
}

// StringValue returns a non-null Scalar holding s.
func StringValue(s string) Scalar {
	return Scalar{value: s, valid: true}
}

// NullValue returns a null Scalar.
func NullValue() Scalar {
	return Scalar{}
}

// Ptr returns the value as a fresh pointer, nil for null.
func (s Scalar) Ptr() *string {
	if !s.valid {
		return nil
	}
	v := s.value
	return &v
}

// IsNull reports whether the value was null.
func (s Scalar) IsNull() bool {
	return !s.valid
}

// String returns the raw value, "" for null.
func (s Scalar) String() string {
	return s.value
}

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = Scalar{}
	case data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar{value: str, valid: true}
	case bytes.Equal(data, []byte("true")) || bytes.Equal(data, []byte("false")):
		*s = Scalar{value: string(data), valid: true}
	default:
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return fmt.Errorf("unsupported scalar %s", string(data))
		}
		*s = Scalar{value: num.String(), valid: true}
	}
	return nil
}

// MarshalJSON encodes null or a JSON string.
func (s Scalar) MarshalJSON() ([]byte, error) {
	if !s.valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// SiteRecommendation is the per-site part of a response.
type SiteRecommendation struct {
	Properties         map[string]Scalar            `json:"properties,omitempty"`
	PropertyAttributes map[string]map[string]Scalar `json:"property_attributes,omitempty"`
}

// SiteConfigurations maps a file tag to its recommendations.
type SiteConfigurations map[string]SiteRecommendation

// SortedSites returns the site keys in lexical order.
func (c SiteConfigurations) SortedSites() []string {
	return sortedKeys(c)
}

// GroupRecommendation carries recommendations scoped to a config group.
type GroupRecommendation struct {
	Configurations          SiteConfigurations `json:"configurations,omitempty"`
	DependentConfigurations SiteConfigurations `json:"dependent_configurations,omitempty"`
	Hosts                   []string           `json:"hosts,omitempty"`
}

// Blueprint holds the recommended configurations.
type Blueprint struct {
	Configurations SiteConfigurations `json:"configurations"`
}

// Recommendations is the recommendation body of a response resource.
type Recommendations struct {
	Blueprint    *Blueprint            `json:"blueprint,omitempty"`
	ConfigGroups []GroupRecommendation `json:"config-groups,omitempty"`
}

// Resource is a single response resource.
type Resource struct {
	Recommendations *Recommendations `json:"recommendations,omitempty"`
}

// Response is the recommendation service reply.
type Response struct {
	Resources []Resource `json:"resources"`
}

// DecodeResponse parses and validates a response body.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &MalformedResponseError{Reason: "decode body", Err: err}
	}
	if _, err := resp.Configurations(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Configurations returns resources[0].recommendations.blueprint.configurations
// or a MalformedResponseError when any part of that path is missing.
func (r *Response) Configurations() (SiteConfigurations, error) {
	if r == nil || len(r.Resources) == 0 {
		return nil, &MalformedResponseError{Reason: "resources[0] not defined"}
	}
	rec := r.Resources[0].Recommendations
	if rec == nil {
		return nil, &MalformedResponseError{Reason: "resources[0].recommendations not defined"}
	}
	if rec.Blueprint == nil || rec.Blueprint.Configurations == nil {
		return nil, &MalformedResponseError{Reason: "resources[0].recommendations.blueprint.configurations not defined"}
	}
	return rec.Blueprint.Configurations, nil
}

// GroupRecommendation returns the first config-group entry, or nil.
func (r *Response) GroupRecommendation() *GroupRecommendation {
	if r == nil || len(r.Resources) == 0 || r.Resources[0].Recommendations == nil {
		return nil
	}
	groups := r.Resources[0].Recommendations.ConfigGroups
	if len(groups) == 0 {
		return nil
	}
	return &groups[0]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// isFalse reports whether a delete marker explicitly says "false".
func isFalse(s Scalar) bool {
	if s.IsNull() {
		return false
	}
	b, err := strconv.ParseBool(s.String())
	return err == nil && !b
}
