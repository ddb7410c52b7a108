// Package configtree holds the editable configuration tree: services, their properties,
// per-group overrides, config groups and stack property attributes.
package configtree

import (
	"fmt"
	"sort"
	"strings"
)

// Mode describes which editing screen owns the tree.
type Mode string

const (
	// ModeInstaller is the install wizard; services may not exist on the cluster yet.
	ModeInstaller Mode = "installer"
	// ModeService is the configuration page of an installed service.
	ModeService Mode = "service"
)

// Tree is the current editable configuration shared by the reconciler and the editor.
type Tree struct {
	// Mode selects which baseline is used for not yet installed services.
	Mode Mode
	// Services lists the step configurations in display order.
	Services []*ServiceConfig
	// Sites maps a file tag (e.g. "yarn-site") to the owning service name.
	Sites map[string]string
	// Attributes holds stack property attributes keyed by AttributeID.
	Attributes map[string]*StackPropertyAttributes
	// Hosts lists all cluster host names.
	Hosts []string
	// SelectedService is the name of the service being edited.
	SelectedService string
	// SelectedGroup is the name of the active config group of SelectedService.
	SelectedGroup string
}

// ServiceConfig is the step configuration of one service.
type ServiceConfig struct {
	ServiceName string
	DisplayName string
	// Installed reports whether the service already exists on the cluster.
	Installed bool
	// DependentServiceNames lists services whose configs depend on this one.
	DependentServiceNames []string
	Configs               []*Property
	ConfigGroups          []*ConfigGroup
}

// ConfigGroup is a named scope that can hold property overrides.
type ConfigGroup struct {
	Name      string
	IsDefault bool
	Hosts     []string
	// DependentConfigGroups maps a dependent service name to the group of that
	// service used when reconciling cross-service recommendations.
	DependentConfigGroups map[string]string
}

// Service returns the step configuration for name, or nil.
func (t *Tree) Service(name string) *ServiceConfig {
	if t == nil {
		return nil
	}
	for _, svc := range t.Services {
		if svc.ServiceName == name {
			return svc
		}
	}
	return nil
}

// ServiceNames returns the names of all services in the tree.
func (t *Tree) ServiceNames() []string {
	out := make([]string, 0, len(t.Services))
	for _, svc := range t.Services {
		out = append(out, svc.ServiceName)
	}
	return out
}

// SelectedServiceConfig returns the step configuration being edited.
func (t *Tree) SelectedServiceConfig() *ServiceConfig {
	return t.Service(t.SelectedService)
}

// SelectedConfigGroup returns the active config group, falling back to the
// selected service's default group when no group is selected.
func (t *Tree) SelectedConfigGroup() *ConfigGroup {
	svc := t.SelectedServiceConfig()
	if svc == nil {
		return nil
	}
	if t.SelectedGroup == "" {
		return svc.DefaultGroup()
	}
	return svc.Group(t.SelectedGroup)
}

// ServiceForSite resolves the service owning fileTag. Explicit Sites entries win;
// otherwise the first service with a property in that file is used.
func (t *Tree) ServiceForSite(fileTag string) string {
	if name, ok := t.Sites[fileTag]; ok {
		return name
	}
	file := FileName(fileTag)
	for _, svc := range t.Services {
		for _, cp := range svc.Configs {
			if cp.Filename == file {
				return svc.ServiceName
			}
		}
	}
	return ""
}

// UseInitialValue reports whether InitialValue rather than SavedValue is the
// baseline for serviceName.
func (t *Tree) UseInitialValue(serviceName string) bool {
	if t.Mode != ModeInstaller {
		return false
	}
	svc := t.Service(serviceName)
	return svc == nil || !svc.Installed
}

// Attribute returns the stack attributes for the property, or nil.
func (t *Tree) Attribute(name, fileTag string) *StackPropertyAttributes {
	if t.Attributes == nil {
		return nil
	}
	return t.Attributes[AttributeID(name, fileTag)]
}

// SetDependentGroups fills missing dependent group mappings of the selected
// non-default group. Each dependent service gets a non-default group that no
// other non-default group of the selected service already points to.
func (t *Tree) SetDependentGroups() {
	selected := t.SelectedConfigGroup()
	svc := t.SelectedServiceConfig()
	if selected == nil || selected.IsDefault || svc == nil {
		return
	}
	if selected.DependentConfigGroups == nil {
		selected.DependentConfigGroups = make(map[string]string)
	}
	for _, depName := range svc.DependentServiceNames {
		if selected.DependentConfigGroups[depName] != "" {
			continue
		}
		dep := t.Service(depName)
		if dep == nil {
			continue
		}
		claimed := make(map[string]struct{})
		for _, g := range svc.ConfigGroups {
			if g.IsDefault || g == selected {
				continue
			}
			if name := g.DependentConfigGroups[depName]; name != "" {
				claimed[name] = struct{}{}
			}
		}
		var fallback string
		for _, g := range dep.ConfigGroups {
			if g.IsDefault {
				continue
			}
			if fallback == "" {
				fallback = g.Name
			}
			if _, taken := claimed[g.Name]; !taken {
				selected.DependentConfigGroups[depName] = g.Name
				break
			}
		}
		if selected.DependentConfigGroups[depName] == "" && fallback != "" {
			selected.DependentConfigGroups[depName] = fallback
		}
	}
}

// Validate checks structural invariants of the tree.
func (t *Tree) Validate() error {
	seen := make(map[string]struct{})
	for _, svc := range t.Services {
		if strings.TrimSpace(svc.ServiceName) == "" {
			return fmt.Errorf("service with empty name")
		}
		if _, dup := seen[svc.ServiceName]; dup {
			return fmt.Errorf("service %q declared twice", svc.ServiceName)
		}
		seen[svc.ServiceName] = struct{}{}

		defaults := 0
		groups := make(map[string]*ConfigGroup)
		for _, g := range svc.ConfigGroups {
			if g.IsDefault {
				defaults++
			}
			groups[g.Name] = g
		}
		if defaults != 1 {
			return fmt.Errorf("service %q must have exactly one default config group, got %d", svc.ServiceName, defaults)
		}
		for _, cp := range svc.Configs {
			groupSeen := make(map[string]struct{})
			for _, o := range cp.Overrides {
				g, ok := groups[o.Group]
				if !ok {
					return fmt.Errorf("property %s/%s overrides unknown group %q", cp.Filename, cp.Name, o.Group)
				}
				if g.IsDefault {
					return fmt.Errorf("property %s/%s overrides default group %q", cp.Filename, cp.Name, o.Group)
				}
				if _, dup := groupSeen[o.Group]; dup {
					return fmt.Errorf("property %s/%s has two overrides for group %q", cp.Filename, cp.Name, o.Group)
				}
				groupSeen[o.Group] = struct{}{}
			}
		}
	}
	for site, svc := range t.Sites {
		if _, ok := seen[svc]; !ok {
			return fmt.Errorf("site %q maps to unknown service %q", site, svc)
		}
	}
	if t.SelectedService != "" && t.SelectedConfigGroup() == nil {
		return fmt.Errorf("selected group %q not found in service %q", t.SelectedGroup, t.SelectedService)
	}
	return nil
}

// DefaultGroup returns the service's default config group, or nil.
func (s *ServiceConfig) DefaultGroup() *ConfigGroup {
	for _, g := range s.ConfigGroups {
		if g.IsDefault {
			return g
		}
	}
	return nil
}

// Group returns the config group called name, or nil.
func (s *ServiceConfig) Group(name string) *ConfigGroup {
	for _, g := range s.ConfigGroups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// Property returns the config named name in fileTag, or nil.
func (s *ServiceConfig) Property(name, fileTag string) *Property {
	file := FileName(fileTag)
	for _, cp := range s.Configs {
		if cp.Name == name && cp.Filename == file {
			return cp
		}
	}
	return nil
}

// PropertiesInSite returns all configs stored in fileTag.
func (s *ServiceConfig) PropertiesInSite(fileTag string) []*Property {
	file := FileName(fileTag)
	var out []*Property
	for _, cp := range s.Configs {
		if cp.Filename == file {
			out = append(out, cp)
		}
	}
	return out
}

// AddProperty appends cp to the service configs.
func (s *ServiceConfig) AddProperty(cp *Property) {
	s.Configs = append(s.Configs, cp)
}

// RemoveProperty removes cp from the service configs and reports whether it was present.
func (s *ServiceConfig) RemoveProperty(cp *Property) bool {
	for i, existing := range s.Configs {
		if existing == cp {
			s.Configs = append(s.Configs[:i], s.Configs[i+1:]...)
			return true
		}
	}
	return false
}

// Sites returns the sorted set of file tags used by the service configs.
func (s *ServiceConfig) Sites() []string {
	set := make(map[string]struct{})
	for _, cp := range s.Configs {
		set[FileTag(cp.Filename)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for tag := range set {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// FileTag strips the ".xml" suffix from a config file name.
func FileTag(filename string) string {
	return strings.TrimSuffix(filename, ".xml")
}

// FileName appends ".xml" to a file tag.
func FileName(fileTag string) string {
	if strings.HasSuffix(fileTag, ".xml") {
		return fileTag
	}
	return fileTag + ".xml"
}
