package config

import (
	"fmt"
	"sort"

	"github.com/codex-k8s/depconfctl/internal/configtree"
)

// Tree builds the editable configuration tree described by the session.
func (s *Session) Tree() (*configtree.Tree, error) {
	tree := &configtree.Tree{
		Mode:            configtree.ModeService,
		Sites:           make(map[string]string, len(s.Sites)),
		Attributes:      make(map[string]*configtree.StackPropertyAttributes, len(s.Attributes)),
		Hosts:           append([]string(nil), s.Hosts...),
		SelectedService: s.SelectedService,
		SelectedGroup:   s.SelectedGroup,
	}
	if s.Mode == string(configtree.ModeInstaller) {
		tree.Mode = configtree.ModeInstaller
	}
	for tag, svc := range s.Sites {
		tree.Sites[configtree.FileTag(tag)] = svc
	}

	for _, spec := range s.Services {
		tree.Services = append(tree.Services, buildService(spec))
	}

	for _, a := range s.Attributes {
		attrs := &configtree.StackPropertyAttributes{
			Name:   a.Name,
			Site:   configtree.FileTag(a.Site),
			Bounds: configtree.Bounds{},
		}
		for k, v := range a.Bounds {
			attrs.Bounds[k] = v
		}
		for group, bounds := range a.GroupBounds {
			set := attrs.GroupBoundSet(group)
			for k, v := range bounds {
				set[k] = v
			}
		}
		if _, dup := tree.Attributes[attrs.ID()]; dup {
			return nil, fmt.Errorf("attributes for %s/%s declared twice", attrs.Site, attrs.Name)
		}
		tree.Attributes[attrs.ID()] = attrs
	}

	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	tree.SetDependentGroups()
	return tree, nil
}

func buildService(spec ServiceSpec) *configtree.ServiceConfig {
	svc := &configtree.ServiceConfig{
		ServiceName:           spec.Name,
		DisplayName:           spec.DisplayName,
		Installed:             spec.Installed,
		DependentServiceNames: append([]string(nil), spec.DependentServices...),
	}
	if svc.DisplayName == "" {
		svc.DisplayName = spec.Name
	}
	hasDefault := false
	for _, g := range spec.Groups {
		hasDefault = hasDefault || g.Default
		group := &configtree.ConfigGroup{
			Name:      g.Name,
			IsDefault: g.Default,
			Hosts:     append([]string(nil), g.Hosts...),
		}
		if len(g.DependentGroups) > 0 {
			group.DependentConfigGroups = make(map[string]string, len(g.DependentGroups))
			for k, v := range g.DependentGroups {
				group.DependentConfigGroups[k] = v
			}
		}
		svc.ConfigGroups = append(svc.ConfigGroups, group)
	}
	if !hasDefault {
		svc.ConfigGroups = append([]*configtree.ConfigGroup{{Name: "Default", IsDefault: true}}, svc.ConfigGroups...)
	}

	for _, p := range spec.Properties {
		cp := &configtree.Property{
			Name:             p.Name,
			DisplayName:      p.DisplayName,
			Filename:         configtree.FileName(p.File),
			ServiceName:      spec.Name,
			Category:         p.Category,
			Value:            p.Value,
			SavedValue:       configtree.ClonePtr(p.SavedValue),
			InitialValue:     configtree.ClonePtr(p.InitialValue),
			RecommendedValue: configtree.ClonePtr(p.RecommendedValue),
			IsNotSaved:       p.NotSaved,
			IsRequired:       p.Required,
			ErrorMessage:     p.Error,
		}
		if cp.DisplayName == "" {
			cp.DisplayName = p.Name
		}
		for _, o := range p.Overrides {
			cp.Overrides = append(cp.Overrides, &configtree.Override{
				Group:            o.Group,
				Value:            o.Value,
				SavedValue:       configtree.ClonePtr(o.SavedValue),
				InitialValue:     configtree.ClonePtr(o.InitialValue),
				RecommendedValue: configtree.ClonePtr(o.RecommendedValue),
				IsNotSaved:       o.NotSaved,
			})
		}
		svc.Configs = append(svc.Configs, cp)
	}
	return svc
}

// UpdateFromTree replaces the services, selection and attributes of the
// session with the content of tree. Stack, server and env settings are kept.
func (s *Session) UpdateFromTree(tree *configtree.Tree) {
	s.Mode = string(tree.Mode)
	s.SelectedService = tree.SelectedService
	s.SelectedGroup = tree.SelectedGroup
	s.Hosts = append([]string(nil), tree.Hosts...)

	s.Sites = nil
	if len(tree.Sites) > 0 {
		s.Sites = make(map[string]string, len(tree.Sites))
		for k, v := range tree.Sites {
			s.Sites[k] = v
		}
	}

	s.Services = s.Services[:0]
	for _, svc := range tree.Services {
		s.Services = append(s.Services, serviceSpec(svc))
	}

	ids := make([]string, 0, len(tree.Attributes))
	for id := range tree.Attributes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.Attributes = s.Attributes[:0]
	for _, id := range ids {
		a := tree.Attributes[id]
		spec := AttributeSpec{Name: a.Name, Site: a.Site}
		if len(a.Bounds) > 0 {
			spec.Bounds = map[string]string(a.Bounds)
		}
		for group, bounds := range a.GroupBounds {
			if len(bounds) == 0 {
				continue
			}
			if spec.GroupBounds == nil {
				spec.GroupBounds = make(map[string]map[string]string)
			}
			spec.GroupBounds[group] = map[string]string(bounds)
		}
		s.Attributes = append(s.Attributes, spec)
	}
}

func serviceSpec(svc *configtree.ServiceConfig) ServiceSpec {
	spec := ServiceSpec{
		Name:              svc.ServiceName,
		DisplayName:       svc.DisplayName,
		Installed:         svc.Installed,
		DependentServices: append([]string(nil), svc.DependentServiceNames...),
	}
	for _, g := range svc.ConfigGroups {
		spec.Groups = append(spec.Groups, GroupSpec{
			Name:            g.Name,
			Default:         g.IsDefault,
			Hosts:           append([]string(nil), g.Hosts...),
			DependentGroups: g.DependentConfigGroups,
		})
	}
	for _, cp := range svc.Configs {
		p := PropertySpec{
			Name:             cp.Name,
			File:             cp.Filename,
			Category:         cp.Category,
			Value:            cp.Value,
			SavedValue:       cp.SavedValue,
			InitialValue:     cp.InitialValue,
			RecommendedValue: cp.RecommendedValue,
			NotSaved:         cp.IsNotSaved,
			Required:         cp.IsRequired,
			Error:            cp.ErrorMessage,
		}
		if cp.DisplayName != cp.Name {
			p.DisplayName = cp.DisplayName
		}
		for _, o := range cp.Overrides {
			p.Overrides = append(p.Overrides, OverrideSpec{
				Group:            o.Group,
				Value:            o.Value,
				SavedValue:       o.SavedValue,
				InitialValue:     o.InitialValue,
				RecommendedValue: o.RecommendedValue,
				NotSaved:         o.IsNotSaved,
			})
		}
		spec.Properties = append(spec.Properties, p)
	}
	return spec
}
