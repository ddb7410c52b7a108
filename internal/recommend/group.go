package recommend

import "github.com/codex-k8s/depconfctl/internal/configtree"

// GroupResolver picks the config group whose values are compared and mutated
// for a service, given the active group of the edited service.
type GroupResolver struct {
	tree *configtree.Tree
}

// NewGroupResolver returns a resolver over tree.
func NewGroupResolver(tree *configtree.Tree) GroupResolver {
	return GroupResolver{tree: tree}
}

// Resolve returns the group for serviceName or nil when there is no comparison
// context: the service has no step configuration, or the active non-default
// group has no dependent group mapped for it.
func (r GroupResolver) Resolve(serviceName string) *configtree.ConfigGroup {
	if r.tree == nil || len(r.tree.Services) == 0 {
		return nil
	}
	active := r.tree.SelectedConfigGroup()
	if r.tree.SelectedService == serviceName && active != nil {
		return active
	}
	svc := r.tree.Service(serviceName)
	if svc == nil {
		return nil
	}
	if active == nil || active.IsDefault {
		return svc.DefaultGroup()
	}
	name, ok := active.DependentConfigGroups[serviceName]
	if !ok || name == "" {
		return nil
	}
	return svc.Group(name)
}

// ActiveGroupName returns the name of the active group when it is not the
// default group, "" otherwise.
func (r GroupResolver) ActiveGroupName() string {
	if r.tree == nil {
		return ""
	}
	if g := r.tree.SelectedConfigGroup(); g != nil && !g.IsDefault {
		return g.Name
	}
	return ""
}
