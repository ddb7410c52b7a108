package recommend

import (
	"log/slog"

	"github.com/codex-k8s/depconfctl/internal/configtree"
)

// AttributeReconciler applies recommended property attributes: value bounds go
// to the stack attributes, delete markers go to the store.
type AttributeReconciler struct {
	tree   *configtree.Tree
	store  *Store
	logger *slog.Logger

	// boundariesChanged counts per-group bound updates.
	boundariesChanged uint64
}

// NewAttributeReconciler wires a reconciler over tree and store.
func NewAttributeReconciler(tree *configtree.Tree, store *Store, logger *slog.Logger) *AttributeReconciler {
	return &AttributeReconciler{
		tree:   tree,
		store:  store,
		logger: orDiscard(logger),
	}
}

// BoundariesChanged returns how many times a per-group bound changed.
func (a *AttributeReconciler) BoundariesChanged() uint64 {
	return a.boundariesChanged
}

func (a *AttributeReconciler) reconcileSite(svc *configtree.ServiceConfig, group *configtree.ConfigGroup, site string, attributes map[string]map[string]Scalar, opts Options) {
	for _, name := range sortedKeys(attributes) {
		attrs := attributes[name]
		for _, attr := range sortedKeys(attrs) {
			value := attrs[attr]
			if attr == configtree.AttrDelete {
				if !opts.BoundariesOnly && !isFalse(value) {
					a.markDeleted(svc, group, site, name, opts)
				}
				continue
			}
			a.updateBound(site, name, attr, value, opts)
		}
	}
}

func (a *AttributeReconciler) updateBound(site, name, attr string, value Scalar, opts Options) {
	stack := a.tree.Attribute(name, site)
	if stack == nil {
		a.logger.Debug("no stack attributes for property", "property", name, "site", site)
		return
	}

	if opts.ActiveGroup != "" {
		bounds := stack.GroupBoundSet(opts.ActiveGroup)
		current, ok := bounds[attr]
		var currentPtr *string
		if ok {
			currentPtr = &current
		}
		if SameValue(currentPtr, value.Ptr()) {
			return
		}
		setBound(bounds, attr, value)
		a.boundariesChanged++
		a.logger.Debug("group bound changed", "property", name, "site", site, "group", opts.ActiveGroup, "attribute", attr, "value", value.String())
		return
	}

	if stack.Bounds == nil {
		stack.Bounds = make(configtree.Bounds)
	}
	setBound(stack.Bounds, attr, value)
}

func setBound(bounds configtree.Bounds, attr string, value Scalar) {
	if value.IsNull() {
		delete(bounds, attr)
		return
	}
	bounds[attr] = value.String()
}

// markDeleted finds or creates the deletion record for the property. The prior
// session value is kept so the property can be restored.
func (a *AttributeReconciler) markDeleted(svc *configtree.ServiceConfig, group *configtree.ConfigGroup, site, name string, opts Options) {
	key := Key{PropertyName: name, FileName: site, ConfigGroup: group.Name}
	if rec := a.store.find(key); rec != nil {
		rec.ToDelete = true
		rec.ToAdd = false
		rec.RecommendedValue = nil
		rec.ParentConfigs = unionNames(rec.ParentConfigs, opts.TriggeringProperties)
		return
	}

	// A missing property is tracked too; apply drops the record as stale.
	var prior *string
	if cp := svc.Property(name, site); cp != nil {
		useInitial := a.tree.UseInitialValue(svc.ServiceName)
		prior = cp.SavedValue
		if useInitial {
			prior = cp.InitialValue
		}
		if override := cp.Override(group.Name); !group.IsDefault && override != nil {
			prior = override.SavedValue
			if useInitial {
				prior = override.InitialValue
			}
		}
	}

	a.store.add(&Record{
		PropertyName:           name,
		FileName:               site,
		ConfigGroup:            group.Name,
		SaveRecommended:        true,
		SaveRecommendedDefault: true,
		ToDelete:               true,
		Value:                  configtree.ClonePtr(prior),
		ParentConfigs:          unionNames(nil, opts.TriggeringProperties),
		ServiceName:            svc.ServiceName,
		ServiceDisplayName:     svc.DisplayName,
		AllowChangeGroup:       allowChangeGroup(a.tree, svc, opts),
	})
	a.logger.Debug("tracking property deletion", "property", name, "site", site, "group", group.Name)
}
