package recommend

import (
	"log/slog"
	"slices"

	"github.com/codex-k8s/depconfctl/internal/configtree"
)

// Options controls a reconciliation pass.
type Options struct {
	// BoundariesOnly updates bounds and display markers without tracking records.
	// It is set for the initial request of an editing session.
	BoundariesOnly bool
	// TriggeringProperties names the edited properties the request was made for.
	TriggeringProperties []string
	// ActiveGroup is the name of the active non-default group, "" for the default group.
	ActiveGroup string
}

func (o Options) triggers(name string) bool {
	return slices.Contains(o.TriggeringProperties, name)
}

// DependencyReconciler merges recommended property values into the store and
// writes display markers onto the tree.
type DependencyReconciler struct {
	tree       *configtree.Tree
	store      *Store
	groups     GroupResolver
	attributes *AttributeReconciler
	logger     *slog.Logger
}

// NewDependencyReconciler wires a reconciler over tree and store.
func NewDependencyReconciler(tree *configtree.Tree, store *Store, attributes *AttributeReconciler, logger *slog.Logger) *DependencyReconciler {
	return &DependencyReconciler{
		tree:       tree,
		store:      store,
		groups:     NewGroupResolver(tree),
		attributes: attributes,
		logger:     orDiscard(logger),
	}
}

// Reconcile processes resp. The payload is validated first; a
// MalformedResponseError leaves the store and the tree untouched.
//
// Sites are visited in lexical order. Within a site, property values are
// reconciled before attributes, so a delete marker for a property also
// recommended in the same site wins.
func (d *DependencyReconciler) Reconcile(resp *Response, opts Options) error {
	configs, err := resp.Configurations()
	if err != nil {
		return err
	}

	d.reconcileSites(configs, opts)

	if opts.ActiveGroup != "" {
		if group := resp.GroupRecommendation(); group != nil {
			d.reconcileSites(group.Configurations, opts)
			d.reconcileSites(group.DependentConfigurations, opts)
		}
	}
	return nil
}

func (d *DependencyReconciler) reconcileSites(configs SiteConfigurations, opts Options) {
	for _, site := range configs.SortedSites() {
		siteRec := configs[site]
		svc, group, ok := d.resolveSite(site)
		if !ok {
			continue
		}
		for _, name := range sortedKeys(siteRec.Properties) {
			d.reconcileProperty(svc, group, site, name, siteRec.Properties[name].Ptr(), opts)
		}
		d.attributes.reconcileSite(svc, group, site, siteRec.PropertyAttributes, opts)
	}
}

// resolveSite maps a site to its service and comparison group. Unmapped sites
// are skipped, not reported as errors.
func (d *DependencyReconciler) resolveSite(site string) (*configtree.ServiceConfig, *configtree.ConfigGroup, bool) {
	serviceName := d.tree.ServiceForSite(site)
	svc := d.tree.Service(serviceName)
	if svc == nil {
		d.logger.Debug("skipping site without step configuration", "site", site)
		return nil, nil, false
	}
	group := d.groups.Resolve(svc.ServiceName)
	if group == nil {
		d.logger.Debug("skipping site without comparison group", "site", site, "service", svc.ServiceName)
		return nil, nil, false
	}
	return svc, group, true
}

func (d *DependencyReconciler) reconcileProperty(svc *configtree.ServiceConfig, group *configtree.ConfigGroup, site, name string, recommended *string, opts Options) {
	notDefault := !group.IsDefault
	cp := svc.Property(name, site)
	var override *configtree.Override
	if notDefault && cp != nil {
		override = cp.Override(group.Name)
	}

	key := Key{PropertyName: name, FileName: site, ConfigGroup: group.Name}
	baseline := d.baseline(svc.ServiceName, cp, override)
	isNew := cp == nil || (notDefault && override == nil)
	baseline, recommended = NormalizePair(baseline, recommended)
	triggering := opts.triggers(name)
	converged := configtree.EqualPtr(baseline, recommended)

	if !opts.BoundariesOnly && !triggering && !converged {
		d.upsert(svc, group, key, baseline, recommended, isNew, opts)
	}

	if notDefault {
		if override != nil {
			override.RecommendedValue = configtree.ClonePtr(recommended)
		}
	} else if cp != nil {
		cp.RecommendedValue = configtree.ClonePtr(recommended)
	}

	if !converged {
		return
	}
	// Suggestions equal to the baseline are not surfaced; the live value goes
	// back to the baseline unless the user is editing this very property.
	if !triggering {
		switch {
		case notDefault && override != nil:
			override.Value = configtree.Deref(baseline)
		case !notDefault && cp != nil:
			cp.Value = configtree.Deref(baseline)
		}
	}
	if _, tracked := d.store.Get(key); tracked {
		d.logger.Debug("dependent value converged", "property", name, "site", site, "group", group.Name)
		d.store.removeKey(key)
	}
}

// baseline is the value a recommendation is compared against: the initial value
// in pre-install mode, the saved value otherwise, falling back to the current
// value. A missing property has no baseline. A non-default group without an
// override is compared against the property itself.
func (d *DependencyReconciler) baseline(serviceName string, cp *configtree.Property, override *configtree.Override) *string {
	if cp == nil {
		return nil
	}
	useInitial := d.tree.UseInitialValue(serviceName)

	current := cp.Value
	chosen := cp.SavedValue
	if useInitial {
		chosen = cp.InitialValue
	}
	if override != nil {
		current = override.Value
		chosen = override.SavedValue
		if useInitial {
			chosen = override.InitialValue
		}
	}
	if chosen == nil {
		return configtree.StringPtr(current)
	}
	return configtree.ClonePtr(chosen)
}

func (d *DependencyReconciler) upsert(svc *configtree.ServiceConfig, group *configtree.ConfigGroup, key Key, baseline, recommended *string, isNew bool, opts Options) {
	if rec := d.store.find(key); rec != nil {
		rec.Value = configtree.ClonePtr(baseline)
		rec.RecommendedValue = configtree.ClonePtr(recommended)
		rec.ToDelete = false
		rec.ToAdd = isNew
		rec.ParentConfigs = unionNames(rec.ParentConfigs, opts.TriggeringProperties)
		return
	}
	d.store.add(&Record{
		PropertyName:           key.PropertyName,
		FileName:               key.FileName,
		ConfigGroup:            key.ConfigGroup,
		SaveRecommended:        true,
		SaveRecommendedDefault: true,
		ToAdd:                  isNew,
		Value:                  configtree.ClonePtr(baseline),
		RecommendedValue:       configtree.ClonePtr(recommended),
		ParentConfigs:          unionNames(nil, opts.TriggeringProperties),
		ServiceName:            svc.ServiceName,
		ServiceDisplayName:     svc.DisplayName,
		AllowChangeGroup:       allowChangeGroup(d.tree, svc, opts),
	})
	d.logger.Debug("tracking dependent value", "property", key.PropertyName, "site", key.FileName, "group", key.ConfigGroup, "new", isNew)
}

// allowChangeGroup is true for dependent services with several groups while a
// non-default group of another service is being edited.
func allowChangeGroup(tree *configtree.Tree, svc *configtree.ServiceConfig, opts Options) bool {
	return opts.ActiveGroup != "" && svc.ServiceName != tree.SelectedService && len(svc.ConfigGroups) > 1
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.DiscardHandler)
}
