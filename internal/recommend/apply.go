package recommend

import (
	"log/slog"

	"github.com/codex-k8s/depconfctl/internal/configtree"
)

// ApplyReport summarizes an apply pass.
type ApplyReport struct {
	Updated int `json:"updated"`
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
	// Skipped counts declined suggestions that were discarded without touching the tree.
	Skipped int `json:"skipped"`
	// Stale counts records whose property no longer exists.
	Stale int `json:"stale"`
}

// Total returns the number of tree mutations.
func (r ApplyReport) Total() int {
	return r.Updated + r.Added + r.Deleted
}

// ApplyEngine commits the store into the tree.
type ApplyEngine struct {
	tree   *configtree.Tree
	store  *Store
	groups GroupResolver
	logger *slog.Logger
}

// NewApplyEngine wires an engine over tree and store.
func NewApplyEngine(tree *configtree.Tree, store *Store, logger *slog.Logger) *ApplyEngine {
	return &ApplyEngine{
		tree:   tree,
		store:  store,
		groups: NewGroupResolver(tree),
		logger: orDiscard(logger),
	}
}

// Apply runs the update, add and delete passes for every service with a
// resolvable group. Only records scoped to that group are consumed.
func (e *ApplyEngine) Apply() ApplyReport {
	var report ApplyReport
	for _, svc := range e.tree.Services {
		group := e.groups.Resolve(svc.ServiceName)
		if group == nil {
			continue
		}
		e.updateValues(svc, group, &report)
		e.addProperties(svc, group, &report)
		e.removeProperties(svc, group, &report)
	}
	return report
}

func (e *ApplyEngine) scoped(svc *configtree.ServiceConfig, group *configtree.ConfigGroup, keep func(*Record) bool) []*Record {
	return e.store.selectRecords(func(r *Record) bool {
		return r.ServiceName == svc.ServiceName && r.ConfigGroup == group.Name && keep(r)
	})
}

func (e *ApplyEngine) updateValues(svc *configtree.ServiceConfig, group *configtree.ConfigGroup, report *ApplyReport) {
	records := e.scoped(svc, group, func(r *Record) bool {
		return !r.ToAdd && !r.ToDelete && !r.IsDeleted
	})
	for _, rec := range records {
		cp := svc.Property(rec.PropertyName, rec.FileName)
		if cp == nil {
			e.dropStale(rec, report)
			continue
		}

		valueToSave := rec.Value
		if rec.SaveRecommended {
			valueToSave = rec.RecommendedValue
		}
		recommended := configtree.Deref(rec.RecommendedValue)

		if group.IsDefault {
			if rec.SaveRecommended || cp.Value == recommended {
				cp.Value = configtree.Deref(valueToSave)
			}
			cp.RecommendedValue = configtree.ClonePtr(rec.RecommendedValue)
		} else {
			override := cp.Override(group.Name)
			if override == nil {
				e.dropStale(rec, report)
				continue
			}
			if rec.SaveRecommended || override.Value == recommended {
				override.Value = configtree.Deref(valueToSave)
			}
			override.RecommendedValue = configtree.ClonePtr(rec.RecommendedValue)
		}
		e.store.remove(rec)
		report.Updated++
	}
}

func (e *ApplyEngine) addProperties(svc *configtree.ServiceConfig, group *configtree.ConfigGroup, report *ApplyReport) {
	records := e.scoped(svc, group, func(r *Record) bool { return r.ToAdd })
	for _, rec := range records {
		if !rec.SaveRecommended {
			e.settle(rec)
			report.Skipped++
			continue
		}
		value := configtree.Deref(rec.RecommendedValue)
		cp := svc.Property(rec.PropertyName, rec.FileName)

		if group.IsDefault {
			if cp == nil {
				cp = &configtree.Property{
					Name:        rec.PropertyName,
					DisplayName: rec.PropertyName,
					Filename:    configtree.FileName(rec.FileName),
					ServiceName: svc.ServiceName,
					Category:    "Advanced " + rec.FileName,
					IsNotSaved:  !rec.IsDeleted,
					IsRequired:  true,
				}
				svc.AddProperty(cp)
			}
			cp.Value = value
			cp.RecommendedValue = configtree.ClonePtr(rec.RecommendedValue)
			cp.Validate(e.tree.Attribute(rec.PropertyName, rec.FileName), "")
		} else {
			if cp == nil {
				e.dropStale(rec, report)
				continue
			}
			override := cp.Override(group.Name)
			if override == nil {
				override = cp.SetOverride(group.Name, value, !rec.IsDeleted)
			}
			override.Value = value
			override.RecommendedValue = configtree.ClonePtr(rec.RecommendedValue)
		}

		if rec.IsDeleted {
			e.logger.Debug("restoring deleted property", "property", rec.PropertyName, "site", rec.FileName, "group", group.Name)
		}
		e.store.remove(rec)
		report.Added++
	}
}

func (e *ApplyEngine) removeProperties(svc *configtree.ServiceConfig, group *configtree.ConfigGroup, report *ApplyReport) {
	records := e.scoped(svc, group, func(r *Record) bool { return r.ToDelete })
	for _, rec := range records {
		if !rec.SaveRecommended {
			e.settle(rec)
			report.Skipped++
			continue
		}
		cp := svc.Property(rec.PropertyName, rec.FileName)

		var notSaved bool
		if group.IsDefault {
			if cp == nil {
				e.dropStale(rec, report)
				continue
			}
			svc.RemoveProperty(cp)
			notSaved = cp.IsNotSaved
		} else {
			var override *configtree.Override
			if cp != nil {
				override = cp.Override(group.Name)
			}
			if override == nil {
				e.dropStale(rec, report)
				continue
			}
			cp.RemoveOverride(override)
			notSaved = override.IsNotSaved
		}

		if notSaved {
			e.store.remove(rec)
		} else {
			rec.IsDeleted = true
			rec.ToAdd = false
			rec.ToDelete = false
		}
		report.Deleted++
	}
}

// settle finishes a record without touching the tree. Deletion markers of
// persisted properties survive so that a later add is seen as a restoration.
func (e *ApplyEngine) settle(rec *Record) {
	if rec.IsDeleted {
		rec.ToAdd = false
		rec.ToDelete = false
		return
	}
	e.store.remove(rec)
}

func (e *ApplyEngine) dropStale(rec *Record, report *ApplyReport) {
	e.logger.Debug("dropping stale dependent value", "property", rec.PropertyName, "site", rec.FileName, "group", rec.ConfigGroup)
	e.settle(rec)
	report.Stale++
}
