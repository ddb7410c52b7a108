// Package recommend reconciles server recommendations for dependent configuration
// properties into an editable configuration tree.
//
// An Advisor owns a Store of dependent value records. Each recommendation request
// gets a sequence number from BeginRequest; HandleResponse reconciles the reply only
// when it answers the latest request, and Apply commits accepted suggestions into
// the tree. Reconcile and apply passes never interleave.
package recommend

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/codex-k8s/depconfctl/internal/configtree"
)

// ConfirmFunc presents pending changes and reports whether the user accepted them.
type ConfirmFunc func(changes []Record) bool

// Counters are the observable progress markers of an Advisor.
type Counters struct {
	// Settled advances after every apply and every failed request.
	Settled uint64 `json:"settled"`
	// BoundariesChanged advances whenever a per-group bound changes.
	BoundariesChanged uint64 `json:"boundariesChanged"`
	// Sequence is the number of the last issued request.
	Sequence uint64 `json:"sequence"`
}

type pendingRequest struct {
	seq     uint64
	options Options
}

// Advisor composes the group resolver, both reconcilers and the apply engine
// around one tree and one store.
type Advisor struct {
	mu sync.Mutex

	tree       *configtree.Tree
	store      *Store
	groups     GroupResolver
	attributes *AttributeReconciler
	deps       *DependencyReconciler
	applier    *ApplyEngine
	logger     *slog.Logger

	latest   pendingRequest
	settled  uint64
	boundary uint64
}

// NewAdvisor builds an Advisor. A nil store starts empty.
func NewAdvisor(tree *configtree.Tree, store *Store, logger *slog.Logger) *Advisor {
	if store == nil {
		store = NewStore()
	}
	logger = orDiscard(logger)
	attributes := NewAttributeReconciler(tree, store, logger)
	return &Advisor{
		tree:       tree,
		store:      store,
		groups:     NewGroupResolver(tree),
		attributes: attributes,
		deps:       NewDependencyReconciler(tree, store, attributes, logger),
		applier:    NewApplyEngine(tree, store, logger),
		logger:     logger,
	}
}

// Tree returns the tree the advisor reconciles into.
func (a *Advisor) Tree() *configtree.Tree {
	return a.tree
}

// Records returns copies of every stored record.
func (a *Advisor) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Records()
}

// Counters returns the current progress markers.
func (a *Advisor) Counters() Counters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters()
}

func (a *Advisor) counters() Counters {
	return Counters{
		Settled:           a.settled,
		BoundariesChanged: a.boundary + a.attributes.BoundariesChanged(),
		Sequence:          a.latest.seq,
	}
}

// RestoreState loads records and counters persisted by an earlier session.
// It is meant to be called before the first request.
func (a *Advisor) RestoreState(records []Record, counters Counters) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.Restore(records)
	a.settled = counters.Settled
	a.boundary = counters.BoundariesChanged
	a.latest = pendingRequest{seq: counters.Sequence}
}

// LatestSequence returns the sequence number of the last issued request.
func (a *Advisor) LatestSequence() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest.seq
}

// AdvanceSequence raises the sequence counter to at least seq, so the next
// request is numbered above any request issued elsewhere. A request still in
// flight becomes stale when the counter moves.
func (a *Advisor) AdvanceSequence(seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq > a.latest.seq {
		a.latest = pendingRequest{seq: seq}
	}
}

// BeginRequest builds a request for changed and tags it with a new sequence
// number, superseding any request still in flight. It returns a nil request
// and sequence 0 when there is nothing to ask for.
func (a *Advisor) BeginRequest(changed []ChangedConfig, initial bool) (*Request, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	req := BuildRequest(a.tree, changed, initial)
	if req == nil {
		return nil, 0
	}
	names := make([]string, 0, len(changed))
	for _, c := range changed {
		names = append(names, c.Name)
	}
	a.latest = pendingRequest{
		seq: a.latest.seq + 1,
		options: Options{
			BoundariesOnly:       initial,
			TriggeringProperties: unionNames(nil, names),
			ActiveGroup:          a.groups.ActiveGroupName(),
		},
	}
	a.logger.Debug("recommendation request issued", "seq", a.latest.seq, "recommend", req.Recommend, "changed", len(changed))
	return req, a.latest.seq
}

// HandleResponse reconciles resp when seq is the latest request. Responses to
// superseded requests are logged and reported as StaleResponseError without
// touching any state.
func (a *Advisor) HandleResponse(seq uint64, resp *Response) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if seq != a.latest.seq {
		a.logger.Info("discarding superseded recommendation response", "seq", seq, "latest", a.latest.seq)
		return &StaleResponseError{Seq: seq, Latest: a.latest.seq}
	}
	if err := a.deps.Reconcile(resp, a.latest.options); err != nil {
		return err
	}
	a.logger.Debug("recommendations reconciled", "seq", seq, "records", a.store.Len())
	return nil
}

// HandleFailure records a failed request. The store and tree stay untouched;
// the settled marker advances so waiting callers are released.
func (a *Advisor) HandleFailure(seq uint64, err error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if seq != a.latest.seq {
		a.logger.Info("ignoring failure of superseded recommendation request", "seq", seq, "latest", a.latest.seq, "error", err)
		return &StaleResponseError{Seq: seq, Latest: a.latest.seq}
	}
	a.settled++
	return &RecommendationFetchError{Seq: seq, Err: err}
}

// Apply commits the store into the tree and advances the settled marker.
func (a *Advisor) Apply() ApplyReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := a.applier.Apply()
	a.settled++
	a.logger.Debug("dependent values applied",
		"updated", report.Updated,
		"added", report.Added,
		"deleted", report.Deleted,
		"skipped", report.Skipped,
		"stale", report.Stale,
	)
	return report
}

// UpdateInitialValues seeds InitialValue of properties of services that are not
// installed with the recommended values of resp.
func (a *Advisor) UpdateInitialValues(resp *Response) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	configs, err := resp.Configurations()
	if err != nil {
		return err
	}
	for _, site := range configs.SortedSites() {
		svc := a.tree.Service(a.tree.ServiceForSite(site))
		if svc == nil || svc.Installed {
			continue
		}
		for name, value := range configs[site].Properties {
			if cp := svc.Property(name, site); cp != nil {
				cp.InitialValue = value.Ptr()
			}
		}
	}
	return nil
}

// ChangedProperties returns pending records visible from the active group:
// default-group records while the default group is active, otherwise records
// of the active group or of its dependent group for the record's service.
func (a *Advisor) ChangedProperties() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.changedProperties()
}

func (a *Advisor) changedProperties() []Record {
	active := a.tree.SelectedConfigGroup()
	var out []Record
	for _, rec := range a.store.records {
		if !rec.Pending() {
			continue
		}
		if a.visible(rec, active) {
			out = append(out, rec.clone())
		}
	}
	return out
}

func (a *Advisor) visible(rec *Record, active *configtree.ConfigGroup) bool {
	if active == nil || active.IsDefault {
		svc := a.tree.Service(rec.ServiceName)
		if svc == nil {
			return false
		}
		def := svc.DefaultGroup()
		return def != nil && def.Name == rec.ConfigGroup
	}
	if rec.ConfigGroup == active.Name {
		return true
	}
	dep, ok := active.DependentConfigGroups[rec.ServiceName]
	return ok && dep == rec.ConfigGroup
}

// HasChangedDependencies reports whether any visible record is pending.
func (a *Advisor) HasChangedDependencies() bool {
	return len(a.ChangedProperties()) > 0
}

// DependenciesSummary counts what a confirmation would change.
type DependenciesSummary struct {
	// Properties is the number of visible pending records.
	Properties int `json:"properties"`
	// Services is the number of distinct services among accepted records.
	Services int `json:"services"`
}

// String renders the summary as a sentence.
func (s DependenciesSummary) String() string {
	props := "properties"
	if s.Properties == 1 {
		props = "property"
	}
	services := "services"
	if s.Services == 1 {
		services = "service"
	}
	return fmt.Sprintf("%d dependent %s in %d %s will be changed", s.Properties, props, s.Services, services)
}

// DependenciesMessage summarizes the visible pending records.
func (a *Advisor) DependenciesMessage() DependenciesSummary {
	changed := a.ChangedProperties()
	services := make(map[string]struct{})
	for _, rec := range changed {
		if rec.SaveRecommended {
			services[rec.ServiceName] = struct{}{}
		}
	}
	return DependenciesSummary{Properties: len(changed), Services: len(services)}
}

// ShowChangedDependentConfigs asks confirm to accept the pending changes and
// applies them when accepted. With an empty store nothing is asked and the
// call reports acceptance. A rejection restores every record's default choice.
func (a *Advisor) ShowChangedDependentConfigs(confirm ConfirmFunc) (ApplyReport, bool) {
	a.mu.Lock()
	empty := a.store.Len() == 0
	changes := a.changedProperties()
	a.mu.Unlock()

	if empty {
		return ApplyReport{}, true
	}
	if confirm != nil && !confirm(changes) {
		a.RestoreSaveRecommended()
		return ApplyReport{}, false
	}
	return a.Apply(), true
}

// SetSaveRecommended records the user's choice for a suggestion. It reports
// whether any record matched.
func (a *Advisor) SetSaveRecommended(propertyName, fileTag string, save bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	fileTag = configtree.FileTag(fileTag)
	matched := false
	for _, rec := range a.store.records {
		if rec.PropertyName == propertyName && rec.FileName == fileTag {
			rec.SaveRecommended = save
			rec.SaveRecommendedDefault = save
			matched = true
		}
	}
	return matched
}

// RestoreSaveRecommended resets every record's choice to its default.
func (a *Advisor) RestoreSaveRecommended() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.store.records {
		rec.SaveRecommended = rec.SaveRecommendedDefault
	}
}

// Clear removes every record.
func (a *Advisor) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.Clear()
}

// ClearServices removes records of the given services.
func (a *Advisor) ClearServices(serviceNames ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.ClearServices(serviceNames...)
}
