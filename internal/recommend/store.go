package recommend

import (
	"slices"

	"github.com/codex-k8s/depconfctl/internal/configtree"
)

// Key uniquely identifies a Record.
type Key struct {
	PropertyName string
	// FileName is the file tag, e.g. "yarn-site".
	FileName    string
	ConfigGroup string
}

// Record is one entry of the dependent value store: a recommendation that
// differs from the property's baseline.
type Record struct {
	PropertyName string `json:"propertyName"`
	FileName     string `json:"fileName"`
	ConfigGroup  string `json:"configGroup"`

	// SaveRecommended is the user's choice to accept the suggestion.
	SaveRecommended bool `json:"saveRecommended"`
	// SaveRecommendedDefault restores SaveRecommended when a confirmation is cancelled.
	SaveRecommendedDefault bool `json:"saveRecommendedDefault"`

	ToAdd    bool `json:"toAdd"`
	ToDelete bool `json:"toDelete"`
	// IsDeleted marks a persisted property that was removed and may be recommended again.
	IsDeleted bool `json:"isDeleted"`

	// Value is the baseline at detection time.
	Value            *string `json:"value"`
	RecommendedValue *string `json:"recommendedValue"`

	// ParentConfigs names the edited properties that triggered the suggestion.
	ParentConfigs []string `json:"parentConfigs"`

	ServiceName        string `json:"serviceName"`
	ServiceDisplayName string `json:"serviceDisplayName"`
	// AllowChangeGroup reports whether the target group may be reassigned by the user.
	AllowChangeGroup bool `json:"allowChangeGroup"`
}

// Key returns the record's identity.
func (r *Record) Key() Key {
	return Key{PropertyName: r.PropertyName, FileName: r.FileName, ConfigGroup: r.ConfigGroup}
}

// Pending reports whether the record still has something to apply.
func (r *Record) Pending() bool {
	return !r.IsDeleted || r.ToAdd || r.ToDelete
}

func (r *Record) clone() Record {
	out := *r
	out.Value = configtree.ClonePtr(r.Value)
	out.RecommendedValue = configtree.ClonePtr(r.RecommendedValue)
	out.ParentConfigs = append([]string(nil), r.ParentConfigs...)
	return out
}

// Store holds dependent value records in insertion order. It is owned by an
// Advisor and mutated only by reconciliation and apply passes.
type Store struct {
	records []*Record
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Records returns copies of all records.
func (s *Store) Records() []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.clone())
	}
	return out
}

// Get returns a copy of the record for key.
func (s *Store) Get(key Key) (Record, bool) {
	if r := s.find(key); r != nil {
		return r.clone(), true
	}
	return Record{}, false
}

// Restore replaces the store content with records, keeping the last record of
// any duplicated key.
func (s *Store) Restore(records []Record) {
	s.records = s.records[:0]
	for i := range records {
		r := records[i].clone()
		if existing := s.find(r.Key()); existing != nil {
			*existing = r
			continue
		}
		s.records = append(s.records, &r)
	}
}

// Clear removes every record.
func (s *Store) Clear() {
	s.records = nil
}

// ClearServices removes records belonging to any of serviceNames.
func (s *Store) ClearServices(serviceNames ...string) {
	s.records = slices.DeleteFunc(s.records, func(r *Record) bool {
		return slices.Contains(serviceNames, r.ServiceName)
	})
}

func (s *Store) find(key Key) *Record {
	for _, r := range s.records {
		if r.Key() == key {
			return r
		}
	}
	return nil
}

func (s *Store) add(r *Record) {
	s.records = append(s.records, r)
}

func (s *Store) remove(r *Record) {
	s.records = slices.DeleteFunc(s.records, func(existing *Record) bool {
		return existing == r
	})
}

func (s *Store) removeKey(key Key) {
	s.records = slices.DeleteFunc(s.records, func(existing *Record) bool {
		return existing.Key() == key
	})
}

// selectRecords returns the live records matching keep; the slice is a copy so
// callers may remove records while iterating.
func (s *Store) selectRecords(keep func(*Record) bool) []*Record {
	var out []*Record
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// unionNames appends names missing from base, preserving order.
func unionNames(base []string, names []string) []string {
	out := append([]string(nil), base...)
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
