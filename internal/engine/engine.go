// Package engine runs one editing round: user edits go into the tree, a
// recommendation request is issued, and the reply is reconciled and optionally applied.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/codex-k8s/depconfctl/internal/configtree"
	"github.com/codex-k8s/depconfctl/internal/env"
	"github.com/codex-k8s/depconfctl/internal/recommend"
)

// Recommender fetches recommendations for a request.
type Recommender interface {
	Recommend(ctx context.Context, req *recommend.Request) (*recommend.Response, error)
}

// FileRecommender serves a recorded response from disk for offline use.
type FileRecommender struct {
	Path string
}

// Recommend reads and decodes the file, ignoring req.
func (f FileRecommender) Recommend(_ context.Context, _ *recommend.Request) (*recommend.Response, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read response file %q: %w", f.Path, err)
	}
	return recommend.DecodeResponse(data)
}

// Edit is a user change of one property value in the active group.
type Edit struct {
	// Site is the file tag, e.g. "yarn-site".
	Site  string
	Name  string
	Value string
}

// ParseEdits turns "site/name=value" vars into edits. Keys without a site use defaultSite.
func ParseEdits(vars env.Vars, defaultSite string) ([]Edit, error) {
	edits := make([]Edit, 0, len(vars))
	for _, key := range vars.Keys() {
		site, name, ok := strings.Cut(key, "/")
		if !ok {
			site, name = defaultSite, key
		}
		site = configtree.FileTag(strings.TrimSpace(site))
		name = strings.TrimSpace(name)
		if site == "" {
			return nil, fmt.Errorf("property %q has no site, use site/name or --site", key)
		}
		if name == "" {
			return nil, fmt.Errorf("empty property name in %q", key)
		}
		edits = append(edits, Edit{Site: site, Name: name, Value: vars[key]})
	}
	return edits, nil
}

// Options controls a recommendation round.
type Options struct {
	// Initial requests full recommendations; only bounds and display markers change.
	Initial bool
	// AutoApply commits the store right after a successful non-initial round.
	AutoApply bool
}

// Result describes a completed round.
type Result struct {
	// Seq is the request sequence number, 0 when nothing was requested.
	Seq uint64
	// Changed lists the edited properties sent with the request.
	Changed []recommend.ChangedConfig
	// Pending is the number of records visible from the active group after reconciling.
	Pending int
	// Applied is set when AutoApply committed the store.
	Applied bool
	Report  recommend.ApplyReport
}

// Engine coordinates the advisor with a Recommender.
type Engine struct {
	advisor *recommend.Advisor
	client  Recommender
	logger  *slog.Logger
}

// NewEngine constructs an Engine.
func NewEngine(advisor *recommend.Advisor, client Recommender, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{advisor: advisor, client: client, logger: logger}
}

// ApplyEdits writes edits into the tree for the active group and returns the
// changed configs to send. Edits equal to the current value are dropped. In a
// non-default group a missing override is created as unsaved.
func (e *Engine) ApplyEdits(edits []Edit) ([]recommend.ChangedConfig, error) {
	tree := e.advisor.Tree()
	group := tree.SelectedConfigGroup()
	svc := tree.SelectedServiceConfig()

	var changed []recommend.ChangedConfig
	for _, ed := range edits {
		owner := tree.Service(tree.ServiceForSite(ed.Site))
		if owner == nil {
			return nil, fmt.Errorf("no service owns site %q", ed.Site)
		}
		cp := owner.Property(ed.Name, ed.Site)
		if cp == nil {
			return nil, fmt.Errorf("property %s/%s not found in service %s", ed.Site, ed.Name, owner.ServiceName)
		}

		if group != nil && !group.IsDefault {
			if owner != svc {
				return nil, fmt.Errorf("property %s/%s belongs to %s, only %s can be edited in group %q",
					ed.Site, ed.Name, owner.ServiceName, svc.ServiceName, group.Name)
			}
			override := cp.Override(group.Name)
			if override != nil && override.Value == ed.Value {
				continue
			}
			if override == nil {
				if cp.Value == ed.Value {
					continue
				}
				cp.SetOverride(group.Name, ed.Value, true)
			} else {
				override.Value = ed.Value
			}
		} else {
			if cp.Value == ed.Value {
				continue
			}
			cp.Value = ed.Value
			cp.Validate(tree.Attribute(ed.Name, ed.Site), "")
		}
		e.logger.Info("property edited", "site", ed.Site, "property", ed.Name, "value", ed.Value)
		changed = append(changed, recommend.ChangedConfig{Type: ed.Site, Name: ed.Name})
	}
	sort.SliceStable(changed, func(i, j int) bool {
		if changed[i].Type != changed[j].Type {
			return changed[i].Type < changed[j].Type
		}
		return changed[i].Name < changed[j].Name
	})
	return changed, nil
}

// Recommend issues a request for changed, reconciles the reply and applies it
// when requested. Transport failures are returned as RecommendationFetchError;
// undecodable replies are returned as MalformedResponseError and leave the
// settled marker alone.
func (e *Engine) Recommend(ctx context.Context, changed []recommend.ChangedConfig, opts Options) (Result, error) {
	result := Result{Changed: changed}
	req, seq := e.advisor.BeginRequest(changed, opts.Initial)
	if req == nil {
		e.logger.Info("nothing changed, no recommendations requested")
		return result, nil
	}
	result.Seq = seq
	if e.client == nil {
		return result, e.advisor.HandleFailure(seq, fmt.Errorf("no recommendation source configured"))
	}

	resp, err := e.client.Recommend(ctx, req)
	if recommend.IsMalformedResponse(err) {
		e.logger.Warn("recommendation response rejected", "seq", seq, "error", err)
		return result, err
	}
	if err != nil {
		return result, e.advisor.HandleFailure(seq, err)
	}
	if err := e.advisor.HandleResponse(seq, resp); err != nil {
		return result, err
	}

	if opts.Initial && e.advisor.Tree().Mode == configtree.ModeInstaller {
		if err := e.advisor.UpdateInitialValues(resp); err != nil {
			return result, err
		}
	}

	result.Pending = len(e.advisor.ChangedProperties())
	if opts.AutoApply && !opts.Initial {
		result.Report = e.advisor.Apply()
		result.Applied = true
	}
	e.logger.Info("recommendations reconciled",
		"seq", seq,
		"pending", result.Pending,
		"applied", result.Applied,
	)
	return result, nil
}
