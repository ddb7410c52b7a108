package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/depconfctl/internal/config"
	"github.com/codex-k8s/depconfctl/internal/configtree"
	"github.com/codex-k8s/depconfctl/internal/env"
	"github.com/codex-k8s/depconfctl/internal/ghoutput"
	"github.com/codex-k8s/depconfctl/internal/logging"
	"github.com/codex-k8s/depconfctl/internal/recommend"
	"github.com/codex-k8s/depconfctl/internal/stackapi"
	"github.com/codex-k8s/depconfctl/internal/state"
	"github.com/codex-k8s/depconfctl/internal/tls"
)

// workspace is everything a command needs: the session, its tree, the advisor
// restored from the state file, and where to persist both.
type workspace struct {
	opts    *Options
	logger  *slog.Logger
	session *config.Session
	tree    *configtree.Tree
	advisor *recommend.Advisor
	state   *state.Store
	stack   string
}

func addVarsFlags(cmd *cobra.Command) {
	cmd.Flags().String("vars", "", "Additional template variables in k=v,k2=v2 format")
	cmd.Flags().String("var-file", "", "Path to YAML/ENV file with additional template variables")
}

func addWriteFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("write", false, "Write the updated session back to the --config file")
	cmd.Flags().StringP("output", "o", "", "Write the updated session to this file")
}

func parseInlineVarsAndFiles(cmd *cobra.Command) (env.Vars, []string, error) {
	var fromEnv varsEnv
	if err := parseEnv(&fromEnv); err != nil {
		return nil, nil, fmt.Errorf("parse DEPCONFCTL_* env: %w", err)
	}

	rawVars := fromEnv.Vars
	if f := cmd.Flags().Lookup("vars"); f != nil && f.Changed {
		rawVars = f.Value.String()
	}
	inlineVars, err := env.ParseInlineVars(rawVars)
	if err != nil {
		return nil, nil, err
	}

	varFile := fromEnv.VarFile
	if f := cmd.Flags().Lookup("var-file"); f != nil && f.Changed {
		varFile = f.Value.String()
	}
	var varFiles []string
	if strings.TrimSpace(varFile) != "" {
		varFiles = append(varFiles, varFile)
	}
	return inlineVars, varFiles, nil
}

// loadWorkspace loads session.yaml, builds the tree and restores the advisor state.
func loadWorkspace(cmd *cobra.Command, opts *Options) (*workspace, error) {
	logger := LoggerFromContext(cmd.Context())

	inlineVars, varFiles, err := parseInlineVarsAndFiles(cmd)
	if err != nil {
		return nil, err
	}
	session, _, err := config.LoadSession(opts.ConfigPath, config.LoadOptions{
		UserVars: inlineVars,
		VarFiles: varFiles,
	})
	if err != nil {
		return nil, err
	}
	tree, err := session.Tree()
	if err != nil {
		return nil, err
	}

	statePath := opts.StatePath
	if strings.TrimSpace(statePath) == "" {
		statePath = filepath.Join(filepath.Dir(opts.ConfigPath), state.DefaultPath)
	}
	store := state.NewStore(statePath, logging.Subsystem(logger, logging.SubsystemState))
	stack := session.Stack.Name + "-" + session.Stack.Version
	snap, err := store.LoadFor(stack)
	if err != nil {
		return nil, err
	}

	advisor := recommend.NewAdvisor(tree, nil, logging.Subsystem(logger, logging.SubsystemAdvisor))
	advisor.RestoreState(snap.Records, snap.Counters)

	logger.Debug("workspace loaded",
		"config", opts.ConfigPath,
		"state", store.Path(),
		"services", len(tree.Services),
		"records", len(snap.Records),
	)
	return &workspace{
		opts:    opts,
		logger:  logger,
		session: session,
		tree:    tree,
		advisor: advisor,
		state:   store,
		stack:   stack,
	}, nil
}

// commit persists the advisor records and counters unless a newer request
// was issued against the state file meanwhile. writeTo, when not empty, gets
// the updated session under the same lock.
func (w *workspace) commit(ctx context.Context, writeTo string) error {
	snap := state.Snapshot{
		Stack:    w.stack,
		Counters: w.advisor.Counters(),
		Records:  w.advisor.Records(),
	}
	return w.state.Commit(ctx, snap, func() error {
		return w.writeSession(writeTo)
	})
}

// reserveSequence numbers the next request above every request issued
// against the state file so far.
func (w *workspace) reserveSequence(ctx context.Context) error {
	seq, err := w.state.Reserve(ctx, w.stack)
	if err != nil {
		return err
	}
	w.advisor.AdvanceSequence(seq - 1)
	return nil
}

// writeTarget resolves --write/-o into a path, "" when nothing is to be written.
func writeTarget(cmd *cobra.Command, opts *Options) string {
	if out := cmd.Flag("output").Value.String(); out != "" {
		return out
	}
	if write, _ := cmd.Flags().GetBool("write"); write {
		return opts.ConfigPath
	}
	return ""
}

// writeSession stores the tree into the session file at path.
func (w *workspace) writeSession(path string) error {
	if path == "" {
		return nil
	}
	w.session.UpdateFromTree(w.tree)
	if err := w.session.WriteFile(path); err != nil {
		return err
	}
	w.logger.Info("session written", "path", path)
	return nil
}

// newClient builds the recommendation client from the session and DEPCONFCTL_* overrides.
func (w *workspace) newClient() (*stackapi.Client, error) {
	var fromEnv serverEnv
	if err := parseEnv(&fromEnv); err != nil {
		return nil, fmt.Errorf("parse DEPCONFCTL_* env: %w", err)
	}
	timeout, err := w.session.Timeout()
	if err != nil {
		return nil, err
	}
	opts := stackapi.Options{
		ServerURL: w.session.Server.URL,
		Stack:     w.session.Stack.Name,
		Version:   w.session.Stack.Version,
		User:      w.session.Server.User,
		Password:  w.session.Server.Password,
		Timeout:   timeout,
		TLS: tls.Options{
			CAFile:             w.session.Server.CAFile,
			InsecureSkipVerify: w.session.Server.InsecureSkipVerify,
		},
	}
	if fromEnv.CAFile != "" {
		opts.TLS.CAFile = fromEnv.CAFile
	}
	if fromEnv.URL != "" {
		opts.ServerURL = fromEnv.URL
	}
	if fromEnv.User != "" {
		opts.User = fromEnv.User
	}
	if fromEnv.Password != "" {
		opts.Password = fromEnv.Password
	}
	if fromEnv.Timeout > 0 {
		opts.Timeout = fromEnv.Timeout
	}
	return stackapi.NewClient(logging.Subsystem(w.logger, logging.SubsystemStackAPI), opts)
}

// publishOutputs adds the pending-change summary to extra and writes the
// result as GitHub Actions step outputs when running in a workflow.
func publishOutputs(advisor *recommend.Advisor, extra map[string]string) error {
	changes := advisor.ChangedProperties()
	summary := advisor.DependenciesMessage()

	lines := make([]string, 0, len(changes))
	for _, rec := range changes {
		lines = append(lines, rec.FileName+"/"+rec.PropertyName)
	}
	values := map[string]string{
		"pending":  strconv.Itoa(summary.Properties),
		"services": strconv.Itoa(summary.Services),
		"message":  summary.String(),
		"changes":  strings.Join(lines, "\n"),
	}
	for k, v := range extra {
		values[k] = v
	}
	return ghoutput.Write(values)
}
