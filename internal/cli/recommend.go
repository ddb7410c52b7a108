package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/depconfctl/internal/engine"
	"github.com/codex-k8s/depconfctl/internal/env"
	"github.com/codex-k8s/depconfctl/internal/logging"
	"github.com/codex-k8s/depconfctl/internal/recommend"
	"github.com/codex-k8s/depconfctl/internal/state"
)

// newRecommendCommand creates the "recommend" subcommand: edit properties and
// reconcile the stack advisor's dependent recommendations.
func newRecommendCommand(opts *Options) *cobra.Command {
	var (
		set          string
		site         string
		initial      bool
		apply        bool
		responseFile string
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Edit properties and fetch recommendations for dependent properties",
		Example: `  depconfctl recommend --site yarn-site --set yarn.nodemanager.resource.memory-mb=8192
  depconfctl recommend --initial
  depconfctl recommend --set hdfs-site/dfs.replication=2 --apply --write`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			if initial && strings.TrimSpace(set) != "" {
				return fmt.Errorf("--initial cannot be combined with --set")
			}
			ws, err := loadWorkspace(cmd, opts)
			if err != nil {
				return err
			}

			vars, err := env.ParseInlineVars(set)
			if err != nil {
				return err
			}
			edits, err := engine.ParseEdits(vars, site)
			if err != nil {
				return err
			}

			var source engine.Recommender
			if responseFile != "" {
				source = engine.FileRecommender{Path: responseFile}
			} else {
				client, err := ws.newClient()
				if err != nil {
					return err
				}
				source = client
			}

			eng := engine.NewEngine(ws.advisor, source, logging.Subsystem(logger, logging.SubsystemEngine))
			changed, err := eng.ApplyEdits(edits)
			if err != nil {
				return err
			}
			if len(changed) > 0 || initial {
				if err := ws.reserveSequence(cmd.Context()); err != nil {
					return err
				}
			}
			result, runErr := eng.Recommend(cmd.Context(), changed, engine.Options{Initial: initial, AutoApply: apply})
			if runErr != nil && !recommend.IsStaleResponse(runErr) {
				if err := ws.commit(cmd.Context(), ""); err != nil {
					logger.Error("save state after failed request", "error", err)
				}
				return runErr
			}

			if err := ws.commit(cmd.Context(), writeTarget(cmd, opts)); err != nil {
				if !state.IsSuperseded(err) {
					return err
				}
				logger.Warn("a newer request was issued meanwhile, result discarded", "seq", result.Seq, "error", err)
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "Superseded by a newer request, result discarded.")
				return err
			}
			if len(changed) > 0 && writeTarget(cmd, opts) == "" {
				logger.Warn("edits are not persisted without --write or -o")
			}

			if err := publishOutputs(ws.advisor, map[string]string{
				"seq":     strconv.FormatUint(result.Seq, 10),
				"applied": strconv.FormatBool(result.Applied),
			}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case result.Seq == 0:
				_, err = fmt.Fprintln(out, "No changes, nothing requested.")
			case result.Applied:
				_, err = fmt.Fprintf(out, "Applied %d dependent change(s): %d updated, %d added, %d deleted.\n",
					result.Report.Total(), result.Report.Updated, result.Report.Added, result.Report.Deleted)
			case initial:
				_, err = fmt.Fprintln(out, "Initial recommendations loaded.")
			default:
				_, err = fmt.Fprintln(out, ws.advisor.DependenciesMessage().String()+".")
			}
			return err
		},
	}

	cmd.Flags().StringVar(&set, "set", "", "Property edits as [site/]name=value pairs, comma-separated")
	cmd.Flags().StringVar(&site, "site", "", "Site (file tag) for edits given without one, e.g. yarn-site")
	cmd.Flags().BoolVar(&initial, "initial", false, "Request full recommendations and update only bounds and markers")
	cmd.Flags().BoolVar(&apply, "apply", false, "Apply accepted recommendations right away")
	cmd.Flags().StringVar(&responseFile, "response", "", "Read the recommendation response from a file instead of the server")
	addWriteFlags(cmd)
	addVarsFlags(cmd)

	return cmd
}
