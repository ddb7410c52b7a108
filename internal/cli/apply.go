package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/depconfctl/internal/recommend"
)

// newApplyCommand creates the "apply" subcommand that commits accepted
// dependent changes into the session.
func newApplyCommand(opts *Options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply pending dependent changes to the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())
			target := writeTarget(cmd, opts)
			if target == "" {
				return fmt.Errorf("apply needs --write or -o to persist the updated session")
			}

			ws, err := loadWorkspace(cmd, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			confirm := func(changes []recommend.Record) bool {
				if yes {
					return true
				}
				if err := renderChangesTable(out, changes, ws.advisor.DependenciesMessage()); err != nil {
					logger.Error("render changes", "error", err)
				}
				return askConfirmation(cmd.InOrStdin(), out, "Apply these changes?")
			}

			report, accepted := ws.advisor.ShowChangedDependentConfigs(confirm)
			if !accepted {
				if err := ws.commit(cmd.Context(), ""); err != nil {
					return err
				}
				_, err := fmt.Fprintln(out, "Cancelled, nothing applied.")
				return err
			}

			if err := ws.commit(cmd.Context(), target); err != nil {
				return err
			}
			if err := publishOutputs(ws.advisor, map[string]string{
				"applied":  strconv.FormatBool(true),
				"updated":  strconv.Itoa(report.Updated),
				"added":    strconv.Itoa(report.Added),
				"deleted":  strconv.Itoa(report.Deleted),
				"declined": strconv.Itoa(report.Skipped),
			}); err != nil {
				return err
			}
			if report.Stale > 0 {
				logger.Warn("dropped stale dependent values", "count", report.Stale)
			}
			_, err = fmt.Fprintf(out, "Applied %d change(s): %d updated, %d added, %d deleted, %d declined.\n",
				report.Total(), report.Updated, report.Added, report.Deleted, report.Skipped)
			return err
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Apply without asking for confirmation")
	addWriteFlags(cmd)
	addVarsFlags(cmd)

	return cmd
}

// askConfirmation prints question and reads a yes/no answer; anything but y/yes is no.
func askConfirmation(in io.Reader, out io.Writer, question string) bool {
	if _, err := fmt.Fprintf(out, "%s [y/N]: ", question); err != nil {
		return false
	}
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
