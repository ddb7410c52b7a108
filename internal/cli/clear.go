package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// newClearCommand creates the "clear" subcommand that drops pending dependent changes.
func newClearCommand(opts *Options) *cobra.Command {
	var services []string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop pending dependent changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(cmd, opts)
			if err != nil {
				return err
			}
			var names []string
			for _, s := range services {
				if s = strings.TrimSpace(s); s != "" {
					names = append(names, s)
				}
			}
			if len(names) > 0 {
				ws.advisor.ClearServices(names...)
			} else {
				ws.advisor.Clear()
			}
			if err := ws.commit(cmd.Context(), ""); err != nil {
				return err
			}
			LoggerFromContext(cmd.Context()).Info("dependent changes cleared", "services", names, "remaining", len(ws.advisor.Records()))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&services, "services", nil, "Only clear changes of these services (comma-separated)")
	addVarsFlags(cmd)

	return cmd
}
