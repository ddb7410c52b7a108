package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDecisionCommand creates "accept" or "decline" for a suggestion.
func newDecisionCommand(opts *Options, accept bool) *cobra.Command {
	var site string

	use, short := "accept NAME", "Accept the recommended value of a dependent property"
	if !accept {
		use, short = "decline NAME", "Keep the current value of a dependent property"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(cmd, opts)
			if err != nil {
				return err
			}
			if !ws.advisor.SetSaveRecommended(args[0], site, accept) {
				return fmt.Errorf("no pending change for %s/%s", site, args[0])
			}
			if err := ws.commit(cmd.Context(), ""); err != nil {
				return err
			}
			LoggerFromContext(cmd.Context()).Info("choice recorded", "site", site, "property", args[0], "accept", accept)
			return nil
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "Site (file tag) of the property, e.g. yarn-site")
	_ = cmd.MarkFlagRequired("site")
	addVarsFlags(cmd)

	return cmd
}
