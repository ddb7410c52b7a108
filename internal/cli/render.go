package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codex-k8s/depconfctl/internal/config"
)

// newRenderCommand creates the "render" subcommand that prints session.yaml after templating.
func newRenderCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render session.yaml with its template variables resolved",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := LoggerFromContext(cmd.Context())

			inlineVars, varFiles, err := parseInlineVarsAndFiles(cmd)
			if err != nil {
				return err
			}
			session, ctx, err := config.LoadSession(opts.ConfigPath, config.LoadOptions{
				UserVars: inlineVars,
				VarFiles: varFiles,
			})
			if err != nil {
				return err
			}
			tree, err := session.Tree()
			if err != nil {
				return err
			}
			session.UpdateFromTree(tree)
			rendered, err := session.Marshal()
			if err != nil {
				return err
			}

			outPath := cmd.Flag("output").Value.String()
			if outPath == "" {
				_, err := cmd.OutOrStdout().Write(rendered)
				return err
			}
			if err := os.WriteFile(outPath, rendered, 0o644); err != nil {
				return fmt.Errorf("write rendered session to %q: %w", outPath, err)
			}
			logger.Info("rendered session", "path", outPath, "stack", ctx.Stack.Name, "version", ctx.Stack.Version)
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output file (if empty, prints to stdout)")
	addVarsFlags(cmd)

	return cmd
}
