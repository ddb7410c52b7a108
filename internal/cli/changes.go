package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/codex-k8s/depconfctl/internal/recommend"
)

// changesView is the JSON shape printed by "changes --output json".
type changesView struct {
	Summary recommend.DependenciesSummary `json:"summary"`
	Changes []recommend.Record            `json:"changes"`
}

// newChangesCommand creates the "changes" subcommand listing pending dependent changes.
func newChangesCommand(opts *Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List pending dependent property changes visible from the active group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(cmd, opts)
			if err != nil {
				return err
			}
			changes := ws.advisor.ChangedProperties()
			summary := ws.advisor.DependenciesMessage()

			switch strings.ToLower(output) {
			case "json":
				if changes == nil {
					changes = []recommend.Record{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(changesView{Summary: summary, Changes: changes})
			case "table", "":
				return renderChangesTable(cmd.OutOrStdout(), changes, summary)
			default:
				return fmt.Errorf("unknown output format %q, expected table or json", output)
			}
		},
	}

	cmd.Flags().StringVar(&output, "output", "table", "Output format (table, json)")
	addVarsFlags(cmd)

	return cmd
}

func renderChangesTable(w io.Writer, changes []recommend.Record, summary recommend.DependenciesSummary) error {
	if len(changes) == 0 {
		_, err := fmt.Fprintln(w, "No pending dependent changes.")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("Service"),
		text.FgHiCyan.Sprint("Group"),
		text.FgHiCyan.Sprint("Site"),
		text.FgHiCyan.Sprint("Property"),
		text.FgHiCyan.Sprint("Current"),
		text.FgHiCyan.Sprint("Recommended"),
		text.FgHiCyan.Sprint("Action"),
		text.FgHiCyan.Sprint("Accept"),
		text.FgHiCyan.Sprint("Triggered by"),
	})
	for _, rec := range changes {
		accept := text.FgGreen.Sprint("yes")
		if !rec.SaveRecommended {
			accept = text.FgRed.Sprint("no")
		}
		t.AppendRow(table.Row{
			rec.ServiceDisplayName,
			rec.ConfigGroup,
			rec.FileName,
			rec.PropertyName,
			displayValue(rec.Value),
			displayValue(rec.RecommendedValue),
			action(rec),
			accept,
			strings.Join(rec.ParentConfigs, ", "),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 2, AutoMerge: true},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()

	_, err := fmt.Fprintln(w, summary.String()+".")
	return err
}

func action(rec recommend.Record) string {
	switch {
	case rec.ToAdd && rec.IsDeleted:
		return "restore"
	case rec.ToAdd:
		return "add"
	case rec.ToDelete:
		return "delete"
	default:
		return "update"
	}
}

func displayValue(v *string) string {
	if v == nil {
		return "-"
	}
	if *v == "" {
		return `""`
	}
	return *v
}
