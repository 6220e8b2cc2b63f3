package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var runsJSON bool

// runsCmd lists the run log of a knowledge base
var runsCmd = &cobra.Command{
	Use:   "runs <brain>",
	Short: "List track and query runs in the order they started",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "print JSON instead of a table")
	runsCmd.Flags().BoolVar(&markdownOutput, "markdown", false, "render tables as Markdown")
}

func runRuns(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	store, err := a.store(args[0])
	if err != nil {
		return err
	}
	runs, err := store.ListRuns()
	if err != nil {
		return err
	}
	if runsJSON {
		return writeJSON(cmd.OutOrStdout(), runs)
	}

	t := newTable("Run", "Type", "Status", "Started", "Duration", "Objective / error")
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		note := r.Objective
		if r.Error != "" {
			note = r.Error
		}
		t.AppendRow([]any{r.RunID, r.RunType, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"), duration, orDash(note)})
	}
	renderTable(cmd.OutOrStdout(), t)
	return nil
}
