package main

import (
	"fmt"

	"github.com/forest-guardian/monthly-composites/internal/report"
	"github.com/forest-guardian/monthly-composites/internal/ui"
	"github.com/spf13/cobra"
)

func newHistoryCommand(app *application) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			history, err := report.OpenHistory(app.cfg.ResolvedHistoryDB())
			if err != nil {
				return err
			}
			defer history.Close()

			runs, err := history.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				ui.PrintWarning("No runs recorded yet.")
				return nil
			}
			for _, run := range runs {
				line := fmt.Sprintf("%s  %s  %s  %d-%d  ok=%d empty=%d failed=%d",
					run.StartedAt.Local().Format("2006-01-02 15:04"), run.ID, run.AOI,
					run.StartYear, run.EndYear, run.Succeeded, run.Empty, run.Failed)
				if run.Failed > 0 {
					ui.PrintError(line)
				} else {
					ui.PrintSuccess(line)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to list")
	return cmd
}
