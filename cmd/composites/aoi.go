package main

import (
	"github.com/forest-guardian/monthly-composites/internal/ui"
	"github.com/spf13/cobra"
)

func newAOICommand(app *application) *cobra.Command {
	return &cobra.Command{
		Use:   "aoi",
		Short: "Print the bound, area and pixel grid of the area of interest",
		RunE: func(_ *cobra.Command, _ []string) error {
			aoi, err := app.loadAOI()
			if err != nil {
				return err
			}
			ui.PrintAOI(aoi, aoi.Grid(app.cfg.ResolutionMeters), app.cfg.ResolutionMeters)
			return nil
		},
	}
}
