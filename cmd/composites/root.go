package main

import (
	"fmt"

	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/logger"
	"github.com/forest-guardian/monthly-composites/internal/properties"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// application holds what every command shares once the root pre-run has
// loaded the configuration.
type application struct {
	cfg *properties.Config
	log *logrus.Entry

	aoiPath   string
	featureID string
	source    string
	startYear int
	endYear   int
}

func newRootCommand(app *application) *cobra.Command {
	root := &cobra.Command{
		Use:           "composites",
		Short:         "Monthly Sentinel-2 vegetation composites for an area of interest",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.loadConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.aoiPath, "aoi", "", "GeoJSON file with the area of interest (overrides AOI_PATH)")
	flags.StringVar(&app.featureID, "feature", "", "feature id or plot_id inside the GeoJSON (overrides AOI_FEATURE_ID)")
	flags.StringVar(&app.source, "source", "", "tile source: copernicus, directory or memory (overrides SOURCE)")
	flags.IntVar(&app.startYear, "start-year", 0, "first year of the sequence (overrides START_YEAR)")
	flags.IntVar(&app.endYear, "end-year", 0, "last year of the sequence (overrides END_YEAR)")

	root.AddCommand(newRunCommand(app), newServeCommand(app), newAOICommand(app), newHistoryCommand(app))
	return root
}

func (app *application) loadConfig(cmd *cobra.Command) error {
	if err := properties.LoadEnvFiles("../.env", ".env"); err != nil {
		return err
	}
	cfg, err := properties.Load(cmd.Context())
	if err != nil {
		return err
	}

	if app.aoiPath != "" {
		cfg.AOIPath = app.aoiPath
	}
	if app.featureID != "" {
		cfg.AOIFeatureID = app.featureID
	}
	if app.source != "" {
		cfg.Source = app.source
	}
	if app.startYear != 0 {
		cfg.StartYear = app.startYear
	}
	if app.endYear != 0 {
		cfg.EndYear = app.endYear
	}

	logger.Configure(cfg.LogLevel, cfg.LogFormat)
	app.cfg = cfg
	app.log = logger.For("cli")
	return nil
}

func (app *application) loadAOI() (*geometry.AOI, error) {
	if app.cfg.AOIPath == "" {
		return nil, fmt.Errorf("an area of interest is required: set AOI_PATH or pass --aoi")
	}
	return geometry.LoadGeoJSON(app.cfg.AOIPath, app.cfg.AOIFeatureID)
}
