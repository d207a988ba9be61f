package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/charts"
	"github.com/forest-guardian/monthly-composites/internal/composite"
	"github.com/forest-guardian/monthly-composites/internal/export"
	"github.com/forest-guardian/monthly-composites/internal/notification"
	"github.com/forest-guardian/monthly-composites/internal/report"
	"github.com/forest-guardian/monthly-composites/internal/sentinel"
	"github.com/forest-guardian/monthly-composites/internal/ui"
	"github.com/forest-guardian/monthly-composites/output"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runFlags struct {
	charts     bool
	animation  bool
	band       string
	exportMode string
	noHistory  bool
	quiet      bool
}

// runResult lists what a run produced besides the composites.
type runResult struct {
	Summary    report.Summary
	Composites []composite.MonthlyComposite
	SummaryCSV string
	Charts     []string
	Animation  []string
	Exports    []string
}

func newRunCommand(app *application) *cobra.Command {
	flags := runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute the monthly composites of the configured AOI and years",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !flags.quiet {
				ui.PrintBanner()
			}
			if flags.exportMode != "" {
				app.cfg.ExportMode = flags.exportMode
			}
			if err := app.cfg.Validate(); err != nil {
				return err
			}

			var progress io.Writer = os.Stderr
			if flags.quiet {
				progress = io.Discard
			}
			result, err := runPipeline(cmd.Context(), app, flags, progress)
			if err != nil {
				app.notifyError(cmd.Context(), err)
				return err
			}

			ui.PrintSummary(result.Summary)
			ui.PrintInfo(fmt.Sprintf("Summary written to %s\n", result.SummaryCSV))
			for _, path := range append(append(result.Charts, result.Animation...), result.Exports...) {
				ui.PrintInfo(fmt.Sprintf("  %s\n", path))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.charts, "charts", false, "render PNG and HTML charts of the index series")
	cmd.Flags().BoolVar(&flags.animation, "animation", false, "render a GIF and AVI animation of the usable months")
	cmd.Flags().StringVar(&flags.band, "band", output.DefaultBand, "band to animate")
	cmd.Flags().StringVar(&flags.exportMode, "export", "", "export sink: local, gcs or none (overrides EXPORT_MODE)")
	cmd.Flags().BoolVar(&flags.noHistory, "no-history", false, "do not record the run in the history database")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "hide the banner and progress bar")
	return cmd
}

// runPipeline computes the composites and hands them to every enabled
// consumer. Failed months never abort it; only configuration, I/O and
// cancellation errors do.
func runPipeline(ctx context.Context, app *application, flags runFlags, progress io.Writer) (runResult, error) {
	cfg := app.cfg
	aoi, err := app.loadAOI()
	if err != nil {
		return runResult{}, err
	}

	source, err := sentinel.NewSource(cfg, app.log)
	if err != nil {
		return runResult{}, err
	}

	runID := uuid.NewString()
	log := app.log.WithFields(logrus.Fields{"run": runID, "aoi": aoi.ID()})
	opts := composite.OptionsFromConfig(cfg, aoi)
	opts.Progress = progress

	compositor, err := composite.New(source, opts, log)
	if err != nil {
		return runResult{}, err
	}

	startedAt := time.Now()
	composites, err := compositor.Run(ctx)
	if err != nil {
		return runResult{}, err
	}

	result := runResult{
		Summary:    report.Build(runID, aoi.ID(), startedAt, composites),
		Composites: composites,
		SummaryCSV: cfg.DataPath("reports", fmt.Sprintf("%s_%s.csv", aoi.ID(), runID)),
	}
	if err := result.Summary.SaveCSV(result.SummaryCSV); err != nil {
		return result, err
	}

	if !flags.noHistory {
		history, err := report.OpenHistory(cfg.ResolvedHistoryDB())
		if err != nil {
			return result, err
		}
		defer history.Close()
		if err := history.Record(ctx, result.Summary); err != nil {
			return result, err
		}
	}

	if flags.charts {
		dir := cfg.DataPath("charts", aoi.ID(), runID)
		result.Charts, err = charts.NewGenerator(dir, log.WithField("component", "charts")).Generate(aoi.ID(), composites)
		if err != nil {
			return result, err
		}
	}

	if flags.animation {
		animationOpts := output.DefaultAnimationOptions()
		animationOpts.Band = flags.band
		dir := cfg.DataPath("animations", aoi.ID())
		result.Animation, err = output.CreateAnimation(dir, fmt.Sprintf("%s_%s_%s", aoi.ID(), flags.band, runID), composites, animationOpts, log)
		if err != nil {
			if !errors.Is(err, output.ErrNoFrames) {
				return result, err
			}
			log.Warn("No usable month to animate")
		}
	}

	sink, err := export.NewSink(ctx, cfg)
	if err != nil {
		return result, err
	}
	if sink != nil {
		defer sink.Close()
		result.Exports, err = export.ExportAll(ctx, sink, composites, aoi, cfg.ResolutionMeters, log)
		if err != nil {
			return result, err
		}
	}

	discord := notification.NewDiscord(cfg.DiscordErrorNotificationURL, cfg.DiscordSuccessNotificationURL)
	if err := discord.SendRunSummary(ctx, result.Summary.Headline(), result.Summary.String(), result.Summary.HasFailures()); err != nil {
		log.WithError(err).Warn("Failed to send run notification")
	}
	return result, nil
}

func (app *application) notifyError(ctx context.Context, err error) {
	discord := notification.NewDiscord(app.cfg.DiscordErrorNotificationURL, "")
	if sendErr := discord.SendError(context.WithoutCancel(ctx), fmt.Sprintf("Composites CLI\n\n%s", err.Error())); sendErr != nil {
		app.log.WithError(sendErr).Warn("Failed to send error notification")
	}
}
