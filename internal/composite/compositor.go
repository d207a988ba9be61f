package composite

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/indices"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/forest-guardian/monthly-composites/internal/sentinel"
	"github.com/forest-guardian/monthly-composites/internal/utils"
	"github.com/gammazero/workerpool"
	"github.com/montanaflynn/stats"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Compositor turns the scenes of a tile source into a gap-free monthly
// sequence over one AOI.
type Compositor struct {
	source sentinel.TileSource
	opts   Options
	grid   raster.Grid
	masker *sentinel.Masker
	log    *logrus.Entry
}

func New(source sentinel.TileSource, opts Options, log *logrus.Entry) (*Compositor, error) {
	if source == nil {
		return nil, fmt.Errorf("tile source is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	grid := opts.AOI.Grid(opts.ResolutionMeters)
	return &Compositor{
		source: source,
		opts:   opts,
		grid:   grid,
		masker: sentinel.NewMasker(opts.AOI, grid, opts.CloudProbabilityThreshold),
		log:    log,
	}, nil
}

func (c *Compositor) Grid() raster.Grid {
	return c.grid
}

// Run computes every month of the year range. A failing month never stops
// the run; it is reported in its slot. The returned error is set only when
// ctx is cancelled before the run completes.
func (c *Compositor) Run(ctx context.Context) ([]MonthlyComposite, error) {
	months := Months(c.opts.StartYear, c.opts.EndYear)
	results := make([]MonthlyComposite, len(months))

	progressOut := c.opts.Progress
	if progressOut == nil {
		progressOut = io.Discard
	}
	var (
		mu          sync.Mutex
		progressBar = progressbar.NewOptions(len(months),
			progressbar.OptionSetWriter(progressOut),
			progressbar.OptionSetDescription("Compositing months"),
			progressbar.OptionShowCount(),
		)
	)

	wp := workerpool.New(c.opts.Workers)
	for i, ym := range months {
		i, ym := i, ym
		wp.Submit(func() {
			composite := c.ComputeMonth(ctx, ym)

			mu.Lock()
			results[i] = composite
			progressBar.Add(1)
			mu.Unlock()
		})
	}
	wp.StopWait()
	progressBar.Finish()

	utils.SortByTime(results, func(m MonthlyComposite) time.Time { return m.Timestamp }, true)
	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("compositing run cancelled: %w", err)
	}
	return results, nil
}

// ComputeMonth builds the composite of one month under MonthTimeout.
func (c *Compositor) ComputeMonth(ctx context.Context, ym YearMonth) MonthlyComposite {
	monthCtx, cancel := context.WithTimeout(ctx, c.opts.MonthTimeout)
	defer cancel()

	start := time.Now()
	log := c.log.WithField("month", ym.String())

	composite, sceneCount, err := c.computeMonth(monthCtx, ym)
	if err != nil {
		err = classify(ctx, monthCtx, ym, err)
		log.WithError(err).Warn("month failed")
		return Failed(ym, c.grid, sceneCount, err)
	}
	log.WithFields(logrus.Fields{
		"scenes":        composite.SceneCount,
		"contamination": composite.Contamination,
		"status":        composite.Status,
		"elapsed":       time.Since(start).Round(time.Millisecond),
	}).Debug("month done")
	return composite
}

func (c *Compositor) computeMonth(ctx context.Context, ym YearMonth) (MonthlyComposite, int, error) {
	dates := ym.Range()
	fetched, err := c.source.FetchScenes(ctx, c.opts.AOI, dates, c.opts.MaxCloudCover)
	if err != nil {
		return MonthlyComposite{}, 0, fmt.Errorf("failed to fetch scenes: %w", err)
	}

	// sources are not trusted to apply the pre-filter
	scenes := fetched[:0:0]
	for _, scene := range fetched {
		if dates.Contains(scene.Timestamp) && scene.CloudCover <= c.opts.MaxCloudCover {
			scenes = append(scenes, scene)
		}
	}
	if len(scenes) == 0 {
		return Placeholder(ym, c.grid), 0, nil
	}

	if int64(c.grid.Size())*int64(len(scenes)) > c.opts.MaxPixels {
		return MonthlyComposite{}, len(scenes), fmt.Errorf("%w: %s needs %dx%dx%d pixels, budget is %d",
			ErrResourceExhausted, ym, c.grid.Width, c.grid.Height, len(scenes), c.opts.MaxPixels)
	}

	masked, err := c.maskScenes(ctx, scenes)
	if err != nil {
		return MonthlyComposite{}, len(scenes), err
	}

	composite, err := c.reduce(ctx, ym, masked)
	if err != nil {
		return MonthlyComposite{}, len(scenes), err
	}
	return composite, len(scenes), nil
}

func (c *Compositor) maskScenes(ctx context.Context, scenes []sentinel.Scene) ([]sentinel.MaskedScene, error) {
	masked := make([]sentinel.MaskedScene, len(scenes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.SceneWorkers)
	for i, scene := range scenes {
		i, scene := i, scene
		g.Go(func() error {
			cloudProbability, err := sentinel.ResolveCloudProbability(gctx, c.source, c.opts.AOI, scene)
			if err != nil {
				return err
			}
			m, err := c.masker.Mask(scene, cloudProbability)
			if err != nil {
				return fmt.Errorf("failed to mask scene %s: %w", scene.ID, err)
			}
			masked[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return masked, nil
}

// reduce is the barrier of a month: it runs once every scene is masked.
func (c *Compositor) reduce(ctx context.Context, ym YearMonth, scenes []sentinel.MaskedScene) (MonthlyComposite, error) {
	bundle := &raster.Bundle{Grid: c.grid}
	for _, source := range reflectanceSources {
		band, err := medianReduce(ctx, scenes, source.Scene, source.Band, c.grid)
		if err != nil {
			return MonthlyComposite{}, err
		}
		if err := bundle.Add(band); err != nil {
			return MonthlyComposite{}, err
		}
	}

	raw, err := indices.ComputeAll(indices.Reflectance{
		Red:  bundle.Band(BandRed),
		NIR:  bundle.Band(BandNIR),
		Blue: bundle.Band(BandBlue),
	})
	if err != nil {
		return MonthlyComposite{}, err
	}
	for _, band := range raw {
		if err := bundle.Add(band); err != nil {
			return MonthlyComposite{}, err
		}
	}

	if err := ctx.Err(); err != nil {
		return MonthlyComposite{}, err
	}
	bounds := make(map[string]indices.Bounds, len(raw))
	for _, band := range raw {
		b := indices.ComputeBounds(band, c.masker.AOIMask(), c.opts.SampleStride)
		bounds[band.Name] = b
		if err := bundle.Add(indices.Normalize(band, b, indices.NormalizedName(band.Name))); err != nil {
			return MonthlyComposite{}, err
		}
	}

	contaminations := make([]float64, len(scenes))
	for i, scene := range scenes {
		contaminations[i] = scene.Contamination
	}
	contamination, err := stats.Mean(contaminations)
	if err != nil {
		contamination = 0
	}

	return MonthlyComposite{
		Year:          ym.Year,
		Month:         ym.Month,
		Timestamp:     ym.Timestamp(),
		SceneCount:    len(scenes),
		Contamination: contamination,
		IsNoData:      false,
		Status:        StatusOK,
		Bands:         bundle,
		Bounds:        bounds,
	}, nil
}
