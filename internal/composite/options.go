package composite

import (
	"fmt"
	"io"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/properties"
)

// Options configure one compositing run.
type Options struct {
	AOI       *geometry.AOI
	StartYear int
	EndYear   int

	ResolutionMeters          float64
	MaxCloudCover             float64
	CloudProbabilityThreshold float64

	Workers      int
	SceneWorkers int
	MonthTimeout time.Duration
	// MaxPixels caps width*height*scenes of one month reduction.
	MaxPixels    int64
	SampleStride int

	// Progress receives the progress bar; nil disables it.
	Progress io.Writer
}

func DefaultOptions(aoi *geometry.AOI, startYear, endYear int) Options {
	return Options{
		AOI:                       aoi,
		StartYear:                 startYear,
		EndYear:                   endYear,
		ResolutionMeters:          10,
		MaxCloudCover:             20,
		CloudProbabilityThreshold: 40,
		Workers:                   4,
		SceneWorkers:              4,
		MonthTimeout:              10 * time.Minute,
		MaxPixels:                 50_000_000,
		SampleStride:              1,
	}
}

func OptionsFromConfig(cfg *properties.Config, aoi *geometry.AOI) Options {
	return Options{
		AOI:                       aoi,
		StartYear:                 cfg.StartYear,
		EndYear:                   cfg.EndYear,
		ResolutionMeters:          cfg.ResolutionMeters,
		MaxCloudCover:             cfg.MaxCloudCover,
		CloudProbabilityThreshold: cfg.CloudProbabilityThreshold,
		Workers:                   cfg.Workers,
		SceneWorkers:              cfg.SceneWorkers,
		MonthTimeout:              cfg.MonthTimeout,
		MaxPixels:                 cfg.MaxPixels,
		SampleStride:              cfg.SampleStride,
	}
}

func (o Options) Validate() error {
	if o.AOI == nil {
		return fmt.Errorf("area of interest is required")
	}
	if o.EndYear < o.StartYear {
		return fmt.Errorf("end year %d is before start year %d", o.EndYear, o.StartYear)
	}
	if o.ResolutionMeters <= 0 {
		return fmt.Errorf("resolution must be positive, got %v", o.ResolutionMeters)
	}
	if o.Workers < 1 || o.SceneWorkers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if o.MonthTimeout <= 0 {
		return fmt.Errorf("month timeout must be positive")
	}
	if o.MaxPixels <= 0 {
		return fmt.Errorf("max pixels must be positive")
	}
	if o.SampleStride < 1 {
		return fmt.Errorf("sample stride must be at least 1")
	}
	return nil
}
