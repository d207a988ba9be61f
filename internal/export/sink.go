package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forest-guardian/monthly-composites/internal/composite"
	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/properties"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/sirupsen/logrus"
)

// Sink stores one exported raster per call and returns where it went.
type Sink interface {
	Export(ctx context.Context, bundle *raster.Bundle, name string, aoi *geometry.AOI, resolution float64) (string, error)
	Close() error
}

// NewSink creates the sink selected by cfg.ExportMode. The none mode returns
// a nil sink.
func NewSink(ctx context.Context, cfg *properties.Config) (Sink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("export configuration is required")
	}
	switch cfg.ExportMode {
	case properties.ExportNone, "":
		return nil, nil

	case properties.ExportLocal:
		local, err := NewLocalSink(cfg.ResolvedExportDir())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local export sink: %w", err)
		}
		return local, nil

	case properties.ExportGCS:
		gcs, err := NewGCSSink(ctx, cfg.GCSBucket, "composites")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS export sink: %w", err)
		}
		return gcs, nil

	default:
		return nil, fmt.Errorf("unsupported export mode: %s", cfg.ExportMode)
	}
}

// FileName is the exported object name of a composite.
func FileName(aoiID string, c composite.MonthlyComposite) string {
	return fmt.Sprintf("%s_%s.tif", aoiID, c.Label())
}

// ExportAll hands every usable composite to sink. Placeholders and failed
// months carry no data and are skipped.
func ExportAll(ctx context.Context, sink Sink, composites []composite.MonthlyComposite, aoi *geometry.AOI, resolution float64, log *logrus.Entry) ([]string, error) {
	var locations []string
	for _, c := range composite.Usable(composites) {
		if err := ctx.Err(); err != nil {
			return locations, err
		}
		location, err := sink.Export(ctx, c.Bands, FileName(aoi.ID(), c), aoi, resolution)
		if err != nil {
			return locations, fmt.Errorf("failed to export %s: %w", c.Label(), err)
		}
		log.WithFields(logrus.Fields{"month": c.Label(), "location": location}).Debug("Composite exported")
		locations = append(locations, location)
	}
	return locations, nil
}

// monthOf recovers the month label from a name built by FileName.
func monthOf(name string, aoi *geometry.AOI) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	month, ok := strings.CutPrefix(base, aoi.ID()+"_")
	if !ok {
		return ""
	}
	return month
}

// LocalSink writes GeoTIFFs into a directory.
type LocalSink struct {
	dir string
}

func NewLocalSink(dir string) (*LocalSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}
	return &LocalSink{dir: dir}, nil
}

func (s *LocalSink) Export(_ context.Context, bundle *raster.Bundle, name string, aoi *geometry.AOI, resolution float64) (string, error) {
	path := filepath.Join(s.dir, name)
	meta := Metadata{AOI: aoi.ID(), Month: monthOf(name, aoi), Resolution: resolution}
	if err := WriteGeoTIFF(path, bundle, meta); err != nil {
		return "", err
	}
	return path, nil
}

func (s *LocalSink) Close() error {
	return nil
}
