package sentinel

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
)

const ManifestFile = "scenes.csv"

// Band order of the GeoTIFFs listed in a manifest.
var manifestBands = []string{BandBlue, BandGreen, BandRed, BandNIR, BandSCL}

type ManifestRow struct {
	Date                 string  `csv:"date"`
	File                 string  `csv:"file"`
	CloudCover           float64 `csv:"cloud_cover"`
	CloudProbabilityFile string  `csv:"cloud_probability_file"`
}

func (r ManifestRow) Timestamp() (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, r.Date); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid manifest date %q", r.Date)
}

func ParseManifest(r io.Reader) ([]ManifestRow, error) {
	var rows []ManifestRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse scene manifest: %w", err)
	}
	for i, row := range rows {
		if _, err := row.Timestamp(); err != nil {
			return nil, fmt.Errorf("manifest row %d: %w", i+1, err)
		}
		if strings.TrimSpace(row.File) == "" {
			return nil, fmt.Errorf("manifest row %d: file is empty", i+1)
		}
	}
	return rows, nil
}

// DirectorySource reads scenes from a local archive described by a
// scenes.csv manifest. Every file is warped onto the AOI grid on load.
type DirectorySource struct {
	dir        string
	resolution float64
	rows       []ManifestRow
	log        *logrus.Entry
}

func NewDirectorySource(dir string, resolutionMeters float64, log *logrus.Entry) (*DirectorySource, error) {
	file, err := os.Open(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open scene manifest: %w", err)
	}
	defer file.Close()

	rows, err := ParseManifest(file)
	if err != nil {
		return nil, err
	}
	return &DirectorySource{
		dir:        dir,
		resolution: resolutionMeters,
		rows:       rows,
		log:        log,
	}, nil
}

func (s *DirectorySource) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

func (s *DirectorySource) FetchScenes(ctx context.Context, aoi *geometry.AOI, dates DateRange, maxCloudCoverPct float64) ([]Scene, error) {
	grid := aoi.Grid(s.resolution)

	var scenes []Scene
	for _, row := range s.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		timestamp, _ := row.Timestamp()
		if !dates.Contains(timestamp) || row.CloudCover > maxCloudCoverPct {
			continue
		}

		bands, err := loadOnGrid(s.path(row.File), manifestBands, grid)
		if err != nil {
			return nil, fmt.Errorf("failed to load scene %s: %w", row.File, err)
		}
		scenes = append(scenes, Scene{
			ID:         strings.TrimSuffix(filepath.Base(row.File), filepath.Ext(row.File)),
			Timestamp:  timestamp,
			Grid:       grid,
			Bands:      bands,
			CloudCover: row.CloudCover,
		})
		s.log.WithField("scene", row.File).Debug("scene loaded")
	}
	return scenes, nil
}

func (s *DirectorySource) FetchCloudProbability(ctx context.Context, aoi *geometry.AOI, date time.Time) (*raster.Band, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, row := range s.rows {
		timestamp, _ := row.Timestamp()
		if dayKey(timestamp) != dayKey(date) || row.CloudProbabilityFile == "" {
			continue
		}
		bands, err := loadOnGrid(s.path(row.CloudProbabilityFile), []string{BandCloudProbability}, aoi.Grid(s.resolution))
		if err != nil {
			return nil, fmt.Errorf("failed to load cloud probability %s: %w", row.CloudProbabilityFile, err)
		}
		return bands[BandCloudProbability], nil
	}
	return nil, ErrMissingCloudProduct
}
