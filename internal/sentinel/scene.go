package sentinel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/raster"
)

// Band names as carried by a Scene.
const (
	BandBlue             = "B2"
	BandGreen            = "B3"
	BandRed              = "B4"
	BandNIR              = "B8"
	BandSCL              = "SCL"
	BandCloudProbability = "cloud_probability"
)

// SpectralBands lists the reflectance bands every scene must carry.
var SpectralBands = []string{BandBlue, BandGreen, BandRed, BandNIR}

// ErrMissingCloudProduct is returned by a TileSource when no cloud
// probability raster matches a scene.
var ErrMissingCloudProduct = errors.New("no matching cloud probability product")

var ErrMissingBand = errors.New("scene is missing a required band")

// Scene is one satellite observation laid out on the AOI grid.
type Scene struct {
	ID         string
	Timestamp  time.Time
	Grid       raster.Grid
	Bands      map[string]*raster.Band
	CloudCover float64
}

func (s Scene) Band(name string) (*raster.Band, error) {
	band, ok := s.Bands[name]
	if !ok || band == nil {
		return nil, fmt.Errorf("%w: %s in scene %s", ErrMissingBand, name, s.ID)
	}
	if !band.FitsGrid(s.Grid) {
		return nil, fmt.Errorf("%w: band %s in scene %s", raster.ErrShapeMismatch, name, s.ID)
	}
	return band, nil
}

func isSpectral(name string) bool {
	return strings.HasPrefix(name, "B")
}

// DateRange is half-open: Start is included, End is excluded.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func MonthRange(year int, month time.Month) DateRange {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return DateRange{Start: start, End: start.AddDate(0, 1, 0)}
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s/%s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}

// TileSource delivers scenes on the AOI grid.
type TileSource interface {
	FetchScenes(ctx context.Context, aoi *geometry.AOI, dates DateRange, maxCloudCoverPct float64) ([]Scene, error)
	// FetchCloudProbability returns ErrMissingCloudProduct when no product
	// covers the date.
	FetchCloudProbability(ctx context.Context, aoi *geometry.AOI, date time.Time) (*raster.Band, error)
}
