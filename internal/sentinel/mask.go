package sentinel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/raster"
)

// Sentinel-2 L2A digital numbers are reflectance scaled by 10000.
const reflectanceScale = 1.0 / 10000

const DefaultCloudProbabilityThreshold = 40.0

// Scene classification classes that invalidate a pixel.
var maskedSCLClasses = map[int]string{
	3:  "cloud shadow",
	9:  "cloud high probability",
	10: "thin cirrus",
}

// MaskedScene holds the scaled spectral bands of a scene with clouds,
// shadows and out-of-AOI pixels masked out.
type MaskedScene struct {
	ID            string
	Timestamp     time.Time
	Bands         map[string]*raster.Band
	Contamination float64
}

// BandNames returns the spectral band names in sorted order.
func (m MaskedScene) BandNames() []string {
	names := make([]string, 0, len(m.Bands))
	for name := range m.Bands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Masker struct {
	grid      raster.Grid
	aoiMask   []bool
	threshold float64
}

// NewMasker precomputes the AOI pixel mask for grid. A non-positive threshold
// falls back to DefaultCloudProbabilityThreshold.
func NewMasker(aoi *geometry.AOI, grid raster.Grid, cloudProbabilityThreshold float64) *Masker {
	if cloudProbabilityThreshold <= 0 {
		cloudProbabilityThreshold = DefaultCloudProbabilityThreshold
	}
	return &Masker{
		grid:      grid,
		aoiMask:   aoi.PixelMask(grid),
		threshold: cloudProbabilityThreshold,
	}
}

func (m *Masker) Grid() raster.Grid {
	return m.grid
}

func (m *Masker) AOIMask() []bool {
	return m.aoiMask
}

func (m *Masker) isPixelValid(cloudProbability, scl float64) bool {
	invalidConditions := []struct {
		Condition bool
		Reason    string
	}{
		{cloudProbability >= m.threshold, "cloud probability is above threshold"},
		{maskedSCLClasses[int(scl)] != "", "SCL class is cloud shadow, high probability cloud or cirrus"},
	}

	for _, condition := range invalidConditions {
		if condition.Condition {
			return false
		}
	}
	return true
}

// Mask applies the cloud and shadow mask to scene. cloudProbability may be
// nil, in which case the scene is treated as cloud free.
func (m *Masker) Mask(scene Scene, cloudProbability *raster.Band) (MaskedScene, error) {
	if !scene.Grid.SameShape(m.grid) {
		return MaskedScene{}, fmt.Errorf("%w: scene %s is %dx%d, AOI grid is %dx%d",
			raster.ErrShapeMismatch, scene.ID, scene.Grid.Width, scene.Grid.Height, m.grid.Width, m.grid.Height)
	}

	for _, name := range SpectralBands {
		if _, err := scene.Band(name); err != nil {
			return MaskedScene{}, err
		}
	}
	scl, err := scene.Band(BandSCL)
	if err != nil {
		return MaskedScene{}, err
	}
	if cloudProbability == nil {
		cloudProbability = raster.Constant(BandCloudProbability, m.grid.Width, m.grid.Height, 0, true)
	}
	if !cloudProbability.FitsGrid(m.grid) {
		return MaskedScene{}, fmt.Errorf("%w: cloud probability of scene %s", raster.ErrShapeMismatch, scene.ID)
	}

	reference := scene.Bands[BandRed]
	valid := make([]bool, m.grid.Size())
	total, validCount := 0, 0
	for i := range valid {
		if !m.aoiMask[i] || !reference.Valid[i] {
			continue
		}
		total++
		if !scl.Valid[i] {
			continue
		}
		cp := 0.0
		if cloudProbability.Valid[i] {
			cp = cloudProbability.Values[i]
		}
		if m.isPixelValid(cp, scl.Values[i]) {
			valid[i] = true
			validCount++
		}
	}

	masked := MaskedScene{
		ID:            scene.ID,
		Timestamp:     scene.Timestamp,
		Bands:         make(map[string]*raster.Band),
		Contamination: contamination(total, validCount),
	}
	for name, band := range scene.Bands {
		if !isSpectral(name) {
			continue
		}
		if !band.FitsGrid(m.grid) {
			return MaskedScene{}, fmt.Errorf("%w: band %s in scene %s", raster.ErrShapeMismatch, name, scene.ID)
		}
		out := band.Renamed(name)
		if err := out.MaskWith(valid); err != nil {
			return MaskedScene{}, err
		}
		out.Scale(reflectanceScale)
		masked.Bands[name] = out
	}
	return masked, nil
}

func contamination(total, valid int) float64 {
	invalid := total - valid
	if invalid < 0 {
		invalid = 0
	}
	denominator := total
	if denominator < 1 {
		denominator = 1
	}
	value := 100 * float64(invalid) / float64(denominator)
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// ResolveCloudProbability returns the cloud probability raster for scene,
// asking source when the scene does not carry one. A missing product yields
// a nil band so the masker treats the scene as cloud free.
func ResolveCloudProbability(ctx context.Context, source TileSource, aoi *geometry.AOI, scene Scene) (*raster.Band, error) {
	if band, ok := scene.Bands[BandCloudProbability]; ok && band != nil {
		return band, nil
	}
	band, err := source.FetchCloudProbability(ctx, aoi, scene.Timestamp)
	if errors.Is(err, ErrMissingCloudProduct) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cloud probability for scene %s: %w", scene.ID, err)
	}
	return band, nil
}
