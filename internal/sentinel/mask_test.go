package sentinel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sclVegetation = 4

var march = time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

// testAOI is a one degree square laid out as a 2x2 grid.
func testAOI(t *testing.T) (*geometry.AOI, raster.Grid) {
	t.Helper()
	aoi, err := geometry.New("plot", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
	require.NoError(t, err)
	grid := aoi.Grid(111_000.0 / 2)
	require.Equal(t, 2, grid.Width)
	require.Equal(t, 2, grid.Height)
	return aoi, grid
}

func cleanReflectance() map[string]float64 {
	return map[string]float64{
		BandBlue:  500,
		BandGreen: 800,
		BandRed:   1000,
		BandNIR:   4000,
	}
}

func TestMaskCleanScene(t *testing.T) {
	aoi, grid := testAOI(t)
	masker := NewMasker(aoi, grid, 0)
	scene := UniformScene("s1", march, grid, cleanReflectance(), sclVegetation, 5)

	masked, err := masker.Mask(scene, nil)
	require.NoError(t, err)

	assert.Equal(t, 0.0, masked.Contamination)
	assert.Equal(t, []string{BandBlue, BandGreen, BandRed, BandNIR}, masked.BandNames())
	red := masked.Bands[BandRed]
	assert.Equal(t, 4, red.ValidCount())
	assert.InDelta(t, 0.1, red.Values[0], 1e-12)
	assert.NotContains(t, masked.Bands, BandSCL)
	assert.NotContains(t, masked.Bands, BandCloudProbability)
}

func TestMaskCloudAndShadow(t *testing.T) {
	aoi, grid := testAOI(t)
	masker := NewMasker(aoi, grid, 40)
	scene := UniformScene("s1", march, grid, cleanReflectance(), sclVegetation, 5)
	scene.Bands[BandSCL].Values[0] = 3

	cloud, err := raster.FromValues(BandCloudProbability, 2, 2, []float64{0, 40, 39.9, 0})
	require.NoError(t, err)

	masked, err := masker.Mask(scene, cloud)
	require.NoError(t, err)

	// pixel 0 is shadow, pixel 1 sits on the threshold
	assert.Equal(t, []bool{false, false, true, true}, masked.Bands[BandNIR].Valid)
	assert.Equal(t, 50.0, masked.Contamination)
}

func TestMaskCirrusAndHighProbabilityCloud(t *testing.T) {
	aoi, grid := testAOI(t)
	masker := NewMasker(aoi, grid, 40)
	scene := UniformScene("s1", march, grid, cleanReflectance(), 9, 5)
	scene.Bands[BandSCL].Values[3] = 10

	masked, err := masker.Mask(scene, nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, masked.Contamination)
	assert.Equal(t, 0, masked.Bands[BandRed].ValidCount())
}

func TestMaskExcludesPixelsOutsideAOI(t *testing.T) {
	aoi, grid := testAOI(t)
	masker := NewMasker(aoi, grid, 40)
	masker.aoiMask[3] = false
	scene := UniformScene("s1", march, grid, cleanReflectance(), sclVegetation, 5)
	scene.Bands[BandSCL].Values[0] = 3

	masked, err := masker.Mask(scene, nil)
	require.NoError(t, err)

	assert.False(t, masked.Bands[BandRed].Valid[3])
	// one of three AOI pixels is shadow
	assert.InDelta(t, 100.0/3, masked.Contamination, 1e-9)
}

func TestMaskIgnoresPixelsWithoutSourceData(t *testing.T) {
	aoi, grid := testAOI(t)
	masker := NewMasker(aoi, grid, 40)
	scene := UniformScene("s1", march, grid, cleanReflectance(), sclVegetation, 5)
	scene.Bands[BandRed].Valid[2] = false

	masked, err := masker.Mask(scene, nil)
	require.NoError(t, err)

	assert.Equal(t, 0.0, masked.Contamination)
	assert.Equal(t, 3, masked.Bands[BandNIR].ValidCount())
}

func TestMaskKeepsExtraSpectralBands(t *testing.T) {
	aoi, grid := testAOI(t)
	reflectance := cleanReflectance()
	reflectance["B11"] = 2000
	scene := UniformScene("s1", march, grid, reflectance, sclVegetation, 5)

	masked, err := NewMasker(aoi, grid, 40).Mask(scene, nil)
	require.NoError(t, err)
	require.Contains(t, masked.Bands, "B11")
	assert.InDelta(t, 0.2, masked.Bands["B11"].Values[0], 1e-12)
}

func TestMaskRequiresSpectralBands(t *testing.T) {
	aoi, grid := testAOI(t)
	reflectance := cleanReflectance()
	delete(reflectance, BandNIR)
	scene := UniformScene("s1", march, grid, reflectance, sclVegetation, 5)

	_, err := NewMasker(aoi, grid, 40).Mask(scene, nil)
	assert.ErrorIs(t, err, ErrMissingBand)
}

func TestMaskRejectsSceneOffGrid(t *testing.T) {
	aoi, grid := testAOI(t)
	other := grid
	other.Width = 3
	scene := UniformScene("s1", march, other, cleanReflectance(), sclVegetation, 5)

	_, err := NewMasker(aoi, grid, 40).Mask(scene, nil)
	assert.ErrorIs(t, err, raster.ErrShapeMismatch)
}

func TestContaminationFormula(t *testing.T) {
	assert.Equal(t, 0.0, contamination(0, 0))
	assert.Equal(t, 100.0, contamination(4, 0))
	assert.Equal(t, 25.0, contamination(4, 3))
	assert.Equal(t, 0.0, contamination(2, 5))
}

type failingSource struct {
	MemorySource
}

func (f *failingSource) FetchCloudProbability(ctx context.Context, aoi *geometry.AOI, date time.Time) (*raster.Band, error) {
	return nil, errors.New("boom")
}

func TestResolveCloudProbability(t *testing.T) {
	aoi, grid := testAOI(t)
	ctx := context.Background()
	scene := UniformScene("s1", march, grid, cleanReflectance(), sclVegetation, 5)
	source := NewMemorySource()

	band, err := ResolveCloudProbability(ctx, source, aoi, scene)
	require.NoError(t, err)
	assert.Nil(t, band, "missing product is recovered")

	source.SetCloudProbability(march, raster.Constant(BandCloudProbability, 2, 2, 80, true))
	band, err = ResolveCloudProbability(ctx, source, aoi, scene)
	require.NoError(t, err)
	assert.Equal(t, 80.0, band.Values[0])

	scene.Bands[BandCloudProbability] = raster.Constant(BandCloudProbability, 2, 2, 10, true)
	band, err = ResolveCloudProbability(ctx, source, aoi, scene)
	require.NoError(t, err)
	assert.Equal(t, 10.0, band.Values[0])

	delete(scene.Bands, BandCloudProbability)
	_, err = ResolveCloudProbability(ctx, &failingSource{}, aoi, scene)
	assert.Error(t, err)
}
