package sentinel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/cache"
	"github.com/forest-guardian/monthly-composites/internal/logger"
	"github.com/forest-guardian/monthly-composites/internal/properties"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySourceFiltersByDateAndCloudCover(t *testing.T) {
	aoi, grid := testAOI(t)
	source := NewMemorySource(
		UniformScene("feb", time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC), grid, cleanReflectance(), sclVegetation, 5),
		UniformScene("mar-clear", march, grid, cleanReflectance(), sclVegetation, 5),
		UniformScene("mar-cloudy", march.AddDate(0, 0, 5), grid, cleanReflectance(), sclVegetation, 35),
		UniformScene("apr", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), grid, cleanReflectance(), sclVegetation, 5),
	)

	scenes, err := source.FetchScenes(context.Background(), aoi, MonthRange(2024, time.March), 20)
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, "mar-clear", scenes[0].ID)
}

func TestMemorySourceDelayHonorsContext(t *testing.T) {
	aoi, _ := testAOI(t)
	source := NewMemorySource()
	source.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := source.FetchScenes(ctx, aoi, MonthRange(2024, time.March), 20)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMonthRangeIsHalfOpen(t *testing.T) {
	r := MonthRange(2024, time.December)
	assert.True(t, r.Contains(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, r.Contains(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseManifest(t *testing.T) {
	rows, err := ParseManifest(strings.NewReader(
		"date,file,cloud_cover,cloud_probability_file\n" +
			"2024-03-05,s2_20240305.tif,12.5,cld_20240305.tif\n" +
			"2024-03-10T10:30:00Z,s2_20240310.tif,3,\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	ts, err := rows[1].Timestamp()
	require.NoError(t, err)
	assert.Equal(t, 10, ts.Hour())
	assert.Equal(t, 12.5, rows[0].CloudCover)
	assert.Equal(t, "", rows[1].CloudProbabilityFile)
}

func TestParseManifestRejectsBadDate(t *testing.T) {
	_, err := ParseManifest(strings.NewReader("date,file,cloud_cover,cloud_probability_file\nMarch,a.tif,1,\n"))
	assert.Error(t, err)
}

type copernicusStub struct {
	server        *httptest.Server
	catalogCalls  atomic.Int32
	rejectedToken atomic.Int32

	// paged splits the catalog answer over two pages.
	paged bool
	// spectral and cloud are the GeoTIFFs served by the process API.
	spectral []byte
	cloud    []byte

	mu              sync.Mutex
	catalogPayloads []map[string]interface{}
	processPayloads []map[string]interface{}
}

func newCopernicusStub(t *testing.T) *copernicusStub {
	stub := &copernicusStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		id, _, ok := r.BasicAuth()
		if !ok {
			id = r.PostForm.Get("client_id")
		}
		if id != "good" {
			stub.rejectedToken.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"token-1","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc(catalogSearchPath, func(w http.ResponseWriter, r *http.Request) {
		stub.catalogCalls.Add(1)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, []interface{}{collection}, payload["collections"])
		stub.mu.Lock()
		stub.catalogPayloads = append(stub.catalogPayloads, payload)
		stub.mu.Unlock()

		w.Header().Set("Content-Type", "application/geo+json")
		if stub.paged && payload["next"] == nil {
			io.WriteString(w, `{"type":"FeatureCollection","features":[
				{"id":"S2A_0301","properties":{"datetime":"2024-03-01T10:30:00Z","eo:cloud_cover":5.0}}
			],"context":{"next":1,"limit":1,"returned":1}}`)
			return
		}
		io.WriteString(w, `{"type":"FeatureCollection","features":[
			{"id":"S2B_0310","properties":{"datetime":"2024-03-10T10:30:00Z","eo:cloud_cover":55.0}},
			{"id":"S2A_0305","properties":{"datetime":"2024-03-05T10:30:00Z","eo:cloud_cover":45.0}}
		]}`)
	})
	mux.HandleFunc(processPath, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		stub.mu.Lock()
		stub.processPayloads = append(stub.processPayloads, payload)
		stub.mu.Unlock()

		w.Header().Set("Content-Type", "image/tiff")
		if strings.Contains(payload["evalscript"].(string), "CLD") {
			w.Write(stub.cloud)
			return
		}
		w.Write(stub.spectral)
	})
	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *copernicusStub) payloads() (catalog, process []map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalogPayloads, s.processPayloads
}

func newTestCopernicusSource(t *testing.T, stub *copernicusStub, credentials [][2]string) *CopernicusSource {
	source, err := NewCopernicusSource(CopernicusConfig{
		Credentials: credentials,
		TokenURL:    stub.server.URL + "/token",
		BaseURL:     stub.server.URL,
		Resolution:  111_000.0 / 2,
		RetryCount:  1,
		RetryWait:   time.Millisecond,
	}, cache.NewFileCache[[]CatalogItem](t.TempDir(), "catalog", 0), logger.Discard())
	require.NoError(t, err)
	return source
}

func TestCopernicusCatalogSearchIsSortedAndCached(t *testing.T) {
	aoi, _ := testAOI(t)
	stub := newCopernicusStub(t)
	source := newTestCopernicusSource(t, stub, [][2]string{{"good", "secret"}})

	items, err := source.SearchCatalog(context.Background(), aoi, MonthRange(2024, time.March))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "S2A_0305", items[0].ID)
	assert.Equal(t, 45.0, items[0].CloudCover)

	_, err = source.SearchCatalog(context.Background(), aoi, MonthRange(2024, time.March))
	require.NoError(t, err)
	assert.Equal(t, int32(1), stub.catalogCalls.Load())
}

func TestCopernicusFallsBackToNextCredential(t *testing.T) {
	aoi, _ := testAOI(t)
	stub := newCopernicusStub(t)
	source := newTestCopernicusSource(t, stub, [][2]string{{"revoked", "x"}, {"good", "secret"}})

	items, err := source.SearchCatalog(context.Background(), aoi, MonthRange(2024, time.March))
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Greater(t, stub.rejectedToken.Load(), int32(0))
}

func TestCopernicusAllCredentialsRejected(t *testing.T) {
	aoi, _ := testAOI(t)
	stub := newCopernicusStub(t)
	source := newTestCopernicusSource(t, stub, [][2]string{{"revoked", "x"}})

	_, err := source.SearchCatalog(context.Background(), aoi, MonthRange(2024, time.March))
	assert.Error(t, err)
}

func TestCopernicusPreFilterSkipsCloudyScenes(t *testing.T) {
	aoi, _ := testAOI(t)
	stub := newCopernicusStub(t)
	source := newTestCopernicusSource(t, stub, [][2]string{{"good", "secret"}})

	// both catalog items are above the pre-filter so no image is requested
	scenes, err := source.FetchScenes(context.Background(), aoi, MonthRange(2024, time.March), 20)
	require.NoError(t, err)
	assert.Empty(t, scenes)
}

func TestCopernicusCatalogFollowsPagination(t *testing.T) {
	aoi, _ := testAOI(t)
	stub := newCopernicusStub(t)
	stub.paged = true
	source := newTestCopernicusSource(t, stub, [][2]string{{"good", "secret"}})

	items, err := source.SearchCatalog(context.Background(), aoi, MonthRange(2024, time.March))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"S2A_0301", "S2A_0305", "S2B_0310"}, []string{items[0].ID, items[1].ID, items[2].ID})

	catalog, _ := stub.payloads()
	require.Len(t, catalog, 2)
	assert.Nil(t, catalog[0]["next"])
	assert.Equal(t, 1.0, catalog[1]["next"])
}

// geoTIFFBytes encodes one band per entry of values on grid.
func geoTIFFBytes(t *testing.T, grid raster.Grid, values ...[]float64) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.tif")
	writeGeoTIFF(t, path, grid, values...)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestCopernicusFetchScenesDecodesImage(t *testing.T) {
	aoi, grid := testAOI(t)
	stub := newCopernicusStub(t)
	stub.spectral = geoTIFFBytes(t, grid,
		[]float64{500, 500, 500, 500},
		[]float64{800, 800, 800, 800},
		[]float64{1000, 1100, 0, 1300},
		[]float64{4000, 4000, 4000, 4000},
		[]float64{4, 4, 4, 8},
		[]float64{1, 1, 0, 1},
	)
	source := newTestCopernicusSource(t, stub, [][2]string{{"good", "secret"}})

	// only the 45% item passes a 50% pre-filter
	scenes, err := source.FetchScenes(context.Background(), aoi, MonthRange(2024, time.March), 50)
	require.NoError(t, err)
	require.Len(t, scenes, 1)

	scene := scenes[0]
	assert.Equal(t, "S2A_0305", scene.ID)
	assert.Equal(t, 45.0, scene.CloudCover)
	assert.Len(t, scene.Bands, len(manifestBands))
	assert.NotContains(t, scene.Bands, bandDataMask)

	red, err := scene.Band(BandRed)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, true}, red.Valid)
	assert.Equal(t, 1300.0, red.Values[3])
	scl, err := scene.Band(BandSCL)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, true}, scl.Valid)

	_, process := stub.payloads()
	require.Len(t, process, 1)
	input := process[0]["input"].(map[string]interface{})
	data := input["data"].([]interface{})[0].(map[string]interface{})
	processing := data["processing"].(map[string]interface{})
	assert.Equal(t, true, processing["harmonizeValues"])
	output := process[0]["output"].(map[string]interface{})
	assert.Equal(t, float64(grid.Width), output["width"])
	assert.Equal(t, float64(grid.Height), output["height"])
}

func TestCopernicusFetchScenesSkipsImageWithoutData(t *testing.T) {
	aoi, grid := testAOI(t)
	stub := newCopernicusStub(t)
	zeros := []float64{0, 0, 0, 0}
	stub.spectral = geoTIFFBytes(t, grid, zeros, zeros, zeros, zeros, zeros, zeros)
	source := newTestCopernicusSource(t, stub, [][2]string{{"good", "secret"}})

	scenes, err := source.FetchScenes(context.Background(), aoi, MonthRange(2024, time.March), 100)
	require.NoError(t, err)
	assert.Empty(t, scenes)
	_, process := stub.payloads()
	assert.Len(t, process, 2)
}

func TestCopernicusFetchCloudProbability(t *testing.T) {
	aoi, grid := testAOI(t)
	stub := newCopernicusStub(t)
	stub.cloud = geoTIFFBytes(t, grid, []float64{0, 90, 10, 50}, []float64{1, 1, 1, 0})
	source := newTestCopernicusSource(t, stub, [][2]string{{"good", "secret"}})

	band, err := source.FetchCloudProbability(context.Background(), aoi, march)
	require.NoError(t, err)
	assert.Equal(t, BandCloudProbability, band.Name)
	assert.Equal(t, []float64{0, 90, 10}, band.Values[:3])
	assert.Equal(t, []bool{true, true, true, false}, band.Valid)
}

func TestCopernicusMissingCloudProduct(t *testing.T) {
	aoi, grid := testAOI(t)
	stub := newCopernicusStub(t)
	stub.cloud = geoTIFFBytes(t, grid, []float64{0, 0, 0, 0}, []float64{0, 0, 0, 0})
	source := newTestCopernicusSource(t, stub, [][2]string{{"good", "secret"}})

	_, err := source.FetchCloudProbability(context.Background(), aoi, march)
	assert.ErrorIs(t, err, ErrMissingCloudProduct)
}

func TestApplyDataMask(t *testing.T) {
	red := raster.Constant(BandRed, 2, 2, 1000, true)
	bands := map[string]*raster.Band{
		BandRed:      red,
		bandDataMask: raster.Constant(bandDataMask, 2, 2, 1, true),
	}
	bands[bandDataMask].Values[1] = 0
	bands[bandDataMask].Valid[2] = false

	hasData, err := applyDataMask(bands)
	require.NoError(t, err)
	assert.True(t, hasData)
	assert.NotContains(t, bands, bandDataMask)
	assert.Equal(t, []bool{true, false, false, true}, red.Valid)

	hasData, err = applyDataMask(map[string]*raster.Band{BandRed: raster.Constant(BandRed, 2, 2, 1, true)})
	require.NoError(t, err)
	assert.True(t, hasData, "images without a dataMask band are kept")

	hasData, err = applyDataMask(map[string]*raster.Band{
		BandRed:      raster.Constant(BandRed, 2, 2, 1, true),
		bandDataMask: raster.Constant(bandDataMask, 2, 2, 0, true),
	})
	require.NoError(t, err)
	assert.False(t, hasData)

	_, err = applyDataMask(map[string]*raster.Band{
		BandRed:      raster.Constant(BandRed, 3, 1, 1, true),
		bandDataMask: raster.Constant(bandDataMask, 2, 2, 1, true),
	})
	assert.ErrorIs(t, err, raster.ErrShapeMismatch)
}

func TestNewCopernicusSourceRequiresCredentials(t *testing.T) {
	_, err := NewCopernicusSource(CopernicusConfig{TokenURL: "x", BaseURL: "y"}, nil, logger.Discard())
	assert.Error(t, err)
}

func TestNewSourceByMode(t *testing.T) {
	log := logger.Discard()

	source, err := NewSource(&properties.Config{Source: properties.SourceMemory}, log)
	require.NoError(t, err)
	assert.IsType(t, &MemorySource{}, source)

	source, err = NewSource(&properties.Config{
		Source:                 properties.SourceCopernicus,
		RootPath:               t.TempDir(),
		CopernicusClientID:     "id",
		CopernicusClientSecret: "secret",
		CopernicusTokenURL:     "http://localhost/token",
		CopernicusBaseURL:      "http://localhost",
		ResolutionMeters:       10,
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &CopernicusSource{}, source)

	_, err = NewSource(&properties.Config{Source: properties.SourceDirectory, SceneDir: t.TempDir(), ResolutionMeters: 10}, log)
	assert.Error(t, err, "the directory has no manifest")

	_, err = NewSource(&properties.Config{Source: "s3"}, log)
	assert.Error(t, err)

	_, err = NewSource(nil, log)
	assert.Error(t, err)
}
