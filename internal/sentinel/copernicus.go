package sentinel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/cache"
	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	catalogSearchPath = "/api/v1/catalog/1.0.0/search"
	processPath       = "/api/v1/process"
	collection        = "sentinel-2-l2a"
	bandDataMask      = "dataMask"

	catalogPageSize = 100
	// maxCatalogPages bounds the pagination of one month search.
	maxCatalogPages = 20
)

var ErrUnauthorized = errors.New("unauthorized access, check your client ID and secret")

const spectralEvalscript = `
//VERSION=3
function setup() {
  return {
    input: [{ bands: ["B02", "B03", "B04", "B08", "SCL", "dataMask"], units: "DN" }],
    output: { id: "default", bands: 6, sampleType: SampleType.FLOAT32 },
  }
}

function evaluatePixel(sample) {
  return [sample.B02, sample.B03, sample.B04, sample.B08, sample.SCL, sample.dataMask];
}
`

const cloudProbabilityEvalscript = `
//VERSION=3
function setup() {
  return {
    input: ["CLD", "dataMask"],
    output: { id: "default", bands: 2, sampleType: SampleType.FLOAT32 },
  }
}

function evaluatePixel(sample) {
  return [sample.CLD, sample.dataMask];
}
`

type CopernicusConfig struct {
	// Credentials are tried in order; the next pair is used when a request
	// is rejected.
	Credentials [][2]string
	TokenURL    string
	BaseURL     string
	Resolution  float64
	RetryCount  int
	RetryWait   time.Duration
}

// CatalogItem is one catalog hit for the AOI.
type CatalogItem struct {
	ID         string    `json:"id"`
	Datetime   time.Time `json:"datetime"`
	CloudCover float64   `json:"cloud_cover"`
}

// CopernicusSource fetches Sentinel-2 L2A scenes from the Copernicus Data
// Space catalog and process APIs.
type CopernicusSource struct {
	cfg     CopernicusConfig
	clients []*resty.Client
	catalog *cache.FileCache[[]CatalogItem]
	log     *logrus.Entry
}

// NewCopernicusSource builds one OAuth2 client per credential pair. catalog
// may be nil to disable catalog caching.
func NewCopernicusSource(cfg CopernicusConfig, catalog *cache.FileCache[[]CatalogItem], log *logrus.Entry) (*CopernicusSource, error) {
	if len(cfg.Credentials) == 0 || cfg.TokenURL == "" || cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing Copernicus client credentials, token URL or base URL")
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = 10
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = 5 * time.Second
	}

	clients := make([]*resty.Client, 0, len(cfg.Credentials))
	for _, pair := range cfg.Credentials {
		config := &clientcredentials.Config{
			ClientID:     pair[0],
			ClientSecret: pair[1],
			TokenURL:     cfg.TokenURL,
		}
		client := resty.NewWithClient(config.Client(context.Background())).
			SetBaseURL(cfg.BaseURL).
			SetTimeout(5 * time.Minute).
			SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(cfg.RetryWait).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if r == nil {
					return false
				}
				return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
			})
		clients = append(clients, client)
	}

	return &CopernicusSource{
		cfg:     cfg,
		clients: clients,
		catalog: catalog,
		log:     log,
	}, nil
}

// post sends body to path, moving to the next credential pair when the
// request cannot be authorized.
func (s *CopernicusSource) post(ctx context.Context, path, accept string, body interface{}) ([]byte, error) {
	var lastErr error
	for i, client := range s.clients {
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", accept).
			SetBody(body).
			Post(path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request to %s with credential %d failed: %w", path, i+1, err)
			s.log.WithError(err).Warnf("credential %d failed, trying next", i+1)
			continue
		}
		if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
			lastErr = fmt.Errorf("%w: status %d on %s", ErrUnauthorized, resp.StatusCode(), path)
			s.log.Warnf("credential %d rejected, trying next", i+1)
			continue
		}
		if resp.IsError() {
			return nil, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode(), resp.String())
		}
		return resp.Body(), nil
	}
	return nil, lastErr
}

type stacSearchResponse struct {
	Features []struct {
		ID         string `json:"id"`
		Properties struct {
			Datetime   time.Time `json:"datetime"`
			CloudCover float64   `json:"eo:cloud_cover"`
		} `json:"properties"`
	} `json:"features"`
	Context struct {
		Next *int `json:"next"`
	} `json:"context"`
}

// SearchCatalog lists the catalog items intersecting the AOI inside dates.
func (s *CopernicusSource) SearchCatalog(ctx context.Context, aoi *geometry.AOI, dates DateRange) ([]CatalogItem, error) {
	var key string
	if s.catalog != nil {
		key = s.catalog.GenerateKey(aoi.ID(), aoi.Bound(), dates.String())
		if items, ok := s.catalog.Get(key); ok {
			return items, nil
		}
	}

	geojsonGeometry, err := aoi.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export geometry to GeoJSON: %w", err)
	}
	payload := map[string]interface{}{
		"collections": []string{collection},
		"datetime":    fmt.Sprintf("%s/%s", dates.Start.Format(time.RFC3339), dates.End.Add(-time.Second).Format(time.RFC3339)),
		"intersects":  json.RawMessage(geojsonGeometry),
		"limit":       catalogPageSize,
	}

	var items []CatalogItem
	for page := 1; ; page++ {
		body, err := s.post(ctx, catalogSearchPath, "application/geo+json", payload)
		if err != nil {
			return nil, fmt.Errorf("catalog search failed: %w", err)
		}
		var response stacSearchResponse
		if err := json.Unmarshal(body, &response); err != nil {
			return nil, fmt.Errorf("failed to parse catalog response: %w", err)
		}
		for _, feature := range response.Features {
			items = append(items, CatalogItem{
				ID:         feature.ID,
				Datetime:   feature.Properties.Datetime.UTC(),
				CloudCover: feature.Properties.CloudCover,
			})
		}

		if response.Context.Next == nil {
			break
		}
		if page == maxCatalogPages {
			s.log.WithFields(logrus.Fields{"aoi": aoi.ID(), "dates": dates.String(), "items": len(items)}).
				Warn("catalog search truncated after the page limit")
			break
		}
		payload["next"] = *response.Context.Next
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Datetime.Equal(items[j].Datetime) {
			return items[i].ID < items[j].ID
		}
		return items[i].Datetime.Before(items[j].Datetime)
	})

	if s.catalog != nil {
		if err := s.catalog.Set(key, items); err != nil {
			s.log.WithError(err).Warn("failed to cache catalog search")
		}
	}
	return items, nil
}

func (s *CopernicusSource) processPayload(aoi *geometry.AOI, grid raster.Grid, day time.Time, evalscript string) map[string]interface{} {
	bound := aoi.Bound()
	return map[string]interface{}{
		"input": map[string]interface{}{
			"bounds": map[string]interface{}{
				"bbox": []float64{bound.Min.X(), bound.Min.Y(), bound.Max.X(), bound.Max.Y()},
				"properties": map[string]string{
					"crs": fmt.Sprintf("http://www.opengis.net/def/crs/EPSG/0/%d", grid.EPSG),
				},
			},
			"data": []map[string]interface{}{
				{
					"dataFilter": map[string]interface{}{
						"timeRange": map[string]string{
							"from": day.Format(time.RFC3339),
							"to":   day.Add(24*time.Hour - time.Second).Format(time.RFC3339),
						},
					},
					// harmonized values remove the +1000 offset of processing
					// baseline 04.00 so that DN/10000 is reflectance
					"processing": map[string]interface{}{
						"harmonizeValues": true,
					},
					"type": collection,
				},
			},
		},
		"output": map[string]interface{}{
			"width":  grid.Width,
			"height": grid.Height,
			"responses": []map[string]interface{}{
				{
					"identifier": "default",
					"format": map[string]string{
						"type": "image/tiff",
					},
				},
			},
		},
		"evalscript": evalscript,
	}
}

// applyDataMask invalidates every band where the dataMask band is not 1 and
// drops the dataMask band. It reports whether any pixel carries data.
func applyDataMask(bands map[string]*raster.Band) (bool, error) {
	mask, ok := bands[bandDataMask]
	if !ok {
		return true, nil
	}
	delete(bands, bandDataMask)

	valid := make([]bool, len(mask.Values))
	hasData := false
	for i, v := range mask.Values {
		valid[i] = mask.Valid[i] && v == 1
		hasData = hasData || valid[i]
	}
	for name, band := range bands {
		if err := band.MaskWith(valid); err != nil {
			return false, fmt.Errorf("failed to apply data mask to %s: %w", name, err)
		}
	}
	return hasData, nil
}

func (s *CopernicusSource) FetchScenes(ctx context.Context, aoi *geometry.AOI, dates DateRange, maxCloudCoverPct float64) ([]Scene, error) {
	items, err := s.SearchCatalog(ctx, aoi, dates)
	if err != nil {
		return nil, err
	}

	grid := aoi.Grid(s.cfg.Resolution)
	seenDays := make(map[string]bool)
	var scenes []Scene
	for _, item := range items {
		if !dates.Contains(item.Datetime) || item.CloudCover > maxCloudCoverPct {
			continue
		}
		// the process API mosaics every tile of a day into one image
		day := dayKey(item.Datetime)
		if seenDays[day] {
			s.log.WithFields(logrus.Fields{"date": day, "item": item.ID}).Debug("tile merged into the day mosaic")
			continue
		}
		seenDays[day] = true

		dayStart := time.Date(item.Datetime.Year(), item.Datetime.Month(), item.Datetime.Day(), 0, 0, 0, 0, time.UTC)
		body, err := s.post(ctx, processPath, "image/tiff", s.processPayload(aoi, grid, dayStart, spectralEvalscript))
		if err != nil {
			return nil, fmt.Errorf("failed to request image for %s: %w", day, err)
		}
		bands, err := decodeOnGrid(body, append(append([]string{}, manifestBands...), bandDataMask), grid)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image for %s: %w", day, err)
		}
		hasData, err := applyDataMask(bands)
		if err != nil {
			return nil, fmt.Errorf("image for %s: %w", day, err)
		}
		if !hasData {
			s.log.WithField("date", day).Debug("image has no data over the AOI")
			continue
		}

		scenes = append(scenes, Scene{
			ID:         item.ID,
			Timestamp:  item.Datetime,
			Grid:       grid,
			Bands:      bands,
			CloudCover: item.CloudCover,
		})
	}
	return scenes, nil
}

func (s *CopernicusSource) FetchCloudProbability(ctx context.Context, aoi *geometry.AOI, date time.Time) (*raster.Band, error) {
	grid := aoi.Grid(s.cfg.Resolution)
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	body, err := s.post(ctx, processPath, "image/tiff", s.processPayload(aoi, grid, dayStart, cloudProbabilityEvalscript))
	if err != nil {
		return nil, fmt.Errorf("failed to request cloud probability for %s: %w", dayKey(date), err)
	}
	bands, err := decodeOnGrid(body, []string{BandCloudProbability, bandDataMask}, grid)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cloud probability for %s: %w", dayKey(date), err)
	}
	hasData, err := applyDataMask(bands)
	if err != nil {
		return nil, fmt.Errorf("cloud probability for %s: %w", dayKey(date), err)
	}
	if !hasData {
		return nil, ErrMissingCloudProduct
	}
	return bands[BandCloudProbability], nil
}
