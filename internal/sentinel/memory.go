package sentinel

import (
	"context"
	"sync"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/raster"
)

// MemorySource serves scenes that are already laid out on the AOI grid.
type MemorySource struct {
	mu               sync.RWMutex
	scenes           []Scene
	cloudProbability map[string]*raster.Band
	delay            time.Duration
}

func NewMemorySource(scenes ...Scene) *MemorySource {
	return &MemorySource{
		scenes:           scenes,
		cloudProbability: make(map[string]*raster.Band),
	}
}

func (s *MemorySource) AddScene(scene Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes = append(s.scenes, scene)
}

// SetCloudProbability registers the cloud probability product for the day of date.
func (s *MemorySource) SetCloudProbability(date time.Time, band *raster.Band) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cloudProbability[dayKey(date)] = band
}

// SetDelay makes every fetch block for d or until the context is done.
func (s *MemorySource) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *MemorySource) wait(ctx context.Context) error {
	s.mu.RLock()
	delay := s.delay
	s.mu.RUnlock()
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MemorySource) FetchScenes(ctx context.Context, aoi *geometry.AOI, dates DateRange, maxCloudCoverPct float64) ([]Scene, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var scenes []Scene
	for _, scene := range s.scenes {
		if !dates.Contains(scene.Timestamp) || scene.CloudCover > maxCloudCoverPct {
			continue
		}
		scenes = append(scenes, scene)
	}
	return scenes, nil
}

func (s *MemorySource) FetchCloudProbability(ctx context.Context, aoi *geometry.AOI, date time.Time) (*raster.Band, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	band, ok := s.cloudProbability[dayKey(date)]
	if !ok {
		return nil, ErrMissingCloudProduct
	}
	return band.Clone(), nil
}

func dayKey(date time.Time) string {
	return date.UTC().Format("2006-01-02")
}

// UniformScene builds a scene whose bands hold one digital number each.
// reflectance is keyed by band name and must include the spectral bands.
func UniformScene(id string, timestamp time.Time, grid raster.Grid, reflectance map[string]float64, scl, cloudCover float64) Scene {
	bands := make(map[string]*raster.Band, len(reflectance)+1)
	for name, value := range reflectance {
		bands[name] = raster.Constant(name, grid.Width, grid.Height, value, true)
	}
	bands[BandSCL] = raster.Constant(BandSCL, grid.Width, grid.Height, scl, true)
	return Scene{
		ID:         id,
		Timestamp:  timestamp,
		Grid:       grid,
		Bands:      bands,
		CloudCover: cloudCover,
	}
}
