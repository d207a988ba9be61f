package sentinel

import (
	"fmt"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/cache"
	"github.com/forest-guardian/monthly-composites/internal/properties"
	"github.com/sirupsen/logrus"
)

// catalogCacheAge keeps catalog searches for a day; new acquisitions show up
// within that window.
const catalogCacheAge = 24 * time.Hour

// NewSource creates the tile source selected by cfg.Source.
func NewSource(cfg *properties.Config, log *logrus.Entry) (TileSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("source configuration is required")
	}
	switch cfg.Source {
	case properties.SourceCopernicus:
		credentials, err := cfg.CopernicusCredentials()
		if err != nil {
			return nil, err
		}
		catalog := cache.NewFileCache[[]CatalogItem](cfg.RootPath, "catalog", catalogCacheAge)
		source, err := NewCopernicusSource(CopernicusConfig{
			Credentials: credentials,
			TokenURL:    cfg.CopernicusTokenURL,
			BaseURL:     cfg.CopernicusBaseURL,
			Resolution:  cfg.ResolutionMeters,
		}, catalog, log.WithField("source", properties.SourceCopernicus))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Copernicus source: %w", err)
		}
		return source, nil

	case properties.SourceDirectory:
		source, err := NewDirectorySource(cfg.SceneDir, cfg.ResolutionMeters, log.WithField("source", properties.SourceDirectory))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize directory source: %w", err)
		}
		return source, nil

	case properties.SourceMemory:
		return NewMemorySource(), nil

	default:
		return nil, fmt.Errorf("unsupported source: %s", cfg.Source)
	}
}
