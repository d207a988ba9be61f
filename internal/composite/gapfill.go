package composite

import (
	"github.com/forest-guardian/monthly-composites/internal/indices"
	"github.com/forest-guardian/monthly-composites/internal/raster"
)

// maskedBundle returns every schema band filled with zero and fully masked.
func maskedBundle(grid raster.Grid) *raster.Bundle {
	bundle := &raster.Bundle{Grid: grid}
	for _, name := range BandSchema {
		bundle.Bands = append(bundle.Bands, raster.Constant(name, grid.Width, grid.Height, 0, false))
	}
	return bundle
}

func defaultBounds() map[string]indices.Bounds {
	bounds := make(map[string]indices.Bounds, len(indices.Names))
	for _, name := range indices.Names {
		bounds[name] = indices.DefaultBounds()
	}
	return bounds
}

// Placeholder is the composite of a month without qualifying scenes.
func Placeholder(ym YearMonth, grid raster.Grid) MonthlyComposite {
	return MonthlyComposite{
		Year:          ym.Year,
		Month:         ym.Month,
		Timestamp:     ym.Timestamp(),
		SceneCount:    0,
		Contamination: 0,
		IsNoData:      true,
		Status:        StatusEmpty,
		Bands:         maskedBundle(grid),
		Bounds:        defaultBounds(),
	}
}

// Failed is the composite of a month whose computation did not finish.
func Failed(ym YearMonth, grid raster.Grid, sceneCount int, err error) MonthlyComposite {
	return MonthlyComposite{
		Year:       ym.Year,
		Month:      ym.Month,
		Timestamp:  ym.Timestamp(),
		SceneCount: sceneCount,
		IsNoData:   sceneCount == 0,
		Status:     StatusFailed,
		Err:        err,
		Bands:      maskedBundle(grid),
		Bounds:     defaultBounds(),
	}
}
