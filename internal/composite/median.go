package composite

import (
	"context"
	"fmt"

	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/forest-guardian/monthly-composites/internal/sentinel"
	"github.com/montanaflynn/stats"
)

// medianReduce takes the per-pixel median of sceneBand over the scenes where
// the pixel is valid. Pixels with no valid observation stay masked.
func medianReduce(ctx context.Context, scenes []sentinel.MaskedScene, sceneBand, name string, grid raster.Grid) (*raster.Band, error) {
	bands := make([]*raster.Band, 0, len(scenes))
	for _, scene := range scenes {
		band, ok := scene.Bands[sceneBand]
		if !ok {
			return nil, fmt.Errorf("%w: %s in masked scene %s", sentinel.ErrMissingBand, sceneBand, scene.ID)
		}
		if !band.FitsGrid(grid) {
			return nil, fmt.Errorf("%w: band %s in masked scene %s", raster.ErrShapeMismatch, sceneBand, scene.ID)
		}
		bands = append(bands, band)
	}

	out := raster.NewBand(name, grid.Width, grid.Height)
	values := make([]float64, 0, len(bands))
	for y := 0; y < grid.Height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < grid.Width; x++ {
			i := out.Index(x, y)
			values = values[:0]
			for _, band := range bands {
				if band.Valid[i] {
					values = append(values, band.Values[i])
				}
			}
			if len(values) == 0 {
				continue
			}
			median, err := stats.Median(values)
			if err != nil {
				continue
			}
			out.Values[i] = median
			out.Valid[i] = true
		}
	}
	return out, nil
}
