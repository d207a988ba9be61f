package indices

import (
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/montanaflynn/stats"
)

// Epsilon floors the percentile span so flat rasters do not divide by zero.
const Epsilon = 1e-6

// Bounds are the 2nd and 98th percentiles of one index over the AOI.
// Degenerate is set when the span was floored or no pixel was sampled.
type Bounds struct {
	P2         float64
	P98        float64
	Samples    int
	Degenerate bool
}

func DefaultBounds() Bounds {
	return Bounds{P2: 0, P98: 1, Degenerate: true}
}

func (b Bounds) Span() float64 {
	span := b.P98 - b.P2
	if span < Epsilon {
		return Epsilon
	}
	return span
}

// ComputeBounds samples band every stride pixels along both axes, keeping
// valid pixels inside aoiMask. A nil aoiMask keeps every valid pixel.
func ComputeBounds(band *raster.Band, aoiMask []bool, stride int) Bounds {
	if stride < 1 {
		stride = 1
	}

	var samples []float64
	for y := 0; y < band.Height; y += stride {
		for x := 0; x < band.Width; x += stride {
			i := band.Index(x, y)
			if !band.Valid[i] || (aoiMask != nil && !aoiMask[i]) {
				continue
			}
			samples = append(samples, band.Values[i])
		}
	}
	if len(samples) == 0 {
		return DefaultBounds()
	}

	p2, err := stats.PercentileNearestRank(samples, 2)
	if err != nil {
		return DefaultBounds()
	}
	p98, err := stats.PercentileNearestRank(samples, 98)
	if err != nil {
		return DefaultBounds()
	}
	return Bounds{
		P2:         p2,
		P98:        p98,
		Samples:    len(samples),
		Degenerate: p98-p2 < Epsilon,
	}
}

// Normalize stretches band to [0,1] with bounds. Masked pixels stay masked.
func Normalize(band *raster.Band, bounds Bounds, name string) *raster.Band {
	out := raster.NewBand(name, band.Width, band.Height)
	span := bounds.Span()
	for i, v := range band.Values {
		if !band.Valid[i] {
			continue
		}
		out.Values[i] = clamp((v-bounds.P2)/span, 0, 1)
		out.Valid[i] = true
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
