package indices

import (
	"fmt"

	"github.com/forest-guardian/monthly-composites/internal/raster"
)

const (
	NDVI = "NDVI"
	EVI  = "EVI"
	SAVI = "SAVI"
)

// Names lists the vegetation indices in composite band order.
var Names = []string{NDVI, EVI, SAVI}

func NormalizedName(index string) string {
	return index + "_normalized"
}

// Reflectance holds the median surface reflectance bands an index is derived from.
type Reflectance struct {
	Red  *raster.Band
	NIR  *raster.Band
	Blue *raster.Band
}

type formula func(red, nir, blue float64) (numerator, denominator float64)

var formulas = map[string]formula{
	NDVI: func(red, nir, _ float64) (float64, float64) {
		return nir - red, nir + red
	},
	EVI: func(red, nir, blue float64) (float64, float64) {
		return 2.5 * (nir - red), nir + 6*red - 7.5*blue + 1
	},
	SAVI: func(red, nir, _ float64) (float64, float64) {
		return 1.5 * (nir - red), nir + red + 0.5
	},
}

// Compute derives index pixel by pixel. A pixel is valid only where every
// input band is valid and the denominator is not zero.
func Compute(index string, r Reflectance) (*raster.Band, error) {
	f, ok := formulas[index]
	if !ok {
		return nil, fmt.Errorf("unknown index %q", index)
	}
	if r.Red == nil || r.NIR == nil || r.Blue == nil {
		return nil, fmt.Errorf("index %s needs red, nir and blue bands", index)
	}
	if !r.Red.SameShape(r.NIR) || !r.Red.SameShape(r.Blue) {
		return nil, fmt.Errorf("%w: index %s inputs differ in shape", raster.ErrShapeMismatch, index)
	}

	out := raster.NewBand(index, r.Red.Width, r.Red.Height)
	for i := range out.Values {
		if !r.Red.Valid[i] || !r.NIR.Valid[i] || !r.Blue.Valid[i] {
			continue
		}
		numerator, denominator := f(r.Red.Values[i], r.NIR.Values[i], r.Blue.Values[i])
		if denominator == 0 {
			continue
		}
		out.Values[i] = numerator / denominator
		out.Valid[i] = true
	}
	return out, nil
}

// ComputeAll returns NDVI, EVI and SAVI in that order.
func ComputeAll(r Reflectance) ([]*raster.Band, error) {
	bands := make([]*raster.Band, 0, len(Names))
	for _, name := range Names {
		band, err := Compute(name, r)
		if err != nil {
			return nil, err
		}
		bands = append(bands, band)
	}
	return bands, nil
}
