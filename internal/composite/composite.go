package composite

import (
	"time"

	"github.com/forest-guardian/monthly-composites/internal/indices"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/forest-guardian/monthly-composites/internal/sentinel"
)

const (
	BandRed   = "red"
	BandGreen = "green"
	BandBlue  = "blue"
	BandNIR   = "nir"
)

// BandSchema is the band layout of every composite, placeholders included.
var BandSchema = []string{
	BandRed, BandGreen, BandBlue, BandNIR,
	indices.NDVI, indices.EVI, indices.SAVI,
	indices.NormalizedName(indices.NDVI), indices.NormalizedName(indices.EVI), indices.NormalizedName(indices.SAVI),
}

// reflectanceSources maps composite reflectance bands to scene bands.
var reflectanceSources = []struct {
	Band  string
	Scene string
}{
	{BandRed, sentinel.BandRed},
	{BandGreen, sentinel.BandGreen},
	{BandBlue, sentinel.BandBlue},
	{BandNIR, sentinel.BandNIR},
}

type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// MonthlyComposite is one slot of the monthly sequence. IsNoData is true
// exactly when SceneCount is zero. A failed month keeps the band schema with
// every pixel masked and carries the failure in Err.
//
// A month that fails before any scene is known, such as a timed out fetch,
// has IsNoData set as well. Consumers tell placeholders and failures apart
// by Status, never by IsNoData alone; Usable does both checks.
type MonthlyComposite struct {
	Year          int
	Month         time.Month
	Timestamp     time.Time
	SceneCount    int
	Contamination float64
	IsNoData      bool
	Status        Status
	Err           error
	Bands         *raster.Bundle
	Bounds        map[string]indices.Bounds
}

func (c MonthlyComposite) YearMonth() YearMonth {
	return YearMonth{Year: c.Year, Month: c.Month}
}

func (c MonthlyComposite) Label() string {
	return c.YearMonth().String()
}

// Usable reports whether the composite carries computed data.
func (c MonthlyComposite) Usable() bool {
	return c.Status == StatusOK && !c.IsNoData
}

func (c MonthlyComposite) Band(name string) *raster.Band {
	if c.Bands == nil {
		return nil
	}
	return c.Bands.Band(name)
}

// Usable filters composites down to the ones consumers should draw.
func Usable(composites []MonthlyComposite) []MonthlyComposite {
	var usable []MonthlyComposite
	for _, c := range composites {
		if c.Usable() {
			usable = append(usable, c)
		}
	}
	return usable
}
