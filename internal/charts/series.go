package charts

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/composite"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
)

var ErrNotEnoughPoints = errors.New("not enough points to draw a chart")

// Point is the reduced value of one band for one month.
type Point struct {
	Timestamp time.Time `csv:"-"`
	Month     string    `csv:"month"`
	Band      string    `csv:"band"`
	Value     float64   `csv:"value"`
}

// Reducer collapses the valid pixels of a band to one value.
type Reducer func(band *raster.Band) (float64, bool)

func MeanReducer(band *raster.Band) (float64, bool) {
	return band.Mean()
}

func MedianReducer(band *raster.Band) (float64, bool) {
	values := band.ValidValues()
	if len(values) == 0 {
		return 0, false
	}
	median, err := stats.Median(values)
	if err != nil {
		return 0, false
	}
	return median, true
}

// Series reduces one band of every usable composite. Placeholders and failed
// months are skipped, so the result may be shorter than the input.
func Series(composites []composite.MonthlyComposite, band string, reducer Reducer) []Point {
	if reducer == nil {
		reducer = MeanReducer
	}
	var points []Point
	for _, c := range composite.Usable(composites) {
		b := c.Band(band)
		if b == nil {
			continue
		}
		value, ok := reducer(b)
		if !ok {
			continue
		}
		points = append(points, Point{
			Timestamp: c.Timestamp,
			Month:     c.Label(),
			Band:      band,
			Value:     value,
		})
	}
	return points
}

func WriteCSV(w io.Writer, points []Point) error {
	if err := gocsv.Marshal(&points, w); err != nil {
		return fmt.Errorf("failed to write series CSV: %w", err)
	}
	return nil
}

func valueRange(values []float64) (float64, float64) {
	lo, _ := stats.Min(values)
	hi, _ := stats.Max(values)
	if hi-lo < 1e-9 {
		return lo - 0.1, hi + 0.1
	}
	pad := (hi - lo) * 0.1
	return lo - pad, hi + pad
}
