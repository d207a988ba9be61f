package charts

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	chartWidth  = 900
	chartHeight = 400

	DefaultHistogramBins = 20
)

var seriesColor = drawing.Color{R: 34, G: 139, B: 34, A: 255}

func titleStyle() chart.Style {
	return chart.Style{FontSize: 16, FontColor: drawing.ColorBlack}
}

func background() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}}
}

// RenderLine draws the series as a time series PNG.
func RenderLine(w io.Writer, title string, points []Point) error {
	if len(points) < 2 {
		return fmt.Errorf("%w: line chart needs 2, got %d", ErrNotEnoughPoints, len(points))
	}
	xValues := make([]time.Time, len(points))
	yValues := make([]float64, len(points))
	for i, p := range points {
		xValues[i] = p.Timestamp
		yValues[i] = p.Value
	}
	lo, hi := valueRange(yValues)

	graph := chart.Chart{
		Title:      title,
		TitleStyle: titleStyle(),
		Background: background(),
		Width:      chartWidth,
		Height:     chartHeight,
		XAxis: chart.XAxis{
			Name:           "Month",
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01"),
		},
		YAxis: chart.YAxis{
			Name:  points[0].Band,
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: points[0].Band,
				Style: chart.Style{
					StrokeColor: seriesColor,
					StrokeWidth: 2,
					DotColor:    seriesColor,
					DotWidth:    4,
				},
				XValues: xValues,
				YValues: yValues,
			},
		},
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render line chart: %w", err)
	}
	return nil
}

func barChart(title, yName string, bars []chart.Value) chart.BarChart {
	values := make([]float64, len(bars))
	for i, b := range bars {
		values[i] = b.Value
	}
	lo, hi := valueRange(values)
	lo = math.Min(lo, 0)

	width := 120 + len(bars)*30
	if width < chartWidth {
		width = chartWidth
	}
	return chart.BarChart{
		Title:      title,
		TitleStyle: titleStyle(),
		Background: background(),
		Width:      width,
		Height:     chartHeight,
		BarWidth:   20,
		BarSpacing: 10,
		XAxis:      chart.Style{FontSize: 8},
		YAxis: chart.YAxis{
			Name:  yName,
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		Bars: bars,
	}
}

// RenderColumn draws one bar per month.
func RenderColumn(w io.Writer, title string, points []Point) error {
	if len(points) == 0 {
		return fmt.Errorf("%w: column chart needs 1, got 0", ErrNotEnoughPoints)
	}
	bars := make([]chart.Value, len(points))
	for i, p := range points {
		bars[i] = chart.Value{
			Label: p.Month,
			Value: p.Value,
			Style: chart.Style{FillColor: seriesColor, StrokeColor: seriesColor},
		}
	}
	graph := barChart(title, points[0].Band, bars)
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render column chart: %w", err)
	}
	return nil
}

// Bin counts the valid pixels whose value falls in [Lower, Upper).
// The last bin also holds its upper edge.
type Bin struct {
	Lower float64
	Upper float64
	Count int
}

func Histogram(band *raster.Band, bins int) []Bin {
	values := band.ValidValues()
	if len(values) == 0 {
		return nil
	}
	if bins <= 0 {
		bins = DefaultHistogramBins
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return []Bin{{Lower: lo, Upper: hi, Count: len(values)}}
	}

	width := (hi - lo) / float64(bins)
	result := make([]Bin, bins)
	for i := range result {
		result[i].Lower = lo + float64(i)*width
		result[i].Upper = lo + float64(i+1)*width
	}
	for _, v := range values {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		result[i].Count++
	}
	return result
}

// RenderHistogram draws the value distribution of one composite band.
func RenderHistogram(w io.Writer, title string, band *raster.Band, bins int) error {
	histogram := Histogram(band, bins)
	if len(histogram) == 0 {
		return fmt.Errorf("%w: band %s has no valid pixels", ErrNotEnoughPoints, band.Name)
	}
	bars := make([]chart.Value, len(histogram))
	for i, bin := range histogram {
		bars[i] = chart.Value{
			Label: fmt.Sprintf("%.2f", bin.Lower),
			Value: float64(bin.Count),
			Style: chart.Style{FillColor: seriesColor, StrokeColor: seriesColor},
		}
	}
	graph := barChart(title, "pixels", bars)
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render histogram: %w", err)
	}
	return nil
}

// RenderHTML writes an interactive line chart with one series per band. The
// months of the first series form the x axis; gaps in the others are drawn
// as breaks.
func RenderHTML(w io.Writer, title string, series map[string][]Point, order []string) error {
	if len(order) == 0 || len(series[order[0]]) == 0 {
		return fmt.Errorf("%w: html chart has no series", ErrNotEnoughPoints)
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     "900px",
			Height:    "400px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: "Mean over valid AOI pixels",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Month"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Index"}),
	)

	months := make([]string, len(series[order[0]]))
	for i, p := range series[order[0]] {
		months[i] = p.Month
	}
	line.SetXAxis(months)
	for _, name := range order {
		byMonth := make(map[string]float64, len(series[name]))
		for _, p := range series[name] {
			byMonth[p.Month] = p.Value
		}
		data := make([]opts.LineData, len(months))
		for i, month := range months {
			if v, ok := byMonth[month]; ok {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: "-"}
			}
		}
		line.AddSeries(name, data)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render html chart: %w", err)
	}
	return nil
}
