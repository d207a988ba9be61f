package output

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/monthly-composites/internal/composite"
	"github.com/forest-guardian/monthly-composites/internal/indices"
)

const (
	labelHeight   = 24
	minFrameWidth = 160
	maxFrameSide  = 1024
)

var (
	ErrNoFrames = errors.New("no usable composites to animate")

	maskedColor = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// DefaultBand is the band animated when none is requested.
var DefaultBand = indices.NormalizedName(indices.NDVI)

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

// valueToColor maps [0,1] onto a blue, green, red ramp.
func valueToColor(norm float64) color.RGBA {
	var r, g, b uint8
	if norm <= 0.5 {
		ratio := norm / 0.5
		r = 0
		g = uint8(255 * ratio)
		b = uint8(255 * (1 - ratio))
	} else {
		ratio := (norm - 0.5) / 0.5
		r = uint8(255 * ratio)
		g = uint8(255 * (1 - ratio))
		b = 0
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// frameScale enlarges small grids so the month label stays readable.
func frameScale(width, scale int) int {
	if scale < 1 {
		scale = 1
	}
	for width*scale < minFrameWidth {
		scale++
	}
	return scale
}

// frameSize is the raster area of a frame: the grid enlarged by scale, then
// shrunk so its longest side fits maxFrameSide.
func frameSize(width, height, scale int) (int, int) {
	scale = frameScale(width, scale)
	w, h := width*scale, height*scale
	longest := max(w, h)
	if longest <= maxFrameSide {
		return w, h
	}
	return max(1, w*maxFrameSide/longest), max(1, h*maxFrameSide/longest)
}

// RenderFrame paints one band of a composite through the palette under a
// strip holding the month label. Each frame pixel samples the nearest grid
// pixel. Masked pixels are gray.
func RenderFrame(c composite.MonthlyComposite, band string, scale int) (*image.RGBA, error) {
	b := c.Band(band)
	if b == nil {
		return nil, fmt.Errorf("composite %s has no band %s", c.Label(), band)
	}
	width, rasterHeight := frameSize(b.Width, b.Height, scale)

	dc := gg.NewContext(width, rasterHeight+labelHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	frame, ok := dc.Image().(*image.RGBA)
	if !ok {
		return nil, fmt.Errorf("unexpected frame image type %T", dc.Image())
	}
	for fy := 0; fy < rasterHeight; fy++ {
		y := fy * b.Height / rasterHeight
		for fx := 0; fx < width; fx++ {
			x := fx * b.Width / width
			clr := maskedColor
			if value, ok := b.At(x, y); ok {
				clr = valueToColor(normalize(value, 0, 1))
			}
			frame.SetRGBA(fx, fy+labelHeight, clr)
		}
	}

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(fmt.Sprintf("%s  %s", c.Label(), band), float64(width)/2, labelHeight/2, 0.5, 0.5)
	return frame, nil
}

// EachFrame renders the usable composites in sequence order and hands every
// frame to fn before rendering the next one.
func EachFrame(composites []composite.MonthlyComposite, band string, scale int, fn func(composite.MonthlyComposite, *image.RGBA) error) error {
	if band == "" {
		band = DefaultBand
	}
	usable := composite.Usable(composites)
	if len(usable) == 0 {
		return ErrNoFrames
	}
	for _, c := range usable {
		frame, err := RenderFrame(c, band, scale)
		if err != nil {
			return err
		}
		if err := fn(c, frame); err != nil {
			return err
		}
	}
	return nil
}
