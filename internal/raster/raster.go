package raster

import (
	"errors"
	"fmt"

	"github.com/montanaflynn/stats"
)

var ErrShapeMismatch = errors.New("raster shape mismatch")

// Grid describes the pixel layout of every band of a scene or composite.
// GeoTransform follows the GDAL convention.
type Grid struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	EPSG         int
}

func (g Grid) Size() int {
	return g.Width * g.Height
}

func (g Grid) SameShape(other Grid) bool {
	return g.Width == other.Width && g.Height == other.Height
}

// PixelCenter converts pixel coordinates (col, row) to geographic coordinates (lon, lat).
func (g Grid) PixelCenter(x, y int) (float64, float64) {
	gt := g.GeoTransform
	lon := gt[0] + gt[1]*(float64(x)+0.5) + gt[2]*(float64(y)+0.5)
	lat := gt[3] + gt[4]*(float64(x)+0.5) + gt[5]*(float64(y)+0.5)
	return lon, lat
}

// Band is a single raster layer with a per-pixel validity mask.
// Values at invalid pixels are meaningless and must not enter any reduction.
type Band struct {
	Name   string
	Width  int
	Height int
	Values []float64
	Valid  []bool
}

// NewBand returns a zero-valued band with every pixel masked out.
func NewBand(name string, width, height int) *Band {
	return &Band{
		Name:   name,
		Width:  width,
		Height: height,
		Values: make([]float64, width*height),
		Valid:  make([]bool, width*height),
	}
}

// Constant returns a band filled with value.
func Constant(name string, width, height int, value float64, valid bool) *Band {
	band := NewBand(name, width, height)
	for i := range band.Values {
		band.Values[i] = value
		band.Valid[i] = valid
	}
	return band
}

// FromValues wraps values in a band where every pixel is valid.
func FromValues(name string, width, height int, values []float64) (*Band, error) {
	if len(values) != width*height {
		return nil, fmt.Errorf("%w: band %s has %d values for a %dx%d grid", ErrShapeMismatch, name, len(values), width, height)
	}
	band := NewBand(name, width, height)
	copy(band.Values, values)
	for i := range band.Valid {
		band.Valid[i] = true
	}
	return band, nil
}

func (b *Band) Index(x, y int) int {
	return y*b.Width + x
}

func (b *Band) At(x, y int) (float64, bool) {
	i := b.Index(x, y)
	return b.Values[i], b.Valid[i]
}

func (b *Band) Set(x, y int, value float64) {
	i := b.Index(x, y)
	b.Values[i] = value
	b.Valid[i] = true
}

func (b *Band) Size() int {
	return b.Width * b.Height
}

func (b *Band) SameShape(other *Band) bool {
	return other != nil && b.Width == other.Width && b.Height == other.Height
}

func (b *Band) FitsGrid(g Grid) bool {
	return b.Width == g.Width && b.Height == g.Height
}

func (b *Band) Clone() *Band {
	clone := &Band{
		Name:   b.Name,
		Width:  b.Width,
		Height: b.Height,
		Values: make([]float64, len(b.Values)),
		Valid:  make([]bool, len(b.Valid)),
	}
	copy(clone.Values, b.Values)
	copy(clone.Valid, b.Valid)
	return clone
}

// Renamed returns a clone carrying a different band name.
func (b *Band) Renamed(name string) *Band {
	clone := b.Clone()
	clone.Name = name
	return clone
}

// MaskWith invalidates every pixel where mask is false.
func (b *Band) MaskWith(mask []bool) error {
	if len(mask) != len(b.Valid) {
		return fmt.Errorf("%w: mask has %d pixels, band %s has %d", ErrShapeMismatch, len(mask), b.Name, len(b.Valid))
	}
	for i, ok := range mask {
		if !ok {
			b.Valid[i] = false
		}
	}
	return nil
}

// Scale multiplies valid pixels by factor.
func (b *Band) Scale(factor float64) {
	for i := range b.Values {
		if b.Valid[i] {
			b.Values[i] *= factor
		}
	}
}

func (b *Band) ValidCount() int {
	count := 0
	for _, ok := range b.Valid {
		if ok {
			count++
		}
	}
	return count
}

func (b *Band) ValidValues() []float64 {
	values := make([]float64, 0, b.ValidCount())
	for i, ok := range b.Valid {
		if ok {
			values = append(values, b.Values[i])
		}
	}
	return values
}

// Mean returns the mean of valid pixels, false when there are none.
func (b *Band) Mean() (float64, bool) {
	mean, err := stats.Mean(b.ValidValues())
	if err != nil {
		return 0, false
	}
	return mean, true
}

// Bundle is an ordered set of bands sharing one grid.
type Bundle struct {
	Grid  Grid
	Bands []*Band
}

func (b *Bundle) Band(name string) *Band {
	for _, band := range b.Bands {
		if band.Name == name {
			return band
		}
	}
	return nil
}

func (b *Bundle) Names() []string {
	names := make([]string, len(b.Bands))
	for i, band := range b.Bands {
		names[i] = band.Name
	}
	return names
}

// Add appends band after checking it fits the bundle grid.
func (b *Bundle) Add(band *Band) error {
	if !band.FitsGrid(b.Grid) {
		return fmt.Errorf("%w: band %s is %dx%d, grid is %dx%d", ErrShapeMismatch, band.Name, band.Width, band.Height, b.Grid.Width, b.Grid.Height)
	}
	b.Bands = append(b.Bands, band)
	return nil
}

// FullyMasked reports whether no band carries a valid pixel.
func (b *Bundle) FullyMasked() bool {
	for _, band := range b.Bands {
		if band.ValidCount() > 0 {
			return false
		}
	}
	return true
}
