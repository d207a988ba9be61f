package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Sentinel-2 process requests are capped at 2500 pixels per side.
const maxGridPixels = 2500

var ErrUnsupportedGeometry = errors.New("area of interest must be a Polygon or MultiPolygon")

// AOI is the immutable area of interest every spatial reduction is scoped to.
type AOI struct {
	id       string
	polygons orb.MultiPolygon
	bound    orb.Bound
}

func New(id string, geometry orb.Geometry) (*AOI, error) {
	var polygons orb.MultiPolygon
	switch g := geometry.(type) {
	case orb.Polygon:
		polygons = orb.MultiPolygon{g}
	case orb.MultiPolygon:
		polygons = g
	default:
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedGeometry, geometry)
	}
	if len(polygons) == 0 || len(polygons[0]) == 0 || len(polygons[0][0]) < 4 {
		return nil, fmt.Errorf("%w: empty polygon", ErrUnsupportedGeometry)
	}
	return &AOI{
		id:       id,
		polygons: polygons.Clone(),
		bound:    polygons.Bound(),
	}, nil
}

// LoadGeoJSON reads an AOI from a GeoJSON file. When the file holds a feature
// collection, featureID selects the feature by its plot_id or id property; an
// empty featureID selects the first feature.
func LoadGeoJSON(path, featureID string) (*AOI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson %s: %w", path, err)
	}
	return ParseGeoJSON(data, featureID)
}

func ParseGeoJSON(data []byte, featureID string) (*AOI, error) {
	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}

	switch header.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse feature collection: %w", err)
		}
		for _, feature := range fc.Features {
			if featureID == "" || featureMatches(feature, featureID) {
				return New(featureName(feature, featureID), feature.Geometry)
			}
		}
		return nil, fmt.Errorf("geometry not found for feature %q", featureID)
	case "Feature":
		feature, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse feature: %w", err)
		}
		return New(featureName(feature, featureID), feature.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse geometry: %w", err)
		}
		return New(featureID, g.Geometry())
	}
}

func featureMatches(feature *geojson.Feature, featureID string) bool {
	if feature.Properties.MustString("plot_id", "") == featureID {
		return true
	}
	if feature.Properties.MustString("id", "") == featureID {
		return true
	}
	return feature.ID != nil && fmt.Sprint(feature.ID) == featureID
}

func featureName(feature *geojson.Feature, fallback string) string {
	if name := feature.Properties.MustString("plot_id", ""); name != "" {
		return name
	}
	if name := feature.Properties.MustString("name", ""); name != "" {
		return name
	}
	if feature.ID != nil {
		return fmt.Sprint(feature.ID)
	}
	return fallback
}

func (a *AOI) ID() string {
	return a.id
}

func (a *AOI) Bound() orb.Bound {
	return a.bound
}

func (a *AOI) Geometry() orb.MultiPolygon {
	return a.polygons.Clone()
}

// Contains reports whether the point lies inside any polygon of the AOI.
func (a *AOI) Contains(lon, lat float64) bool {
	point := orb.Point{lon, lat}
	if !a.bound.Contains(point) {
		return false
	}
	return planar.MultiPolygonContains(a.polygons, point)
}

// Centroid returns the area-weighted centroid as latitude, longitude.
func (a *AOI) Centroid() (float64, float64) {
	centroid, _ := planar.CentroidArea(a.polygons)
	return centroid.Lat(), centroid.Lon()
}

func (a *AOI) AreaSquareMeters() float64 {
	return geo.Area(a.polygons)
}

// GeoJSON encodes the AOI geometry alone.
func (a *AOI) GeoJSON() ([]byte, error) {
	var g orb.Geometry = a.polygons
	if len(a.polygons) == 1 {
		g = a.polygons[0]
	}
	return geojson.NewGeometry(g).MarshalJSON()
}

// calculatePixels converts a span in degrees to a pixel count at the given
// resolution, using 111 km per degree.
func calculatePixels(distance float64, resolution float64) int {
	pixels := distance * (111_000.0 / resolution)
	if pixels < 1 {
		return 1
	}
	if pixels > maxGridPixels {
		return maxGridPixels
	}
	return int(math.Round(pixels))
}

// Grid returns the EPSG:4326 pixel grid covering the AOI bound at the given
// resolution. Every scene and composite of a run is laid out on this grid.
func (a *AOI) Grid(resolutionMeters float64) raster.Grid {
	width := calculatePixels(a.bound.Max.X()-a.bound.Min.X(), resolutionMeters)
	height := calculatePixels(a.bound.Max.Y()-a.bound.Min.Y(), resolutionMeters)

	return raster.Grid{
		Width:  width,
		Height: height,
		GeoTransform: [6]float64{
			a.bound.Min.X(),
			(a.bound.Max.X() - a.bound.Min.X()) / float64(width),
			0,
			a.bound.Max.Y(),
			0,
			-(a.bound.Max.Y() - a.bound.Min.Y()) / float64(height),
		},
		EPSG: 4326,
	}
}

// PixelMask marks the grid pixels whose centers fall inside the AOI.
func (a *AOI) PixelMask(grid raster.Grid) []bool {
	mask := make([]bool, grid.Size())
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			lon, lat := grid.PixelCenter(x, y)
			mask[y*grid.Width+x] = a.Contains(lon, lat)
		}
	}
	return mask
}
