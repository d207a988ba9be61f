package export

import (
	"fmt"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/forest-guardian/monthly-composites/internal/utils"
)

// NoDataValue marks masked pixels in exported GeoTIFFs.
const NoDataValue = -9999

// Metadata is written into the GeoTIFF default metadata domain.
type Metadata struct {
	AOI        string
	Month      string
	Resolution float64
}

func (m Metadata) items() map[string]string {
	items := map[string]string{
		"RESOLUTION_METERS": strconv.FormatFloat(m.Resolution, 'f', -1, 64),
	}
	if m.AOI != "" {
		items["AOI"] = m.AOI
	}
	if m.Month != "" {
		items["MONTH"] = m.Month
	}
	return items
}

// WriteGeoTIFF encodes every band of bundle as a Float32 band of a GeoTIFF at
// path, in bundle order, with the band name as description.
func WriteGeoTIFF(path string, bundle *raster.Bundle, meta Metadata) error {
	if bundle == nil || len(bundle.Bands) == 0 {
		return fmt.Errorf("nothing to export to %s", path)
	}
	grid := bundle.Grid
	for _, band := range bundle.Bands {
		if !band.FitsGrid(grid) {
			return fmt.Errorf("%w: band %s does not fit the %dx%d grid", raster.ErrShapeMismatch, band.Name, grid.Width, grid.Height)
		}
	}
	epsg := grid.EPSG
	if epsg == 0 {
		epsg = 4326
	}

	return utils.ExecuteWithMutexErr(func() error {
		utils.RegisterGDAL()
		ds, err := godal.Create(godal.GTiff, path, len(bundle.Bands), godal.Float32, grid.Width, grid.Height)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}

		if err := writeDataset(ds, bundle, epsg, meta); err != nil {
			ds.Close()
			return err
		}
		if err := ds.Close(); err != nil {
			return fmt.Errorf("failed to flush %s: %w", path, err)
		}
		return nil
	})
}

func writeDataset(ds *godal.Dataset, bundle *raster.Bundle, epsg int, meta Metadata) error {
	grid := bundle.Grid
	if err := ds.SetGeoTransform(grid.GeoTransform); err != nil {
		return fmt.Errorf("failed to set geotransform: %w", err)
	}
	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return fmt.Errorf("failed to create spatial reference EPSG:%d: %w", epsg, err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("failed to set spatial reference: %w", err)
	}
	for key, value := range meta.items() {
		if err := ds.SetMetadata(key, value); err != nil {
			return fmt.Errorf("failed to set metadata %s: %w", key, err)
		}
	}

	data := make([]float32, grid.Size())
	for i, band := range ds.Bands() {
		source := bundle.Bands[i]
		for p, v := range source.Values {
			if source.Valid[p] {
				data[p] = float32(v)
			} else {
				data[p] = NoDataValue
			}
		}
		if err := band.SetNoData(NoDataValue); err != nil {
			return fmt.Errorf("failed to set nodata on band %s: %w", source.Name, err)
		}
		if err := band.SetDescription(source.Name); err != nil {
			return fmt.Errorf("failed to set description on band %s: %w", source.Name, err)
		}
		if err := band.Write(0, 0, data, grid.Width, grid.Height); err != nil {
			return fmt.Errorf("failed to write band %s: %w", source.Name, err)
		}
	}
	return nil
}
