package sentinel

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/forest-guardian/monthly-composites/internal/utils"
)

func openDataset(path string) (*godal.Dataset, error) {
	utils.RegisterGDAL()
	ds, err := godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return ds, nil
}

// warpToGrid resamples ds onto grid in memory.
func warpToGrid(ds *godal.Dataset, grid raster.Grid) (*godal.Dataset, error) {
	gt := grid.GeoTransform
	minX := gt[0]
	maxY := gt[3]
	maxX := minX + gt[1]*float64(grid.Width)
	minY := maxY + gt[5]*float64(grid.Height)

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	warped, err := ds.Warp("", []string{
		"-of", "MEM",
		"-t_srs", fmt.Sprintf("EPSG:%d", grid.EPSG),
		"-te", f(minX), f(minY), f(maxX), f(maxY),
		"-ts", strconv.Itoa(grid.Width), strconv.Itoa(grid.Height),
		"-r", "near",
		"-ot", "Float64",
		"-dstnodata", "nan",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to warp to AOI grid: %w", err)
	}
	return warped, nil
}

// readBands reads the first len(names) bands of ds. Pixels equal to the band
// nodata value or NaN are marked invalid.
func readBands(ds *godal.Dataset, names []string) (map[string]*raster.Band, error) {
	structure := ds.Structure()
	width, height := structure.SizeX, structure.SizeY
	bands := ds.Bands()
	if len(bands) < len(names) {
		return nil, fmt.Errorf("dataset has %d bands, expected at least %d", len(bands), len(names))
	}

	readBand := func(band godal.Band, name string) (*raster.Band, error) {
		data := make([]float64, width*height)
		if err := band.Read(0, 0, data, width, height); err != nil {
			return nil, fmt.Errorf("failed to read data for band %s: %w", name, err)
		}
		out, err := raster.FromValues(name, width, height, data)
		if err != nil {
			return nil, err
		}
		nodata, hasNoData := band.NoData()
		for i, v := range data {
			if math.IsNaN(v) || (hasNoData && v == nodata) {
				out.Valid[i] = false
			}
		}
		return out, nil
	}

	result := make(map[string]*raster.Band, len(names))
	for i, name := range names {
		band, err := readBand(bands[i], name)
		if err != nil {
			return nil, err
		}
		result[name] = band
	}
	return result, nil
}

// loadOnGrid opens a raster file, warps it onto grid and reads the named bands.
func loadOnGrid(path string, names []string, grid raster.Grid) (map[string]*raster.Band, error) {
	var bands map[string]*raster.Band
	err := utils.ExecuteWithMutexErr(func() error {
		ds, err := openDataset(path)
		if err != nil {
			return err
		}
		defer ds.Close()

		warped, err := warpToGrid(ds, grid)
		if err != nil {
			return err
		}
		defer warped.Close()

		bands, err = readBands(warped, names)
		return err
	})
	return bands, err
}

// decodeOnGrid decodes an in-memory GeoTIFF through a temporary file.
func decodeOnGrid(data []byte, names []string, grid raster.Grid) (map[string]*raster.Band, error) {
	tmp, err := os.CreateTemp("", "scene-*.tif")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return loadOnGrid(tmp.Name(), names, grid)
}
