package utils

import (
	"sync"

	"github.com/airbusgeo/godal"
)

var registerOnce sync.Once

// RegisterGDAL registers every GDAL driver once per process. It does not
// take the GDAL lock, so it is safe to call from inside ExecuteWithMutex.
func RegisterGDAL() {
	registerOnce.Do(godal.RegisterAll)
}
