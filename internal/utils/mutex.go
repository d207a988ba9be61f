package utils

import "sync"

// GDAL datasets and the driver registry are not safe for concurrent use, so
// every godal call goes through this lock.
var gdalMu sync.Mutex

func ExecuteWithMutex(fn func()) {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	fn()
}

// ExecuteWithMutexErr is ExecuteWithMutex for functions that fail.
func ExecuteWithMutexErr(fn func() error) error {
	var err error
	ExecuteWithMutex(func() {
		err = fn()
	})
	return err
}
