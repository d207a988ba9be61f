package utils

import (
	"sort"
	"time"
)

// SortByTime orders items by the timestamp returned by key. Items with equal
// timestamps keep their relative order.
func SortByTime[T any](items []T, key func(T) time.Time, asc bool) []T {
	sort.SliceStable(items, func(i, j int) bool {
		if asc {
			return key(items[i]).Before(key(items[j]))
		}
		return key(items[i]).After(key(items[j]))
	})
	return items
}
