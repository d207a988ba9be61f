package composite

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrReductionTimeout marks a month that did not finish within MonthTimeout.
	ErrReductionTimeout = errors.New("month reduction timed out")
	// ErrResourceExhausted marks a month whose reduction exceeds MaxPixels.
	ErrResourceExhausted = errors.New("month reduction exceeds the pixel budget")
)

// classify maps a month failure onto the error kinds of a run. A deadline
// hit by the month context becomes ErrReductionTimeout; cancellation of the
// whole run is reported as is.
func classify(parent, month context.Context, ym YearMonth, err error) error {
	if errors.Is(err, ErrReductionTimeout) || errors.Is(err, ErrResourceExhausted) {
		return err
	}
	if parent.Err() != nil {
		return fmt.Errorf("%s: run cancelled: %w", ym, parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(month.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrReductionTimeout, ym, err)
	}
	return fmt.Errorf("%s: %w", ym, err)
}
