package composite

import (
	"fmt"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/sentinel"
)

type YearMonth struct {
	Year  int
	Month time.Month
}

// Months lists every month from January of startYear to December of endYear.
func Months(startYear, endYear int) []YearMonth {
	if endYear < startYear {
		return nil
	}
	months := make([]YearMonth, 0, (endYear-startYear+1)*12)
	for year := startYear; year <= endYear; year++ {
		for month := time.January; month <= time.December; month++ {
			months = append(months, YearMonth{Year: year, Month: month})
		}
	}
	return months
}

// Timestamp is the first instant of the month in UTC.
func (ym YearMonth) Timestamp() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (ym YearMonth) Range() sentinel.DateRange {
	return sentinel.MonthRange(ym.Year, ym.Month)
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}
