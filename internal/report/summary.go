package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/composite"
	"github.com/forest-guardian/monthly-composites/internal/indices"
	"github.com/gocarina/gocsv"
)

// MonthRow is one line of the run summary.
type MonthRow struct {
	Month         string  `csv:"month"`
	Status        string  `csv:"status"`
	SceneCount    int     `csv:"scene_count"`
	Contamination float64 `csv:"contamination"`
	IsNoData      bool    `csv:"is_no_data"`
	MeanNDVI      string  `csv:"mean_ndvi"`
	MeanEVI       string  `csv:"mean_evi"`
	MeanSAVI      string  `csv:"mean_savi"`
	Error         string  `csv:"error"`
}

// Summary enumerates which months of a run succeeded, were empty or failed.
type Summary struct {
	RunID      string
	AOI        string
	StartYear  int
	EndYear    int
	StartedAt  time.Time
	FinishedAt time.Time
	Months     []MonthRow
	Succeeded  []string
	Empty      []string
	Failed     []string
}

func formatMean(c composite.MonthlyComposite, index string) string {
	band := c.Band(index)
	if band == nil || !c.Usable() {
		return ""
	}
	mean, ok := band.Mean()
	if !ok {
		return ""
	}
	return strconv.FormatFloat(mean, 'f', 4, 64)
}

func Build(runID, aoiID string, startedAt time.Time, composites []composite.MonthlyComposite) Summary {
	s := Summary{
		RunID:      runID,
		AOI:        aoiID,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
	if len(composites) > 0 {
		s.StartYear = composites[0].Year
		s.EndYear = composites[len(composites)-1].Year
	}

	for _, c := range composites {
		row := MonthRow{
			Month:         c.Label(),
			Status:        string(c.Status),
			SceneCount:    c.SceneCount,
			Contamination: c.Contamination,
			IsNoData:      c.IsNoData,
			MeanNDVI:      formatMean(c, indices.NDVI),
			MeanEVI:       formatMean(c, indices.EVI),
			MeanSAVI:      formatMean(c, indices.SAVI),
		}
		if c.Err != nil {
			row.Error = c.Err.Error()
		}
		s.Months = append(s.Months, row)

		switch c.Status {
		case composite.StatusOK:
			s.Succeeded = append(s.Succeeded, row.Month)
		case composite.StatusEmpty:
			s.Empty = append(s.Empty, row.Month)
		case composite.StatusFailed:
			s.Failed = append(s.Failed, row.Month)
		}
	}
	return s
}

func (s Summary) HasFailures() bool {
	return len(s.Failed) > 0
}

func (s Summary) WriteCSV(w io.Writer) error {
	if err := gocsv.Marshal(&s.Months, w); err != nil {
		return fmt.Errorf("failed to write summary CSV: %w", err)
	}
	return nil
}

func (s Summary) SaveCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()
	return s.WriteCSV(file)
}

// Headline is a one line description used by notifications.
func (s Summary) Headline() string {
	return fmt.Sprintf("AOI %s %d-%d: %d ok, %d empty, %d failed",
		s.AOI, s.StartYear, s.EndYear, len(s.Succeeded), len(s.Empty), len(s.Failed))
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s\n", s.RunID)
	fmt.Fprintln(&b, s.Headline())
	if len(s.Empty) > 0 {
		fmt.Fprintf(&b, "Empty months: %s\n", strings.Join(s.Empty, ", "))
	}
	for _, row := range s.Months {
		if row.Status == string(composite.StatusFailed) {
			fmt.Fprintf(&b, "Failed %s: %s\n", row.Month, row.Error)
		}
	}
	return b.String()
}
