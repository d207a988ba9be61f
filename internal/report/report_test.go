package report

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forest-guardian/monthly-composites/internal/composite"
	"github.com/forest-guardian/monthly-composites/internal/indices"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var grid = raster.Grid{Width: 2, Height: 1}

func okComposite(month time.Month, ndvi float64) composite.MonthlyComposite {
	ym := composite.YearMonth{Year: 2024, Month: month}
	c := composite.Placeholder(ym, grid)
	c.SceneCount = 3
	c.Contamination = 20
	c.IsNoData = false
	c.Status = composite.StatusOK
	for i, band := range c.Bands.Bands {
		if band.Name == indices.NDVI {
			c.Bands.Bands[i] = raster.Constant(indices.NDVI, 2, 1, ndvi, true)
		}
	}
	return c
}

func sampleComposites() []composite.MonthlyComposite {
	return []composite.MonthlyComposite{
		okComposite(time.January, 0.61),
		composite.Placeholder(composite.YearMonth{Year: 2024, Month: time.February}, grid),
		composite.Failed(composite.YearMonth{Year: 2024, Month: time.March}, grid, 2, fmt.Errorf("%w: 2024-03", composite.ErrReductionTimeout)),
	}
}

func TestBuildEnumeratesStatuses(t *testing.T) {
	s := Build("run-1", "plot-7", time.Now(), sampleComposites())

	assert.Equal(t, []string{"2024-01"}, s.Succeeded)
	assert.Equal(t, []string{"2024-02"}, s.Empty)
	assert.Equal(t, []string{"2024-03"}, s.Failed)
	assert.True(t, s.HasFailures())
	assert.Equal(t, 2024, s.StartYear)

	require.Len(t, s.Months, 3)
	assert.Equal(t, "0.6100", s.Months[0].MeanNDVI)
	assert.Equal(t, "", s.Months[1].MeanNDVI)
	assert.Contains(t, s.Months[2].Error, "timed out")
	assert.Equal(t, "AOI plot-7 2024-2024: 1 ok, 1 empty, 1 failed", s.Headline())
	assert.Contains(t, s.String(), "Failed 2024-03")
}

func TestWriteCSV(t *testing.T) {
	s := Build("run-1", "plot-7", time.Now(), sampleComposites())

	var buf bytes.Buffer
	require.NoError(t, s.WriteCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "month,status,scene_count,contamination,is_no_data,mean_ndvi,mean_evi,mean_savi,error", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "2024-02,empty,0,0,true"))
}

func TestSaveCSVCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "summary.csv")
	s := Build("run-1", "plot-7", time.Now(), sampleComposites())
	assert.NoError(t, s.SaveCSV(path))
}

func TestHistoryRecordAndQuery(t *testing.T) {
	history, err := OpenHistory(filepath.Join(t.TempDir(), "db", "history.db"))
	require.NoError(t, err)
	defer history.Close()

	ctx := context.Background()
	first := Build("run-1", "plot-7", time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), sampleComposites())
	second := Build("run-2", "plot-7", time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC), sampleComposites()[:2])
	require.NoError(t, history.Record(ctx, first))
	require.NoError(t, history.Record(ctx, second))

	runs, err := history.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, 1, runs[1].Failed)
	assert.Equal(t, 2024, runs[1].StartYear)

	months, err := history.Months(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, months, 3)
	assert.Equal(t, "failed", months[2].Status)
	assert.True(t, months[1].IsNoData)
	assert.Equal(t, 3, months[0].SceneCount)
}

func TestHistoryRejectsDuplicateRun(t *testing.T) {
	history, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()

	s := Build("run-1", "plot-7", time.Now(), sampleComposites())
	require.NoError(t, history.Record(context.Background(), s))
	assert.Error(t, history.Record(context.Background(), s))

	months, err := history.Months(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, months, 3, "the failed insert is rolled back")
}
