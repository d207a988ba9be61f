package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/raster"
	"github.com/forest-guardian/monthly-composites/internal/report"
)

var (
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgBlue)
	bannerColor  = color.New(color.FgCyan)
)

// Output is where every printer writes. Tests swap it for a buffer.
var Output io.Writer = os.Stdout

// PrintBanner displays the application banner
func PrintBanner() {
	bannerColor.Fprintln(Output, figure.NewFigure("Composites", "isometric1", true).String())
	fmt.Fprintln(Output)
}

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	warningColor.Fprintln(Output, "\nWarning:")
	warningColor.Fprintln(Output, message)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	errorColor.Fprintf(Output, "\nError: %s\n", message)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(message string) {
	successColor.Fprintf(Output, "\n%s\n", message)
}

// PrintInfo displays an info message with consistent formatting
func PrintInfo(message string) {
	infoColor.Fprint(Output, message)
}

// PrintSummary lists every month of a run, colored by status.
func PrintSummary(s report.Summary) {
	infoColor.Fprintf(Output, "\nRun %s\n", s.RunID)
	for _, row := range s.Months {
		line := fmt.Sprintf("%s  %-6s scenes=%-3d contamination=%6.2f%%", row.Month, row.Status, row.SceneCount, row.Contamination)
		if row.MeanNDVI != "" {
			line += fmt.Sprintf("  ndvi=%s", row.MeanNDVI)
		}
		switch row.Status {
		case "ok":
			successColor.Fprintln(Output, line)
		case "empty":
			warningColor.Fprintln(Output, line)
		default:
			errorColor.Fprintf(Output, "%s  %s\n", line, row.Error)
		}
	}

	switch {
	case s.HasFailures():
		PrintError(s.Headline())
	case len(s.Succeeded) == 0:
		PrintWarning(s.Headline())
	default:
		PrintSuccess(s.Headline())
	}
}

// PrintAOI describes the area of interest and the grid it is sampled on.
func PrintAOI(aoi *geometry.AOI, grid raster.Grid, resolution float64) {
	bound := aoi.Bound()
	lat, lon := aoi.Centroid()
	lines := []string{
		fmt.Sprintf("AOI:        %s", aoi.ID()),
		fmt.Sprintf("Bound:      [%.6f, %.6f] - [%.6f, %.6f]", bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]),
		fmt.Sprintf("Centroid:   %.6f, %.6f", lon, lat),
		fmt.Sprintf("Area:       %.2f ha", aoi.AreaSquareMeters()/10000),
		fmt.Sprintf("Grid:       %dx%d pixels at %.0f m", grid.Width, grid.Height, resolution),
	}
	successColor.Fprintln(Output, strings.Join(lines, "\n"))
}
