package charts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forest-guardian/monthly-composites/internal/composite"
	"github.com/forest-guardian/monthly-composites/internal/indices"
	"github.com/sirupsen/logrus"
)

// Generator writes every chart of a run into one directory.
type Generator struct {
	outputDir string
	log       *logrus.Entry
}

func NewGenerator(outputDir string, log *logrus.Entry) *Generator {
	return &Generator{outputDir: outputDir, log: log}
}

func (g *Generator) write(name string, render func(io.Writer) error) (string, error) {
	path := filepath.Join(g.outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create chart file %s: %w", name, err)
	}
	if err := render(f); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close chart file %s: %w", name, err)
	}
	return path, nil
}

// Generate draws line and column charts plus a CSV series for every index,
// an HTML chart combining them and a histogram of the latest usable NDVI.
// Charts that lack data are skipped with a warning.
func (g *Generator) Generate(aoiID string, composites []composite.MonthlyComposite) ([]string, error) {
	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chart directory: %w", err)
	}

	var files []string
	keep := func(path string, err error) error {
		if errors.Is(err, ErrNotEnoughPoints) {
			g.log.WithError(err).Warn("Skipping chart")
			return nil
		}
		if err != nil {
			return err
		}
		files = append(files, path)
		return nil
	}

	series := make(map[string][]Point, len(indices.Names))
	for _, index := range indices.Names {
		points := Series(composites, index, MeanReducer)
		series[index] = points
		title := fmt.Sprintf("%s mean %s", aoiID, index)

		if err := keep(g.write(index+"_line.png", func(w io.Writer) error { return RenderLine(w, title, points) })); err != nil {
			return files, err
		}
		if err := keep(g.write(index+"_column.png", func(w io.Writer) error { return RenderColumn(w, title, points) })); err != nil {
			return files, err
		}
		if err := keep(g.write(index+"_series.csv", func(w io.Writer) error { return WriteCSV(w, points) })); err != nil {
			return files, err
		}
	}

	htmlTitle := fmt.Sprintf("%s vegetation indices", aoiID)
	if err := keep(g.write("indices.html", func(w io.Writer) error {
		return RenderHTML(w, htmlTitle, series, indices.Names)
	})); err != nil {
		return files, err
	}

	usable := composite.Usable(composites)
	if len(usable) > 0 {
		latest := usable[len(usable)-1]
		title := fmt.Sprintf("%s %s distribution %s", aoiID, indices.NDVI, latest.Label())
		if err := keep(g.write(indices.NDVI+"_histogram.png", func(w io.Writer) error {
			return RenderHistogram(w, title, latest.Band(indices.NDVI), DefaultHistogramBins)
		})); err != nil {
			return files, err
		}
	}

	g.log.WithField("files", len(files)).Info("Charts generated")
	return files, nil
}
