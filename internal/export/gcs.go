package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/forest-guardian/monthly-composites/internal/geometry"
	"github.com/forest-guardian/monthly-composites/internal/raster"
)

// GCSSink uploads GeoTIFFs to a Google Cloud Storage bucket.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSSink(ctx context.Context, bucket, prefix string) (*GCSSink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket, prefix: prefix}, nil
}

func (g *GCSSink) Close() error {
	return g.client.Close()
}

func (g *GCSSink) objectPath(aoiID, name string) string {
	return path.Join(g.prefix, aoiID, name)
}

// Export encodes the bundle locally and streams the file to the bucket.
func (g *GCSSink) Export(ctx context.Context, bundle *raster.Bundle, name string, aoi *geometry.AOI, resolution float64) (string, error) {
	tmp, err := os.MkdirTemp("", "export-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	month := monthOf(name, aoi)
	local := filepath.Join(tmp, name)
	if err := WriteGeoTIFF(local, bundle, Metadata{AOI: aoi.ID(), Month: month, Resolution: resolution}); err != nil {
		return "", err
	}
	f, err := os.Open(local)
	if err != nil {
		return "", fmt.Errorf("failed to open encoded GeoTIFF: %w", err)
	}
	defer f.Close()

	objectPath := g.objectPath(aoi.ID(), name)
	writer := g.client.Bucket(g.bucket).Object(objectPath).NewWriter(ctx)
	writer.ContentType = "image/tiff"
	writer.Metadata = map[string]string{
		"aoi":               aoi.ID(),
		"month":             month,
		"resolution-meters": strconv.FormatFloat(resolution, 'f', -1, 64),
		"generated-at":      time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := io.Copy(writer, f); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write file to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize GCS file upload: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, objectPath), nil
}
