package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"github.com/icza/mjpeg"
)

// VideoWriter appends frames to an MJPEG AVI one at a time. All frames must
// share the size given to NewVideoWriter.
type VideoWriter struct {
	path   string
	bounds image.Rectangle
	writer mjpeg.AviWriter
	frames int
}

func NewVideoWriter(outputPath string, bounds image.Rectangle, fps int32) (*VideoWriter, error) {
	if !strings.HasSuffix(outputPath, ".avi") {
		outputPath += ".avi"
	}
	if fps <= 0 {
		fps = 2
	}
	writer, err := mjpeg.New(outputPath, int32(bounds.Dx()), int32(bounds.Dy()), fps)
	if err != nil {
		return nil, fmt.Errorf("failed to create video writer: %w", err)
	}
	return &VideoWriter{path: outputPath, bounds: bounds, writer: writer}, nil
}

func (v *VideoWriter) Path() string {
	return v.path
}

func (v *VideoWriter) AddFrame(frame image.Image) error {
	if frame.Bounds() != v.bounds {
		return fmt.Errorf("frame %d is %v, expected %v", v.frames, frame.Bounds(), v.bounds)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 100}); err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", v.frames, err)
	}
	if err := v.writer.AddFrame(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to add frame %d: %w", v.frames, err)
	}
	v.frames++
	return nil
}

// Close finishes the AVI index. It must be called even after a failed
// AddFrame to release the file.
func (v *VideoWriter) Close() error {
	if err := v.writer.Close(); err != nil {
		return fmt.Errorf("failed to finish video: %w", err)
	}
	return nil
}
