package output

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"

	"github.com/forest-guardian/monthly-composites/internal/composite"
	"github.com/sirupsen/logrus"
)

// AnimationOptions controls how the monthly sequence is animated.
type AnimationOptions struct {
	Band  string
	Scale int
	// FPS is the frame rate of both outputs.
	FPS int
}

func DefaultAnimationOptions() AnimationOptions {
	return AnimationOptions{Band: DefaultBand, Scale: 8, FPS: 2}
}

// appendGIFFrame quantizes frame onto the Plan9 palette and adds it to anim.
// delay is in hundredths of a second.
func appendGIFFrame(anim *gif.GIF, frame image.Image, delay int) {
	paletted := image.NewPaletted(frame.Bounds(), palette.Plan9)
	draw.Draw(paletted, paletted.Rect, frame, frame.Bounds().Min, draw.Src)
	anim.Image = append(anim.Image, paletted)
	anim.Delay = append(anim.Delay, delay)
}

// CreateAnimation writes <name>.gif and <name>.avi into dir from the usable
// composites and returns both paths. Frames are rendered one at a time: the
// AVI receives each frame as it is drawn and the GIF keeps only its
// paletted copy.
func CreateAnimation(dir, name string, composites []composite.MonthlyComposite, opts AnimationOptions, log *logrus.Entry) ([]string, error) {
	if opts.FPS <= 0 {
		opts.FPS = 2
	}
	if len(composite.Usable(composites)) == 0 {
		return nil, ErrNoFrames
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create animation directory: %w", err)
	}

	anim := &gif.GIF{LoopCount: 0}
	var video *VideoWriter
	err := EachFrame(composites, opts.Band, opts.Scale, func(_ composite.MonthlyComposite, frame *image.RGBA) error {
		if video == nil {
			var err error
			video, err = NewVideoWriter(filepath.Join(dir, name+".avi"), frame.Bounds(), int32(opts.FPS))
			if err != nil {
				return err
			}
		}
		if err := video.AddFrame(frame); err != nil {
			return err
		}
		appendGIFFrame(anim, frame, 100/opts.FPS)
		return nil
	})
	if video != nil {
		if closeErr := video.Close(); err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return nil, err
	}

	gifPath := filepath.Join(dir, name+".gif")
	f, err := os.Create(gifPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create GIF file: %w", err)
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to encode GIF: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GIF file: %w", err)
	}

	log.WithFields(logrus.Fields{"frames": len(anim.Image), "gif": gifPath, "avi": video.Path()}).Info("Animation created")
	return []string{gifPath, video.Path()}, nil
}
