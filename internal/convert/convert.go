// Package convert turns arbitrary images into 1 bpp frames: the image is
// flattened on white, fitted to the frame, dithered and drawn into the
// destination.
package convert

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/MaxHalford/halfgone"
	"github.com/disintegration/imaging"
)

// Dither selects how gray levels are reduced to black and white.
type Dither string

const (
	Threshold      Dither = "threshold"
	FloydSteinberg Dither = "floyd-steinberg"
)

// ParseDither maps a config value to a Dither.
func ParseDither(s string) (Dither, error) {
	switch d := Dither(s); d {
	case Threshold, FloydSteinberg:
		return d, nil
	case "":
		return Threshold, nil
	default:
		return "", fmt.Errorf("convert: unknown dither %q", s)
	}
}

// Gray flattens img on a white background and scales it to fit bounds,
// preserving the aspect ratio and centering it.
func Gray(img image.Image, bounds image.Rectangle) *image.Gray {
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, image.White, image.Point{}, draw.Src)

	src := img
	if sb := img.Bounds(); sb.Dx() != bounds.Dx() || sb.Dy() != bounds.Dy() {
		// Fit never upscales; smaller images end up centered.
		src = imaging.Fit(img, bounds.Dx(), bounds.Dy(), imaging.Lanczos)
	}
	sb := src.Bounds()
	off := image.Pt(
		bounds.Min.X+(bounds.Dx()-sb.Dx())/2,
		bounds.Min.Y+(bounds.Dy()-sb.Dy())/2,
	)
	draw.Draw(gray, sb.Sub(sb.Min).Add(off), src, sb.Min, draw.Over)
	return gray
}

// Apply reduces gray to pure black (0) and white (255).
func (d Dither) Apply(gray *image.Gray) *image.Gray {
	if d == FloydSteinberg {
		return halfgone.FloydSteinbergDitherer{}.Apply(gray)
	}
	return halfgone.ThresholdDitherer{Threshold: 127}.Apply(gray)
}

// Into renders img into dst: flatten, fit, dither and draw. dst is typically
// a frame.Buffer, whose color model inks every dark pixel.
func Into(dst draw.Image, img image.Image, d Dither) {
	b := dst.Bounds()
	bw := d.Apply(Gray(img, b))
	draw.Draw(dst, b, bw, b.Min, draw.Src)
}

// FileSource renders an image file.
type FileSource struct {
	Path   string
	Dither Dither
}

// Render implements display.Source.
func (s *FileSource) Render(ctx context.Context, dst draw.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := imaging.Open(s.Path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("convert: open %s: %w", s.Path, err)
	}
	Into(dst, img, s.Dither)
	return nil
}

func (s *FileSource) String() string {
	return "file:" + s.Path
}
