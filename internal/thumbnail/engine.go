// Package thumbnail derives preview images from canonical media files.
// Two engines are available, chosen by configuration at startup: a pure
// Go engine and one that shells out to ImageMagick. Both implement the
// same decode/resize/encode capability behind the Engine interface.
package thumbnail

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/mime"
)

// Fit mode names.
const (
	FitInside  = "fit"     // scale to fit inside the box, preserving aspect
	FitFill    = "fill"    // fill the box, cropping overflow
	FitStretch = "stretch" // exact box dimensions, ignoring aspect
)

// Engine names.
const (
	EngineImaging = "imaging"
	EngineMagick  = "magick"
)

// Config holds thumbnail generation settings.
type Config struct {
	// Engine selects the implementation: "imaging" or "magick".
	Engine string

	// Mime is the output format: image/jpeg or image/webp.
	// WEBP encoding requires the magick engine.
	Mime string

	// MaxWidth and MaxHeight bound the target box in CSS pixels.
	MaxWidth  int
	MaxHeight int

	// ScalePercent scales the box for high-DPI displays (150 = retina).
	ScalePercent int

	// Fit is the resize mode: fit, fill, or stretch.
	Fit string

	// Quality is the lossy encoder quality, 0-100.
	Quality int

	// AlphaColor is the background used when flattening transparency
	// into a format without an alpha channel, as "#rrggbb".
	AlphaColor string

	// MagickPath is the ImageMagick binary for the magick engine.
	MagickPath string
}

// Validate checks the engine/format combination and ranges.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineImaging, EngineMagick:
	default:
		return fmt.Errorf("thumbnail engine must be %q or %q", EngineImaging, EngineMagick)
	}
	switch c.Mime {
	case mime.JPEG, mime.WEBP:
	default:
		return fmt.Errorf("thumbnail mime must be %s or %s", mime.JPEG, mime.WEBP)
	}
	if c.Mime == mime.WEBP && c.Engine == EngineImaging {
		return fmt.Errorf("webp thumbnails require the magick engine")
	}
	switch c.Fit {
	case FitInside, FitFill, FitStretch:
	default:
		return fmt.Errorf("thumbnail fit must be fit, fill, or stretch")
	}
	if c.MaxWidth <= 0 || c.MaxHeight <= 0 {
		return fmt.Errorf("thumbnail dimensions must be positive")
	}
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("thumbnail quality must be 0-100")
	}
	if c.ScalePercent <= 0 {
		return fmt.Errorf("thumbnail scale percent must be positive")
	}
	if _, err := parseHexColor(c.AlphaColor); err != nil {
		return err
	}
	return nil
}

// Box returns the DPI-scaled bounding box in device pixels.
func (c Config) Box() (w, h int) {
	w = c.MaxWidth * c.ScalePercent / 100
	h = c.MaxHeight * c.ScalePercent / 100
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Engine produces thumbnails for a fixed configuration.
type Engine interface {
	// Generate decodes src, resizes it per the configuration, and
	// returns the encoded thumbnail bytes. An undecodable source
	// returns an error wrapping domain.ErrDecode; callers degrade to
	// RenderPlaceholder.
	Generate(ctx context.Context, src io.Reader, srcMime string) ([]byte, error)

	// RenderPlaceholder produces the generic "no preview" thumbnail
	// used for undecodable or non-raster sources.
	RenderPlaceholder(ctx context.Context) ([]byte, error)
}

// New selects and constructs the configured engine.
func New(cfg Config, logger zerolog.Logger) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Engine {
	case EngineMagick:
		return newMagickEngine(cfg, logger), nil
	default:
		return newImagingEngine(cfg, logger), nil
	}
}

// TargetSize computes the output pixel dimensions for a source of
// srcW x srcH under the configured box and fit mode. Fit never upscales;
// fill and stretch always produce the full box.
func TargetSize(srcW, srcH int, cfg Config) (w, h int) {
	boxW, boxH := cfg.Box()
	if cfg.Fit != FitInside {
		return boxW, boxH
	}
	if srcW <= 0 || srcH <= 0 {
		return boxW, boxH
	}

	ratio := float64(boxW) / float64(srcW)
	if r := float64(boxH) / float64(srcH); r < ratio {
		ratio = r
	}
	if ratio >= 1 {
		return srcW, srcH
	}

	w = int(float64(srcW) * ratio)
	h = int(float64(srcH) * ratio)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// parseHexColor parses "#rrggbb" (leading # optional).
func parseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("alpha color must be #rrggbb, got %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("alpha color must be #rrggbb, got %q", s)
	}
	return color.NRGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 0xff,
	}, nil
}
