package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	// Decoders beyond the stdlib set; webp in particular is not
	// registered by the imaging package itself.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/prn-tf/mediaboard/internal/domain"
)

// imagingEngine is the pure Go engine. It decodes whatever the image
// registry knows (jpeg, png, gif, webp, bmp, tiff) and encodes JPEG.
type imagingEngine struct {
	cfg    Config
	bg     color.NRGBA
	logger zerolog.Logger
}

func newImagingEngine(cfg Config, logger zerolog.Logger) *imagingEngine {
	bg, _ := parseHexColor(cfg.AlphaColor)
	return &imagingEngine{
		cfg:    cfg,
		bg:     bg,
		logger: logger.With().Str("component", "thumb-imaging").Logger(),
	}
}

// Generate decodes, resizes per the fit mode, flattens alpha over the
// configured background, and encodes JPEG.
func (e *imagingEngine) Generate(ctx context.Context, src io.Reader, srcMime string) ([]byte, error) {
	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	bounds := img.Bounds()
	w, h := TargetSize(bounds.Dx(), bounds.Dy(), e.cfg)

	var resized image.Image
	switch e.cfg.Fit {
	case FitFill:
		resized = imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
	case FitStretch:
		resized = imaging.Resize(img, w, h, imaging.Lanczos)
	default:
		resized = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	flat := e.flatten(resized)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(e.cfg.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderPlaceholder produces a flat box in the alpha-background color.
func (e *imagingEngine) RenderPlaceholder(ctx context.Context) ([]byte, error) {
	w, h := e.cfg.Box()
	img := imaging.New(w, h, e.bg)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(e.cfg.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten composes img over the background color. JPEG has no alpha
// channel, so transparency must be resolved before encoding.
func (e *imagingEngine) flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	out := image.NewNRGBA(bounds)
	draw.Draw(out, bounds, image.NewUniform(e.bg), image.Point{}, draw.Src)
	draw.Draw(out, bounds, img, bounds.Min, draw.Over)
	return out
}

var _ Engine = (*imagingEngine)(nil)
