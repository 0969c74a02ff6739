package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/mime"
)

// magickEngine shells out to ImageMagick. It is the only engine that can
// encode WEBP thumbnails.
type magickEngine struct {
	cfg    Config
	binary string
	logger zerolog.Logger
}

func newMagickEngine(cfg Config, logger zerolog.Logger) *magickEngine {
	binary := cfg.MagickPath
	if binary == "" {
		binary = "convert"
	}
	return &magickEngine{
		cfg:    cfg,
		binary: binary,
		logger: logger.With().Str("component", "thumb-magick").Logger(),
	}
}

// outputFormat maps the configured mime to ImageMagick's format prefix.
func (e *magickEngine) outputFormat() string {
	if e.cfg.Mime == mime.WEBP {
		return "webp"
	}
	return "jpeg"
}

// args builds the convert invocation for the configured fit mode.
// Input is stdin ("-"), output is the format-prefixed stdout.
func (e *magickEngine) args() []string {
	boxW, boxH := e.cfg.Box()
	geometry := fmt.Sprintf("%dx%d", boxW, boxH)

	args := []string{"-", "-auto-orient"}
	switch e.cfg.Fit {
	case FitFill:
		args = append(args,
			"-resize", geometry+"^",
			"-gravity", "center",
			"-extent", geometry,
		)
	case FitStretch:
		args = append(args, "-resize", geometry+"!")
	default:
		args = append(args, "-resize", geometry+">")
	}

	if e.cfg.Mime == mime.JPEG {
		args = append(args, "-background", e.cfg.AlphaColor, "-flatten")
	}

	args = append(args,
		"-quality", fmt.Sprintf("%d", e.cfg.Quality),
		e.outputFormat()+":-",
	)
	return args
}

// Generate pipes the source through ImageMagick. A non-zero exit is
// treated as a decode failure so ingestion can degrade to a placeholder.
func (e *magickEngine) Generate(ctx context.Context, src io.Reader, srcMime string) ([]byte, error) {
	var out, errBuf bytes.Buffer

	cmd := exec.CommandContext(ctx, e.binary, e.args()...)
	cmd.Stdin = src
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		e.logger.Debug().Err(err).Str("stderr", errBuf.String()).Msg("convert failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("%w: convert produced no output", domain.ErrDecode)
	}
	return out.Bytes(), nil
}

// RenderPlaceholder renders the flat placeholder in-process and pipes it
// through ImageMagick so the output format matches the configuration.
func (e *magickEngine) RenderPlaceholder(ctx context.Context) ([]byte, error) {
	bg, _ := parseHexColor(e.cfg.AlphaColor)
	w, h := e.cfg.Box()

	var src bytes.Buffer
	if err := imaging.Encode(&src, imaging.New(w, h, bg), imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to render placeholder: %w", err)
	}
	return e.Generate(ctx, &src, mime.PNG)
}

var _ Engine = (*magickEngine)(nil)
