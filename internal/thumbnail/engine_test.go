package thumbnail

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/mime"
)

func testConfig() Config {
	return Config{
		Engine:       EngineImaging,
		Mime:         mime.JPEG,
		MaxWidth:     192,
		MaxHeight:    192,
		ScalePercent: 100,
		Fit:          FitInside,
		Quality:      75,
		AlphaColor:   "#000000",
	}
}

func TestTargetSizeFit(t *testing.T) {
	cfg := testConfig()

	// Landscape source scales to the width bound.
	w, h := TargetSize(1920, 1080, cfg)
	require.Equal(t, 192, w)
	require.Equal(t, 108, h)

	// Portrait source scales to the height bound.
	w, h = TargetSize(1080, 1920, cfg)
	require.Equal(t, 108, w)
	require.Equal(t, 192, h)

	// Fit never upscales.
	w, h = TargetSize(100, 50, cfg)
	require.Equal(t, 100, w)
	require.Equal(t, 50, h)
}

func TestTargetSizeScalePercent(t *testing.T) {
	cfg := testConfig()
	cfg.ScalePercent = 150

	w, h := TargetSize(1920, 1080, cfg)
	require.Equal(t, 288, w)
	require.Equal(t, 162, h)
}

func TestTargetSizeFillAndStretch(t *testing.T) {
	cfg := testConfig()
	cfg.Fit = FitFill
	w, h := TargetSize(1920, 1080, cfg)
	require.Equal(t, 192, w)
	require.Equal(t, 192, h)

	cfg.Fit = FitStretch
	w, h = TargetSize(10, 10, cfg)
	require.Equal(t, 192, w)
	require.Equal(t, 192, h)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Mime = mime.WEBP
	require.Error(t, bad.Validate(), "webp needs the magick engine")

	bad = cfg
	bad.Engine = "gd"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.AlphaColor = "red"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Quality = 150
	require.Error(t, bad.Validate())
}

func TestImagingGenerate(t *testing.T) {
	eng, err := New(testConfig(), zerolog.Nop())
	require.NoError(t, err)

	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, image.NewRGBA(image.Rect(0, 0, 800, 600))))

	out, err := eng.Generate(context.Background(), &src, mime.PNG)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 192, img.Bounds().Dx())
	require.Equal(t, 144, img.Bounds().Dy())
}

func TestImagingGenerateUndecodable(t *testing.T) {
	eng, err := New(testConfig(), zerolog.Nop())
	require.NoError(t, err)

	_, err = eng.Generate(context.Background(), bytes.NewReader([]byte("not an image")), mime.PNG)
	require.ErrorIs(t, err, domain.ErrDecode)
}

func TestRenderPlaceholder(t *testing.T) {
	eng, err := New(testConfig(), zerolog.Nop())
	require.NoError(t, err)

	out, err := eng.RenderPlaceholder(context.Background())
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 192, img.Bounds().Dx())
	require.Equal(t, 192, img.Bounds().Dy())
}
