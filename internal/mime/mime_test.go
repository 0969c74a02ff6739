package mime

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	mime, ext := Detect(pngBytes(t))
	require.Equal(t, PNG, mime)
	require.Equal(t, "png", ext)

	mime, ext = Detect([]byte("\xff\xd8\xff\xe0\x00\x10JFIF"))
	require.Equal(t, JPEG, mime)
	require.Equal(t, "jpg", ext)
}

func TestDetectFallback(t *testing.T) {
	mime, ext := Detect([]byte{0x00, 0x01, 0x02, 0x03})
	require.Equal(t, OctetStream, mime)
	require.Equal(t, "bin", ext)
}

func TestPolicy(t *testing.T) {
	p := NewPolicy([]string{"image/jpeg", "IMAGE/PNG", ""})
	require.True(t, p.Allows("image/jpeg"))
	require.True(t, p.Allows("image/png"))
	require.False(t, p.Allows("application/pdf"))

	// Empty allow-list accepts everything.
	require.True(t, NewPolicy(nil).Allows("video/webm"))
}

func TestClassifiers(t *testing.T) {
	require.True(t, IsImage(WEBP))
	require.False(t, IsImage(ZIP))
	require.True(t, IsArchive(ZIP))
	require.True(t, IsArchive(Gzip))
	require.False(t, IsArchive(PNG))
}
