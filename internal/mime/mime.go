// Package mime detects content types from raw bytes and enforces the
// configured upload allow-list. Detection is always content-based; the
// client-supplied filename and Content-Type header are never trusted.
package mime

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Common content types used across the ingestion pipeline.
const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	GIF  = "image/gif"
	WEBP = "image/webp"
	BMP  = "image/bmp"
	TIFF = "image/tiff"

	ZIP  = "application/zip"
	Tar  = "application/x-tar"
	Gzip = "application/gzip"

	OctetStream = "application/octet-stream"
)

// extOverrides maps detected mimes to preferred display extensions where
// mimetype's default (e.g. ".jpg" vs ".jpeg") needs pinning.
var extOverrides = map[string]string{
	JPEG: "jpg",
	TIFF: "tif",
}

// Detect sniffs the content type of data and returns the mime together
// with a display extension (no leading dot).
func Detect(data []byte) (mime string, ext string) {
	m := mimetype.Detect(data)
	mime = m.String()
	// mimetype appends parameters for some text types; the record stores
	// the bare type.
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	if ext, ok := extOverrides[mime]; ok {
		return mime, ext
	}
	ext = strings.TrimPrefix(m.Extension(), ".")
	if ext == "" {
		ext = "bin"
	}
	return mime, ext
}

// IsImage reports whether the mime is a raster type the thumbnail engines
// can attempt to decode.
func IsImage(mime string) bool {
	switch mime {
	case JPEG, PNG, GIF, WEBP, BMP, TIFF:
		return true
	}
	return false
}

// IsArchive reports whether the mime is a container the archive expander
// understands.
func IsArchive(mime string) bool {
	switch mime {
	case ZIP, Tar, Gzip:
		return true
	}
	return false
}

// Policy is the configured upload allow-list.
type Policy struct {
	allowed map[string]struct{}
}

// NewPolicy builds a policy from configured mime strings. An empty list
// means every detected type is accepted.
func NewPolicy(allowed []string) *Policy {
	p := &Policy{allowed: make(map[string]struct{}, len(allowed))}
	for _, m := range allowed {
		m = strings.TrimSpace(strings.ToLower(m))
		if m != "" {
			p.allowed[m] = struct{}{}
		}
	}
	return p
}

// Allows reports whether the detected mime may be ingested.
func (p *Policy) Allows(mime string) bool {
	if len(p.allowed) == 0 {
		return true
	}
	_, ok := p.allowed[strings.ToLower(mime)]
	return ok
}
