// Package crypto provides content-hashing utilities for mediaboard.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// HashReader wraps an io.Reader and computes the SHA-256 content hash and
// byte count while reading, so ingestion hashes uploads in a single pass.
type HashReader struct {
	reader io.Reader
	sha256 hash.Hash
	size   int64
}

// NewHashReader creates a HashReader over r.
func NewHashReader(r io.Reader) *HashReader {
	return &HashReader{
		reader: r,
		sha256: sha256.New(),
	}
}

// Read implements io.Reader and updates the hash state.
func (h *HashReader) Read(p []byte) (n int, err error) {
	n, err = h.reader.Read(p)
	if n > 0 {
		h.sha256.Write(p[:n])
		h.size += int64(n)
	}
	return n, err
}

// Sum returns the hex-encoded SHA-256 hash of everything read so far.
func (h *HashReader) Sum() string {
	return hex.EncodeToString(h.sha256.Sum(nil))
}

// Size returns the total number of bytes read.
func (h *HashReader) Size() int64 {
	return h.size
}

// ComputeSHA256 computes the hex-encoded SHA-256 hash of a byte slice.
func ComputeSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ComputeStreamSHA256 computes the SHA-256 hash of a reader's content.
func ComputeStreamSHA256(r io.Reader) (string, int64, error) {
	h := sha256.New()
	size, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("failed to compute SHA-256: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// ValidateSHA256 reports whether a string is a valid SHA-256 hex hash.
func ValidateSHA256(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
