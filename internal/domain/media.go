// Package domain contains the core business entities for mediaboard.
package domain

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Variant identifies which rendition of a media record is being addressed.
type Variant string

const (
	// VariantCanonical is the original uploaded file.
	VariantCanonical Variant = "canonical"

	// VariantThumb is the derived thumbnail.
	VariantThumb Variant = "thumb"
)

// Media represents one post: a single uploaded file plus its metadata.
// The raw bytes live in the content store, addressed by Hash; the record
// only carries references.
type Media struct {
	// ID is the stable integer identity, assigned on first persistence
	// and never reused. Replacement mutates the other fields of an
	// existing ID rather than creating a new record.
	ID int64 `json:"id"`

	// Hash is the SHA-256 content hash of the canonical file bytes.
	// Unique across all active records.
	Hash string `json:"hash"`

	// Size is the byte length of the canonical file.
	Size int64 `json:"size"`

	// Mime is the detected content type of the canonical file.
	// The thumbnail mime is a global setting, not stored per record.
	Mime string `json:"mime"`

	// Ext is the display extension derived from the detected mime.
	Ext string `json:"ext"`

	// Filename is the client-supplied name at upload time, kept for
	// display only.
	Filename string `json:"filename"`

	// Source is an optional provenance URL. Preserved across replacement
	// unless the caller supplies a new one.
	Source *string `json:"source,omitempty"`

	// Uploader is the name of the uploading user.
	Uploader string `json:"uploader"`

	// Tags is the flat tag set attached at ingestion. Indexing and search
	// belong to a collaborator; the core only persists and merges them.
	Tags []string `json:"tags,omitempty"`

	// Posted is the creation timestamp. Preserved across replacement so a
	// replaced post keeps its original chronology.
	Posted time.Time `json:"posted"`
}

// NewMedia creates a record for freshly ingested content.
func NewMedia(hash, mime, ext, filename, uploader string, size int64) *Media {
	return &Media{
		Hash:     hash,
		Size:     size,
		Mime:     mime,
		Ext:      ext,
		Filename: filename,
		Uploader: uploader,
		Posted:   time.Now().UTC(),
	}
}

// GetSource returns the provenance string, or "" when none was recorded.
func (m *Media) GetSource() string {
	if m.Source == nil {
		return ""
	}
	return *m.Source
}

// SetSource records a provenance string; empty clears it.
func (m *Media) SetSource(source string) {
	if source == "" {
		m.Source = nil
		return
	}
	m.Source = &source
}

// TagList returns the tags sorted and space-joined, matching the order
// they are displayed and filed under.
func (m *Media) TagList() string {
	tags := append([]string(nil), m.Tags...)
	sort.Strings(tags)
	return strings.Join(tags, " ")
}

// MergeTags adds any tags not already present. Returns the number of tags
// that were new. Tag comparison is exact; normalization is the uploader
// frontend's problem.
func (m *Media) MergeTags(tags []string) int {
	have := make(map[string]struct{}, len(m.Tags))
	for _, t := range m.Tags {
		have[t] = struct{}{}
	}
	added := 0
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := have[t]; ok {
			continue
		}
		have[t] = struct{}{}
		m.Tags = append(m.Tags, t)
		added++
	}
	return added
}

// NiceFilename returns a human-readable download name for the canonical
// file, used for the inline content-disposition hint.
func (m *Media) NiceFilename() string {
	base := m.TagList()
	if base == "" {
		base = baseName(m.Filename)
	}
	if base == "" {
		return fmt.Sprintf("%d.%s", m.ID, m.Ext)
	}
	return fmt.Sprintf("%d - %s.%s", m.ID, base, m.Ext)
}

// ExpandLinkTemplate substitutes record fields into a templated link
// string. Supported placeholders: $id, $hash, $hash_ab, $hash_cd,
// $filesize, $filename, $ext, $date, and the literal \n.
//
// $hash_ab and $hash_cd are the first and second hex byte-pairs of the
// hash, matching the content store's shard directories.
func (m *Media) ExpandLinkTemplate(tpl string) string {
	r := strings.NewReplacer(
		// $hash_ab / $hash_cd before $hash so the longer names win.
		"$hash_ab", safeSlice(m.Hash, 0, 2),
		"$hash_cd", safeSlice(m.Hash, 2, 4),
		"$hash", m.Hash,
		"$id", fmt.Sprintf("%d", m.ID),
		"$filesize", humanize.Bytes(uint64(m.Size)),
		"$filename", baseName(m.Filename),
		"$ext", m.Ext,
		"$date", m.Posted.Format("2006-01-02"),
		`\n`, "\n",
	)
	return r.Replace(tpl)
}

// baseName strips directories and the final extension from a filename.
func baseName(name string) string {
	name = filepath.Base(filepath.ToSlash(name))
	if name == "." || name == "/" {
		return ""
	}
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return name
}

func safeSlice(s string, from, to int) string {
	if len(s) < to {
		return s
	}
	return s[from:to]
}
