package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testMedia() *Media {
	m := NewMedia(
		"ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12",
		"image/jpeg", "jpg", "holiday_photo.jpg", "alice", 2048,
	)
	m.ID = 42
	m.Posted = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	m.Tags = []string{"z", "a"}
	return m
}

func TestExpandLinkTemplate(t *testing.T) {
	m := testMedia()

	require.Equal(t, "/image/42", m.ExpandLinkTemplate("/image/$id"))
	require.Equal(t, "ab/12/"+m.Hash, m.ExpandLinkTemplate("$hash_ab/$hash_cd/$hash"))
	require.Equal(t, "holiday_photo.jpg", m.ExpandLinkTemplate("$filename.$ext"))
	require.Equal(t, "2025-03-14", m.ExpandLinkTemplate("$date"))
	require.Equal(t, "a\nb", m.ExpandLinkTemplate(`a\nb`))
}

func TestExpandLinkTemplateFilesize(t *testing.T) {
	m := testMedia()
	require.Equal(t, "2.0 kB", m.ExpandLinkTemplate("$filesize"))
}

func TestNiceFilename(t *testing.T) {
	m := testMedia()
	require.Equal(t, "42 - a z.jpg", m.NiceFilename())

	m.Tags = nil
	require.Equal(t, "42 - holiday_photo.jpg", m.NiceFilename())

	m.Filename = ""
	require.Equal(t, "42.jpg", m.NiceFilename())
}

func TestMergeTags(t *testing.T) {
	m := testMedia()

	added := m.MergeTags([]string{"a", "new", ""})
	require.Equal(t, 1, added)
	require.Equal(t, "a new z", m.TagList())

	require.Zero(t, m.MergeTags([]string{"a", "z"}))
}

func TestSourcePreservation(t *testing.T) {
	m := testMedia()
	require.Empty(t, m.GetSource())

	m.SetSource("http://example.com/orig")
	require.Equal(t, "http://example.com/orig", m.GetSource())

	m.SetSource("")
	require.Nil(t, m.Source)
}
