package service

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/metrics"
	"github.com/prn-tf/mediaboard/internal/mime"
)

// maxArchiveEntries bounds how many entries one archive may expand into.
const maxArchiveEntries = 1000

// ArchiveFile is the seekable handle an archive upload arrives as.
// Both *os.File and multipart spool files satisfy it.
type ArchiveFile interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// ArchiveService expands an uploaded archive into individual ingested
// records. Expansion is best-effort per entry: one bad entry skips, the
// rest of the archive still lands.
type ArchiveService struct {
	ingest  *IngestService
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewArchiveService creates a new ArchiveService.
func NewArchiveService(ingest *IngestService, m *metrics.Metrics, logger zerolog.Logger) *ArchiveService {
	return &ArchiveService{
		ingest:  ingest,
		metrics: m,
		logger:  logger.With().Str("service", "archive").Logger(),
	}
}

// ExpandInput contains the data needed to expand an archive.
type ExpandInput struct {
	// Src is the archive itself; Size its byte length.
	Src  ArchiveFile
	Size int64

	// Mime is the detected archive type (zip, tar or gzip).
	Mime string

	Uploader string
	Source   string

	// Tags is attached to every record the archive produces. Entries in
	// a subdirectory additionally get the top-level directory name as a
	// tag.
	Tags []string
}

// ExpandOutput summarizes an archive expansion.
type ExpandOutput struct {
	// Ingested holds the records created (or merged into).
	Ingested []*domain.Media

	// Duplicates counts entries whose bytes already had a record.
	Duplicates int

	// Skipped counts entries rejected by the type policy.
	Skipped int

	// Failed counts entries that errored for any other reason.
	Failed int
}

// Expand walks the archive and ingests each regular file entry.
func (s *ArchiveService) Expand(ctx context.Context, input ExpandInput) (*ExpandOutput, error) {
	out := &ExpandOutput{}

	var err error
	switch input.Mime {
	case mime.ZIP:
		err = s.expandZip(ctx, input, out)
	case mime.Tar:
		err = s.expandTar(ctx, input, out, false)
	case mime.Gzip:
		err = s.expandTar(ctx, input, out, true)
	default:
		return nil, ErrNotAnArchive
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("ingested", len(out.Ingested)).
		Int("duplicates", out.Duplicates).
		Int("skipped", out.Skipped).
		Int("failed", out.Failed).
		Str("uploader", input.Uploader).
		Msg("archive expanded")

	return out, nil
}

func (s *ArchiveService) expandZip(ctx context.Context, input ExpandInput, out *ExpandOutput) error {
	zr, err := zip.NewReader(input.Src, input.Size)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAnArchive, err)
	}

	entries := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if entries++; entries > maxArchiveEntries {
			s.logger.Warn().Int("limit", maxArchiveEntries).Msg("archive entry limit reached")
			break
		}

		rc, err := f.Open()
		if err != nil {
			s.logger.Warn().Err(err).Str("entry", f.Name).Msg("failed to open archive entry")
			out.Failed++
			continue
		}
		s.ingestEntry(ctx, rc, f.Name, input, out)
		rc.Close()
	}
	return nil
}

func (s *ArchiveService) expandTar(ctx context.Context, input ExpandInput, out *ExpandOutput, gzipped bool) error {
	if _, err := input.Src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	var r io.Reader = input.Src
	if gzipped {
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotAnArchive, err)
		}
		defer gzr.Close()
		r = gzr
	}

	tr := tar.NewReader(r)
	entries := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// An error on the very first header means this was never a
			// tarball to begin with.
			if entries == 0 {
				return fmt.Errorf("%w: %v", ErrNotAnArchive, err)
			}
			s.logger.Warn().Err(err).Msg("truncated archive, stopping expansion")
			return nil
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if entries++; entries > maxArchiveEntries {
			s.logger.Warn().Int("limit", maxArchiveEntries).Msg("archive entry limit reached")
			return nil
		}

		s.ingestEntry(ctx, tr, hdr.Name, input, out)
	}
}

// ingestEntry runs one archive entry through the ingestion pipeline and
// folds the outcome into the expansion summary.
func (s *ArchiveService) ingestEntry(ctx context.Context, r io.Reader, name string, input ExpandInput, out *ExpandOutput) {
	tags := append([]string(nil), input.Tags...)
	if dir := topLevelDir(name); dir != "" {
		tags = append(tags, dir)
	}

	result, err := s.ingest.Ingest(ctx, IngestInput{
		Body:     r,
		Filename: path.Base(name),
		Uploader: input.Uploader,
		Source:   input.Source,
		Tags:     tags,
	})

	switch {
	case err == nil && result.Created:
		out.Ingested = append(out.Ingested, result.Media)
		s.metrics.ArchiveEntries.WithLabelValues("ingested").Inc()
	case err == nil:
		// Merge collision policy folded the entry into an existing record.
		out.Ingested = append(out.Ingested, result.Media)
		out.Duplicates++
		s.metrics.ArchiveEntries.WithLabelValues("ingested").Inc()
	case errors.Is(err, domain.ErrDuplicateContent):
		out.Duplicates++
		s.metrics.ArchiveEntries.WithLabelValues("skipped").Inc()
	case errors.Is(err, domain.ErrUnsupportedType):
		out.Skipped++
		s.metrics.ArchiveEntries.WithLabelValues("skipped").Inc()
	default:
		s.logger.Warn().Err(err).Str("entry", name).Msg("failed to ingest archive entry")
		out.Failed++
		s.metrics.ArchiveEntries.WithLabelValues("skipped").Inc()
	}
}

// topLevelDir returns the first directory component of an entry path,
// or "" for a top-level entry.
func topLevelDir(name string) string {
	name = strings.TrimPrefix(path.Clean(name), "./")
	if idx := strings.IndexByte(name, '/'); idx > 0 {
		return name[:idx]
	}
	return ""
}
