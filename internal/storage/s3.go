package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mediaboard/internal/domain"
	"github.com/prn-tf/mediaboard/internal/pkg/crypto"
)

// S3Options holds settings for the S3-compatible content store backend.
type S3Options struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool

	// TempDir is where uploads are spooled while their hash is computed.
	TempDir string
}

// S3Store is a ContentStore backed by an S3-compatible bucket. Content is
// spooled to a local temp file first because the object key is derived
// from the hash, which is only known after the full body has been read.
type S3Store struct {
	client  *s3.Client
	bucket  string
	paths   PathConfig
	tempDir string
	logger  zerolog.Logger
}

// NewS3Store creates an S3-backed content store.
func NewS3Store(ctx context.Context, opts S3Options, paths PathConfig, logger zerolog.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket name")
	}
	if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &S3Store{
		client:  client,
		bucket:  opts.Bucket,
		paths:   paths,
		tempDir: opts.TempDir,
		logger:  logger.With().Str("component", "s3-store").Logger(),
	}, nil
}

// Put spools the content to disk while hashing it, then uploads it under
// its hash-derived key. Re-uploading an existing key is harmless: the
// bytes are identical by construction.
func (s *S3Store) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	tmpPath := filepath.Join(s.tempDir, uuid.NewString())
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	hr := crypto.NewHashReader(r)
	if _, err := io.Copy(tmp, hr); err != nil {
		return "", 0, fmt.Errorf("failed to spool content: %w", err)
	}
	hash := hr.Sum()
	key := s.PathFor(hash, domain.VariantCanonical)

	if ok, err := s.Exists(ctx, hash, domain.VariantCanonical); err == nil && ok {
		return hash, hr.Size(), nil
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", 0, fmt.Errorf("failed to rewind temp file: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          tmp,
		ContentLength: aws.Int64(hr.Size()),
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload content: %w", err)
	}

	s.logger.Debug().Str("hash", hash).Int64("size", hr.Size()).Msg("stored content")
	return hash, hr.Size(), nil
}

// PutThumb uploads the thumbnail slot for a hash, overwriting any
// previous thumbnail object.
func (s *S3Store) PutThumb(ctx context.Context, hash string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read thumbnail: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.PathFor(hash, domain.VariantThumb)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload thumbnail: %w", err)
	}
	return nil
}

// Open fetches the requested variant.
func (s *S3Store) Open(ctx context.Context, hash string, variant domain.Variant) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.PathFor(hash, variant)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch content: %w", err)
	}
	return out.Body, nil
}

// Stat heads the object for size and mtime.
func (s *S3Store) Stat(ctx context.Context, hash string, variant domain.Variant) (*Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.PathFor(hash, variant)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to head content: %w", err)
	}
	info := &Info{}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	return info, nil
}

// PathFor returns the hash-sharded object key for a variant.
func (s *S3Store) PathFor(hash string, variant domain.Variant) string {
	return ShardKey(s.paths, hash, variant)
}

// Remove deletes both variants. S3 DeleteObject is a no-op for missing
// keys, which gives us retry-safety for free.
func (s *S3Store) Remove(ctx context.Context, hash string) error {
	for _, variant := range []domain.Variant{domain.VariantCanonical, domain.VariantThumb} {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.PathFor(hash, variant)),
		})
		if err != nil {
			return fmt.Errorf("failed to remove %s object: %w", variant, err)
		}
	}
	return nil
}

// Exists heads the object for the requested variant.
func (s *S3Store) Exists(ctx context.Context, hash string, variant domain.Variant) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.PathFor(hash, variant)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head content: %w", err)
	}
	return true, nil
}

// Walk pages through the canonical keyspace.
func (s *S3Store) Walk(ctx context.Context, fn func(hash string) error) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String("images/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list content: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			hash := path.Base(*obj.Key)
			if !crypto.ValidateSHA256(hash) {
				continue
			}
			if err := fn(hash); err != nil {
				return err
			}
		}
	}
	return nil
}

// isNoSuchKey reports whether err is a missing-object error.
func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

// Ensure S3Store implements ContentStore.
var _ ContentStore = (*S3Store)(nil)
