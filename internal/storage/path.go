package storage

import (
	"path/filepath"
	"strings"

	"github.com/prn-tf/mediaboard/internal/domain"
)

// PathConfig holds configuration for storage path generation.
type PathConfig struct {
	// BasePath is the root directory for the store. Canonical files live
	// under images/, thumbnails under thumbs/.
	BasePath string

	// ShardLevels is the number of directory levels for sharding.
	ShardLevels int

	// ShardWidth is the number of hex characters per shard level.
	ShardWidth int
}

// DefaultPathConfig returns the default path configuration:
// 2 levels of 2 characters, e.g. images/ab/cd/abcdef....
func DefaultPathConfig(basePath string) PathConfig {
	return PathConfig{
		BasePath:    basePath,
		ShardLevels: 2,
		ShardWidth:  2,
	}
}

// variantDir maps a variant to its subtree under the base path.
func variantDir(v domain.Variant) string {
	if v == domain.VariantThumb {
		return "thumbs"
	}
	return "images"
}

// ComputePath generates the storage path for a hash and variant.
//
// Example with default config:
//
//	hash: "abcdef1234..."
//	basePath: "/data"
//	canonical: "/data/images/ab/cd/abcdef1234..."
//	thumb:     "/data/thumbs/ab/cd/abcdef1234..."
func ComputePath(config PathConfig, hash string, variant domain.Variant) string {
	components := make([]string, 0, config.ShardLevels+3)
	components = append(components, config.BasePath, variantDir(variant))

	minLength := config.ShardLevels * config.ShardWidth
	if len(hash) >= minLength {
		offset := 0
		for i := 0; i < config.ShardLevels; i++ {
			components = append(components, hash[offset:offset+config.ShardWidth])
			offset += config.ShardWidth
		}
	}

	components = append(components, hash)
	return filepath.Join(components...)
}

// ShardKey returns the hash-prefixed object key used by flat keyspace
// backends (S3), e.g. "images/ab/cd/abcdef...". Always slash-separated.
func ShardKey(config PathConfig, hash string, variant domain.Variant) string {
	rel := ComputePath(PathConfig{
		BasePath:    "",
		ShardLevels: config.ShardLevels,
		ShardWidth:  config.ShardWidth,
	}, hash, variant)
	return strings.TrimPrefix(filepath.ToSlash(rel), "/")
}
