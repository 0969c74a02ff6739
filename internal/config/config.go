// Package config provides configuration management for the mediaboard server.
// Configuration can be loaded from YAML files and environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Serve     ServeConfig     `mapstructure:"serve"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection settings.
// Supports both PostgreSQL and SQLite backends.
type DatabaseConfig struct {
	// Driver specifies the database driver: "sqlite" (default) or "postgres".
	Driver string `mapstructure:"driver"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// SQLite settings (used when Driver is "sqlite")
	Path            string `mapstructure:"path"`
	JournalMode     string `mapstructure:"journal_mode"`
	BusyTimeout     int    `mapstructure:"busy_timeout"`
	CacheSize       int    `mapstructure:"cache_size"`
	SynchronousMode string `mapstructure:"synchronous_mode"`
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// IsEmbedded returns true if using an embedded database (SQLite).
func (c DatabaseConfig) IsEmbedded() bool {
	return c.Driver == "sqlite"
}

// RedisConfig holds Redis connection settings. Redis is optional; when
// disabled, in-memory locks and caches are used instead.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds content store backend settings.
type StorageConfig struct {
	Backend string          `mapstructure:"backend"`
	DataDir string          `mapstructure:"data_dir"`
	TempDir string          `mapstructure:"temp_dir"`
	S3      S3StorageConfig `mapstructure:"s3"`
}

// S3StorageConfig holds S3 backend settings.
type S3StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// ThumbnailConfig holds thumbnail generation settings.
type ThumbnailConfig struct {
	// Engine selects the implementation: "imaging" (pure Go) or
	// "magick" (external ImageMagick binary).
	Engine string `mapstructure:"engine"`

	// Mime is the thumbnail output format: image/jpeg or image/webp.
	// All thumbnails share this format; it is not stored per record.
	Mime string `mapstructure:"mime"`

	// MaxWidth / MaxHeight bound the thumbnail box.
	MaxWidth  int `mapstructure:"max_width"`
	MaxHeight int `mapstructure:"max_height"`

	// ScalePercent scales the box for high-DPI displays.
	ScalePercent int `mapstructure:"scale_percent"`

	// Fit is the resize mode: fit, fill, or stretch.
	Fit string `mapstructure:"fit"`

	// Quality is the lossy encoder quality, 0-100.
	Quality int `mapstructure:"quality"`

	// AlphaColor is the flatten background for non-alpha output formats.
	AlphaColor string `mapstructure:"alpha_color"`

	// MagickPath is the ImageMagick binary for the magick engine.
	MagickPath string `mapstructure:"magick_path"`

	// Async generates thumbnails on a background goroutine instead of
	// inline with the ingesting request.
	Async bool `mapstructure:"async"`
}

// UploadConfig holds ingestion settings.
type UploadConfig struct {
	// MaxSize is the upload size cap in bytes.
	MaxSize int64 `mapstructure:"max_size"`

	// AllowedMimes is the ingestion allow-list. Empty accepts all.
	AllowedMimes []string `mapstructure:"allowed_mimes"`

	// CollisionPolicy is "error" (reject duplicate content, default) or
	// "merge" (attach the incoming tags to the existing record).
	CollisionPolicy string `mapstructure:"collision_policy"`
}

// Collision policy values.
const (
	CollisionError = "error"
	CollisionMerge = "merge"
)

// ServeConfig holds file-serving settings.
type ServeConfig struct {
	// ExpiresSeconds is the cache TTL advertised via the Expires header.
	// 0 disables expiry (a fixed far-future date is sent instead).
	ExpiresSeconds int `mapstructure:"expires_seconds"`

	// ImageLink / ThumbLink are templated link strings exposed to
	// collaborators ($id, $hash, $hash_ab, $hash_cd, $ext, ...).
	ImageLink string `mapstructure:"image_link"`
	ThumbLink string `mapstructure:"thumb_link"`
}

// AuthConfig holds authorization settings.
type AuthConfig struct {
	// AdminTokenHash is the bcrypt hash of the admin token required for
	// delete and replace operations. Empty disables those operations.
	AdminTokenHash string `mapstructure:"admin_token_hash"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SweepConfig holds orphan-file sweep settings.
type SweepConfig struct {
	// Enabled determines if the periodic sweep runs.
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often to run the sweep.
	Interval time.Duration `mapstructure:"interval"`

	// GracePeriod is how long an unreferenced file must sit before
	// removal, to avoid racing in-flight ingests.
	GracePeriod time.Duration `mapstructure:"grace_period"`

	// BatchSize is the maximum number of files to remove per run.
	BatchSize int `mapstructure:"batch_size"`

	// DryRun logs what would be deleted without deleting.
	DryRun bool `mapstructure:"dry_run"`
}

// Load reads configuration from the specified file and environment variables.
// Environment variables take precedence over file values and are prefixed
// with MEDIABOARD_ using _ as separator.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MEDIABOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/mediaboard")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is acceptable - use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8750)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mediaboard")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "mediaboard")
	v.SetDefault("database.ssl_mode", "prefer")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.path", "./data/mediaboard.db")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.busy_timeout", 5000)
	v.SetDefault("database.cache_size", -2000)
	v.SetDefault("database.synchronous_mode", "NORMAL")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.enabled", false)

	// Storage defaults
	v.SetDefault("storage.backend", "filesystem")
	v.SetDefault("storage.data_dir", "./data/media")
	v.SetDefault("storage.temp_dir", "./data/temp")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.use_path_style", false)

	// Thumbnail defaults
	v.SetDefault("thumbnail.engine", "imaging")
	v.SetDefault("thumbnail.mime", "image/jpeg")
	v.SetDefault("thumbnail.max_width", 192)
	v.SetDefault("thumbnail.max_height", 192)
	v.SetDefault("thumbnail.scale_percent", 100)
	v.SetDefault("thumbnail.fit", "fit")
	v.SetDefault("thumbnail.quality", 75)
	v.SetDefault("thumbnail.alpha_color", "#000000")
	v.SetDefault("thumbnail.magick_path", "convert")
	v.SetDefault("thumbnail.async", false)

	// Upload defaults
	v.SetDefault("upload.max_size", 64*1024*1024) // 64MB
	v.SetDefault("upload.allowed_mimes", []string{})
	v.SetDefault("upload.collision_policy", CollisionError)

	// Serve defaults
	v.SetDefault("serve.expires_seconds", 60*60*24*31) // one month
	v.SetDefault("serve.image_link", "/image/$id")
	v.SetDefault("serve.thumb_link", "/thumb/$id")

	// Auth defaults
	v.SetDefault("auth.admin_token_hash", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Sweep defaults
	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", 1*time.Hour)
	v.SetDefault("sweep.grace_period", 24*time.Hour)
	v.SetDefault("sweep.batch_size", 1000)
	v.SetDefault("sweep.dry_run", false)
}

// Validate checks the configuration for required values and valid ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	validDrivers := map[string]bool{"postgres": true, "sqlite": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be 'postgres' or 'sqlite'")
	}

	if c.Database.Driver == "postgres" {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required for postgres driver")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required for postgres driver")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database.database is required for postgres driver")
		}
	} else if c.Database.Path == "" {
		return fmt.Errorf("database.path is required for sqlite driver")
	}

	switch c.Storage.Backend {
	case "filesystem":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for filesystem backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 'filesystem' or 's3'")
	}

	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive")
	}
	switch c.Upload.CollisionPolicy {
	case CollisionError, CollisionMerge:
	default:
		return fmt.Errorf("upload.collision_policy must be 'error' or 'merge'")
	}

	if c.Serve.ExpiresSeconds < 0 {
		return fmt.Errorf("serve.expires_seconds must not be negative")
	}

	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error, fatal, panic")
	}

	return nil
}

// MustLoad loads configuration or panics on error.
// Useful for main function initialization.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
