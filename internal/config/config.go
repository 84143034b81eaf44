// Package config loads s3sync command line settings.
//
// Configuration is loaded in the following order (later sources override
// earlier ones):
//  1. Default values, matching the library defaults
//  2. A configuration file (./s3sync.yaml, $HOME/.config/s3sync/s3sync.yaml,
//     or the file given explicitly)
//  3. A .env file, whose variables never replace ones already set
//  4. Environment variables prefixed with S3SYNC_
//  5. Values set on the Loader, usually from command line flags
//
// Environment variables use underscores for keys:
//   - S3SYNC_BUCKET=build-artifacts
//   - S3SYNC_CONCURRENT_UPLOADS=20
//   - S3SYNC_EXCLUDE=.git/,*.tmp
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync"
	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// EnvPrefix is the prefix of every environment variable read.
const EnvPrefix = "S3SYNC"

// Config holds everything needed to build an s3sync client.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`

	// Static credentials; the default AWS chain is used when empty
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`

	// Endpoint is a custom S3 endpoint (LocalStack, MinIO)
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`

	ConcurrentUploads   int   `mapstructure:"concurrent_uploads"`
	ConcurrentDownloads int   `mapstructure:"concurrent_downloads"`
	MaxRetries          int   `mapstructure:"max_retries"`
	MaxResumes          int   `mapstructure:"max_resumes"`
	MultipartThreshold  int64 `mapstructure:"multipart_threshold"`

	Force   bool     `mapstructure:"force"`
	Exclude []string `mapstructure:"exclude"`

	BucketWaitTimeout time.Duration `mapstructure:"bucket_wait_timeout"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is text or json
	LogFormat string `mapstructure:"log_format"`
}

// Loader reads configuration from files, the environment and overrides.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with the defaults set.
func NewLoader() *Loader {
	v := viper.New()
	v.SetDefault("bucket", "")
	v.SetDefault("region", "")
	v.SetDefault("access_key_id", "")
	v.SetDefault("secret_access_key", "")
	v.SetDefault("session_token", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("force_path_style", false)
	v.SetDefault("concurrent_uploads", s3types.DefaultConcurrentUploads)
	v.SetDefault("concurrent_downloads", s3types.DefaultConcurrentDownloads)
	v.SetDefault("max_retries", s3types.DefaultMaxRetries)
	v.SetDefault("max_resumes", s3types.DefaultMaxResumes)
	v.SetDefault("multipart_threshold", s3types.DefaultMultipartThreshold)
	v.SetDefault("force", true)
	v.SetDefault("exclude", []string{})
	v.SetDefault("bucket_wait_timeout", s3types.DefaultBucketWaitTimeout)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Set overrides a key regardless of other sources.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Load reads cfgFile, or the first s3sync.yaml found in the standard
// locations when it is empty, then envFile if it exists, and returns the
// validated configuration.
func (l *Loader) Load(cfgFile, envFile string) (*Config, error) {
	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
	} else {
		l.v.SetConfigName("s3sync")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("$HOME/.config/s3sync")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Exclude = splitList(cfg.Exclude)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the client relies on.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return s3errors.NewError("config", s3errors.ErrInvalidInput).WithMessage(fmt.Sprintf(format, args...))
	}
	switch {
	case c.ConcurrentUploads < 1:
		return invalid("concurrent_uploads must be at least 1, got %d", c.ConcurrentUploads)
	case c.ConcurrentDownloads < 1:
		return invalid("concurrent_downloads must be at least 1, got %d", c.ConcurrentDownloads)
	case c.MaxRetries < 1:
		return invalid("max_retries must be at least 1, got %d", c.MaxRetries)
	case c.MaxResumes < 0:
		return invalid("max_resumes cannot be negative, got %d", c.MaxResumes)
	case c.MultipartThreshold <= 0:
		return invalid("multipart_threshold must be positive, got %d", c.MultipartThreshold)
	case (c.AccessKeyID == "") != (c.SecretAccessKey == ""):
		return invalid("access_key_id and secret_access_key must be set together")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return invalid("%v", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ClientOptions converts the configuration into client options.
func (c *Config) ClientOptions(logger *slog.Logger, reg prometheus.Registerer) []s3types.Option {
	opts := []s3types.Option{
		s3sync.WithBucket(c.Bucket),
		s3sync.WithConcurrentUploads(c.ConcurrentUploads),
		s3sync.WithConcurrentDownloads(c.ConcurrentDownloads),
		s3sync.WithMaxRetries(c.MaxRetries),
		s3sync.WithMaxResumes(c.MaxResumes),
		s3sync.WithMultipartThreshold(c.MultipartThreshold),
		s3sync.WithForce(c.Force),
		s3sync.WithBucketWaitTimeout(c.BucketWaitTimeout),
		s3sync.WithLogger(logger),
	}
	if c.Region != "" {
		opts = append(opts, s3sync.WithRegion(c.Region))
	}
	if c.AccessKeyID != "" {
		opts = append(opts, s3sync.WithCredentials(c.AccessKeyID, c.SecretAccessKey, c.SessionToken))
	}
	if c.Endpoint != "" {
		opts = append(opts, s3sync.WithEndpoint(c.Endpoint))
	}
	if c.ForcePathStyle {
		opts = append(opts, s3sync.WithForcePathStyle(true))
	}
	if len(c.Exclude) > 0 {
		opts = append(opts, s3sync.WithExclude(c.Exclude...))
	}
	if reg != nil {
		opts = append(opts, s3sync.WithMetrics(reg))
	}
	return opts
}

// NewLogger builds the logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
	}
	return level, nil
}

// splitList flattens comma separated entries, as found in environment values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
