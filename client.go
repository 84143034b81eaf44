package s3sync

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/batchcopy"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/bucket"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/dirsync"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/listing"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// Client runs bulk transfers against one bucket.
//
// The S3 client, bucket guard and settings are fixed at construction, so a
// Client is safe for concurrent use.
type Client struct {
	// s3Client is the underlying AWS SDK S3 client
	s3Client s3api.S3API

	cfg s3types.ClientConfig

	// fs is the local filesystem; osFS marks the default OS filesystem,
	// whose paths are made absolute before use
	fs   billy.Filesystem
	osFS bool

	guard    *bucket.Guard
	lister   *listing.Lister
	executor batchcopy.Executor
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Client with the provided options. AWS configuration is
// loaded from the default credential chain unless static credentials or a
// complete aws.Config are supplied.
//
// Example:
//
//	client, err := s3sync.New(
//	    s3sync.WithBucket("my-bucket"),
//	    s3sync.WithRegion("us-west-2"),
//	    s3sync.WithConcurrentUploads(20),
//	)
func New(opts ...s3types.Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(cfg)
	if err != nil {
		return nil, errors.NewError("client initialization", err)
	}
	if cfg.Region == "" {
		cfg.Region = awsCfg.Region
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newClient(s3Client, cfg), nil
}

// NewWithClient creates a Client over a custom S3API implementation.
// This is primarily used for testing with mocked clients.
func NewWithClient(s3Client s3api.S3API, opts ...s3types.Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return newClient(s3Client, cfg), nil
}

func defaultConfig() s3types.ClientConfig {
	return s3types.ClientConfig{
		ConcurrentUploads:   s3types.DefaultConcurrentUploads,
		ConcurrentDownloads: s3types.DefaultConcurrentDownloads,
		MaxRetries:          s3types.DefaultMaxRetries,
		MaxResumes:          s3types.DefaultMaxResumes,
		MultipartThreshold:  s3types.DefaultMultipartThreshold,
		Force:               true,
		BucketWaitTimeout:   s3types.DefaultBucketWaitTimeout,
	}
}

func validateConfig(cfg s3types.ClientConfig) error {
	invalid := func(msg string) error {
		return errors.NewError("client initialization", errors.ErrInvalidInput).WithMessage(msg)
	}
	switch {
	case cfg.ConcurrentUploads < 1:
		return invalid("upload concurrency must be at least 1")
	case cfg.ConcurrentDownloads < 1:
		return invalid("download concurrency must be at least 1")
	case cfg.MaxRetries < 1:
		return invalid("max retries must be at least 1")
	case cfg.MaxResumes < 0:
		return invalid("max resumes cannot be negative")
	case cfg.MultipartThreshold <= 0:
		return invalid("multipart threshold must be positive")
	}
	return nil
}

func loadAWSConfig(cfg s3types.ClientConfig) (aws.Config, error) {
	if cfg.AWSConfig != nil {
		awsCfg := cfg.AWSConfig.Copy()
		if cfg.Region != "" {
			awsCfg.Region = cfg.Region
		}
		return awsCfg, nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if c := cfg.Credentials; c != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}
	if cfg.HTTPClient != nil {
		loadOpts = append(loadOpts, config.WithHTTPClient(cfg.HTTPClient))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return aws.Config{}, err
	}
	if awsCfg.Region == "" {
		awsCfg.Region = s3types.DefaultRegion
	}
	return awsCfg, nil
}

func newClient(s3Client s3api.S3API, cfg s3types.ClientConfig) *Client {
	if cfg.Region == "" && cfg.AWSConfig != nil {
		cfg.Region = cfg.AWSConfig.Region
	}
	if cfg.Region == "" {
		cfg.Region = s3types.DefaultRegion
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		s3Client: s3Client,
		cfg:      cfg,
		fs:       cfg.Filesystem,
		metrics:  metrics.New(cfg.Registerer),
		logger:   logger,
	}
	if c.fs == nil {
		c.fs = osfs.New("/")
		c.osFS = true
	}

	c.guard = bucket.NewGuard(s3Client,
		bucket.WithRegion(cfg.Region),
		bucket.WithWaitTimeout(cfg.BucketWaitTimeout),
		bucket.WithLogger(logger))
	c.lister = listing.New(s3Client)
	c.executor = batchcopy.NewClientExecutor(s3Client, 0)
	return c
}

// Bucket returns the bucket every operation works on.
func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

// newBackoff returns a fresh retry policy for one operation.
func (c *Client) newBackoff() backoff.BackOff {
	if c.cfg.Backoff != nil {
		return retry.OrDefault(c.cfg.Backoff())
	}
	return retry.DefaultBackOff()
}

// localPath resolves a caller supplied path for the client's filesystem.
func (c *Client) localPath(path string) (string, error) {
	if !c.osFS {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.NewError("resolvePath", err).WithKey(path)
	}
	return abs, nil
}

func (c *Client) syncer() *dirsync.Syncer {
	maxResumes := c.cfg.MaxResumes
	if maxResumes == 0 {
		maxResumes = -1
	}
	return dirsync.New(c.s3Client, c.guard, c.fs, dirsync.Config{
		Bucket:              c.cfg.Bucket,
		ConcurrentUploads:   c.cfg.ConcurrentUploads,
		ConcurrentDownloads: c.cfg.ConcurrentDownloads,
		MaxRetries:          c.cfg.MaxRetries,
		MaxResumes:          maxResumes,
		MultipartThreshold:  c.cfg.MultipartThreshold,
		Force:               c.cfg.Force,
		Exclude:             c.cfg.Exclude,
	},
		dirsync.WithBackoff(c.newBackoff()),
		dirsync.WithMetrics(c.metrics),
		dirsync.WithLogger(c.logger))
}
