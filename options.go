// Package s3sync provides functional options for configuring the client.
// These options follow the functional options pattern for clean, composable configuration.
package s3sync

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// WithRegion sets the AWS region for S3 operations.
// If not specified, uses the region from the credential chain, or us-east-1.
func WithRegion(region string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Region = region
	}
}

// WithCredentials sets static credentials instead of the default AWS
// credential chain. sessionToken may be empty.
func WithCredentials(accessKeyID, secretAccessKey, sessionToken string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if accessKeyID == "" && secretAccessKey == "" {
			return
		}
		c.Credentials = &s3types.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
			SessionToken:    sessionToken,
		}
	}
}

// WithEndpoint sets a custom S3 endpoint URL.
// This is useful for S3-compatible services or local testing with LocalStack.
func WithEndpoint(endpoint string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithForcePathStyle forces the use of path-style URLs instead of virtual-hosted style.
// This is required for S3-compatible services that don't support virtual hosting.
// Default is false (uses virtual-hosted style).
func WithForcePathStyle(forcePathStyle bool) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithBucket sets the bucket every operation works on. For BatchCopy it is
// the source bucket and the default destination bucket.
func WithBucket(bucket string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Bucket = bucket
	}
}

// WithConcurrentUploads sets how many files Push uploads at once.
// Default is 10. Values below 1 are rejected by New.
func WithConcurrentUploads(n int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ConcurrentUploads = n
	}
}

// WithConcurrentDownloads sets how many objects Pull downloads at once.
// Default is 10. Values below 1 are rejected by New.
func WithConcurrentDownloads(n int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.ConcurrentDownloads = n
	}
}

// WithMaxRetries sets how many failed whole-directory passes Push allows.
// Default is 3.
func WithMaxRetries(maxRetries int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.MaxRetries = maxRetries
	}
}

// WithMaxResumes bounds consecutive multipart resumes within one upload
// pass. Default is 3; zero turns every interruption into a failed pass.
func WithMaxResumes(maxResumes int) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.MaxResumes = maxResumes
	}
}

// WithMultipartThreshold sets the file size above which uploads are split
// into multipart sessions. Default is 7168000 bytes.
func WithMultipartThreshold(threshold int64) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if threshold > 0 {
			c.MultipartThreshold = threshold
		}
	}
}

// WithForce controls whether the first upload pass overwrites objects that
// already exist. Retry passes always overwrite. Default is true.
func WithForce(force bool) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Force = force
	}
}

// WithExclude adds patterns of local paths, relative to the pushed
// directory, that are never uploaded. "dir/", "*.tmp" and "**" forms are
// supported.
func WithExclude(patterns ...string) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Exclude = append(c.Exclude, patterns...)
	}
}

// WithBackoff sets the factory of the policy consulted between retry
// passes. Each operation calls it once. Default is exponential backoff
// starting at 500ms.
func WithBackoff(newBackoff func() backoff.BackOff) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Backoff = newBackoff
	}
}

// WithLogger sets the structured logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Logger = logger
	}
}

// WithFilesystem sets the local filesystem used by Push and Pull.
// Default is the OS filesystem, with relative paths resolved against the
// working directory.
func WithFilesystem(filesystem billy.Filesystem) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithMetrics registers the client's Prometheus collectors with reg.
// Collectors already registered by another client are shared.
func WithMetrics(reg prometheus.Registerer) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.Registerer = reg
	}
}

// WithBucketWaitTimeout bounds how long EnsureBucket waits for a created
// bucket to appear. Default is 2 minutes.
func WithBucketWaitTimeout(timeout time.Duration) s3types.Option {
	return func(c *s3types.ClientConfig) {
		if timeout > 0 {
			c.BucketWaitTimeout = timeout
		}
	}
}

// WithHTTPClient sets a custom HTTP client for AWS requests.
func WithHTTPClient(client *http.Client) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.HTTPClient = client
	}
}

// WithAWSConfig allows providing a custom AWS configuration.
// This overrides the default configuration loading behavior.
// Use this when you need fine-grained control over AWS SDK configuration.
func WithAWSConfig(config *aws.Config) s3types.Option {
	return func(c *s3types.ClientConfig) {
		c.AWSConfig = config
	}
}
