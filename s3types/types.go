// Package s3types provides shared type definitions for the s3sync module.
package s3types

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// ObjectACL represents the access control list for S3 buckets and objects.
type ObjectACL string

// ACLPrivate grants access to the bucket owner only. Buckets are always
// created with it.
const ACLPrivate ObjectACL = "private"

// Default values used when an option is not supplied.
const (
	DefaultRegion              = "us-east-1"
	DefaultConcurrentUploads   = 10
	DefaultConcurrentDownloads = 10
	DefaultMaxRetries          = 3
	DefaultMaxResumes          = 3

	// DefaultMultipartThreshold is the size above which uploads are split
	// into multipart sessions.
	DefaultMultipartThreshold int64 = 7168000

	DefaultBucketWaitTimeout = 2 * time.Minute
)

// Object represents an S3 object with its basic metadata.
type Object struct {
	// Key is the S3 object key (path)
	Key string

	// Size is the object size in bytes
	Size int64

	// LastModified is when the object was last modified
	LastModified time.Time

	// ETag is the S3 entity tag for the object
	ETag string
}

// CopyPair is a single source key to destination entry of a CopyMapping.
// Destination is either a bare key or "targetBucket::key".
type CopyPair struct {
	Source      string
	Destination string
}

// CopyMapping is an ordered list of copy requests.
type CopyMapping []CopyPair

// NewCopyMapping builds a CopyMapping from a map, ordered by source key.
func NewCopyMapping(m map[string]string) CopyMapping {
	mapping := make(CopyMapping, 0, len(m))
	for src, dst := range m {
		mapping = append(mapping, CopyPair{Source: src, Destination: dst})
	}
	sort.Slice(mapping, func(i, j int) bool {
		return mapping[i].Source < mapping[j].Source
	})
	return mapping
}

// FailureRecord describes a copy request that failed during a pass.
type FailureRecord struct {
	// Source is the source key in the default bucket.
	Source string

	// Bucket and Destination identify the copy target.
	Bucket      string
	Destination string

	// Message is the underlying cause.
	Message string
}

// ExitCode is the result indicator of a download sync.
type ExitCode int

const (
	ExitSuccess           ExitCode = 0
	ExitBucketUnavailable ExitCode = 1

	// ExitFailure means the bucket was available but the transfer failed.
	ExitFailure ExitCode = 2
)

// SyncResult is returned by a download sync.
type SyncResult struct {
	ExitCode ExitCode

	// Transferred maps each remote key to the local path that was written.
	Transferred map[string]string
}

// SessionState holds what is needed to resume an interrupted multipart upload.
type SessionState struct {
	Bucket    string
	Key       string
	UploadID  string
	LocalPath string
	PartSize  int64
}

// ProgressSink receives transfer progress increments.
type ProgressSink interface {
	IncrementStep(n int)
}

// ProgressFunc adapts a function to a ProgressSink.
type ProgressFunc func(n int)

// IncrementStep calls f(n).
func (f ProgressFunc) IncrementStep(n int) {
	f(n)
}

// Credentials are static AWS credentials.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// ClientConfig holds configuration for the s3sync client.
type ClientConfig struct {
	// Bucket is the default bucket for every operation
	Bucket string

	// Region is the AWS region
	Region string

	// Credentials are optional static credentials; the default AWS
	// credential chain is used when unset
	Credentials *Credentials

	// Endpoint is a custom S3 endpoint (LocalStack, MinIO)
	Endpoint string

	// ForcePathStyle forces path-style addressing
	ForcePathStyle bool

	ConcurrentUploads   int
	ConcurrentDownloads int

	// MaxRetries bounds whole-directory upload retries
	MaxRetries int

	// MaxResumes bounds consecutive multipart resumes within one upload attempt
	MaxResumes int

	MultipartThreshold int64

	// Force overwrites existing objects on the initial upload attempt
	Force bool

	// Exclude lists patterns of local paths that are never uploaded
	Exclude []string

	BucketWaitTimeout time.Duration

	// Backoff creates the policy consulted between retry passes; each
	// operation gets its own
	Backoff func() backoff.BackOff

	Logger     *slog.Logger
	Filesystem billy.Filesystem
	Registerer prometheus.Registerer
	HTTPClient *http.Client

	// AWSConfig overrides config loading entirely when set
	AWSConfig *aws.Config
}

// Option is a functional option for configuring the client.
type Option func(*ClientConfig)
