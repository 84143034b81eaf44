// Package errors provides error types and handling for s3sync operations.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// Error represents an S3 operation error with context about the operation that failed.
// It wraps the underlying AWS SDK error with additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "ensureBucket", "batchCopy", "push")
	Op string

	// Bucket is the S3 bucket name (if applicable)
	Bucket string

	// Key is the S3 object key (if applicable)
	Key string

	// Err is the underlying error from the AWS SDK or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("s3sync.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("s3sync.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("s3sync.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3sync.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewBucketError creates a new Error with bucket context.
func NewBucketError(op, bucket string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Err:    err,
	}
}

// MaxRetriesError is returned when a retry ceiling is reached while failures
// remain. Failures holds every item that was still failing on the last pass.
type MaxRetriesError struct {
	Op       string
	Attempts int
	Failures []s3types.FailureRecord
}

// Error lists every remaining failure, one per line.
func (e *MaxRetriesError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "s3sync.%s: %v after %d attempt(s)", e.Op, ErrMaxRetriesExceeded, e.Attempts)
	for _, f := range e.Failures {
		b.WriteString("\n")
		if f.Bucket != "" {
			fmt.Fprintf(&b, "%s => %s/%s", f.Source, f.Bucket, f.Destination)
		} else {
			b.WriteString(f.Source)
		}
		if f.Message != "" {
			b.WriteString(": ")
			b.WriteString(f.Message)
		}
	}
	return b.String()
}

// Is reports ErrMaxRetriesExceeded.
func (e *MaxRetriesError) Is(target error) bool {
	return target == ErrMaxRetriesExceeded
}

// Sentinel errors for common failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrBucketNotFound indicates that the requested bucket does not exist
	ErrBucketNotFound = errors.New("s3sync: bucket not found")

	// ErrBucketUnavailable indicates that the bucket is still missing after creation
	ErrBucketUnavailable = errors.New("s3sync: bucket unavailable")

	// ErrAccessDenied indicates that access to the resource is denied
	ErrAccessDenied = errors.New("s3sync: access denied")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("s3sync: invalid input")

	// ErrInvalidBucketName indicates that the bucket name is invalid
	ErrInvalidBucketName = errors.New("s3sync: invalid bucket name")

	// ErrInvalidObjectKey indicates that the object key is invalid
	ErrInvalidObjectKey = errors.New("s3sync: invalid object key")

	// ErrMaxRetriesExceeded indicates that retries were exhausted
	ErrMaxRetriesExceeded = errors.New("s3sync: maximum retries exceeded")
)

// IsBucketNotFound checks if an error indicates that a bucket was not found.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsBucketUnavailable checks if an error indicates the bucket could not be ensured.
func IsBucketUnavailable(err error) bool {
	return errors.Is(err, ErrBucketUnavailable)
}

// IsAccessDenied checks if an error indicates access was denied.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalidInput checks if an error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidBucketName)
}

// IsMaxRetriesExceeded checks if an error reports exhausted retries.
func IsMaxRetriesExceeded(err error) bool {
	return errors.Is(err, ErrMaxRetriesExceeded)
}

// APIErrorCode returns the smithy error code carried by err, or "".
func APIErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// ConvertAWSError maps well-known AWS error codes onto sentinel errors.
func ConvertAWSError(op, bucket string, err error) error {
	if err == nil {
		return nil
	}
	switch APIErrorCode(err) {
	case "NotFound", "NoSuchBucket":
		return NewBucketError(op, bucket, fmt.Errorf("%w: %v", ErrBucketNotFound, err))
	case "AccessDenied", "Forbidden":
		return NewBucketError(op, bucket, fmt.Errorf("%w: %v", ErrAccessDenied, err))
	}
	return NewBucketError(op, bucket, err)
}
