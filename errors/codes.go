package errors

import (
	"context"
	"errors"
)

// ErrorCode is a stable, string-based classification of an s3sync error.
type ErrorCode string

const (
	// CodeNotFound indicates the bucket or object does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeUnavailable indicates the bucket could not be created or verified.
	CodeUnavailable ErrorCode = "BUCKET_UNAVAILABLE"

	// CodeForbidden indicates the credentials lack permission.
	CodeForbidden ErrorCode = "FORBIDDEN"

	// CodeInvalidInput indicates a malformed bucket, key, path or option.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeRetriesExhausted indicates items still failed after the last retry.
	CodeRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"

	// CodeTimeout indicates a deadline was exceeded.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeCanceled indicates the operation was cancelled.
	CodeCanceled ErrorCode = "CANCELED"

	CodeUnknown ErrorCode = "UNKNOWN"
)

// Code classifies err. A nil error has no code.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case IsMaxRetriesExceeded(err):
		return CodeRetriesExhausted
	case IsBucketUnavailable(err):
		return CodeUnavailable
	case IsBucketNotFound(err):
		return CodeNotFound
	case IsAccessDenied(err):
		return CodeForbidden
	case IsInvalidInput(err), errors.Is(err, ErrInvalidObjectKey):
		return CodeInvalidInput
	}
	return CodeUnknown
}

// Retryable reports whether running the operation again may succeed.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeRetriesExhausted, CodeTimeout, CodeUnavailable, CodeUnknown:
		return true
	}
	return false
}
