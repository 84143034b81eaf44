// Package validation provides input validation for bucket names, object keys
// and local paths derived from object keys.
//
// Inputs are validated before any request is sent so that configuration
// mistakes fail fast instead of surfacing as opaque AWS errors.
package validation

import (
	"path"
	"strings"
	"unicode"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
)

// ValidateBucketName validates that a bucket name is DNS-compliant according to AWS S3 rules.
// Returns ErrInvalidBucketName (or ErrInvalidInput for an empty name) if the bucket name is invalid.
func ValidateBucketName(bucket string) error {
	invalid := func(msg string) error {
		return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
			WithBucket(bucket).
			WithMessage(msg)
	}

	if bucket == "" {
		return errors.NewError("validateBucketName", errors.ErrInvalidInput).
			WithMessage("bucket name cannot be empty")
	}
	if len(bucket) < 3 || len(bucket) > 63 {
		return invalid("bucket name must be between 3 and 63 characters long")
	}
	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return invalid("bucket name can only contain lowercase letters, numbers, dots, and hyphens")
		}
	}
	if !isAlnum(bucket[0]) || !isAlnum(bucket[len(bucket)-1]) {
		return invalid("bucket name must start and end with a letter or number")
	}
	if strings.Contains(bucket, "..") {
		return invalid("bucket name cannot contain two adjacent periods")
	}
	if isIPAddress(bucket) {
		return invalid("bucket name cannot be formatted as an IP address")
	}
	return nil
}

// ValidateObjectKey validates that an object key is usable as a copy or upload target.
func ValidateObjectKey(key string) error {
	if key == "" {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithMessage("object key cannot be empty")
	}

	// S3 supports keys up to 1024 bytes
	if len(key) > 1024 {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot exceed 1024 bytes")
	}

	if hasControlCharacters(key) {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot contain control characters")
	}

	return nil
}

// ValidateRelativePath checks that a path computed from an object key stays
// inside the directory it is joined to.
func ValidateRelativePath(rel string) error {
	if rel == "" {
		return errors.NewError("validateRelativePath", errors.ErrInvalidObjectKey).
			WithMessage("relative path cannot be empty")
	}

	cleaned := path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.HasPrefix(cleaned, "/") {
		return errors.NewError("validateRelativePath", errors.ErrInvalidObjectKey).
			WithKey(rel).
			WithMessage("path escapes the target directory")
	}

	// Windows drive letters
	if len(cleaned) >= 2 && cleaned[1] == ':' {
		return errors.NewError("validateRelativePath", errors.ErrInvalidObjectKey).
			WithKey(rel).
			WithMessage("path cannot be absolute")
	}

	return nil
}

func isValidBucketChar(char rune) bool {
	return (char >= '0' && char <= '9') || (char >= 'a' && char <= 'z') || char == '.' || char == '-'
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')
}

// isIPAddress checks if a string is formatted as a dotted-quad IP address
func isIPAddress(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return false
	}

	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		num := 0
		for _, char := range part {
			if char < '0' || char > '9' {
				return false
			}
			num = num*10 + int(char-'0')
		}
		if num > 255 {
			return false
		}
	}

	return true
}

func hasControlCharacters(key string) bool {
	for _, char := range key {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}
