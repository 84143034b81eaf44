// Package testutil provides test helper functions.
package testutil

import (
	"context"
	"crypto/md5"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// APIError returns a smithy API error with the given code, as the SDK
// produces for S3 error responses.
func APIError(code, message string) error {
	return &smithy.GenericAPIError{
		Code:    code,
		Message: message,
	}
}

// GenerateRandomData generates random bytes of the specified size.
// This is useful for creating test data for uploads.
func GenerateRandomData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(rand.Intn(256))
	}
	return data
}

// GenerateTestBucketName generates a valid test bucket name.
// Bucket names must be DNS-compliant and globally unique.
func GenerateTestBucketName(prefix string) string {
	name := fmt.Sprintf("%s-%d-%d", prefix, time.Now().Unix(), rand.Int31n(10000))
	name = strings.ReplaceAll(strings.ToLower(name), "_", "-")
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// CalculateETag calculates the ETag S3 reports for a single-part upload of data.
func CalculateETag(data []byte) string {
	return fmt.Sprintf(`"%x"`, md5.Sum(data))
}

// ListPages returns a ListObjectsV2 implementation that serves each key
// slice as one page, chained by continuation tokens. Each object's size is
// the length of its key.
func ListPages(pages ...[]string) func(
	_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	return func(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
		index := 0
		if token := aws.ToString(params.ContinuationToken); token != "" {
			if _, err := fmt.Sscanf(token, "page-%d", &index); err != nil {
				return nil, APIError("InvalidArgument", "bad continuation token")
			}
		}

		out := &s3.ListObjectsV2Output{Name: params.Bucket, Prefix: params.Prefix}
		if index >= len(pages) {
			return out, nil
		}
		for _, key := range pages[index] {
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(key),
				Size:         aws.Int64(int64(len(key))),
				LastModified: aws.Time(time.Now()),
				ETag:         aws.String(CalculateETag([]byte(key))),
				StorageClass: types.ObjectStorageClassStandard,
			})
		}
		out.KeyCount = aws.Int32(int32(len(out.Contents)))
		if index+1 < len(pages) {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(fmt.Sprintf("page-%d", index+1))
		}
		return out, nil
	}
}
