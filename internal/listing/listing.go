// Package listing lists the object keys stored under a prefix.
package listing

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// maxPageSize is the largest page S3 returns.
const maxPageSize = 1000

// Lister pages through ListObjectsV2.
type Lister struct {
	client s3.ListObjectsV2APIClient
}

// New creates a new Lister.
func New(client s3.ListObjectsV2APIClient) *Lister {
	return &Lister{
		client: client,
	}
}

// IsFolderMarker reports whether key is a zero-byte directory placeholder.
func IsFolderMarker(key string) bool {
	return strings.HasSuffix(key, "/")
}

// NormalizePattern turns a wildcard pattern such as "logs/*" into the plain
// prefix "logs/".
func NormalizePattern(pattern string) string {
	return strings.ReplaceAll(pattern, "*", "")
}

// List returns every key matching pattern, in listing order. Folder markers
// are excluded.
func (l *Lister) List(ctx context.Context, bucket, pattern string) ([]string, error) {
	objects, err := l.Objects(ctx, bucket, NormalizePattern(pattern))
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}
	return keys, nil
}

// Objects returns every object under prefix, excluding folder markers.
func (l *Lister) Objects(ctx context.Context, bucket, prefix string) ([]s3types.Object, error) {
	if bucket == "" {
		return nil, s3errors.NewError("list", s3errors.ErrInvalidInput).
			WithMessage("bucket name cannot be empty")
	}

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(maxPageSize),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []s3types.Object
	paginator := s3.NewListObjectsV2Paginator(l.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s3errors.ConvertAWSError("list", bucket, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if IsFolderMarker(key) {
				continue
			}
			objects = append(objects, s3types.Object{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
			})
		}
	}

	return objects, nil
}
