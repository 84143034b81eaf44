package batchcopy

import (
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DestinationDelimiter separates a target bucket from the key in a destination.
const DestinationDelimiter = "::"

// ParseDestination splits "bucket::key" on the first delimiter. Without a
// delimiter the key targets defaultBucket.
func ParseDestination(destination, defaultBucket string) (bucket, key string) {
	if b, k, ok := strings.Cut(destination, DestinationDelimiter); ok {
		return b, k
	}
	return defaultBucket, destination
}

// FormatDestination is the inverse of ParseDestination.
func FormatDestination(bucket, key, defaultBucket string) string {
	if bucket == defaultBucket {
		return key
	}
	return bucket + DestinationDelimiter + key
}

// Command is a single CopyObject request.
type Command struct {
	// Bucket and Key are the copy target
	Bucket string
	Key    string

	// CopySource is "<sourceBucket>/<sourceKey>"
	CopySource string
}

// NewCommand builds the copy command for one mapping entry. Sources always
// live in sourceBucket.
func NewCommand(source, destination, sourceBucket string) Command {
	bucket, key := ParseDestination(destination, sourceBucket)
	return Command{
		Bucket:     bucket,
		Key:        key,
		CopySource: sourceBucket + "/" + source,
	}
}

// SourceKey strips the "<sourceBucket>/" prefix from the copy source.
func (c Command) SourceKey(sourceBucket string) string {
	return strings.TrimPrefix(c.CopySource, sourceBucket+"/")
}

// Input returns the SDK request for the command. Each path segment of the
// copy source is URL-encoded as S3 requires.
func (c Command) Input() *s3.CopyObjectInput {
	segments := strings.Split(c.CopySource, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return &s3.CopyObjectInput{
		Bucket:     aws.String(c.Bucket),
		Key:        aws.String(c.Key),
		CopySource: aws.String(strings.Join(segments, "/")),
	}
}

// Batch is a group of commands dispatched together.
type Batch []Command
