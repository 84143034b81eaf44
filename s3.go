package s3sync

import (
	"context"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/batchcopy"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// EnsureBucket makes sure the client's bucket exists, creating it with a
// private ACL and waiting for it when it is missing.
//
// Errors:
//   - errors.ErrInvalidBucketName if no bucket is configured
//   - errors.ErrBucketUnavailable if the bucket still does not exist after creation
func (c *Client) EnsureBucket(ctx context.Context) error {
	return c.guard.Ensure(ctx, c.cfg.Bucket)
}

// BatchCopy copies every source key of mapping out of the client's bucket.
// A destination is a key in the same bucket or "targetBucket::key".
//
// Commands are dispatched in batches of up to concurrency+1; a batch that
// partially fails does not stop the next one. Items that failed are retried
// on their own at most twice.
//
// Returns:
//   - false with a nil error for an empty mapping
//   - true once every item has been copied
//
// Errors:
//   - *errors.MaxRetriesError listing the items still failing after the last retry
//   - errors.ErrInvalidInput for a concurrency below 1 or malformed destinations
//
// Example:
//
//	ok, err := client.BatchCopy(ctx, s3types.CopyMapping{
//	    {Source: "a.txt", Destination: "b.txt"},
//	    {Source: "c.txt", Destination: "archive::c.txt"},
//	}, 5, nil)
func (c *Client) BatchCopy(
	ctx context.Context,
	mapping s3types.CopyMapping,
	concurrency int,
	progress s3types.ProgressSink,
) (bool, error) {
	if len(mapping) > 0 && c.cfg.Bucket == "" {
		return false, errors.NewError("batchCopy", errors.ErrInvalidBucketName).
			WithMessage("bucket name is required")
	}

	engine := batchcopy.NewEngine(c.executor, c.cfg.Bucket,
		batchcopy.WithBackoff(c.newBackoff()),
		batchcopy.WithMetrics(c.metrics),
		batchcopy.WithLogger(c.logger))
	return engine.Copy(ctx, mapping, concurrency, progress)
}

// List returns the keys matching pattern in the client's bucket. A trailing
// wildcard is treated as a plain prefix and folder markers are left out.
func (c *Client) List(ctx context.Context, pattern string) ([]string, error) {
	return c.lister.List(ctx, c.cfg.Bucket, pattern)
}

// Objects returns the objects under prefix with their size and ETag,
// without folder markers.
func (c *Client) Objects(ctx context.Context, prefix string) ([]s3types.Object, error) {
	return c.lister.Objects(ctx, c.cfg.Bucket, prefix)
}
