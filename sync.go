package s3sync

import (
	"context"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// Push uploads localDir to the client's bucket under prefix.
//
// Files larger than the multipart threshold are sent as multipart uploads.
// An interrupted multipart upload is resumed from its session without
// counting as a retry. When some files still fail, the whole directory is
// uploaded again, overwriting what exists, until MaxRetries passes have
// failed. Existing objects are overwritten on the first pass unless
// WithForce(false) was given.
//
// Parameters:
//   - localDir: the directory to upload
//   - prefix: key prefix for uploaded objects, may be empty
//   - progress: optional sink incremented once per uploaded file
//
// Returns:
//   - true when a pass completes with no failure
//   - false with a nil error when the transfer failed in a way that is not
//     retried; the cause is logged
//
// Errors:
//   - errors.ErrBucketUnavailable or errors.ErrInvalidBucketName when the
//     bucket cannot be ensured
//   - *errors.MaxRetriesError with the failures of the last pass
//   - the context error when ctx ends
//
// Example:
//
//	ok, err := client.Push(ctx, "./build", "artifacts/2024-06-01", s3types.ProgressFunc(func(n int) {
//	    bar.Add(n)
//	}))
func (c *Client) Push(
	ctx context.Context,
	localDir, prefix string,
	progress s3types.ProgressSink,
) (bool, error) {
	dir, err := c.localPath(localDir)
	if err != nil {
		return false, err
	}
	return c.syncer().Push(ctx, dir, prefix, progress)
}

// Pull downloads every object under prefix into localDir, creating the
// directory when needed. Local files are always overwritten. The prefix is
// stripped from each key to form its local path.
//
// The result maps each key to the local path written. Its ExitCode is
// ExitBucketUnavailable when the bucket could not be ensured and ExitFailure
// when the transfer failed; both come with a non-nil error. Downloads are not
// retried.
//
// Example:
//
//	res, err := client.Pull(ctx, "artifacts/2024-06-01/", "./restore", nil)
//	if err != nil {
//	    return err
//	}
//	for key, path := range res.Transferred {
//	    fmt.Println(key, "=>", path)
//	}
func (c *Client) Pull(
	ctx context.Context,
	prefix, localDir string,
	progress s3types.ProgressSink,
) (s3types.SyncResult, error) {
	dir, err := c.localPath(localDir)
	if err != nil {
		return s3types.SyncResult{
			ExitCode:    s3types.ExitFailure,
			Transferred: map[string]string{},
		}, err
	}
	return c.syncer().Pull(ctx, prefix, dir, progress)
}
