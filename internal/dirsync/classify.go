package dirsync

import (
	"errors"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// Classify maps the error of a transfer attempt onto an outcome. Failures
// are attributed to bucket.
func Classify(err error, bucket string) s3types.Outcome {
	if err == nil {
		return s3types.Success{}
	}

	var maxErr *s3errors.MaxRetriesError
	if errors.As(err, &maxErr) {
		return s3types.MaxRetriesExceeded{Items: maxErr.Failures}
	}
	if s3errors.IsBucketUnavailable(err) {
		return s3types.BucketUnavailable{Bucket: bucket, Err: err}
	}
	if terr, ok := transfer.AsError(err); ok {
		if terr.Resumable() {
			return s3types.ResumableInterruption{Sessions: terr.Sessions()}
		}
		return s3types.PartialFailure{Items: terr.Records(bucket)}
	}
	return s3types.UnclassifiedError{Message: err.Error()}
}
