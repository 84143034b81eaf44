// Package s3sync moves many objects at once between a local directory and
// an S3 bucket, and copies objects in bulk between buckets.
//
// It is built for large file sets (builds, backups, datasets) where single
// object calls must be batched, bounded in concurrency and tolerant of
// partial failure:
//   - BatchCopy copies a source-to-destination mapping in batches of
//     concurrency+1 commands, retrying only the failed items, twice at most
//   - Push uploads a directory, resuming interrupted multipart uploads and
//     retrying the whole directory when some files fail
//   - Pull downloads a key prefix and reports every file it wrote
//   - List returns the keys under a prefix without folder markers
//
// Every transfer first makes sure the bucket exists, creating it with a
// private ACL when it is missing.
//
// Example usage:
//
//	client, err := s3sync.New(
//	    s3sync.WithBucket("build-artifacts"),
//	    s3sync.WithRegion("eu-west-1"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	ok, err := client.Push(ctx, "./dist", "releases/v1.2.0", nil)
//	if err != nil {
//	    return err
//	}
//
//	// copy into another bucket with "bucket::key" destinations
//	mapping := s3types.NewCopyMapping(map[string]string{
//	    "releases/v1.2.0/app.tar.gz": "mirror-bucket::app/latest.tar.gz",
//	})
//	ok, err = client.BatchCopy(ctx, mapping, 10, nil)
package s3sync
