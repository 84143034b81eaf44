// Package bucket ensures a target bucket exists before any transfer runs.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// Waiter blocks until a bucket exists. *s3.BucketExistsWaiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, params *s3.HeadBucketInput, maxWaitDur time.Duration, optFns ...func(*s3.BucketExistsWaiterOptions)) error
}

// Guard checks for a bucket and creates it when it is missing.
type Guard struct {
	client      s3api.S3API
	waiter      Waiter
	region      string
	waitTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithRegion sets the region used for the bucket location constraint.
func WithRegion(region string) Option {
	return func(g *Guard) {
		g.region = region
	}
}

// WithWaitTimeout bounds how long Ensure waits for a created bucket.
func WithWaitTimeout(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.waitTimeout = d
		}
	}
}

// WithWaiter replaces the SDK bucket-exists waiter.
func WithWaiter(w Waiter) Option {
	return func(g *Guard) {
		g.waiter = w
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard creates a Guard over client.
func NewGuard(client s3api.S3API, opts ...Option) *Guard {
	g := &Guard{
		client:      client,
		region:      s3types.DefaultRegion,
		waitTimeout: s3types.DefaultBucketWaitTimeout,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.waiter == nil {
		g.waiter = s3.NewBucketExistsWaiter(client)
	}
	return g
}

// Ensure returns nil once bucket exists, creating it with a private ACL if
// needed. An empty or malformed name, and a bucket that is still missing
// after creation, are configuration errors and must not be retried.
func (g *Guard) Ensure(ctx context.Context, bucket string) error {
	if bucket == "" {
		return s3errors.NewError("ensureBucket", s3errors.ErrInvalidInput).
			WithMessage("unable to verify bucket: bucket name not set")
	}
	if err := validation.ValidateBucketName(bucket); err != nil {
		return err
	}

	exists, err := g.exists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	g.logger.InfoContext(ctx, "creating bucket", "bucket", bucket, "region", g.region)
	if err := g.create(ctx, bucket); err != nil {
		return err
	}

	if err := g.waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}, g.waitTimeout); err != nil {
		g.logger.WarnContext(ctx, "waiting for bucket failed", "bucket", bucket, "error", err)
	}

	exists, err = g.exists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		return s3errors.NewBucketError("ensureBucket", bucket, s3errors.ErrBucketUnavailable).
			WithMessage("unable to create bucket")
	}

	g.logger.InfoContext(ctx, "bucket created", "bucket", bucket)
	return nil
}

func (g *Guard) exists(ctx context.Context, bucket string) (bool, error) {
	_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return false, nil
	}
	switch s3errors.APIErrorCode(err) {
	case "NotFound", "NoSuchBucket":
		return false, nil
	}
	return false, s3errors.ConvertAWSError("ensureBucket", bucket, err)
}

func (g *Guard) create(ctx context.Context, bucket string) error {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
		ACL:    types.BucketCannedACL(s3types.ACLPrivate),
	}
	// us-east-1 rejects an explicit location constraint
	if g.region != "" && g.region != s3types.DefaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(g.region),
		}
	}

	_, err := g.client.CreateBucket(ctx, input)
	if err == nil {
		return nil
	}

	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) || s3errors.APIErrorCode(err) == "BucketAlreadyOwnedByYou" {
		return nil
	}
	return fmt.Errorf("failed to create bucket %s: %w", bucket, s3errors.ConvertAWSError("ensureBucket", bucket, err))
}
