package batchcopy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cenkalti/backoff/v5"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// MaxRetryAttempts is the attempt number at which remaining failures become fatal.
const MaxRetryAttempts = 2

// Engine copies objects out of a source bucket in bounded batches.
type Engine struct {
	executor     Executor
	sourceBucket string
	backoff      backoff.BackOff
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithBackoff sets the policy used between retry passes.
func WithBackoff(b backoff.BackOff) Option {
	return func(e *Engine) {
		if b != nil {
			e.backoff = b
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine copying from sourceBucket, which is also the
// target bucket for destinations without a "bucket::" prefix.
func NewEngine(executor Executor, sourceBucket string, opts ...Option) *Engine {
	e := &Engine{
		executor:     executor,
		sourceBucket: sourceBucket,
		backoff:      retry.DefaultBackOff(),
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Copy runs mapping in batches of up to concurrency+1 commands. Failed items
// are retried on their own, up to MaxRetryAttempts extra passes; after that
// a *s3errors.MaxRetriesError lists what still fails. An empty mapping
// returns false with no error. A malformed pair rejects the whole mapping
// before any copy is sent.
func (e *Engine) Copy(
	ctx context.Context,
	mapping s3types.CopyMapping,
	concurrency int,
	progress s3types.ProgressSink,
) (bool, error) {
	if len(mapping) == 0 {
		return false, nil
	}
	if concurrency < 1 {
		return false, s3errors.NewError("batchCopy", s3errors.ErrInvalidInput).
			WithMessage("concurrency must be at least 1")
	}
	if err := e.validate(mapping); err != nil {
		return false, err
	}

	e.backoff.Reset()
	pending := mapping

	for attempt := 0; ; attempt++ {
		failures, err := e.pass(ctx, pending, concurrency, progress)
		if err != nil {
			return false, err
		}

		if len(failures) == 0 {
			e.logger.DebugContext(ctx, "completed copy", "files", len(pending), "attempt", attempt)
			return true, nil
		}

		e.logger.InfoContext(ctx, "copy pass finished with failures",
			"succeeded", len(pending)-len(failures),
			"total", len(pending),
			"attempt", attempt)
		e.logger.DebugContext(ctx, "failed files", "files", failedList(failures))

		if attempt >= MaxRetryAttempts {
			return false, &s3errors.MaxRetriesError{
				Op:       "batchCopy",
				Attempts: attempt + 1,
				Failures: failures,
			}
		}

		more, err := retry.Wait(ctx, e.backoff)
		if err != nil {
			return false, err
		}
		if !more {
			return false, &s3errors.MaxRetriesError{
				Op:       "batchCopy",
				Attempts: attempt + 1,
				Failures: failures,
			}
		}

		e.metrics.Retry("batchCopy")
		e.logger.WarnContext(ctx, "retrying failed copies", "count", len(failures), "attempt", attempt+1)
		pending = e.retryMapping(failures)
	}
}

// pass dispatches every batch of mapping once and returns the failures of
// all batches. Only a cancelled context aborts the pass.
func (e *Engine) pass(
	ctx context.Context,
	mapping s3types.CopyMapping,
	concurrency int,
	progress s3types.ProgressSink,
) ([]s3types.FailureRecord, error) {
	var failures []s3types.FailureRecord
	total := BatchCount(len(mapping), concurrency)
	num := 0

	e.logger.DebugContext(ctx, "starting copy", "files", len(mapping))

	dispatch := func(batch Batch) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		num++
		e.logger.DebugContext(ctx, "copy file batch", "batch", num, "of", total, "size", len(batch))

		failed, err := e.dispatch(ctx, batch)
		if err != nil {
			return err
		}
		failures = append(failures, failed...)

		succeeded := len(batch) - len(failed)
		e.metrics.BatchDispatched(succeeded, len(failed))
		if progress != nil && succeeded > 0 {
			progress.IncrementStep(succeeded)
		}
		e.logger.DebugContext(ctx, "copy batch complete", "batch", num, "of", total, "failed", len(failed))
		return nil
	}

	batch := make(Batch, 0, concurrency+1)
	for _, pair := range mapping {
		cmd := NewCommand(pair.Source, pair.Destination, e.sourceBucket)
		e.logger.DebugContext(ctx, "preparing copy command",
			"source", pair.Source, "bucket", cmd.Bucket, "key", cmd.Key)
		batch = append(batch, cmd)

		if len(batch) > concurrency {
			if err := dispatch(batch); err != nil {
				return nil, err
			}
			batch = make(Batch, 0, concurrency+1)
		}
	}
	if len(batch) > 0 {
		if err := dispatch(batch); err != nil {
			return nil, err
		}
	}

	return failures, nil
}

// dispatch executes one batch and converts a batch error into failure
// records. Any other executor error fails the whole batch.
func (e *Engine) dispatch(ctx context.Context, batch Batch) ([]s3types.FailureRecord, error) {
	err := e.executor.Execute(ctx, batch)
	if err == nil {
		return nil, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		e.logger.ErrorContext(ctx, "copy batch failed", "error", err)
		failures := make([]s3types.FailureRecord, len(batch))
		for i, cmd := range batch {
			failures[i] = e.record(cmd, err)
		}
		return failures, nil
	}

	failures := make([]s3types.FailureRecord, len(batchErr.Failures))
	for i, f := range batchErr.Failures {
		e.logger.ErrorContext(ctx, "copy failed",
			"source", f.Command.CopySource,
			"bucket", f.Command.Bucket,
			"key", f.Command.Key,
			"error", f.Err)
		failures[i] = e.record(f.Command, f.Err)
	}
	return failures, nil
}

func (e *Engine) record(cmd Command, err error) s3types.FailureRecord {
	return s3types.FailureRecord{
		Source:      cmd.SourceKey(e.sourceBucket),
		Bucket:      cmd.Bucket,
		Destination: cmd.Key,
		Message:     err.Error(),
	}
}

// retryMapping rebuilds a mapping from failure records, keeping the target
// bucket of cross-bucket copies.
func (e *Engine) retryMapping(failures []s3types.FailureRecord) s3types.CopyMapping {
	mapping := make(s3types.CopyMapping, len(failures))
	for i, f := range failures {
		mapping[i] = s3types.CopyPair{
			Source:      f.Source,
			Destination: FormatDestination(f.Bucket, f.Destination, e.sourceBucket),
		}
	}
	return mapping
}

func (e *Engine) validate(mapping s3types.CopyMapping) error {
	if err := validation.ValidateBucketName(e.sourceBucket); err != nil {
		return err
	}
	for _, pair := range mapping {
		if err := validation.ValidateObjectKey(pair.Source); err != nil {
			return err
		}
		bucket, key := ParseDestination(pair.Destination, e.sourceBucket)
		if bucket != e.sourceBucket {
			if err := validation.ValidateBucketName(bucket); err != nil {
				return err
			}
		}
		if err := validation.ValidateObjectKey(key); err != nil {
			return fmt.Errorf("destination for %s: %w", pair.Source, err)
		}
	}
	return nil
}

// BatchCount is the number of batches Copy dispatches for n items.
func BatchCount(n, concurrency int) int {
	if n <= 0 {
		return 0
	}
	size := concurrency + 1
	return (n + size - 1) / size
}

func failedList(failures []s3types.FailureRecord) string {
	lines := make([]string, len(failures))
	for i, f := range failures {
		lines[i] = f.Source
	}
	return strings.Join(lines, "\n")
}
