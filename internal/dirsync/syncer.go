package dirsync

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-git/go-billy/v5"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/scanner"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/transfer/download"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/transfer/upload"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// BucketEnsurer makes sure a bucket exists before a transfer.
type BucketEnsurer interface {
	Ensure(ctx context.Context, bucket string) error
}

// UploadJob is one directory upload.
type UploadJob interface {
	Transfer(ctx context.Context) error
	ResumeFrom(ctx context.Context, sessions ...s3types.SessionState) error
	Abort(ctx context.Context, sessions ...s3types.SessionState)
}

// DownloadJob is one prefix download.
type DownloadJob interface {
	Transfer(ctx context.Context) error
}

// UploadFactory builds the job of one upload attempt.
type UploadFactory func(cfg upload.Config) UploadJob

// DownloadFactory builds a download job.
type DownloadFactory func(cfg download.Config) DownloadJob

// Config holds the transfer settings of a Syncer.
type Config struct {
	Bucket              string
	ConcurrentUploads   int
	ConcurrentDownloads int

	// MaxRetries bounds the number of failed whole-directory upload passes.
	MaxRetries int

	// MaxResumes bounds consecutive multipart resumes within one pass.
	// Zero means the default; a negative value disables resuming.
	MaxResumes int

	MultipartThreshold int64

	// Force overwrites existing objects on the first pass. Retries always
	// overwrite.
	Force bool

	Exclude []string
}

// Syncer runs directory uploads and downloads against one bucket.
type Syncer struct {
	guard       BucketEnsurer
	fs          billy.Filesystem
	scanner     *scanner.Scanner
	cfg         Config
	newUpload   UploadFactory
	newDownload DownloadFactory
	backoff     backoff.BackOff
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithBackoff sets the policy used between upload retry passes.
func WithBackoff(b backoff.BackOff) Option {
	return func(s *Syncer) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Syncer) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithUploadFactory replaces how upload jobs are built.
func WithUploadFactory(f UploadFactory) Option {
	return func(s *Syncer) {
		s.newUpload = f
	}
}

// WithDownloadFactory replaces how download jobs are built.
func WithDownloadFactory(f DownloadFactory) Option {
	return func(s *Syncer) {
		s.newDownload = f
	}
}

// New creates a Syncer. Unset limits fall back to the package defaults.
func New(client s3api.S3API, guard BucketEnsurer, fs billy.Filesystem, cfg Config, opts ...Option) *Syncer {
	if cfg.ConcurrentUploads < 1 {
		cfg.ConcurrentUploads = s3types.DefaultConcurrentUploads
	}
	if cfg.ConcurrentDownloads < 1 {
		cfg.ConcurrentDownloads = s3types.DefaultConcurrentDownloads
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = s3types.DefaultMaxRetries
	}
	if cfg.MaxResumes == 0 {
		cfg.MaxResumes = s3types.DefaultMaxResumes
	}
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = s3types.DefaultMultipartThreshold
	}

	s := &Syncer{
		guard:   guard,
		fs:      fs,
		scanner: scanner.New(fs),
		cfg:     cfg,
		backoff: retry.DefaultBackOff(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.newUpload == nil {
		s.newUpload = func(cfg upload.Config) UploadJob {
			return upload.New(client, fs, s.scanner, cfg,
				upload.WithLogger(s.logger),
				upload.WithMetrics(s.metrics))
		}
	}
	if s.newDownload == nil {
		s.newDownload = func(cfg download.Config) DownloadJob {
			return download.New(client, fs, cfg,
				download.WithLogger(s.logger),
				download.WithMetrics(s.metrics))
		}
	}
	return s
}

// Push uploads localDir under prefix. It returns true once a pass leaves no
// unresolved failure, and false with a *s3errors.MaxRetriesError when
// MaxRetries passes have failed. Errors that carry no retry semantics are
// logged and reported as false with a nil error.
func (s *Syncer) Push(
	ctx context.Context,
	localDir, prefix string,
	progress s3types.ProgressSink,
) (bool, error) {
	if err := s.guard.Ensure(ctx, s.cfg.Bucket); err != nil {
		s.logger.ErrorContext(ctx, "bucket unavailable", "bucket", s.cfg.Bucket, "error", err)
		return false, err
	}

	s.backoff.Reset()

	for attempt := 0; ; {
		s.scanner.Reset()
		job := s.newUpload(upload.Config{
			Bucket:             s.cfg.Bucket,
			LocalDir:           localDir,
			Prefix:             prefix,
			Concurrency:        s.cfg.ConcurrentUploads,
			MultipartThreshold: s.cfg.MultipartThreshold,
			Force:              s.cfg.Force || attempt > 0,
			Exclude:            s.cfg.Exclude,
			OnComplete: func(string, string) {
				if progress != nil {
					progress.IncrementStep(1)
				}
			},
		})

		err := s.resume(ctx, job, job.Transfer(ctx))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}

		var failed []s3types.FailureRecord
		switch o := Classify(err, s.cfg.Bucket).(type) {
		case s3types.Success:
			s.logger.InfoContext(ctx, "uploaded directory", "dir", localDir, "prefix", prefix, "attempt", attempt)
			return true, nil

		case s3types.ResumableInterruption:
			s.logger.WarnContext(ctx, "giving up on interrupted uploads",
				"sessions", len(o.Sessions),
				"resumes", s.cfg.MaxResumes)
			job.Abort(ctx, o.Sessions...)
			if terr, ok := transfer.AsError(err); ok {
				failed = terr.Records(s.cfg.Bucket)
			}

		case s3types.PartialFailure:
			if terr, ok := transfer.AsError(err); ok {
				job.Abort(ctx, terr.Sessions()...)
			}
			failed = o.Items

		case s3types.UnclassifiedError:
			s.logger.ErrorContext(ctx, "upload failed", "dir", localDir, "error", o.Message)
			return false, nil

		case s3types.BucketUnavailable, s3types.MaxRetriesExceeded:
			return false, err
		}

		for _, f := range failed {
			s.logger.ErrorContext(ctx, "upload failed", "key", f.Destination, "error", f.Message)
		}

		attempt++
		if attempt >= s.cfg.MaxRetries {
			return false, &s3errors.MaxRetriesError{Op: "push", Attempts: attempt, Failures: failed}
		}

		more, err := retry.Wait(ctx, s.backoff)
		if err != nil {
			return false, err
		}
		if !more {
			return false, &s3errors.MaxRetriesError{Op: "push", Attempts: attempt, Failures: failed}
		}

		s.metrics.Retry("push")
		s.logger.DebugContext(ctx, "retrying upload", "attempt", attempt, "dir", localDir)
	}
}

// resume keeps resuming interrupted sessions while every failure of err is
// resumable, up to MaxResumes times, and returns the last error.
func (s *Syncer) resume(ctx context.Context, job UploadJob, err error) error {
	for resumes := 0; resumes < s.cfg.MaxResumes; resumes++ {
		o, ok := Classify(err, s.cfg.Bucket).(s3types.ResumableInterruption)
		if !ok || ctx.Err() != nil {
			return err
		}
		s.metrics.Resume()
		s.logger.DebugContext(ctx, "resuming interrupted upload", "sessions", len(o.Sessions), "resume", resumes+1)
		err = job.ResumeFrom(ctx, o.Sessions...)
	}
	return err
}

// Pull downloads every object under prefix into localDir. A bucket that
// cannot be ensured yields ExitBucketUnavailable and an empty map; a failed
// transfer yields ExitFailure with the files written so far.
func (s *Syncer) Pull(
	ctx context.Context,
	prefix, localDir string,
	progress s3types.ProgressSink,
) (s3types.SyncResult, error) {
	prefix = strings.TrimSuffix(prefix, "/")
	result := s3types.SyncResult{
		ExitCode:    s3types.ExitBucketUnavailable,
		Transferred: make(map[string]string),
	}

	if err := s.guard.Ensure(ctx, s.cfg.Bucket); err != nil {
		s.logger.ErrorContext(ctx, "bucket unavailable", "bucket", s.cfg.Bucket, "error", err)
		return result, err
	}

	if err := s.fs.MkdirAll(localDir, 0o755); err != nil {
		result.ExitCode = s3types.ExitFailure
		return result, s3errors.NewError("pull", err).WithMessage("failed to create " + localDir)
	}

	job := s.newDownload(download.Config{
		Bucket:      s.cfg.Bucket,
		Prefix:      prefix,
		LocalDir:    localDir,
		Concurrency: s.cfg.ConcurrentDownloads,
		Force:       true,
		OnComplete: func(key, localPath string) {
			if progress != nil {
				progress.IncrementStep(1)
			}
			result.Transferred[key] = localPath
		},
	})

	if err := job.Transfer(ctx); err != nil {
		result.ExitCode = s3types.ExitFailure
		s.logger.ErrorContext(ctx, "download failed", "prefix", prefix, "error", err)
		return result, err
	}

	result.ExitCode = s3types.ExitSuccess
	s.logger.InfoContext(ctx, "downloaded prefix", "prefix", prefix, "dir", localDir, "files", len(result.Transferred))
	return result, nil
}
