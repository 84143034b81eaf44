// Package upload transfers a local directory to a bucket key prefix.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/scanner"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/transfer/multipart"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// sniffLen is how much of a file is read to detect its content type.
const sniffLen = 3072

var sniffBuffers = pool.NewBuffers(sniffLen)

// Config describes one directory upload.
type Config struct {
	Bucket string

	// LocalDir is the directory whose files are uploaded.
	LocalDir string

	// Prefix is prepended to every key.
	Prefix string

	// Concurrency is the number of files uploaded at once.
	Concurrency int

	// MultipartThreshold is both the size above which a file is sent as a
	// multipart upload and the part size of that upload.
	MultipartThreshold int64

	// Force overwrites objects that already exist. Without it a file whose
	// key is present in the bucket is skipped.
	Force bool

	// Exclude lists patterns of relative paths that are not uploaded.
	Exclude []string

	// OnComplete is called once per uploaded object. Calls are serialised.
	OnComplete func(key, localPath string)
}

// Job uploads a directory.
type Job struct {
	client   s3api.S3API
	fs       billy.Filesystem
	scanner  *scanner.Scanner
	uploader *manager.Uploader
	resumer  *multipart.Resumer
	cfg      Config
	partSize int64
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu sync.Mutex
}

// Option configures a Job.
type Option func(*Job)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Job) {
		j.metrics = m
	}
}

// New creates an upload job. Files are discovered through sc, which shares
// its stat cache with the caller.
func New(client s3api.S3API, fs billy.Filesystem, sc *scanner.Scanner, cfg Config, opts ...Option) *Job {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = s3types.DefaultConcurrentUploads
	}
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = s3types.DefaultMultipartThreshold
	}

	j := &Job{
		client:   client,
		fs:       fs,
		scanner:  sc,
		cfg:      cfg,
		partSize: max(cfg.MultipartThreshold, manager.MinUploadPartSize),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(j)
	}

	j.uploader = manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = j.partSize
		u.LeavePartsOnError = true
	})
	j.resumer = multipart.NewResumer(client, fs, sc.Stat, 0, j.logger)
	return j
}

// PartSize is the part size of multipart sessions started by the job.
func (j *Job) PartSize() int64 {
	return j.partSize
}

// Transfer uploads every file of the directory. When some files fail it
// returns a *transfer.Error; failures that left a multipart session open
// carry its state.
func (j *Job) Transfer(ctx context.Context) error {
	files, err := j.scanner.Scan(ctx, j.cfg.LocalDir, j.cfg.Exclude)
	if err != nil {
		return s3errors.NewError("upload", err).WithBucket(j.cfg.Bucket)
	}

	j.logger.DebugContext(ctx, "uploading directory",
		"dir", j.cfg.LocalDir,
		"bucket", j.cfg.Bucket,
		"prefix", j.cfg.Prefix,
		"files", len(files),
		"force", j.cfg.Force)

	var (
		failMu   sync.Mutex
		failures []*transfer.ItemError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)

	for _, file := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			key := j.key(file.RelPath)
			if item := j.uploadFile(gctx, key, file); item != nil {
				failMu.Lock()
				failures = append(failures, item)
				failMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(failures) > 0 {
		j.metrics.TransferFailed("upload", len(failures))
		return transfer.NewError("upload", len(files), failures)
	}
	return nil
}

func (j *Job) key(relPath string) string {
	if j.cfg.Prefix == "" {
		return relPath
	}
	return path.Join(j.cfg.Prefix, relPath)
}

// uploadFile sends one file and returns its failure, if any.
func (j *Job) uploadFile(ctx context.Context, key string, file scanner.LocalFile) *transfer.ItemError {
	fail := func(err error) *transfer.ItemError {
		return &transfer.ItemError{Key: key, LocalPath: file.Path, Err: err}
	}

	if !j.cfg.Force {
		exists, err := j.exists(ctx, key)
		if err != nil {
			return fail(err)
		}
		if exists {
			j.logger.DebugContext(ctx, "skipping existing object", "key", key)
			return nil
		}
	}

	f, err := j.fs.Open(file.Path)
	if err != nil {
		return fail(fmt.Errorf("failed to open %s: %w", file.Path, err))
	}
	defer f.Close()

	contentType, err := detectContentType(f)
	if err != nil {
		return fail(err)
	}

	// the object is the file as scanned, so a resumed session keeps its part layout
	_, err = j.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(j.cfg.Bucket),
		Key:         aws.String(key),
		Body:        io.NewSectionReader(f, 0, file.Size),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		item := fail(err)
		var mf manager.MultiUploadFailure
		if errors.As(err, &mf) && mf.UploadID() != "" {
			item.Session = &s3types.SessionState{
				Bucket:    j.cfg.Bucket,
				Key:       key,
				UploadID:  mf.UploadID(),
				LocalPath: file.Path,
				PartSize:  j.partSize,
			}
		}
		j.logger.ErrorContext(ctx, "upload failed",
			"key", key,
			"resumable", item.Session != nil,
			"error", err)
		return item
	}

	j.logger.DebugContext(ctx, "uploaded",
		"key", key,
		"size", humanize.Bytes(uint64(file.Size)),
		"multipart", file.Size > j.partSize)
	j.complete(key, file.Path)
	return nil
}

func (j *Job) exists(ctx context.Context, key string) (bool, error) {
	_, err := j.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(j.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) || s3errors.APIErrorCode(err) == "NotFound" {
		return false, nil
	}
	return false, s3errors.NewError("headObject", err).WithBucket(j.cfg.Bucket).WithKey(key)
}

func (j *Job) complete(key, localPath string) {
	j.metrics.Uploaded()
	if j.cfg.OnComplete == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cfg.OnComplete(key, localPath)
}

// ResumeFrom finishes interrupted multipart sessions. Sessions that fail
// again are reported in a *transfer.Error; those whose upload is still open
// keep their state.
func (j *Job) ResumeFrom(ctx context.Context, sessions ...s3types.SessionState) error {
	var (
		failMu   sync.Mutex
		failures []*transfer.ItemError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)

	for _, state := range sessions {
		g.Go(func() error {
			j.logger.DebugContext(gctx, "resuming upload", "key", state.Key, "uploadId", state.UploadID)
			if _, err := j.resumer.Resume(gctx, state); err != nil {
				item := &transfer.ItemError{Key: state.Key, LocalPath: state.LocalPath, Err: err}
				if s3errors.APIErrorCode(err) != "NoSuchUpload" {
					item.Session = &state
				}
				failMu.Lock()
				failures = append(failures, item)
				failMu.Unlock()
				return nil
			}
			j.complete(state.Key, state.LocalPath)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(failures) > 0 {
		return transfer.NewError("resume", len(sessions), failures)
	}
	return nil
}

// Abort cancels open sessions. Failures are logged.
func (j *Job) Abort(ctx context.Context, sessions ...s3types.SessionState) {
	for _, state := range sessions {
		if err := j.resumer.Abort(ctx, state); err != nil {
			j.logger.WarnContext(ctx, "failed to abort multipart upload",
				"key", state.Key,
				"uploadId", state.UploadID,
				"error", err)
		}
	}
}

func detectContentType(f billy.File) (string, error) {
	buf := sniffBuffers.Get()
	defer sniffBuffers.Put(buf)

	n, err := f.ReadAt(*buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", f.Name(), err)
	}
	return mimetype.Detect((*buf)[:n]).String(), nil
}
