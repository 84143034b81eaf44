// Package download transfers the objects under a key prefix into a local
// directory.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/listing"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// Config describes one prefix download.
type Config struct {
	Bucket string

	// Prefix selects the objects to download. Keys are written below
	// LocalDir relative to it.
	Prefix string

	LocalDir string

	// Concurrency is the number of objects downloaded at once.
	Concurrency int

	// Force overwrites existing local files. Without it they are skipped.
	Force bool

	// OnComplete is called once per written file. Calls are serialised.
	OnComplete func(key, localPath string)
}

// Job downloads a prefix.
type Job struct {
	lister     *listing.Lister
	fs         billy.Filesystem
	downloader *manager.Downloader
	sequential *manager.Downloader
	cfg        Config
	metrics    *metrics.Metrics
	logger     *slog.Logger

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

// New creates a download job writing into fs.
func New(client s3api.S3API, fs billy.Filesystem, cfg Config, opts ...Option) *Job {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = s3types.DefaultConcurrentDownloads
	}

	j := &Job{
		lister:     listing.New(client),
		fs:         fs,
		downloader: manager.NewDownloader(client),
		sequential: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.Concurrency = 1
		}),
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Transfer downloads every object under the prefix. Folder markers are
// skipped. When some objects fail it returns a *transfer.Error after the
// rest have been written.
func (j *Job) Transfer(ctx context.Context) error {
	objects, err := j.lister.Objects(ctx, j.cfg.Bucket, j.cfg.Prefix)
	if err != nil {
		return err
	}

	j.logger.DebugContext(ctx, "downloading prefix",
		"bucket", j.cfg.Bucket,
		"prefix", j.cfg.Prefix,
		"dir", j.cfg.LocalDir,
		"objects", len(objects))

	var (
		failMu   sync.Mutex
		failures []*transfer.ItemError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.cfg.Concurrency)

	for _, obj := range objects {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if item := j.downloadObject(gctx, obj); item != nil {
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
		j.metrics.TransferFailed("download", len(failures))
		return transfer.NewError("download", len(objects), failures)
	}
	return nil
}

// LocalPath returns where key is written, rejecting keys that would escape
// the local directory.
func (j *Job) LocalPath(key string) (string, error) {
	rel := strings.TrimPrefix(key, j.cfg.Prefix)
	rel = strings.TrimLeft(rel, "/")
	if rel == "" {
		rel = path.Base(key)
	}
	if err := validation.ValidateRelativePath(rel); err != nil {
		return "", err
	}
	return j.fs.Join(j.cfg.LocalDir, rel), nil
}

func (j *Job) downloadObject(ctx context.Context, obj s3types.Object) *transfer.ItemError {
	localPath, err := j.LocalPath(obj.Key)
	if err != nil {
		return &transfer.ItemError{Key: obj.Key, Err: err}
	}
	fail := func(err error) *transfer.ItemError {
		j.logger.ErrorContext(ctx, "download failed", "key", obj.Key, "path", localPath, "error", err)
		return &transfer.ItemError{Key: obj.Key, LocalPath: localPath, Err: err}
	}

	if !j.cfg.Force {
		if _, err := j.fs.Stat(localPath); err == nil {
			j.logger.DebugContext(ctx, "skipping existing file", "path", localPath)
			return nil
		}
	}

	if err := j.fs.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fail(fmt.Errorf("failed to create directory for %s: %w", localPath, err))
	}

	f, err := j.fs.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fail(fmt.Errorf("failed to create %s: %w", localPath, err))
	}

	n, err := j.write(ctx, f, obj.Key)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close %s: %w", localPath, closeErr)
	}
	if err != nil {
		_ = j.fs.Remove(localPath)
		return fail(err)
	}

	j.logger.DebugContext(ctx, "copied", "key", obj.Key, "path", localPath, "size", humanize.Bytes(uint64(n)))
	j.complete(obj.Key, localPath)
	return nil
}

// write streams key into f. Files that support WriteAt receive parts
// concurrently; others are written one part at a time in order.
func (j *Job) write(ctx context.Context, f billy.File, key string) (int64, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(j.cfg.Bucket),
		Key:    aws.String(key),
	}
	if w, ok := f.(io.WriterAt); ok {
		return j.downloader.Download(ctx, w, input)
	}
	return j.sequential.Download(ctx, &sequentialWriterAt{w: f}, input)
}

func (j *Job) complete(key, localPath string) {
	j.metrics.Downloaded()
	if j.cfg.OnComplete == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cfg.OnComplete(key, localPath)
}

// sequentialWriterAt adapts an io.Writer for a downloader that writes parts
// in order.
type sequentialWriterAt struct {
	w   io.Writer
	off int64
}

func (s *sequentialWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if off != s.off {
		return 0, fmt.Errorf("out of order write at offset %d, expected %d", off, s.off)
	}
	n, err := s.w.Write(p)
	s.off += int64(n)
	return n, err
}
