package multipart

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// DefaultConcurrency is the number of parts uploaded at once when resuming.
const DefaultConcurrency = 5

// StatFunc returns metadata for a local file.
type StatFunc func(name string) (os.FileInfo, error)

// Resumer completes interrupted multipart uploads.
type Resumer struct {
	s3Client    s3api.S3API
	fs          billy.Filesystem
	stat        StatFunc
	concurrency int
	logger      *slog.Logger
}

// NewResumer creates a new resumer reading local files from fs. The part
// layout of a session follows the file size reported by stat, or by fs when
// stat is nil.
func NewResumer(s3Client s3api.S3API, fs billy.Filesystem, stat StatFunc, concurrency int, logger *slog.Logger) *Resumer {
	if stat == nil {
		stat = fs.Stat
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resumer{
		s3Client:    s3Client,
		fs:          fs,
		stat:        stat,
		concurrency: concurrency,
		logger:      logger,
	}
}

// PartCount returns the number of parts a file of size bytes is split into.
func PartCount(size, partSize int64) int32 {
	if size <= 0 {
		return 1
	}
	return int32((size + partSize - 1) / partSize)
}

// Resume finishes the upload described by state and returns the number of
// parts it had to send.
func (r *Resumer) Resume(ctx context.Context, state s3types.SessionState) (int, error) {
	if state.UploadID == "" || state.PartSize <= 0 {
		return 0, errors.NewError("resumeUpload", errors.ErrInvalidInput).
			WithBucket(state.Bucket).
			WithKey(state.Key).
			WithMessage("session has no upload id or part size")
	}

	f, err := r.fs.Open(state.LocalPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", state.LocalPath, err)
	}
	defer f.Close()

	info, err := r.stat(state.LocalPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", state.LocalPath, err)
	}
	size := info.Size()

	stored, err := r.listParts(ctx, state)
	if err != nil {
		return 0, err
	}

	numParts := PartCount(size, state.PartSize)
	completed := make([]awstypes.CompletedPart, numParts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	sent := 0
	for n := int32(1); n <= numParts; n++ {
		offset := int64(n-1) * state.PartSize
		length := min(state.PartSize, size-offset)

		if part, ok := stored[n]; ok && aws.ToInt64(part.Size) == length {
			completed[n-1] = awstypes.CompletedPart{ETag: part.ETag, PartNumber: aws.Int32(n)}
			continue
		}

		sent++
		g.Go(func() error {
			etag, err := r.uploadPart(gctx, state, n, io.NewSectionReader(f, offset, length))
			if err != nil {
				return err
			}
			completed[n-1] = awstypes.CompletedPart{ETag: etag, PartNumber: aws.Int32(n)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	r.logger.DebugContext(ctx, "resumed multipart upload",
		"bucket", state.Bucket,
		"key", state.Key,
		"parts", numParts,
		"sent", sent)

	return sent, r.complete(ctx, state, completed)
}

// listParts returns the parts already stored for the session by part number.
func (r *Resumer) listParts(ctx context.Context, state s3types.SessionState) (map[int32]awstypes.Part, error) {
	parts := make(map[int32]awstypes.Part)
	paginator := s3.NewListPartsPaginator(r.s3Client, &s3.ListPartsInput{
		Bucket:   aws.String(state.Bucket),
		Key:      aws.String(state.Key),
		UploadId: aws.String(state.UploadID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.NewError("listParts", err).WithBucket(state.Bucket).WithKey(state.Key)
		}
		for _, p := range page.Parts {
			parts[aws.ToInt32(p.PartNumber)] = p
		}
	}
	return parts, nil
}

func (r *Resumer) uploadPart(
	ctx context.Context,
	state s3types.SessionState,
	partNumber int32,
	body io.ReadSeeker,
) (*string, error) {
	output, err := r.s3Client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(state.Bucket),
		Key:        aws.String(state.Key),
		UploadId:   aws.String(state.UploadID),
		PartNumber: aws.Int32(partNumber),
		Body:       body,
	})
	if err != nil {
		return nil, errors.NewError("uploadPart", err).WithBucket(state.Bucket).WithKey(state.Key)
	}
	return output.ETag, nil
}

func (r *Resumer) complete(ctx context.Context, state s3types.SessionState, parts []awstypes.CompletedPart) error {
	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	_, err := r.s3Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(state.Bucket),
		Key:      aws.String(state.Key),
		UploadId: aws.String(state.UploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return errors.NewError("completeMultipartUpload", err).WithBucket(state.Bucket).WithKey(state.Key)
	}
	return nil
}

// Abort cancels the session, releasing its stored parts.
func (r *Resumer) Abort(ctx context.Context, state s3types.SessionState) error {
	_, err := r.s3Client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(state.Bucket),
		Key:      aws.String(state.Key),
		UploadId: aws.String(state.UploadID),
	})
	if err != nil {
		return errors.NewError("abortMultipartUpload", err).WithBucket(state.Bucket).WithKey(state.Key)
	}
	return nil
}
