package batchcopy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// recordingExecutor records every batch and fails commands whose copy
// source is listed in failSources.
type recordingExecutor struct {
	mu          sync.Mutex
	batches     []Batch
	failSources map[string]bool
	err         error
}

func (r *recordingExecutor) Execute(_ context.Context, batch Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batches = append(r.batches, append(Batch(nil), batch...))
	if r.err != nil {
		return r.err
	}

	var failures []CommandFailure
	for _, cmd := range batch {
		if r.failSources[cmd.CopySource] {
			failures = append(failures, CommandFailure{Command: cmd, Err: errors.New("SlowDown: please reduce your request rate")})
		}
	}
	if len(failures) > 0 {
		return &BatchError{Total: len(batch), Failures: failures}
	}
	return nil
}

type counter struct {
	mu    sync.Mutex
	total int
}

func (c *counter) IncrementStep(n int) {
	c.mu.Lock()
	c.total += n
	c.mu.Unlock()
}

func newTestEngine(exec Executor) *Engine {
	return NewEngine(exec, "source-bucket", WithBackoff(retry.NoDelay()))
}

func mappingOf(n int) s3types.CopyMapping {
	m := make(s3types.CopyMapping, n)
	for i := range m {
		m[i] = s3types.CopyPair{
			Source:      fmt.Sprintf("src/%03d.txt", i),
			Destination: fmt.Sprintf("dst/%03d.txt", i),
		}
	}
	return m
}

func TestEngine_Copy_EmptyMapping(t *testing.T) {
	exec := &recordingExecutor{}
	ok, err := newTestEngine(exec).Copy(context.Background(), nil, 5, nil)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, exec.batches)
}

func TestEngine_Copy_SingleItem(t *testing.T) {
	exec := &recordingExecutor{}
	progress := &counter{}
	mapping := s3types.CopyMapping{{Source: "a.txt", Destination: "b.txt"}}

	ok, err := newTestEngine(exec).Copy(context.Background(), mapping, 5, progress)

	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, exec.batches, 1)
	assert.Equal(t, Command{Bucket: "source-bucket", Key: "b.txt", CopySource: "source-bucket/a.txt"}, exec.batches[0][0])
	assert.Equal(t, 1, progress.total)
}

func TestEngine_Copy_PersistentFailureExhaustsRetries(t *testing.T) {
	exec := &recordingExecutor{failSources: map[string]bool{"source-bucket/b.txt": true}}
	progress := &counter{}
	mapping := s3types.CopyMapping{
		{Source: "a.txt", Destination: "x.txt"},
		{Source: "b.txt", Destination: "y.txt"},
	}

	ok, err := newTestEngine(exec).Copy(context.Background(), mapping, 1, progress)

	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, s3errors.IsMaxRetriesExceeded(err))

	var maxErr *s3errors.MaxRetriesError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 3, maxErr.Attempts)
	require.Len(t, maxErr.Failures, 1)
	assert.Equal(t, "b.txt", maxErr.Failures[0].Source)
	assert.Equal(t, "y.txt", maxErr.Failures[0].Destination)
	assert.Contains(t, err.Error(), "b.txt")

	// initial pass: one batch of two; then two retry passes of b.txt alone
	require.Len(t, exec.batches, 3)
	assert.Len(t, exec.batches[0], 2)
	for _, retried := range exec.batches[1:] {
		require.Len(t, retried, 1)
		assert.Equal(t, Command{Bucket: "source-bucket", Key: "y.txt", CopySource: "source-bucket/b.txt"}, retried[0])
	}
	assert.Equal(t, 1, progress.total)
}

func TestEngine_Copy_BatchSizing(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 10, 11, 12, 25, 100} {
		for _, c := range []int{1, 2, 3, 5, 10} {
			t.Run(fmt.Sprintf("n=%d/c=%d", n, c), func(t *testing.T) {
				exec := &recordingExecutor{}
				ok, err := newTestEngine(exec).Copy(context.Background(), mappingOf(n), c, nil)

				require.NoError(t, err)
				assert.True(t, ok)
				assert.Len(t, exec.batches, (n+c)/(c+1))
				assert.Equal(t, BatchCount(n, c), len(exec.batches))

				seen := 0
				for _, b := range exec.batches {
					assert.LessOrEqual(t, len(b), c+1)
					seen += len(b)
				}
				assert.Equal(t, n, seen)
			})
		}
	}
}

func TestEngine_Copy_RecoversOnRetry(t *testing.T) {
	attempts := 0
	exec := &flakyExecutor{failUntil: 2, calls: &attempts, source: "source-bucket/src/003.txt"}
	progress := &counter{}

	ok, err := newTestEngine(exec).Copy(context.Background(), mappingOf(10), 3, progress)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, progress.total)
	assert.Equal(t, 3, attempts)
}

// flakyExecutor fails one source for the first failUntil times it sees it.
type flakyExecutor struct {
	failUntil int
	calls     *int
	source    string
}

func (f *flakyExecutor) Execute(_ context.Context, batch Batch) error {
	for _, cmd := range batch {
		if cmd.CopySource != f.source {
			continue
		}
		*f.calls++
		if *f.calls <= f.failUntil {
			return &BatchError{Total: len(batch), Failures: []CommandFailure{{Command: cmd, Err: errors.New("InternalError")}}}
		}
	}
	return nil
}

func TestEngine_Copy_FailsOnlyAtSecondRetry(t *testing.T) {
	for failUntil := 0; failUntil <= 3; failUntil++ {
		t.Run(fmt.Sprintf("fail_%d_times", failUntil), func(t *testing.T) {
			calls := 0
			exec := &flakyExecutor{failUntil: failUntil, calls: &calls, source: "source-bucket/src/000.txt"}

			ok, err := newTestEngine(exec).Copy(context.Background(), mappingOf(4), 2, nil)

			if failUntil <= MaxRetryAttempts {
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, failUntil+1, calls)
				return
			}
			require.Error(t, err)
			assert.False(t, ok)
			assert.Equal(t, MaxRetryAttempts+1, calls)
		})
	}
}

func TestEngine_Copy_CrossBucketDestination(t *testing.T) {
	exec := &recordingExecutor{failSources: map[string]bool{"source-bucket/c.txt": true}}
	mapping := s3types.CopyMapping{
		{Source: "c.txt", Destination: "other-bucket::dest.txt"},
		{Source: "d.txt", Destination: "dest2.txt"},
	}

	_, err := newTestEngine(exec).Copy(context.Background(), mapping, 5, nil)
	require.Error(t, err)

	require.Len(t, exec.batches, 3)
	first := exec.batches[0]
	assert.Equal(t, "other-bucket", first[0].Bucket)
	assert.Equal(t, "dest.txt", first[0].Key)
	assert.Equal(t, "source-bucket", first[1].Bucket)
	assert.Equal(t, "dest2.txt", first[1].Key)

	// the retry keeps the cross-bucket target
	assert.Equal(t, Command{Bucket: "other-bucket", Key: "dest.txt", CopySource: "source-bucket/c.txt"}, exec.batches[1][0])
}

func TestEngine_Copy_ContinuesAfterFailedBatch(t *testing.T) {
	exec := &recordingExecutor{failSources: map[string]bool{"source-bucket/src/000.txt": true}}
	progress := &counter{}

	_, err := newTestEngine(exec).Copy(context.Background(), mappingOf(6), 1, progress)
	require.Error(t, err)

	// three batches on the first pass, then one per retry pass
	assert.Len(t, exec.batches, 5)
	assert.Equal(t, 5, progress.total)
}

func TestEngine_Copy_ExecutorErrorFailsWholeBatch(t *testing.T) {
	exec := &recordingExecutor{err: errors.New("connection reset")}

	ok, err := newTestEngine(exec).Copy(context.Background(), mappingOf(3), 5, nil)

	assert.False(t, ok)
	var maxErr *s3errors.MaxRetriesError
	require.ErrorAs(t, err, &maxErr)
	assert.Len(t, maxErr.Failures, 3)
	assert.Equal(t, "connection reset", maxErr.Failures[0].Message)
}

func TestEngine_Copy_InvalidInput(t *testing.T) {
	tests := []struct {
		name        string
		bucket      string
		mapping     s3types.CopyMapping
		concurrency int
	}{
		{"zero concurrency", "source-bucket", mappingOf(1), 0},
		{"empty default bucket", "", mappingOf(1), 1},
		{"empty destination key", "source-bucket", s3types.CopyMapping{{Source: "a", Destination: "other-bucket::"}}, 1},
		{"bad target bucket", "source-bucket", s3types.CopyMapping{{Source: "a", Destination: "Bad_Bucket::a"}}, 1},
		{"one bad pair rejects all", "source-bucket", s3types.CopyMapping{
			{Source: "a", Destination: "b"},
			{Source: "c", Destination: "d"},
			{Source: "e", Destination: "Bad_Bucket::f"},
		}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &recordingExecutor{}
			e := NewEngine(exec, tt.bucket, WithBackoff(retry.NoDelay()))

			ok, err := e.Copy(context.Background(), tt.mapping, tt.concurrency, nil)
			require.Error(t, err)
			assert.False(t, ok)
			assert.True(t, s3errors.IsInvalidInput(err) || errors.Is(err, s3errors.ErrInvalidObjectKey))
			assert.Empty(t, exec.batches)
		})
	}
}

func TestEngine_Copy_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := &recordingExecutor{}

	ok, err := newTestEngine(exec).Copy(ctx, mappingOf(4), 1, nil)

	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, exec.batches)
}

func TestBatchCount(t *testing.T) {
	assert.Equal(t, 0, BatchCount(0, 3))
	assert.Equal(t, 1, BatchCount(1, 3))
	assert.Equal(t, 1, BatchCount(4, 3))
	assert.Equal(t, 2, BatchCount(5, 3))
	assert.Equal(t, 1, BatchCount(2, 1))
	assert.Equal(t, 2, BatchCount(3, 1))
}
