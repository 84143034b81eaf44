package s3sync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

func noDelay() backoff.BackOff {
	return retry.NoDelay()
}

func newStoreClient(t *testing.T, store *testutil.ObjectStore, opts ...s3types.Option) *Client {
	t.Helper()
	opts = append([]s3types.Option{WithBucket("source"), WithBackoff(noDelay)}, opts...)
	client, err := NewWithClient(store, opts...)
	require.NoError(t, err)
	return client
}

func TestClient_BatchCopy(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		mapping     s3types.CopyMapping
		concurrency int
		failSource  string
		wantOK      bool
		wantErr     func(t *testing.T, err error)
		wantKeys    map[string][]string
	}{
		{
			name:        "single copy succeeds",
			mapping:     s3types.CopyMapping{{Source: "a.txt", Destination: "b.txt"}},
			concurrency: 5,
			wantOK:      true,
			wantKeys:    map[string][]string{"source": {"a.txt", "b.txt", "c.txt"}},
		},
		{
			name: "cross bucket destination",
			mapping: s3types.CopyMapping{
				{Source: "a.txt", Destination: "archive::2024/a.txt"},
				{Source: "c.txt", Destination: "c-copy.txt"},
			},
			concurrency: 1,
			wantOK:      true,
			wantKeys: map[string][]string{
				"source":  {"a.txt", "c-copy.txt", "c.txt"},
				"archive": {"2024/a.txt"},
			},
		},
		{
			name: "persistent failure",
			mapping: s3types.CopyMapping{
				{Source: "a.txt", Destination: "x.txt"},
				{Source: "c.txt", Destination: "y.txt"},
			},
			concurrency: 1,
			failSource:  "c.txt",
			wantErr: func(t *testing.T, err error) {
				var mre *s3errors.MaxRetriesError
				require.ErrorAs(t, err, &mre)
				require.Len(t, mre.Failures, 1)
				assert.Equal(t, "c.txt", mre.Failures[0].Source)
				assert.Equal(t, 3, mre.Attempts)
			},
			wantKeys: map[string][]string{"source": {"a.txt", "c.txt", "x.txt"}},
		},
		{
			name:        "empty mapping",
			concurrency: 5,
			wantKeys:    map[string][]string{"source": {"a.txt", "c.txt"}},
		},
		{
			name:        "zero concurrency",
			mapping:     s3types.CopyMapping{{Source: "a.txt", Destination: "b.txt"}},
			concurrency: 0,
			wantErr: func(t *testing.T, err error) {
				assert.True(t, s3errors.IsInvalidInput(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewObjectStore("source", "archive")
			store.Put("source", "a.txt", []byte("a"))
			store.Put("source", "c.txt", []byte("c"))
			store.FailCopy = func(srcKey, _, _ string) error {
				if srcKey == tt.failSource {
					return testutil.APIError("InternalError", "We encountered an internal error")
				}
				return nil
			}

			progress := &testutil.ProgressRecorder{}
			ok, err := newStoreClient(t, store).BatchCopy(ctx, tt.mapping, tt.concurrency, progress)

			if tt.wantErr != nil {
				require.Error(t, err)
				tt.wantErr(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantOK, ok)
			for bucket, keys := range tt.wantKeys {
				assert.Equal(t, keys, store.Keys(bucket), bucket)
			}
		})
	}
}

func TestClient_BatchCopy_RequiresBucket(t *testing.T) {
	client, err := NewWithClient(testutil.NewObjectStore())
	require.NoError(t, err)

	ok, err := client.BatchCopy(context.Background(),
		s3types.CopyMapping{{Source: "a", Destination: "b"}}, 1, nil)

	assert.False(t, ok)
	assert.ErrorIs(t, err, s3errors.ErrInvalidBucketName)
}

func TestClient_BatchCopy_Metrics(t *testing.T) {
	store := testutil.NewObjectStore("source")
	store.Put("source", "a.txt", []byte("a"))
	reg := prometheus.NewRegistry()

	client := newStoreClient(t, store, WithMetrics(reg))
	ok, err := client.BatchCopy(context.Background(),
		s3types.CopyMapping{{Source: "a.txt", Destination: "b.txt"}}, 2, nil)
	require.NoError(t, err)
	require.True(t, ok)

	families, err := reg.Gather()
	require.NoError(t, err)
	var copied float64
	for _, mf := range families {
		if mf.GetName() == "s3sync_objects_copied_total" {
			copied = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), copied)
}

func TestClient_BatchCopy_Concurrent(t *testing.T) {
	store := testutil.NewObjectStore("source")
	for _, k := range []string{"1", "2", "3", "4"} {
		store.Put("source", k, []byte(k))
	}
	client := newStoreClient(t, store)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i, k := range []string{"1", "2", "3", "4"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = client.BatchCopy(context.Background(),
				s3types.CopyMapping{{Source: k, Destination: "copy/" + k}}, 1, nil)
		}()
	}
	wg.Wait()

	assert.NoError(t, errors.Join(errs...))
	assert.Equal(t, []string{"1", "2", "3", "4", "copy/1", "copy/2", "copy/3", "copy/4"}, store.Keys("source"))
}

func TestClient_List(t *testing.T) {
	store := testutil.NewObjectStore("source")
	for _, k := range []string{"logs/a.txt", "logs/", "logs/sub/b.txt", "other.txt"} {
		store.Put("source", k, []byte("x"))
	}
	client := newStoreClient(t, store)

	keys, err := client.List(context.Background(), "logs/*")
	require.NoError(t, err)
	assert.Equal(t, []string{"logs/a.txt", "logs/sub/b.txt"}, keys)

	objects, err := client.Objects(context.Background(), "logs/")
	require.NoError(t, err)
	assert.Len(t, objects, 2)
}
