package s3sync

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

func TestClient_New(t *testing.T) {
	tests := []struct {
		name    string
		opts    []s3types.Option
		wantErr bool
	}{
		{
			name: "default configuration",
		},
		{
			name: "with region and bucket",
			opts: []s3types.Option{WithRegion("us-west-2"), WithBucket("my-bucket")},
		},
		{
			name: "with static credentials and endpoint",
			opts: []s3types.Option{
				WithCredentials("AKID", "SECRET", ""),
				WithEndpoint("http://localhost:4566"),
				WithForcePathStyle(true),
			},
		},
		{
			name:    "zero upload concurrency",
			opts:    []s3types.Option{WithConcurrentUploads(0)},
			wantErr: true,
		},
		{
			name:    "negative download concurrency",
			opts:    []s3types.Option{WithConcurrentDownloads(-1)},
			wantErr: true,
		},
		{
			name:    "zero max retries",
			opts:    []s3types.Option{WithMaxRetries(0)},
			wantErr: true,
		},
		{
			name:    "negative max resumes",
			opts:    []s3types.Option{WithMaxResumes(-1)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, s3errors.IsInvalidInput(err))
				assert.Nil(t, client)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, client)
			assert.NotNil(t, client.s3Client)
			assert.NotNil(t, client.guard)
		})
	}
}

func TestClient_New_AWSConfig(t *testing.T) {
	awsCfg := aws.Config{Region: "eu-central-1"}

	client, err := New(WithAWSConfig(&awsCfg), WithBucket("b"))

	require.NoError(t, err)
	assert.Equal(t, "eu-central-1", client.cfg.Region)
	assert.Equal(t, "b", client.Bucket())
}

func TestNewWithClient_Defaults(t *testing.T) {
	client, err := NewWithClient(&testutil.MockS3Client{})
	require.NoError(t, err)

	cfg := client.cfg
	assert.Equal(t, s3types.DefaultRegion, cfg.Region)
	assert.Equal(t, s3types.DefaultConcurrentUploads, cfg.ConcurrentUploads)
	assert.Equal(t, s3types.DefaultConcurrentDownloads, cfg.ConcurrentDownloads)
	assert.Equal(t, s3types.DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, s3types.DefaultMaxResumes, cfg.MaxResumes)
	assert.Equal(t, s3types.DefaultMultipartThreshold, cfg.MultipartThreshold)
	assert.True(t, cfg.Force)
	assert.True(t, client.osFS, "OS filesystem by default")
	assert.NotNil(t, client.logger)
}

func TestOptions(t *testing.T) {
	fs := memfs.New()
	called := 0
	factory := func() backoff.BackOff {
		called++
		return retry.NoDelay()
	}

	client, err := NewWithClient(&testutil.MockS3Client{},
		WithBucket("bucket"),
		WithConcurrentUploads(4),
		WithConcurrentDownloads(6),
		WithMaxRetries(5),
		WithMaxResumes(0),
		WithMultipartThreshold(-1),
		WithForce(false),
		WithExclude("*.tmp"),
		WithExclude(".git/"),
		WithBackoff(factory),
		WithFilesystem(fs),
		WithBucketWaitTimeout(time.Second),
		WithCredentials("", "", ""),
	)
	require.NoError(t, err)

	cfg := client.cfg
	assert.Equal(t, 4, cfg.ConcurrentUploads)
	assert.Equal(t, 6, cfg.ConcurrentDownloads)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Zero(t, cfg.MaxResumes)
	assert.Equal(t, s3types.DefaultMultipartThreshold, cfg.MultipartThreshold, "non-positive threshold ignored")
	assert.False(t, cfg.Force)
	assert.Equal(t, []string{"*.tmp", ".git/"}, cfg.Exclude)
	assert.Equal(t, time.Second, cfg.BucketWaitTimeout)
	assert.Nil(t, cfg.Credentials, "empty credentials ignored")
	assert.False(t, client.osFS)

	client.newBackoff()
	client.newBackoff()
	assert.Equal(t, 2, called, "one policy per operation")
}

func TestClient_LocalPath(t *testing.T) {
	client, err := NewWithClient(&testutil.MockS3Client{})
	require.NoError(t, err)

	abs, err := client.localPath("relative/dir")
	require.NoError(t, err)
	assert.True(t, len(abs) > 0 && abs[0] == '/', "resolved to an absolute path: %s", abs)

	client, err = NewWithClient(&testutil.MockS3Client{}, WithFilesystem(memfs.New()))
	require.NoError(t, err)

	p, err := client.localPath("relative/dir")
	require.NoError(t, err)
	assert.Equal(t, "relative/dir", p, "custom filesystems get the path unchanged")
}

func TestClient_EnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("creates missing bucket", func(t *testing.T) {
		store := testutil.NewObjectStore()
		client, err := NewWithClient(store, WithBucket("new-bucket"))
		require.NoError(t, err)

		require.NoError(t, client.EnsureBucket(ctx))
		assert.Equal(t, 1, store.Calls("CreateBucket"))

		require.NoError(t, client.EnsureBucket(ctx))
		assert.Equal(t, 1, store.Calls("CreateBucket"), "existing bucket is not created again")
	})

	t.Run("no bucket configured", func(t *testing.T) {
		client, err := NewWithClient(testutil.NewObjectStore())
		require.NoError(t, err)

		err = client.EnsureBucket(ctx)
		assert.True(t, s3errors.IsInvalidInput(err))
	})
}
