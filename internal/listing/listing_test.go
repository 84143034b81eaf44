package listing

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/testutil"
)

func TestLister_List(t *testing.T) {
	ctx := context.Background()

	t.Run("wildcard pattern skips folder markers", func(t *testing.T) {
		var gotPrefix string
		mock := &testutil.MockS3Client{
			ListObjectsV2Func: func(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
				gotPrefix = aws.ToString(in.Prefix)
				return testutil.ListPages([]string{"logs/a.txt", "logs/", "logs/sub/b.txt"})(ctx, in, opts...)
			},
		}

		keys, err := New(mock).List(ctx, "bucket", "logs/*")

		require.NoError(t, err)
		assert.Equal(t, "logs/", gotPrefix)
		assert.Equal(t, []string{"logs/a.txt", "logs/sub/b.txt"}, keys)
	})

	t.Run("follows continuation tokens", func(t *testing.T) {
		mock := &testutil.MockS3Client{
			ListObjectsV2Func: testutil.ListPages(
				[]string{"p/1", "p/2"},
				[]string{"p/3/"},
				[]string{"p/4"},
			),
		}

		keys, err := New(mock).List(ctx, "bucket", "p/")

		require.NoError(t, err)
		assert.Equal(t, []string{"p/1", "p/2", "p/4"}, keys)
	})

	t.Run("empty result", func(t *testing.T) {
		mock := &testutil.MockS3Client{ListObjectsV2Func: testutil.ListPages()}

		keys, err := New(mock).List(ctx, "bucket", "nothing/*")

		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("missing bucket", func(t *testing.T) {
		mock := &testutil.MockS3Client{
			ListObjectsV2Func: func(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
				return nil, testutil.APIError("NoSuchBucket", "The specified bucket does not exist")
			},
		}

		_, err := New(mock).List(ctx, "bucket", "")

		require.Error(t, err)
		assert.True(t, s3errors.IsBucketNotFound(err))
	})

	t.Run("empty bucket name", func(t *testing.T) {
		_, err := New(&testutil.MockS3Client{}).List(ctx, "", "logs/*")
		assert.True(t, s3errors.IsInvalidInput(err))
	})
}

func TestLister_Objects(t *testing.T) {
	store := testutil.NewObjectStore("bucket")
	store.Put("bucket", "data/a.bin", []byte("12345"))
	store.Put("bucket", "data/", nil)
	store.Put("bucket", "other/b.bin", []byte("1"))

	objects, err := New(store).Objects(context.Background(), "bucket", "data/")

	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "data/a.bin", objects[0].Key)
	assert.Equal(t, int64(5), objects[0].Size)
	assert.NotContains(t, objects[0].ETag, `"`)
}

func TestNormalizePattern(t *testing.T) {
	assert.Equal(t, "logs/", NormalizePattern("logs/*"))
	assert.Equal(t, "a/b", NormalizePattern("a/*b*"))
	assert.Equal(t, "", NormalizePattern("*"))
}
