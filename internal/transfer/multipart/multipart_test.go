package multipart

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3errors "github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/errors"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/s3types"
)

// startSession opens a multipart upload in store and uploads the listed
// parts of data.
func startSession(t *testing.T, store *testutil.ObjectStore, data []byte, partSize int64, parts ...int32) s3types.SessionState {
	t.Helper()
	ctx := context.Background()

	created, err := store.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String("bucket"),
		Key:    aws.String("big.bin"),
	})
	require.NoError(t, err)

	for _, n := range parts {
		off := int64(n-1) * partSize
		end := min(off+partSize, int64(len(data)))
		_, err := store.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String("bucket"),
			Key:        aws.String("big.bin"),
			UploadId:   created.UploadId,
			PartNumber: aws.Int32(n),
			Body:       bytes.NewReader(data[off:end]),
		})
		require.NoError(t, err)
	}

	return s3types.SessionState{
		Bucket:    "bucket",
		Key:       "big.bin",
		UploadID:  aws.ToString(created.UploadId),
		LocalPath: "/src/big.bin",
		PartSize:  partSize,
	}
}

func TestResumer_Resume(t *testing.T) {
	data := testutil.GenerateRandomData(2500)
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/src/big.bin", data, 0o644))

	tests := []struct {
		name     string
		uploaded []int32
		wantSent int
	}{
		{"nothing stored", nil, 3},
		{"first part stored", []int32{1}, 2},
		{"gap in the middle", []int32{1, 3}, 1},
		{"all parts stored", []int32{1, 2, 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewObjectStore("bucket")
			state := startSession(t, store, data, 1000, tt.uploaded...)

			sent, err := NewResumer(store, fs, nil, 2, nil).Resume(context.Background(), state)

			require.NoError(t, err)
			assert.Equal(t, tt.wantSent, sent)
			got, ok := store.Object("bucket", "big.bin")
			require.True(t, ok)
			assert.Equal(t, data, got)
			assert.Zero(t, store.PendingUploads())
		})
	}
}

func TestResumer_ResumeReplacesShortPart(t *testing.T) {
	data := testutil.GenerateRandomData(2000)
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/src/big.bin", data, 0o644))

	store := testutil.NewObjectStore("bucket")
	state := startSession(t, store, data, 1000, 1)

	// a truncated part 2 left by an interrupted request
	_, err := store.UploadPart(context.Background(), &s3.UploadPartInput{
		Bucket:     aws.String("bucket"),
		Key:        aws.String("big.bin"),
		UploadId:   aws.String(state.UploadID),
		PartNumber: aws.Int32(2),
		Body:       bytes.NewReader(data[1000:1500]),
	})
	require.NoError(t, err)

	sent, err := NewResumer(store, fs, nil, 0, nil).Resume(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	got, _ := store.Object("bucket", "big.bin")
	assert.Equal(t, data, got)
}

func TestResumer_ResumeUsesStatSize(t *testing.T) {
	data := testutil.GenerateRandomData(2000)
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/src/big.bin", data, 0o644))

	store := testutil.NewObjectStore("bucket")
	state := startSession(t, store, data, 1000, 1)

	// the file grew after the session started; its recorded size still rules
	require.NoError(t, util.WriteFile(fs, "/src/big.bin", append(data, data...), 0o644))
	stat := func(string) (os.FileInfo, error) {
		return fakeInfo{size: int64(len(data))}, nil
	}

	sent, err := NewResumer(store, fs, stat, 0, nil).Resume(context.Background(), state)

	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	got, _ := store.Object("bucket", "big.bin")
	assert.Equal(t, data, got)
}

type fakeInfo struct {
	os.FileInfo
	size int64
}

func (f fakeInfo) Size() int64 { return f.size }

func TestResumer_ResumeErrors(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/src/big.bin", []byte("data"), 0o644))
	store := testutil.NewObjectStore("bucket")
	r := NewResumer(store, fs, nil, 1, nil)

	t.Run("missing upload id", func(t *testing.T) {
		_, err := r.Resume(context.Background(), s3types.SessionState{Bucket: "bucket", Key: "k", PartSize: 10})
		assert.True(t, s3errors.IsInvalidInput(err))
	})

	t.Run("missing local file", func(t *testing.T) {
		_, err := r.Resume(context.Background(), s3types.SessionState{
			Bucket: "bucket", Key: "k", UploadID: "u", PartSize: 10, LocalPath: "/src/gone.bin",
		})
		assert.Error(t, err)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := r.Resume(context.Background(), s3types.SessionState{
			Bucket: "bucket", Key: "big.bin", UploadID: "missing", PartSize: 10, LocalPath: "/src/big.bin",
		})
		require.Error(t, err)
		assert.Equal(t, "NoSuchUpload", s3errors.APIErrorCode(err))
	})
}

func TestResumer_Abort(t *testing.T) {
	store := testutil.NewObjectStore("bucket")
	state := startSession(t, store, []byte("abc"), 10, 1)
	r := NewResumer(store, memfs.New(), nil, 1, nil)

	require.NoError(t, r.Abort(context.Background(), state))
	assert.Zero(t, store.PendingUploads())
	assert.Error(t, r.Abort(context.Background(), state))
}

func TestPartCount(t *testing.T) {
	assert.Equal(t, int32(1), PartCount(0, 100))
	assert.Equal(t, int32(1), PartCount(100, 100))
	assert.Equal(t, int32(2), PartCount(101, 100))
	assert.Equal(t, int32(3), PartCount(7168000*3, 7168000))
}
