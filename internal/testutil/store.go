package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/input-output-hk/catalyst-forge-libs/aws/s3sync/internal/s3api"
)

// ObjectStore is an in-memory S3 that understands buckets, ranged reads,
// copies and multipart uploads. Fault hooks are called without the store
// lock held and may be replaced between test steps.
type ObjectStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	uploads map[string]*pendingUpload
	nextID  int
	calls   map[string]int

	// FailPut makes PutObject fail for a key when it returns an error.
	FailPut func(bucket, key string) error

	// FailUploadPart makes UploadPart fail for a key and part number.
	FailUploadPart func(key string, part int32) error

	// FailCopy makes CopyObject fail for a source key.
	FailCopy func(srcKey, bucket, key string) error

	// FailGet makes GetObject fail for a key.
	FailGet func(bucket, key string) error
}

type pendingUpload struct {
	bucket string
	key    string
	parts  map[int32][]byte
}

// NewObjectStore creates a store with the given empty buckets.
func NewObjectStore(buckets ...string) *ObjectStore {
	s := &ObjectStore{
		buckets: make(map[string]map[string][]byte),
		uploads: make(map[string]*pendingUpload),
		calls:   make(map[string]int),
	}
	for _, b := range buckets {
		s.buckets[b] = make(map[string][]byte)
	}
	return s
}

// Put stores an object directly, creating the bucket if needed.
func (s *ObjectStore) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make(map[string][]byte)
	}
	s.buckets[bucket][key] = append([]byte(nil), data...)
}

// Object returns a stored object.
func (s *ObjectStore) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.buckets[bucket][key]
	return data, ok
}

// Keys returns the sorted keys of bucket.
func (s *ObjectStore) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.buckets[bucket], "")
}

// PendingUploads returns the number of multipart uploads not yet completed or aborted.
func (s *ObjectStore) PendingUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// Calls returns how many times operation was invoked.
func (s *ObjectStore) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

func (s *ObjectStore) record(operation string) {
	s.mu.Lock()
	s.calls[operation]++
	s.mu.Unlock()
}

func sortedKeys(objects map[string][]byte, prefix string) []string {
	keys := make([]string, 0, len(objects))
	for k := range objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// HeadBucket implements S3API.
func (s *ObjectStore) HeadBucket(
	_ context.Context, params *s3.HeadBucketInput, _ ...func(*s3.Options),
) (*s3.HeadBucketOutput, error) {
	s.record("HeadBucket")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[aws.ToString(params.Bucket)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

// CreateBucket implements S3API.
func (s *ObjectStore) CreateBucket(
	_ context.Context, params *s3.CreateBucketInput, _ ...func(*s3.Options),
) (*s3.CreateBucketOutput, error) {
	s.record("CreateBucket")
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := aws.ToString(params.Bucket)
	if _, ok := s.buckets[bucket]; ok {
		return nil, &types.BucketAlreadyOwnedByYou{}
	}
	s.buckets[bucket] = make(map[string][]byte)
	return &s3.CreateBucketOutput{Location: aws.String("/" + bucket)}, nil
}

// ListObjectsV2 implements S3API. Continuation tokens are the last key of
// the previous page.
func (s *ObjectStore) ListObjectsV2(
	_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	s.record("ListObjectsV2")
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := aws.ToString(params.Bucket)
	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, &types.NoSuchBucket{}
	}

	maxKeys := int(aws.ToInt32(params.MaxKeys))
	if maxKeys <= 0 || maxKeys > 1000 {
		maxKeys = 1000
	}
	after := aws.ToString(params.ContinuationToken)

	out := &s3.ListObjectsV2Output{Name: params.Bucket, Prefix: params.Prefix}
	for _, key := range sortedKeys(objects, aws.ToString(params.Prefix)) {
		if after != "" && key <= after {
			continue
		}
		if len(out.Contents) == maxKeys {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = out.Contents[len(out.Contents)-1].Key
			break
		}
		data := objects[key]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(data))),
			ETag:         aws.String(CalculateETag(data)),
			LastModified: aws.Time(time.Now()),
		})
	}
	out.KeyCount = aws.Int32(int32(len(out.Contents)))
	return out, nil
}

// CopyObject implements S3API.
func (s *ObjectStore) CopyObject(
	_ context.Context, params *s3.CopyObjectInput, _ ...func(*s3.Options),
) (*s3.CopyObjectOutput, error) {
	s.record("CopyObject")

	source, err := url.PathUnescape(aws.ToString(params.CopySource))
	if err != nil {
		return nil, APIError("InvalidArgument", err.Error())
	}
	srcBucket, srcKey, _ := strings.Cut(strings.TrimPrefix(source, "/"), "/")
	bucket, key := aws.ToString(params.Bucket), aws.ToString(params.Key)

	if s.FailCopy != nil {
		if err := s.FailCopy(srcKey, bucket, key); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.buckets[srcBucket][srcKey]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	if s.buckets[bucket] == nil {
		return nil, &types.NoSuchBucket{}
	}
	s.buckets[bucket][key] = append([]byte(nil), data...)
	return &s3.CopyObjectOutput{
		CopyObjectResult: &types.CopyObjectResult{ETag: aws.String(CalculateETag(data))},
	}, nil
}

// PutObject implements S3API.
func (s *ObjectStore) PutObject(
	_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	s.record("PutObject")
	bucket, key := aws.ToString(params.Bucket), aws.ToString(params.Key)

	if s.FailPut != nil {
		if err := s.FailPut(bucket, key); err != nil {
			return nil, err
		}
	}

	var data []byte
	if params.Body != nil {
		var err error
		if data, err = io.ReadAll(params.Body); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buckets[bucket] == nil {
		return nil, &types.NoSuchBucket{}
	}
	s.buckets[bucket][key] = data
	return &s3.PutObjectOutput{ETag: aws.String(CalculateETag(data))}, nil
}

// GetObject implements S3API, honouring "bytes=start-end" ranges.
func (s *ObjectStore) GetObject(
	_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	s.record("GetObject")
	bucket, key := aws.ToString(params.Bucket), aws.ToString(params.Key)

	if s.FailGet != nil {
		if err := s.FailGet(bucket, key); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	data, ok := s.buckets[bucket][key]
	s.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	total := int64(len(data))
	out := &s3.GetObjectOutput{ETag: aws.String(CalculateETag(data))}

	// an empty object is returned whole whatever the range
	if r := aws.ToString(params.Range); r != "" && total > 0 {
		var start, end int64
		if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil {
			return nil, APIError("InvalidRange", r)
		}
		if start >= total {
			return nil, APIError("InvalidRange", "range not satisfiable")
		}
		if end >= total {
			end = total - 1
		}
		chunk := data[start : end+1]
		out.Body = io.NopCloser(bytes.NewReader(chunk))
		out.ContentLength = aws.Int64(int64(len(chunk)))
		out.ContentRange = aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, total))
		return out, nil
	}

	out.Body = io.NopCloser(bytes.NewReader(data))
	out.ContentLength = aws.Int64(total)
	return out, nil
}

// HeadObject implements S3API.
func (s *ObjectStore) HeadObject(
	_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	s.record("HeadObject")
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.buckets[aws.ToString(params.Bucket)][aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		ETag:          aws.String(CalculateETag(data)),
	}, nil
}

// CreateMultipartUpload implements S3API.
func (s *ObjectStore) CreateMultipartUpload(
	_ context.Context, params *s3.CreateMultipartUploadInput, _ ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	s.record("CreateMultipartUpload")
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := aws.ToString(params.Bucket)
	if s.buckets[bucket] == nil {
		return nil, &types.NoSuchBucket{}
	}
	s.nextID++
	id := fmt.Sprintf("upload-%d", s.nextID)
	s.uploads[id] = &pendingUpload{
		bucket: bucket,
		key:    aws.ToString(params.Key),
		parts:  make(map[int32][]byte),
	}
	return &s3.CreateMultipartUploadOutput{
		Bucket:   params.Bucket,
		Key:      params.Key,
		UploadId: aws.String(id),
	}, nil
}

// UploadPart implements S3API.
func (s *ObjectStore) UploadPart(
	_ context.Context, params *s3.UploadPartInput, _ ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	s.record("UploadPart")
	part := aws.ToInt32(params.PartNumber)

	if s.FailUploadPart != nil {
		if err := s.FailUploadPart(aws.ToString(params.Key), part); err != nil {
			return nil, err
		}
	}

	var data []byte
	if params.Body != nil {
		var err error
		if data, err = io.ReadAll(params.Body); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	upload, ok := s.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, APIError("NoSuchUpload", "upload does not exist")
	}
	upload.parts[part] = data
	return &s3.UploadPartOutput{ETag: aws.String(CalculateETag(data))}, nil
}

// ListParts implements S3API. All parts are returned in one page.
func (s *ObjectStore) ListParts(
	_ context.Context, params *s3.ListPartsInput, _ ...func(*s3.Options),
) (*s3.ListPartsOutput, error) {
	s.record("ListParts")
	s.mu.Lock()
	defer s.mu.Unlock()

	upload, ok := s.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, APIError("NoSuchUpload", "upload does not exist")
	}

	numbers := make([]int32, 0, len(upload.parts))
	for n := range upload.parts {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	out := &s3.ListPartsOutput{
		Bucket:      params.Bucket,
		Key:         params.Key,
		UploadId:    params.UploadId,
		IsTruncated: aws.Bool(false),
	}
	for _, n := range numbers {
		data := upload.parts[n]
		out.Parts = append(out.Parts, types.Part{
			PartNumber: aws.Int32(n),
			ETag:       aws.String(CalculateETag(data)),
			Size:       aws.Int64(int64(len(data))),
		})
	}
	return out, nil
}

// CompleteMultipartUpload implements S3API.
func (s *ObjectStore) CompleteMultipartUpload(
	_ context.Context, params *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	s.record("CompleteMultipartUpload")
	s.mu.Lock()
	defer s.mu.Unlock()

	id := aws.ToString(params.UploadId)
	upload, ok := s.uploads[id]
	if !ok {
		return nil, APIError("NoSuchUpload", "upload does not exist")
	}
	if params.MultipartUpload == nil || len(params.MultipartUpload.Parts) == 0 {
		return nil, APIError("MalformedXML", "no parts")
	}

	var buf bytes.Buffer
	prev := int32(0)
	for _, p := range params.MultipartUpload.Parts {
		n := aws.ToInt32(p.PartNumber)
		if n <= prev {
			return nil, APIError("InvalidPartOrder", "parts must be ascending")
		}
		data, ok := upload.parts[n]
		if !ok {
			return nil, APIError("InvalidPart", fmt.Sprintf("part %d missing", n))
		}
		buf.Write(data)
		prev = n
	}

	s.buckets[upload.bucket][upload.key] = buf.Bytes()
	delete(s.uploads, id)
	return &s3.CompleteMultipartUploadOutput{
		Bucket: aws.String(upload.bucket),
		Key:    aws.String(upload.key),
		ETag:   aws.String(fmt.Sprintf(`"%s-%d"`, id, len(params.MultipartUpload.Parts))),
	}, nil
}

// AbortMultipartUpload implements S3API.
func (s *ObjectStore) AbortMultipartUpload(
	_ context.Context, params *s3.AbortMultipartUploadInput, _ ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	s.record("AbortMultipartUpload")
	s.mu.Lock()
	defer s.mu.Unlock()

	id := aws.ToString(params.UploadId)
	if _, ok := s.uploads[id]; !ok {
		return nil, APIError("NoSuchUpload", "upload does not exist")
	}
	delete(s.uploads, id)
	return &s3.AbortMultipartUploadOutput{}, nil
}

var _ s3api.S3API = (*ObjectStore)(nil)
