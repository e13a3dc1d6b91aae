package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// memoryS3 is an in-memory stand-in for the S3 API
type memoryS3 struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	getErr  error
	// body returned by GetObject instead of the stored data, if set
	bodyOverride io.ReadCloser
}

func newMemoryS3() *memoryS3 {
	return &memoryS3{objects: make(map[string]memoryObject)}
}

func (m *memoryS3) put(bucket, key string, obj memoryObject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = obj
}

func (m *memoryS3) object(bucket, key string) (memoryObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket+"/"+key]
	return obj, ok
}

func (m *memoryS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.put(aws.ToString(in.Bucket), aws.ToString(in.Key), memoryObject{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
	})
	return &s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

func (m *memoryS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	obj, ok := m.object(aws.ToString(in.Bucket), aws.ToString(in.Key))
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	reader := io.NopCloser(bytes.NewReader(obj.data))
	if m.bodyOverride != nil {
		reader = m.bodyOverride
	}
	return &s3.GetObjectOutput{
		Body:          reader,
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		Metadata:      obj.metadata,
	}, nil
}

var errMultipart = errors.New("multipart uploads are not supported by memoryS3")

func (m *memoryS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (m *memoryS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (m *memoryS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (m *memoryS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

// failingReader returns some bytes and then an error
type failingReader struct {
	data []byte
	err  error
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, r.data), nil
	}
	return 0, r.err
}

func (r *failingReader) Close() error { return nil }
