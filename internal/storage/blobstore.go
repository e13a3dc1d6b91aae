package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/tink/go/tink"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/body-consumer/internal/body"
	"github.com/guided-traffic/body-consumer/internal/monitoring"
)

// Object metadata written next to every blob
const (
	MetaBlobType   = "blob-type"
	MetaBlobDigest = "blob-digest"
	MetaBlobSealed = "blob-sealed"
)

var (
	// ErrDigestMismatch is returned when a stored blob no longer matches its digest
	ErrDigestMismatch = errors.New("blob digest mismatch")
	// ErrSealed is returned when a sealed blob is read without a keyset
	ErrSealed = errors.New("blob is sealed and no keyset is configured")
	// ErrBlobNotFound is returned when no blob is stored under an id
	ErrBlobNotFound = errors.New("blob not found")
)

// BlobStoreConfig holds the blob store location
type BlobStoreConfig struct {
	Bucket string
	Prefix string
}

// StoredBlob describes a persisted blob
type StoredBlob struct {
	ID       uuid.UUID
	Bucket   string
	Key      string
	Location string
	Sealed   bool
}

// BlobStore persists consumed blobs in S3
type BlobStore struct {
	api      API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	aead     tink.AEAD
	logger   *logrus.Entry
}

// NewBlobStore creates a blob store. With a non-nil primitive blobs are
// sealed before upload, bound to their object key.
func NewBlobStore(api API, cfg *BlobStoreConfig, primitive tink.AEAD, logger *logrus.Logger) *BlobStore {
	return &BlobStore{
		api:      api,
		uploader: manager.NewUploader(api),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		aead:     primitive,
		logger:   logger.WithField("component", "blob-store"),
	}
}

// Key returns the object key used for a blob id
func (s *BlobStore) Key(id uuid.UUID) string {
	return s.prefix + id.String()
}

// Put uploads blob under its id
func (s *BlobStore) Put(ctx context.Context, blob *body.Blob) (*StoredBlob, error) {
	start := time.Now()
	key := s.Key(blob.ID())

	data := blob.Bytes()
	contentType := blob.Type()
	sealed := s.aead != nil
	if sealed {
		ciphertext, err := s.aead.Encrypt(data, []byte(key))
		if err != nil {
			monitoring.RecordBlobStoreOperation("put", "error", time.Since(start))
			return nil, fmt.Errorf("failed to seal blob %s: %w", blob.ID(), err)
		}
		data = ciphertext
		contentType = "application/octet-stream"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	metadata := map[string]string{
		MetaBlobType:   blob.Type(),
		MetaBlobDigest: blob.Digest(),
	}
	if sealed {
		metadata[MetaBlobSealed] = "true"
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		monitoring.RecordBlobStoreOperation("put", "error", time.Since(start))
		return nil, fmt.Errorf("failed to upload blob %s: %w", blob.ID(), err)
	}
	monitoring.RecordBlobStoreOperation("put", "success", time.Since(start))

	s.logger.WithFields(logrus.Fields{
		"id":     blob.ID(),
		"key":    key,
		"size":   blob.Size(),
		"sealed": sealed,
	}).Debug("Stored blob")

	return &StoredBlob{
		ID:       blob.ID(),
		Bucket:   s.bucket,
		Key:      key,
		Location: fmt.Sprintf("s3://%s/%s", s.bucket, key),
		Sealed:   sealed,
	}, nil
}

// Get downloads the blob stored under id and verifies its digest
func (s *BlobStore) Get(ctx context.Context, id uuid.UUID) (*body.Blob, error) {
	start := time.Now()
	blob, err := s.get(ctx, id)
	status := "success"
	if err != nil {
		status = "error"
	}
	monitoring.RecordBlobStoreOperation("get", status, time.Since(start))
	return blob, err
}

func (s *BlobStore) get(ctx context.Context, id uuid.UUID) (*body.Blob, error) {
	key := s.Key(id)
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get blob %s: %w", id, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", id, err)
	}

	if out.Metadata[MetaBlobSealed] == "true" {
		if s.aead == nil {
			return nil, ErrSealed
		}
		data, err = s.aead.Decrypt(data, []byte(key))
		if err != nil {
			return nil, fmt.Errorf("failed to open blob %s: %w", id, err)
		}
	}

	blob := body.RestoreBlob(id, data, out.Metadata[MetaBlobType])
	if digest := out.Metadata[MetaBlobDigest]; digest != "" && digest != blob.Digest() {
		return nil, fmt.Errorf("%w: %s", ErrDigestMismatch, id)
	}
	return blob, nil
}
