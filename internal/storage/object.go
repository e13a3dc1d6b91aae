package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/body-consumer/internal/body"
)

// ErrInvalidObjectURL is returned for references that are not s3://bucket/key
var ErrInvalidObjectURL = errors.New("invalid object url")

// ParseObjectURL splits an s3://bucket/key reference
func ParseObjectURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidObjectURL, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidObjectURL, raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: %q has no key", ErrInvalidObjectURL, raw)
	}
	return u.Host, key, nil
}

// ObjectSource loads S3 objects as bodies. The body is handed out as soon as
// the object's headers arrive and completes when the download finishes.
type ObjectSource struct {
	api      API
	consumer *body.Consumer
	limit    int64
	logger   *logrus.Entry
}

// NewObjectSource creates an object source. limit caps the bytes accepted
// per object; zero disables the cap.
func NewObjectSource(api API, consumer *body.Consumer, limit int64, logger *logrus.Logger) *ObjectSource {
	return &ObjectSource{
		api:      api,
		consumer: consumer,
		limit:    limit,
		logger:   logger.WithField("component", "object-source"),
	}
}

// Object is an S3 object whose bytes stream into Body
type Object struct {
	Bucket string
	Key    string
	Body   *body.Body

	done chan struct{}
	err  error
}

// Load requests the object and starts copying it into a new body
func (s *ObjectSource) Load(ctx context.Context, bucket, key string) (*Object, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	if s.limit > 0 && aws.ToInt64(out.ContentLength) > s.limit {
		_ = out.Body.Close()
		return nil, fmt.Errorf("%w: object %s/%s has %d bytes, limit is %d",
			body.ErrBodyTooLarge, bucket, key, aws.ToInt64(out.ContentLength), s.limit)
	}

	b := body.NewBody(s.consumer, aws.ToString(out.ContentType))
	b.SetLimit(s.limit)

	obj := &Object{
		Bucket: bucket,
		Key:    key,
		Body:   b,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(obj.done)
		defer func() { _ = out.Body.Close() }()

		n, err := io.Copy(b, out.Body)
		if err == nil {
			err = b.Finish()
		}
		entry := s.logger.WithFields(logrus.Fields{
			"bucket": bucket,
			"key":    key,
			"bytes":  n,
		})
		if err != nil {
			obj.err = fmt.Errorf("failed to read object %s/%s: %w", bucket, key, err)
			entry.WithError(err).Error("Object download failed")
			return
		}
		entry.Debug("Object download complete")
	}()

	return obj, nil
}

// Transferred returns a channel closed when the download ends
func (o *Object) Transferred() <-chan struct{} {
	return o.done
}

// Err reports the download error once Transferred is closed
func (o *Object) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Consume consumes the object's body as kind and waits for the result. A
// failed download is reported instead of the consumption, which then never
// settles.
func (o *Object) Consume(ctx context.Context, kind body.Kind) (body.Data, error) {
	sink := o.Body.Consume(kind)

	select {
	case <-sink.Done():
		return sink.Result()
	case <-o.done:
		if o.err != nil {
			return nil, o.err
		}
		return sink.Wait(ctx)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
