package body

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Source is the object whose body is consumed, typically a request or a
// response.
type Source interface {
	// BodyUsed reports whether a consumption has ever started.
	BodyUsed() bool

	// IsLocked reports whether a reader currently holds the body.
	IsLocked() bool

	// SetBodySink marks the body used and records the consumption in flight.
	SetBodySink(sink *Sink, kind Kind)

	// TakeBody transfers ownership of the complete body. It returns false
	// while the body is still being received, and never returns true twice.
	TakeBody() ([]byte, bool)

	// MIMEType returns the declared content type.
	MIMEType() []byte
}

// Recorder receives consumption metrics.
type Recorder interface {
	ConsumptionStarted(kind Kind)
	ConsumptionSettled(kind Kind, code string, size int, duration time.Duration)
}

// Consumer consumes bodies at most once and settles a Sink with the result.
type Consumer struct {
	decoders *Decoders
	recorder Recorder
	logger   *logrus.Entry
}

// NewConsumer creates a consumer that decodes with decoders.
func NewConsumer(decoders *Decoders, logger *logrus.Entry) *Consumer {
	if logger == nil {
		logger = logrus.WithField("component", "body-consumer")
	}
	return &Consumer{
		decoders: decoders,
		logger:   logger,
	}
}

// SetRecorder installs a metrics recorder.
func (c *Consumer) SetRecorder(r Recorder) {
	c.recorder = r
}

// Consume starts consuming src as kind and returns the Sink observing the
// result. A source that is used or locked yields an already rejected Sink,
// as does an invalid kind, which leaves src untouched.
//
// If src implements sync.Locker it is held across the used/locked check and
// SetBodySink, so concurrent calls cannot both pass the check.
func (c *Consumer) Consume(src Source, kind Kind) *Sink {
	if !kind.Valid() {
		c.logger.WithField("kind", kind.String()).Warn("Body consumption refused: unknown kind")
		return rejectedSink(fmt.Errorf("%w: %v", ErrUnknownKind, kind))
	}

	guard, guarded := src.(sync.Locker)
	if guarded {
		guard.Lock()
	}
	if src.BodyUsed() || src.IsLocked() {
		if guarded {
			guard.Unlock()
		}
		c.logger.WithField("kind", kind.String()).Warn("Body consumption refused: stream disturbed or locked")
		if c.recorder != nil {
			c.recorder.ConsumptionSettled(kind, CodeDisturbed, 0, 0)
		}
		return rejectedSink(ErrDisturbedOrLocked)
	}
	sink := NewSink()
	src.SetBodySink(sink, kind)
	if guarded {
		guard.Unlock()
	}

	if c.recorder != nil {
		c.recorder.ConsumptionStarted(kind)
	}
	c.Drive(src, kind, sink)
	return sink
}

// Drive decodes the body of src into sink once the body is complete. While
// the body is still being received it returns without touching sink; the
// source calls Drive again when the body completes.
func (c *Consumer) Drive(src Source, kind Kind, sink *Sink) {
	buf, ok := src.TakeBody()
	if !ok {
		c.logger.WithField("kind", kind.String()).Debug("Body not complete yet, consumption deferred")
		return
	}

	start := time.Now()
	size := len(buf)
	data, err := c.decoders.Decode(kind, buf, src.MIMEType())
	if exc, ok := data.(JSException); ok && err == nil {
		err = &ForeignException{Value: exc.Value}
	}

	code := "resolved"
	if err != nil {
		code = ErrorCode(err)
	}
	logger := c.logger.WithFields(logrus.Fields{
		"kind":     kind.String(),
		"bytes":    size,
		"outcome":  code,
		"duration": time.Since(start),
	})
	if c.recorder != nil {
		c.recorder.ConsumptionSettled(kind, code, size, time.Since(start))
	}

	if err != nil {
		var foreign *ForeignException
		if errors.As(err, &foreign) {
			logger.Debug("Body consumption rejected with runtime exception")
		} else {
			logger.WithError(err).Debug("Body consumption rejected")
		}
		sink.Reject(err)
		return
	}
	logger.Debug("Body consumed")
	sink.Resolve(data)
}
