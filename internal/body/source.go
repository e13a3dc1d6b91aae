package body

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrBodyComplete is returned when bytes are written after Finish.
	ErrBodyComplete = errors.New("body already complete")

	// ErrBodyTooLarge is returned when a write exceeds the body limit.
	ErrBodyTooLarge = errors.New("body exceeds size limit")
)

// Body is a Source fed by a transport. Bytes arrive through Write and the
// transport calls Finish once the stream ends; a consumption started before
// that stays pending until Finish re-drives it.
type Body struct {
	// guard serializes the used/locked check-and-set of Consumer.Consume.
	guard sync.Mutex

	mu          sync.Mutex
	consumer    *Consumer
	contentType []byte
	buffer      []byte
	limit       int64
	complete    bool
	taken       bool
	used        bool
	readers     int
	sink        *Sink
	kind        Kind
}

// NewBody creates an empty, incomplete body with the declared content type.
func NewBody(consumer *Consumer, contentType string) *Body {
	return &Body{
		consumer:    consumer,
		contentType: []byte(contentType),
	}
}

// NewCompleteBody creates a body whose bytes are already fully received.
func NewCompleteBody(consumer *Consumer, contentType []byte, data []byte) *Body {
	return &Body{
		consumer:    consumer,
		contentType: contentType,
		buffer:      data,
		complete:    true,
	}
}

// Lock acquires the consumption guard.
func (b *Body) Lock() { b.guard.Lock() }

// Unlock releases the consumption guard.
func (b *Body) Unlock() { b.guard.Unlock() }

// SetLimit caps the number of bytes Write accepts. Zero means no limit.
func (b *Body) SetLimit(n int64) {
	b.mu.Lock()
	b.limit = n
	b.mu.Unlock()
}

// Write appends p to the body.
func (b *Body) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.complete {
		return 0, ErrBodyComplete
	}
	if b.limit > 0 && int64(len(b.buffer)+len(p)) > b.limit {
		return 0, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, b.limit)
	}
	b.buffer = append(b.buffer, p...)
	return len(p), nil
}

// Finish marks the body complete. A consumption waiting for the bytes is
// driven to settlement before Finish returns.
func (b *Body) Finish() error {
	b.mu.Lock()
	if b.complete {
		b.mu.Unlock()
		return ErrBodyComplete
	}
	b.complete = true
	sink, kind, waiting := b.sink, b.kind, b.sink != nil && !b.taken
	b.mu.Unlock()

	if waiting {
		b.consumer.Drive(b, kind, sink)
	}
	return nil
}

// Len returns the number of bytes received so far, or zero once taken.
func (b *Body) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// BodyUsed implements Source.
func (b *Body) BodyUsed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// IsLocked implements Source.
func (b *Body) IsLocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readers > 0
}

// SetBodySink implements Source.
func (b *Body) SetBodySink(sink *Sink, kind Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = true
	b.sink = sink
	b.kind = kind
}

// TakeBody implements Source.
func (b *Body) TakeBody() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.complete || b.taken {
		return nil, false
	}
	b.taken = true
	buf := b.buffer
	b.buffer = nil
	return buf, true
}

// MIMEType implements Source.
func (b *Body) MIMEType() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.contentType
}

// AcquireReader locks the body for an external reader. It fails once a
// consumption has started.
func (b *Body) AcquireReader() error {
	b.guard.Lock()
	defer b.guard.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used {
		return ErrDisturbedOrLocked
	}
	b.readers++
	return nil
}

// ReleaseReader releases a reader acquired with AcquireReader.
func (b *Body) ReleaseReader() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readers > 0 {
		b.readers--
	}
}

// InFlight returns the consumption recorded by SetBodySink, if any.
func (b *Body) InFlight() (Kind, *Sink, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.kind, b.sink, b.sink != nil
}

// Consume consumes the body as kind.
func (b *Body) Consume(kind Kind) *Sink { return b.consumer.Consume(b, kind) }

// Text consumes the body as text.
func (b *Body) Text() *Sink { return b.Consume(KindText) }

// JSON consumes the body as a JSON value.
func (b *Body) JSON() *Sink { return b.Consume(KindJSON) }

// Blob consumes the body as a blob.
func (b *Body) Blob() *Sink { return b.Consume(KindBlob) }

// FormData consumes the body as urlencoded form data.
func (b *Body) FormData() *Sink { return b.Consume(KindFormData) }

// ArrayBuffer consumes the body as a runtime array buffer.
func (b *Body) ArrayBuffer() *Sink { return b.Consume(KindArrayBuffer) }
