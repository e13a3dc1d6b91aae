// Package engine is the script runtime that backs JSON and array buffer
// consumption. Values are protobuf well-known types so they can be handed to
// gRPC and JSON transports without conversion.
package engine

import (
	"fmt"
	"math"
	"sync"
	"unicode/utf16"

	"github.com/sirupsen/logrus"
)

// DefaultMaxArrayBufferLength matches the 2 GiB limit common to script
// engines.
const DefaultMaxArrayBufferLength = math.MaxInt32

// SyntaxError is the exception raised when JSON text fails to parse.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string {
	return "SyntaxError: " + e.Message
}

// Name returns the exception's constructor name.
func (e *SyntaxError) Name() string { return "SyntaxError" }

// ArrayBuffer is a fixed-length byte buffer owned by the runtime.
type ArrayBuffer struct {
	data []byte
}

// ByteLength returns the buffer length.
func (a *ArrayBuffer) ByteLength() int { return len(a.data) }

// Bytes returns a copy of the buffer contents.
func (a *ArrayBuffer) Bytes() []byte {
	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// Runtime holds the pending exception slot and allocation limits. Lock and
// Unlock delimit a turn; operations that raise an exception and the code
// that takes it must run within the same turn.
type Runtime struct {
	turn sync.Mutex

	mu                   sync.Mutex
	pending              any
	hasPending           bool
	maxArrayBufferLength int
	logger               *logrus.Entry
}

// Config holds runtime limits.
type Config struct {
	MaxArrayBufferLength int
}

// New creates a runtime. A zero MaxArrayBufferLength selects the default.
func New(cfg *Config) *Runtime {
	limit := DefaultMaxArrayBufferLength
	if cfg != nil && cfg.MaxArrayBufferLength > 0 {
		limit = cfg.MaxArrayBufferLength
	}
	return &Runtime{
		maxArrayBufferLength: limit,
		logger:               logrus.WithField("component", "runtime"),
	}
}

// Lock starts a turn.
func (r *Runtime) Lock() { r.turn.Lock() }

// Unlock ends a turn.
func (r *Runtime) Unlock() { r.turn.Unlock() }

// ParseJSON parses UTF-16 JSON text into a *structpb.Value with JSON.parse
// semantics. On failure a *SyntaxError is left pending and false is returned.
func (r *Runtime) ParseJSON(text []uint16) (any, bool) {
	value, err := parseJSON([]byte(string(utf16.Decode(text))))
	if err != nil {
		r.Throw(&SyntaxError{Message: fmt.Sprintf("JSON.parse: %v", err)})
		return nil, false
	}
	return value, true
}

// Throw sets the pending exception, replacing any previous one.
func (r *Runtime) Throw(exception any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasPending {
		r.logger.WithField("replaced", r.pending).Debug("Pending exception overwritten")
	}
	r.pending, r.hasPending = exception, true
}

// TakePendingException returns and clears the pending exception.
func (r *Runtime) TakePendingException() (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasPending {
		return nil, false
	}
	exception := r.pending
	r.pending, r.hasPending = nil, false
	return exception, true
}

// HasPendingException reports whether an exception is pending.
func (r *Runtime) HasPendingException() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasPending
}

// NewArrayBuffer allocates a buffer holding a copy of data. It fails without
// raising an exception when data exceeds the configured maximum length.
func (r *Runtime) NewArrayBuffer(data []byte) (any, bool) {
	if len(data) > r.maxArrayBufferLength {
		r.logger.WithFields(logrus.Fields{
			"length": len(data),
			"max":    r.maxArrayBufferLength,
		}).Debug("Array buffer allocation refused")
		return nil, false
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &ArrayBuffer{data: buf}, true
}
