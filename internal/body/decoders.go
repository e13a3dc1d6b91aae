package body

import (
	"fmt"
	"mime"
	"sync"
	"unicode/utf16"
	"unicode/utf8"
)

// Runtime is the script runtime that owns JSON values and array buffers.
//
// The runtime keeps a pending exception slot that ParseJSON fills on
// failure. Callers must hold the runtime's lock from ParseJSON until the
// exception has been taken so that no unrelated operation observes it.
type Runtime interface {
	sync.Locker

	// ParseJSON parses UTF-16 text. On failure it returns false and leaves
	// an exception pending.
	ParseJSON(text []uint16) (any, bool)

	// TakePendingException returns and clears the pending exception.
	TakePendingException() (any, bool)

	// NewArrayBuffer allocates a runtime buffer holding a copy of data.
	NewArrayBuffer(data []byte) (any, bool)
}

// Decoders turns body bytes into Data. The decoders share no mutable state;
// the runtime is only touched by the JSON and array buffer decoders.
type Decoders struct {
	runtime Runtime
}

// NewDecoders returns decoders backed by rt.
func NewDecoders(rt Runtime) *Decoders {
	return &Decoders{runtime: rt}
}

// Decode runs the decoder registered for kind. It takes ownership of b.
func (d *Decoders) Decode(kind Kind, b []byte, contentType []byte) (Data, error) {
	switch kind {
	case KindText:
		return d.Text(b)
	case KindJSON:
		return d.JSON(b)
	case KindBlob:
		return d.Blob(b, contentType)
	case KindFormData:
		return d.FormData(b, contentType)
	case KindArrayBuffer:
		return d.ArrayBuffer(b)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
}

// Text decodes b as UTF-8, replacing invalid sequences. It never fails.
func (d *Decoders) Text(b []byte) (Data, error) {
	return Text(decodeUTF8Lossy(b)), nil
}

// JSON parses b with the runtime. A parse failure is returned as a
// JSException variant, not as an error, and the runtime's pending exception
// is cleared before returning.
func (d *Decoders) JSON(b []byte) (Data, error) {
	text := utf16.Encode([]rune(decodeUTF8Lossy(b)))

	d.runtime.Lock()
	defer d.runtime.Unlock()

	value, ok := d.runtime.ParseJSON(text)
	if ok {
		return JSONValue{Value: value}, nil
	}
	exception, ok := d.runtime.TakePendingException()
	if !ok {
		return nil, fmt.Errorf("JSON parse failed without an exception: %w", ErrRuntimeFailure)
	}
	return JSException{Value: exception}, nil
}

// Blob wraps b with the declared content type, or with an empty type when
// the declared type is not valid UTF-8. It never fails.
func (d *Decoders) Blob(b []byte, contentType []byte) (Data, error) {
	typ := ""
	if utf8.Valid(contentType) {
		typ = string(contentType)
	}
	return NewBlob(b, typ), nil
}

// FormData parses b as application/x-www-form-urlencoded. Every other
// content type, multipart/form-data included, is rejected.
func (d *Decoders) FormData(b []byte, contentType []byte) (Data, error) {
	declared := ""
	if utf8.Valid(contentType) {
		declared = string(contentType)
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInappropriateMIME, declared, err)
	}
	if mediaType != "application/x-www-form-urlencoded" {
		return nil, fmt.Errorf("%w: %q", ErrInappropriateMIME, mediaType)
	}
	return parseURLEncoded(b), nil
}

// ArrayBuffer copies b into a runtime buffer.
func (d *Decoders) ArrayBuffer(b []byte) (Data, error) {
	d.runtime.Lock()
	handle, ok := d.runtime.NewArrayBuffer(b)
	d.runtime.Unlock()
	if !ok {
		return nil, fmt.Errorf("array buffer of %d bytes: %w", len(b), ErrRuntimeFailure)
	}
	return ArrayBuffer{Handle: handle}, nil
}
