package body

import (
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Blob is an immutable chunk of bytes with a content type.
type Blob struct {
	id          uuid.UUID
	contentType string
	data        []byte
}

// NewBlob wraps data. The blob takes ownership of data; callers must not
// modify it afterwards.
func NewBlob(data []byte, contentType string) *Blob {
	return &Blob{
		id:          uuid.New(),
		contentType: contentType,
		data:        data,
	}
}

// RestoreBlob rebuilds a blob that was persisted under id.
func RestoreBlob(id uuid.UUID, data []byte, contentType string) *Blob {
	return &Blob{id: id, contentType: contentType, data: data}
}

// ID identifies the blob, e.g. as a storage key.
func (b *Blob) ID() uuid.UUID { return b.id }

// Type returns the blob's content type, possibly empty.
func (b *Blob) Type() string { return b.contentType }

// Size returns the number of bytes in the blob.
func (b *Blob) Size() int { return len(b.data) }

// Bytes returns a copy of the blob contents.
func (b *Blob) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Digest returns the hex-encoded BLAKE2b-256 digest of the contents.
func (b *Blob) Digest() string {
	sum := blake2b.Sum256(b.data)
	return hex.EncodeToString(sum[:])
}

// Slice returns a new blob over data[start:end]. Negative offsets count from
// the end, and out-of-range offsets are clamped.
func (b *Blob) Slice(start, end int, contentType string) *Blob {
	size := len(b.data)
	clamp := func(v int) int {
		if v < 0 {
			v += size
		}
		if v < 0 {
			return 0
		}
		if v > size {
			return size
		}
		return v
	}
	from, to := clamp(start), clamp(end)
	if to < from {
		to = from
	}
	part := make([]byte, to-from)
	copy(part, b.data[from:to])
	return NewBlob(part, contentType)
}
