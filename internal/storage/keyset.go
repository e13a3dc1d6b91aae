package storage

import (
	"fmt"
	"io"
	"os"

	"github.com/google/tink/go/aead"
	"github.com/google/tink/go/insecurecleartextkeyset"
	"github.com/google/tink/go/keyset"
	"github.com/google/tink/go/tink"
)

// LoadKeyset reads a cleartext JSON keyset and returns its AEAD primitive
func LoadKeyset(path string) (tink.AEAD, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open keyset: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadKeyset(f)
}

// ReadKeyset parses a cleartext JSON keyset
func ReadKeyset(r io.Reader) (tink.AEAD, error) {
	handle, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(r))
	if err != nil {
		return nil, fmt.Errorf("failed to read keyset: %w", err)
	}
	primitive, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD primitive: %w", err)
	}
	return primitive, nil
}

// WriteNewKeyset generates an AES256-GCM keyset and writes it as cleartext JSON
func WriteNewKeyset(w io.Writer) error {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return fmt.Errorf("failed to generate keyset: %w", err)
	}
	if err := insecurecleartextkeyset.Write(handle, keyset.NewJSONWriter(w)); err != nil {
		return fmt.Errorf("failed to write keyset: %w", err)
	}
	return nil
}
