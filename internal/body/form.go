package body

import (
	"bytes"
	"strings"
)

// FormEntry is a single name/value pair of a form.
type FormEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FormData is an ordered list of form entries. Duplicate names are kept.
type FormData struct {
	entries []FormEntry
}

// NewFormData returns an empty form.
func NewFormData() *FormData {
	return &FormData{}
}

// Append adds an entry at the end of the form.
func (f *FormData) Append(name, value string) {
	f.entries = append(f.entries, FormEntry{Name: name, Value: value})
}

// Get returns the value of the first entry named name.
func (f *FormData) Get(name string) (string, bool) {
	for _, e := range f.entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

// GetAll returns the values of every entry named name, in order.
func (f *FormData) GetAll(name string) []string {
	var values []string
	for _, e := range f.entries {
		if e.Name == name {
			values = append(values, e.Value)
		}
	}
	return values
}

// Has reports whether an entry named name exists.
func (f *FormData) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

// Entries returns a copy of the entries in order.
func (f *FormData) Entries() []FormEntry {
	out := make([]FormEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Len returns the number of entries.
func (f *FormData) Len() int {
	return len(f.entries)
}

// Encode serializes the form as application/x-www-form-urlencoded.
func (f *FormData) Encode() string {
	var sb strings.Builder
	for i, e := range f.entries {
		if i > 0 {
			sb.WriteByte('&')
		}
		writeFormComponent(&sb, e.Name)
		sb.WriteByte('=')
		writeFormComponent(&sb, e.Value)
	}
	return sb.String()
}

const upperhex = "0123456789ABCDEF"

// writeFormComponent applies the urlencoded byte serializer: ASCII
// alphanumerics and *-._ pass through, space becomes '+', the rest is
// percent-encoded.
func writeFormComponent(sb *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			sb.WriteByte('+')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '*', c == '-', c == '.', c == '_':
			sb.WriteByte(c)
		default:
			sb.WriteByte('%')
			sb.WriteByte(upperhex[c>>4])
			sb.WriteByte(upperhex[c&0x0F])
		}
	}
}

// parseURLEncoded parses an application/x-www-form-urlencoded payload.
// Empty sequences are skipped, a sequence without '=' yields an empty
// value, and malformed percent escapes are kept literally.
func parseURLEncoded(input []byte) *FormData {
	form := NewFormData()
	for len(input) > 0 {
		var seq []byte
		if i := bytes.IndexByte(input, '&'); i >= 0 {
			seq, input = input[:i], input[i+1:]
		} else {
			seq, input = input, nil
		}
		if len(seq) == 0 {
			continue
		}
		name, value := seq, []byte(nil)
		if i := bytes.IndexByte(seq, '='); i >= 0 {
			name, value = seq[:i], seq[i+1:]
		}
		form.Append(decodeFormComponent(name), decodeFormComponent(value))
	}
	return form
}

func decodeFormComponent(b []byte) string {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case c == '+':
			out = append(out, ' ')
		case c == '%' && i+2 < len(b) && isHex(b[i+1]) && isHex(b[i+2]):
			out = append(out, unhex(b[i+1])<<4|unhex(b[i+2]))
			i += 2
		default:
			out = append(out, c)
		}
	}
	return decodeUTF8Lossy(out)
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
