package body

import (
	"fmt"
	"strings"
)

// Kind is the representation a body is consumed into.
type Kind int

const (
	KindText Kind = iota
	KindJSON
	KindBlob
	KindFormData
	KindArrayBuffer
)

// Kinds lists every representation kind in declaration order.
var Kinds = []Kind{KindText, KindJSON, KindBlob, KindFormData, KindArrayBuffer}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	return k >= KindText && k <= KindArrayBuffer
}

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindJSON:
		return "json"
	case KindBlob:
		return "blob"
	case KindFormData:
		return "formData"
	case KindArrayBuffer:
		return "arrayBuffer"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts the fetch method names (text, json, blob, formData,
// arrayBuffer) case-insensitively, with dashes and underscores ignored.
func ParseKind(s string) (Kind, error) {
	normalized := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(strings.TrimSpace(s)))
	switch normalized {
	case "text":
		return KindText, nil
	case "json":
		return KindJSON, nil
	case "blob":
		return KindBlob, nil
	case "formdata", "form":
		return KindFormData, nil
	case "arraybuffer", "bytes":
		return KindArrayBuffer, nil
	}
	return 0, fmt.Errorf("unknown body kind %q (supported: text, json, blob, formData, arrayBuffer)", s)
}
