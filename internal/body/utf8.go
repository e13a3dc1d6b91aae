package body

import (
	"strings"
	"unicode/utf8"
)

// decodeUTF8Lossy decodes b as UTF-8, replacing each maximal invalid subpart
// with U+FFFD. This matches the WHATWG decoder, which emits one replacement
// for a truncated multi-byte sequence rather than one per byte.
func decodeUTF8Lossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for i := 0; i < len(b); {
		if b[i] < utf8.RuneSelf {
			sb.WriteByte(b[i])
			i++
			continue
		}
		r, size := utf8.DecodeRune(b[i:])
		if r != utf8.RuneError || size > 1 {
			sb.WriteRune(r)
			i += size
			continue
		}
		sb.WriteRune(utf8.RuneError)
		i += invalidSubpartLen(b[i:])
	}
	return sb.String()
}

// invalidSubpartLen returns the length of the maximal subpart of an ill-formed
// sequence starting at b[0]. It is always at least 1.
func invalidSubpartLen(b []byte) int {
	lead := b[0]
	var need int
	lower, upper := byte(0x80), byte(0xBF)
	switch {
	case lead >= 0xC2 && lead <= 0xDF:
		need = 1
	case lead == 0xE0:
		need, lower = 2, 0xA0
	case lead >= 0xE1 && lead <= 0xEC, lead == 0xEE, lead == 0xEF:
		need = 2
	case lead == 0xED:
		need, upper = 2, 0x9F
	case lead == 0xF0:
		need, lower = 3, 0x90
	case lead >= 0xF1 && lead <= 0xF3:
		need = 3
	case lead == 0xF4:
		need, upper = 3, 0x8F
	default:
		return 1
	}

	n := 1
	for ; n <= need && n < len(b); n++ {
		c := b[n]
		if c < lower || c > upper {
			break
		}
		lower, upper = 0x80, 0xBF
	}
	return n
}
