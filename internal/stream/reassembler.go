// Package stream turns raw downstream byte chunks into upstream SSE events.
package stream

import (
	"strings"
	"unicode/utf8"
)

// Reassembler decodes a UTF-8 byte stream whose chunk boundaries may split a
// multi-byte sequence. Incomplete trailing bytes are held back and prepended
// to the next chunk, so no chunk boundary ever yields a mangled rune.
type Reassembler struct {
	pending []byte
}

// Decode appends chunk to any held-back bytes and returns the longest prefix
// that ends on a rune boundary. The incomplete tail, at most three bytes,
// stays buffered for the next call.
func (r *Reassembler) Decode(chunk []byte) string {
	buf := append(r.pending, chunk...)
	r.pending = nil

	cut := len(buf)

	// A multi-byte sequence is at most four bytes, so only the last few
	// bytes can belong to an unfinished rune.
	for back := 1; back <= 4 && back <= len(buf); back++ {
		b := buf[len(buf)-back]

		if b < 0x80 {
			break
		}

		if b >= 0xC0 {
			// Lead byte: hold the sequence back unless it is already
			// complete within the buffer.
			if expectedLen(b) > back {
				cut = len(buf) - back
			}

			break
		}
	}

	if cut < len(buf) {
		r.pending = append(r.pending, buf[cut:]...)
		buf = buf[:cut]
	}

	if len(buf) == 0 {
		return ""
	}

	return strings.ToValidUTF8(string(buf), string(utf8.RuneError))
}

// Flush releases any held-back bytes at end of stream. A tail that never
// completed decodes as replacement runes rather than being dropped.
func (r *Reassembler) Flush() string {
	if len(r.pending) == 0 {
		return ""
	}

	out := strings.ToValidUTF8(string(r.pending), string(utf8.RuneError))
	r.pending = nil

	return out
}

// expectedLen returns the sequence length a UTF-8 lead byte announces.
func expectedLen(lead byte) int {
	switch {
	case lead >= 0xF0:
		return 4
	case lead >= 0xE0:
		return 3
	case lead >= 0xC0:
		return 2
	default:
		return 1
	}
}
