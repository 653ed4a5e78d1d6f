package process

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Decode converts a chunk of program output to a string. Chunks that are not
// valid UTF-8 are read as ISO-8859-1; repaired reports whether that happened.
func Decode(chunk []byte) (text string, repaired bool) {
	if utf8.Valid(chunk) {
		return string(chunk), false
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(chunk)
	if err != nil {
		return string(chunk), true
	}
	return string(decoded), true
}

// splitIncomplete separates a trailing partial UTF-8 sequence from buf so a
// multi-byte character cut by a read boundary is completed by the next read.
func splitIncomplete(buf []byte) (complete, rest []byte) {
	start := len(buf) - utf8.UTFMax + 1
	if start < 0 {
		start = 0
	}
	for i := len(buf) - 1; i >= start; i-- {
		if !utf8.RuneStart(buf[i]) {
			continue
		}
		if utf8.FullRune(buf[i:]) {
			return buf, nil
		}
		return buf[:i], buf[i:]
	}
	return buf, nil
}
