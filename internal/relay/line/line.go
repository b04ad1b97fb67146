// Package line reads and cleans line-oriented client input.
package line

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxSize - max length of single line in bytes, used when NewScanner gets non-positive max.
const DefaultMaxSize = 4096

// NewScanner - builds scanner which splits r into lines terminated by "\n".
// Trailing "\r" is dropped. A line longer than max bytes stops the scanner with bufio.ErrTooLong.
func NewScanner(r io.Reader, max int) *bufio.Scanner {
	if max <= 0 {
		max = DefaultMaxSize
	}
	initial := max
	if initial > DefaultMaxSize {
		initial = DefaultMaxSize
	}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, initial), max)
	s.Split(scanLines)
	return s
}

func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}
	if atEOF {
		// last line without EOL
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}

// Clean - drops invalid unicode sequences and control characters,
// any other space rune is replaced with ordinary space.
func Clean(s string) string {
	if isPlain(s) {
		return s
	}
	b := strings.Builder{}
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == utf8.RuneError && size <= 1:
			// drop
		case r == ' ':
			b.WriteByte(' ')
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case unicode.IsControl(r):
			// drop
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isPlain - reports s is valid printable ASCII, so Clean has nothing to do.
func isPlain(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c >= 0x7f {
			return false
		}
	}
	return true
}

// IsBlank - reports whether s has nothing except spaces.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
