package session

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxInputSize is 4KB (conservative default).
const DefaultMaxInputSize = 4096

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeInput cleans user input by enforcing a size limit (in bytes),
// validating UTF-8, and stripping dangerous control characters.
// A non-positive limit disables the size check.
func SanitizeInput(input string, limit int) (string, error) {
	if limit > 0 && len(input) > limit {
		// Reject rather than truncate so the transcript records exactly what was validated.
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}

	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	// Newline, tab and carriage return survive; ESC, NUL, BEL and friends do not.
	// This prevents log poisoning and terminal corruption when transcripts are replayed.
	clean := true
	for _, r := range input {
		if unicode.IsControl(r) && !isSafeControl(r) {
			clean = false
			break
		}
	}
	if clean {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}
