package sanitize

import (
	"strings"
	"unicode"
)

// StripControlChars removes non-printable control characters except newline,
// carriage return and tab.
func StripControlChars(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	for _, r := range s {
		if r == '\n' || r == '\t' || r == '\r' {
			builder.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		builder.WriteRune(r)
	}

	return builder.String()
}

// OneLine strips control characters and collapses every whitespace run,
// newlines included, into a single space.
func OneLine(s string) string {
	return strings.Join(strings.Fields(StripControlChars(s)), " ")
}
