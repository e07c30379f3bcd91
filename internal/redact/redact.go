package redact

import (
	"regexp"
	"strings"
)

var (
	// https://api.telegram.org/bot<token>/method, as found in transport errors
	apiURLPattern = regexp.MustCompile(`/bot\d+:[A-Za-z0-9_-]+`)

	// Bare bot tokens (digits:alphanumeric); the first six digits stay
	botTokenPattern = regexp.MustCompile(`\b(\d{6})\d*:[A-Za-z0-9_-]{10,}\b`)

	bearerPattern = regexp.MustCompile(`\bBearer\s+[A-Za-z0-9_\-\.]+`)

	// Long hex strings, e.g. webhook secrets
	hexPattern = regexp.MustCompile(`\b[a-fA-F0-9]{32,}\b`)
)

// Redact masks credentials in s so it can be logged.
func Redact(s string) string {
	if s == "" || !mayContainSecret(s) {
		return s
	}

	s = apiURLPattern.ReplaceAllString(s, "/bot***")
	s = botTokenPattern.ReplaceAllString(s, "$1***")
	s = bearerPattern.ReplaceAllString(s, "Bearer ***")
	s = hexPattern.ReplaceAllStringFunc(s, func(match string) string {
		return match[:6] + "***"
	})
	return s
}

// mayContainSecret skips the regexps for the common short log line.
func mayContainSecret(s string) bool {
	return len(s) >= 16 && (strings.ContainsRune(s, ':') || strings.Contains(s, "Bearer") || hasHexRun(s))
}

func hasHexRun(s string) bool {
	run := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			run++
			if run >= 32 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}
