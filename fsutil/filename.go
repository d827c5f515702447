package fsutil

import (
	"strings"
	"unicode/utf8"
)

// maxFilenameBytes bounds sanitized names in UTF-8 bytes, leaving headroom
// for per-kind suffixes under common 255-byte filesystem limits.
const maxFilenameBytes = 150

const fallbackFilename = "untitled"

// SanitizeFilename normalizes an arbitrary title into a safe filename:
// reserved and control characters become underscores, surrounding
// whitespace and dots are stripped, and the result is truncated to
// maxFilenameBytes on a rune boundary. Empty input yields a deterministic
// fallback. The function is idempotent.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), " .")
	out = truncateRuneSafe(out, maxFilenameBytes)
	// Truncation can expose new trailing dots or spaces.
	out = strings.Trim(out, " .")
	if out == "" {
		return fallbackFilename
	}
	return out
}

func truncateRuneSafe(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
