// Package normalize canonicalizes tool-call arguments into the keys the
// guards count on. Two calls that normalize to the same key are duplicates.
package normalize

import (
	"strings"
	"unicode/utf8"
)

// MaxKeyRunes bounds how much of a key is echoed back in blocked payloads.
const MaxKeyRunes = 200

// Query returns the duplicate-detection key for a web_search query.
func Query(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// URL returns the duplicate-detection key for a web_fetch URL.
func URL(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

// Command returns the form of a shell command the exec deny-list matches
// against. Invisible format characters are dropped first so that
// "system\u200Bctl" cannot slip past a word-boundary pattern.
func Command(cmd string) string {
	var sb strings.Builder
	sb.Grow(len(cmd))
	for _, r := range cmd {
		if isInvisible(r) {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.ToLower(strings.TrimSpace(sb.String()))
}

// ReadPath extracts the target path of a read call. Hosts disagree on the
// argument name, so both "path" and "file_path" are accepted.
func ReadPath(args map[string]any) string {
	if args == nil {
		return ""
	}
	if p, ok := args["path"].(string); ok {
		return strings.TrimSpace(p)
	}
	if p, ok := args["file_path"].(string); ok {
		return strings.TrimSpace(p)
	}
	return ""
}

// StringArg returns args[name] when it is a string.
func StringArg(args map[string]any, name string) (string, bool) {
	if args == nil {
		return "", false
	}
	s, ok := args[name].(string)
	return s, ok
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func isInvisible(r rune) bool {
	switch r {
	case '\u200B', // ZERO WIDTH SPACE
		'\u200C', // ZERO WIDTH NON-JOINER
		'\u200D', // ZERO WIDTH JOINER
		'\uFEFF', // ZERO WIDTH NO-BREAK SPACE (BOM)
		'\u2060', // WORD JOINER
		'\u180E', // MONGOLIAN VOWEL SEPARATOR
		'\u200E', // LEFT-TO-RIGHT MARK
		'\u200F', // RIGHT-TO-LEFT MARK
		'\u00AD': // SOFT HYPHEN
		return true
	}
	// Bidi embeddings, overrides and isolates.
	if (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069') {
		return true
	}
	// Unicode tag characters.
	return r >= 0xE0001 && r <= 0xE007F
}
