// Package redact scrubs secrets and host paths from text that leaves the
// machine: alert messages, audit entries and error strings.
package redact

import (
	"regexp"
	"strings"
)

var sensitivePatterns = []*regexp.Regexp{
	// Telegram bot tokens, bare or inside a bot API URL
	regexp.MustCompile(`\d{6,12}:[A-Za-z0-9_-]{30,}`),

	// GitHub
	regexp.MustCompile(`(?i)(github_token|gh_token|github_pat)\s*[=:]\s*['"]?[A-Za-z0-9_-]{30,}['"]?`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),

	// AWS
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

	// Generic API keys
	regexp.MustCompile(`(?i)(api_key|apikey|api-key|secret_key|secret-key|access_token|auth_token|bot_token|bottoken)\s*[=:]\s*['"]?[A-Za-z0-9_:-]{16,}['"]?`),

	// Private keys
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_.-]{20,}`),

	// Basic auth in URLs
	regexp.MustCompile(`https?://[^:/\s]+:[^@\s]+@`),

	// Slack tokens
	regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}[a-zA-Z0-9-]*`),

	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{8,}['"]?`),
}

const redactedPlaceholder = "[REDACTED]"

// Redact replaces anything that looks like a credential.
func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, redactedPlaceholder)
	}
	return result
}

// Placeholders substituted for host paths.
const (
	BundlePlaceholder = "<openclaw-bundle>"
	ConfigPlaceholder = "<openclaw-config>"
)

// PathPrefix maps a directory to the placeholder that replaces it, along
// with the rest of the path that follows it.
type PathPrefix struct {
	Dir         string
	Placeholder string
}

// Sanitize replaces every occurrence of "<Dir>/<non-space>+" with its
// placeholder and then redacts secrets. Prefixes with an empty Dir are
// ignored.
func Sanitize(text string, prefixes ...PathPrefix) string {
	for _, p := range prefixes {
		dir := strings.TrimRight(p.Dir, "/")
		if dir == "" {
			continue
		}
		re := regexp.MustCompile(regexp.QuoteMeta(dir) + `/\S+`)
		text = re.ReplaceAllLiteralString(text, p.Placeholder)
	}
	return Redact(text)
}

// RedactArgs returns a copy of tool-call arguments with string values
// redacted, recursing into nested maps and slices.
func RedactArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return Redact(val)
	case map[string]any:
		return RedactArgs(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
