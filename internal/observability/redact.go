package observability

import (
	"regexp"
	"strings"

	"github.com/haasonsaas/loom/pkg/models"
)

// sensitiveKeySubstrings marks a map key as sensitive if it contains any of
// these substrings, case-insensitively.
var sensitiveKeySubstrings = []string{
	"token", "secret", "password", "api_key", "apikey",
	"authorization", "cookie", "sessionid", "private_key",
}

const redactedPlaceholder = "***REDACTED***"

var (
	emailPattern  = regexp.MustCompile(`\b([A-Za-z0-9._%+\-]+)@([A-Za-z0-9.\-]+)(\.[A-Za-z]{2,})\b`)
	bearerPattern = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._\-]+`)

	// secretShapePatterns catches common provider-shaped secrets that don't
	// sit behind a recognizably-named key: Anthropic, OpenAI/GitHub-style
	// "prefix_" tokens, and Slack tokens.
	secretShapePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{10,}\b`),
		regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}\b`),
		regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}\b`),
	}
)

// isSensitiveKey reports whether key should have its value masked
// regardless of content.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sub := range sensitiveKeySubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// redactString applies email masking, Bearer-token masking, and
// provider-shaped secret masking to a single string value.
func redactString(s string) string {
	s = emailPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := emailPattern.FindStringSubmatch(match)
		local, domain := parts[1], parts[2]
		return maskHead(local) + "@" + maskHead(domain) + parts[3]
	})
	s = bearerPattern.ReplaceAllString(s, "Bearer "+redactedPlaceholder)
	for _, re := range secretShapePatterns {
		s = re.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}

// maskHead keeps the first character of s (if any) and replaces the rest
// with "***", matching the x***@y***.tld shape.
func maskHead(s string) string {
	if s == "" {
		return "***"
	}
	return s[:1] + "***"
}

// RedactValue recursively redacts a value: maps have sensitive-keyed entries
// masked outright and other string values content-scanned; slices are
// redacted element-wise; strings are content-scanned; everything else passes
// through unchanged.
func RedactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if isSensitiveKey(k) {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = RedactValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = RedactValue(inner)
		}
		return out
	case string:
		return redactString(val)
	default:
		return val
	}
}

// RedactEvent returns a copy of event with ErrorMessage and Attrs redacted.
// EventID, timestamps, and routing fields (session/channel/run/turn) pass
// through untouched since they're not attacker-controlled free text.
func RedactEvent(event models.DiagnosticEvent) models.DiagnosticEvent {
	event.ErrorMessage = redactString(event.ErrorMessage)
	if event.Attrs != nil {
		if redacted, ok := RedactValue(event.Attrs).(map[string]any); ok {
			event.Attrs = redacted
		}
	}
	return event
}
