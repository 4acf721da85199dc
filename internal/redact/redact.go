// Package redact strips remote API credentials from strings before they are
// logged or returned in error bodies.
package redact

import "regexp"

const (
	// RedactedKeyPlaceholder replaces an API key or personal access token.
	RedactedKeyPlaceholder = "[REDACTED_KEY]"
)

var (
	bearerRegex = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9_\-.~+/=]{8,}`)
	// Personal access tokens look like pat<14 chars>.<64 hex chars>; legacy
	// keys look like key<14 chars>.
	patRegex    = regexp.MustCompile(`\bpat[A-Za-z0-9]{14}\.[A-Fa-f0-9]{16,}\b`)
	legacyRegex = regexp.MustCompile(`\bkey[A-Za-z0-9]{14}\b`)
	apiKeyRegex = regexp.MustCompile(`(?i)(api[_-]?key|token|secret)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`)
)

// String redacts credentials from input.
func String(input string) string {
	if input == "" {
		return input
	}
	result := bearerRegex.ReplaceAllString(input, "${1}"+RedactedKeyPlaceholder)
	result = patRegex.ReplaceAllString(result, RedactedKeyPlaceholder)
	result = legacyRegex.ReplaceAllString(result, RedactedKeyPlaceholder)
	result = apiKeyRegex.ReplaceAllString(result, "${1}${2}"+RedactedKeyPlaceholder)
	return result
}

// Error redacts credentials from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Secret masks a configured secret for display, keeping only its first
// three characters.
func Secret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 3 {
		return RedactedKeyPlaceholder
	}
	return s[:3] + "..." + RedactedKeyPlaceholder
}
