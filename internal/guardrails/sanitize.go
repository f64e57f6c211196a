package guardrails

import "regexp"

// Output redaction patterns. Long opaque alphanumeric runs (≥32 chars)
// are heuristically API-key-shaped; they are redacted before any
// generated text leaves the service.
var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	tokenPattern = regexp.MustCompile(`\b[A-Za-z0-9_\-]{32,}\b`)
)

const (
	redactedEmail = "[redacted-email]"
	redactedPhone = "[redacted-phone]"
	redactedToken = "[redacted-token]"
)

// SanitizeOutput redacts emails, phone numbers, and API-key-shaped
// tokens from generated text. Idempotent: the replacement markers
// contain no characters that re-match any pattern.
func (v *Validator) SanitizeOutput(text string) string {
	return SanitizeOutput(text)
}

// SanitizeOutput is the package-level sanitizer; the Validator method
// exists to satisfy the GuardrailService contract.
func SanitizeOutput(text string) string {
	text = emailPattern.ReplaceAllString(text, redactedEmail)
	text = tokenPattern.ReplaceAllString(text, redactedToken)
	text = phonePattern.ReplaceAllString(text, redactedPhone)
	return text
}
