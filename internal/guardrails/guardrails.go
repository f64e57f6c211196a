// Package guardrails implements the request-time input/output filter at
// the LLM boundary.
//
// Checks run in a fixed order: rate limit, length, blocked patterns
// (SQL-injection markers, script tags, code-execution markers), prompt
// injection, profanity, harmful intent. The first failing check wins.
// All checks are pure over the input text apart from the rate-limit
// counters; nothing here talks to a model provider.
package guardrails

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

const (
	DefaultMinQueryLen = 3
	DefaultMaxQueryLen = 500
)

// Validator evaluates queries against the guardrail rules.
// Safe for concurrent use.
type Validator struct {
	minLen  int
	maxLen  int
	limiter *RateLimiter
}

// Option configures the validator.
type Option func(*Validator)

// WithLengthBounds overrides the min/max query length.
func WithLengthBounds(min, max int) Option {
	return func(v *Validator) {
		v.minLen = min
		v.maxLen = max
	}
}

// WithRateLimit overrides the per-user requests-per-minute ceiling.
func WithRateLimit(perMinute int) Option {
	return func(v *Validator) {
		v.limiter = NewRateLimiter(perMinute)
	}
}

// NewValidator creates a validator with default bounds and a
// 30 req/min/user rate limiter.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		minLen:  DefaultMinQueryLen,
		maxLen:  DefaultMaxQueryLen,
		limiter: NewRateLimiter(DefaultRatePerMinute),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// All patterns below are Go regexps (RE2), which match in time linear
// in the input regardless of pattern shape. Detection stays bounded
// even on adversarial input.

var blockedPatterns = []*regexp.Regexp{
	// SQL injection markers
	regexp.MustCompile(`(?i)\bunion\s+select\b`),
	regexp.MustCompile(`(?i)\bdrop\s+table\b`),
	regexp.MustCompile(`(?i)\bdelete\s+from\b`),
	regexp.MustCompile(`(?i)\binsert\s+into\b`),
	regexp.MustCompile(`(?i)'\s*or\s+'?1'?\s*=\s*'?1`),
	regexp.MustCompile(`(?i);\s*--`),
	// Script tags
	regexp.MustCompile(`(?i)<\s*script\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	// Code-execution markers
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bexec\s*\(`),
	regexp.MustCompile(`(?i)\b__import__\s*\(`),
	regexp.MustCompile(`(?i)\bos\.system\s*\(`),
	regexp.MustCompile(`(?i)\bsubprocess\.`),
}

var injectionPatterns = []*regexp.Regexp{
	// Instruction-override language
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?|directions?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?|context)`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)override\s+(your|the|all)\s+(instructions?|rules?|guidelines?|settings?)`),
	// Role-switching language
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)act\s+as\s+if\s+you\s+(are|have)\s+no\s+(restrictions?|rules?|filters?)`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+(are|have))`),
	// Jailbreak markers
	regexp.MustCompile(`(?i)\bjailbreak\b`),
	regexp.MustCompile(`(?i)\bdo\s+anything\s+now\b`),
	regexp.MustCompile(`(?i)\bdan\s+mode\b`),
	regexp.MustCompile(`(?i)developer\s+mode`),
	// Delimiter-based injection
	regexp.MustCompile(`(?i)(---+|===+|###+)\s*(system|instructions?|prompt)`),
	regexp.MustCompile(`(?i)\[/?(system|inst)\]`),
	regexp.MustCompile(`(?i)<\|[a-z_]+\|>`),
	// Data-exfiltration phrasing
	regexp.MustCompile(`(?i)(reveal|show|print|repeat|output)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions?)`),
	regexp.MustCompile(`(?i)(show|give|send)\s+me\s+all\s+(the\s+)?(data|records?|users?|contents?)`),
	regexp.MustCompile(`(?i)export\s+(all|the)\s+(data|database|records?)`),
}

var profanityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bfuck(er|ing|ed)?\b`),
	regexp.MustCompile(`(?i)\bshit(ty|s)?\b`),
	regexp.MustCompile(`(?i)\basshole?s?\b`),
	regexp.MustCompile(`(?i)\bbitch(es)?\b`),
	regexp.MustCompile(`(?i)\bcunts?\b`),
}

var harmfulPatterns = []*regexp.Regexp{
	// Violence
	regexp.MustCompile(`(?i)how\s+to\s+(make|build|construct)\s+(a\s+)?(bomb|weapon|explosive)`),
	regexp.MustCompile(`(?i)(kill|hurt|harm|attack)\s+(someone|somebody|people|a\s+person)`),
	// Misinformation generation requests
	regexp.MustCompile(`(?i)(write|create|generate|spread)\s+(fake|false)\s+(news|reviews?|information)`),
	regexp.MustCompile(`(?i)(generate|write)\s+(misinformation|disinformation|propaganda)`),
}

// ValidateQuery runs all input checks and returns the first failure.
// userID may be empty; rate limiting then applies to the anonymous bucket.
func (v *Validator) ValidateQuery(query, userID string) models.GuardrailVerdict {
	if !v.limiter.Allow(userID) {
		return models.Reject(models.VerdictRateLimited, "Too many requests. Please wait a moment and try again.")
	}

	n := utf8.RuneCountInString(strings.TrimSpace(query))
	if n < v.minLen {
		return models.Reject(models.VerdictTooShort, fmt.Sprintf("Query must be at least %d characters.", v.minLen))
	}
	if n > v.maxLen {
		return models.Reject(models.VerdictTooLong, fmt.Sprintf("Query must be at most %d characters.", v.maxLen))
	}

	// Injection phrasings are matched against whitespace-normalized text
	// so tabs, newlines, NBSP runs, and similar separator tricks cannot
	// split a phrase past the patterns.
	normalized := NormalizeWhitespace(query)

	for _, re := range blockedPatterns {
		if re.MatchString(normalized) {
			return models.Reject(models.VerdictBlocked, "Query contains a blocked pattern.")
		}
	}
	for _, re := range injectionPatterns {
		if re.MatchString(normalized) {
			return models.Reject(models.VerdictInjection, "Query resembles a prompt-injection attempt.")
		}
	}
	for _, re := range profanityPatterns {
		if re.MatchString(normalized) {
			return models.Reject(models.VerdictProfanity, "Please rephrase without profanity.")
		}
	}
	for _, re := range harmfulPatterns {
		if re.MatchString(normalized) {
			return models.Reject(models.VerdictHarmful, "This request cannot be processed.")
		}
	}

	return models.Accept()
}

// NormalizeWhitespace collapses every run of Unicode whitespace and
// common obfuscating separators (NBSP, zero-width space) to a single
// space. Single pass, O(len(s)).
func NormalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		if unicode.IsSpace(r) || r == '\u00a0' || r == '\u200b' || r == '\ufeff' {
			if !inRun {
				b.WriteByte(' ')
				inRun = true
			}
			continue
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}
