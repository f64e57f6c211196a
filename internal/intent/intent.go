// Package intent classifies chat queries into the closed intent set
// the RAG pipeline routes on. Classification is best-effort: any
// failure degrades to conversational with zero confidence rather than
// surfacing an error, so a flaky model never blocks a chat turn.
package intent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/pkg/contracts"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// historyWindow is how many trailing conversation turns inform the
// classifier. More adds cost without improving accuracy.
const historyWindow = 6

const systemPrompt = `You classify user queries for a market intelligence assistant.
Respond with JSON only: {"intent": "<intent>", "confidence": <0.0-1.0>}
Valid intents:
- conversational: greetings, small talk, follow-up chatter
- pain_point_lookup: asking about customer complaints, frustrations, problems
- influencer_lookup: asking about voices, authors, accounts driving discussion
- trend_summary: asking for themes, trends, summaries over time
- out_of_scope: unrelated to the campaign or market research`

// Classifier implements contracts.IntentService on top of a completion
// provider.
type Classifier struct {
	provider contracts.CompletionProvider
	timeout  time.Duration
}

// Option configures the classifier.
type Option func(*Classifier)

// WithTimeout bounds a single classification call (default 10s).
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.timeout = d }
}

// NewClassifier creates an intent classifier.
func NewClassifier(provider contracts.CompletionProvider, opts ...Option) *Classifier {
	c := &Classifier{provider: provider, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fallback is the verdict when classification cannot be trusted.
func fallback() models.IntentResult {
	return models.IntentResult{Type: models.IntentConversational, Confidence: 0.0}
}

// Classify returns the query's intent given recent history. Never
// returns an error: provider failures, malformed output and unknown
// intents all degrade to the conversational fallback.
func (c *Classifier) Classify(ctx context.Context, query string, history []models.Message) models.IntentResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]models.Message, 0, historyWindow+1)
	if n := len(history); n > 0 {
		start := n - historyWindow
		if start < 0 {
			start = 0
		}
		messages = append(messages, history[start:]...)
	}
	messages = append(messages, models.Message{Role: "user", Content: "Classify this query: " + query})

	resp, err := c.provider.Complete(ctx, models.CompletionRequest{
		System:      systemPrompt,
		Messages:    messages,
		MaxTokens:   64,
		Temperature: 0,
	})
	if err != nil {
		log.Warn().Err(err).Msg("intent classification failed, falling back to conversational")
		return fallback()
	}

	result, ok := parseVerdict(resp.Text)
	if !ok {
		log.Warn().Str("raw", resp.Text).Msg("unparseable intent verdict, falling back to conversational")
		return fallback()
	}
	return result
}

type rawVerdict struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// parseVerdict extracts and validates the classifier's JSON verdict.
// Tolerates surrounding prose and markdown fences; rejects intents
// outside the closed set.
func parseVerdict(text string) (models.IntentResult, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return models.IntentResult{}, false
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return models.IntentResult{}, false
	}

	intent := models.IntentType(strings.TrimSpace(strings.ToLower(raw.Intent)))
	known := false
	for _, k := range models.KnownIntents {
		if intent == k {
			known = true
			break
		}
	}
	if !known {
		return models.IntentResult{}, false
	}

	confidence := raw.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return models.IntentResult{Type: intent, Confidence: confidence}, true
}
