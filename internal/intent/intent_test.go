package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

type stubProvider struct {
	text    string
	err     error
	lastReq models.CompletionRequest
}

func (s *stubProvider) Kind() string { return "stub" }

func (s *stubProvider) Complete(_ context.Context, req models.CompletionRequest) (*models.Completion, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Completion{Text: s.text}, nil
}

func (s *stubProvider) HealthCheck(context.Context) error { return nil }

func TestClassify_ParsesVerdict(t *testing.T) {
	p := &stubProvider{text: `{"intent": "pain_point_lookup", "confidence": 0.92}`}
	c := NewClassifier(p)

	got := c.Classify(context.Background(), "what do customers complain about?", nil)
	if got.Type != models.IntentPainPoint {
		t.Fatalf("expected pain_point_lookup, got %s", got.Type)
	}
	if got.Confidence != 0.92 {
		t.Fatalf("expected confidence 0.92, got %f", got.Confidence)
	}
}

func TestClassify_ToleratesSurroundingProse(t *testing.T) {
	p := &stubProvider{text: "Sure! Here's the classification:\n```json\n{\"intent\": \"trend_summary\", \"confidence\": 0.8}\n```"}
	c := NewClassifier(p)

	got := c.Classify(context.Background(), "summarize themes this month", nil)
	if got.Type != models.IntentTrendSummary {
		t.Fatalf("expected trend_summary, got %s", got.Type)
	}
}

func TestClassify_ProviderErrorFallsBack(t *testing.T) {
	p := &stubProvider{err: errors.New("provider down")}
	c := NewClassifier(p)

	got := c.Classify(context.Background(), "anything", nil)
	if got.Type != models.IntentConversational || got.Confidence != 0.0 {
		t.Fatalf("expected conversational/0.0 fallback, got %s/%f", got.Type, got.Confidence)
	}
}

func TestClassify_UnknownIntentFallsBack(t *testing.T) {
	p := &stubProvider{text: `{"intent": "world_domination", "confidence": 0.99}`}
	c := NewClassifier(p)

	got := c.Classify(context.Background(), "anything", nil)
	if got.Type != models.IntentConversational || got.Confidence != 0.0 {
		t.Fatalf("expected fallback for unknown intent, got %s/%f", got.Type, got.Confidence)
	}
}

func TestClassify_MalformedJSONFallsBack(t *testing.T) {
	p := &stubProvider{text: "I think it's probably conversational?"}
	c := NewClassifier(p)

	got := c.Classify(context.Background(), "anything", nil)
	if got.Type != models.IntentConversational || got.Confidence != 0.0 {
		t.Fatalf("expected fallback for malformed output, got %s/%f", got.Type, got.Confidence)
	}
}

func TestClassify_ClampsConfidence(t *testing.T) {
	p := &stubProvider{text: `{"intent": "influencer_lookup", "confidence": 1.7}`}
	c := NewClassifier(p)

	got := c.Classify(context.Background(), "who drives the conversation?", nil)
	if got.Confidence != 1.0 {
		t.Fatalf("expected clamped confidence 1.0, got %f", got.Confidence)
	}
}

func TestClassify_WindowsHistory(t *testing.T) {
	p := &stubProvider{text: `{"intent": "conversational", "confidence": 0.5}`}
	c := NewClassifier(p)

	history := make([]models.Message, 20)
	for i := range history {
		history[i] = models.Message{Role: "user", Content: "turn"}
	}
	c.Classify(context.Background(), "hello again", history)

	// last 6 turns plus the query itself
	if got := len(p.lastReq.Messages); got != historyWindow+1 {
		t.Fatalf("expected %d messages sent, got %d", historyWindow+1, got)
	}
}
