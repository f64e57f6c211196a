package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

type stubProvider struct {
	kind  string
	err   error
	calls int
}

func (s *stubProvider) Kind() string { return s.kind }

func (s *stubProvider) Complete(context.Context, models.CompletionRequest) (*models.Completion, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &models.Completion{
		Text:  "answer from " + s.kind,
		Usage: models.TokenUsage{TotalTokens: 100, CostUSD: 0.01},
	}, nil
}

func (s *stubProvider) HealthCheck(context.Context) error { return s.err }

func TestRouter_FirstProviderWins(t *testing.T) {
	primary := &stubProvider{kind: "primary"}
	backup := &stubProvider{kind: "backup"}
	r := NewRouter(primary, backup)

	resp, err := r.Complete(context.Background(), models.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "answer from primary" {
		t.Fatalf("expected primary answer, got %q", resp.Text)
	}
	if backup.calls != 0 {
		t.Error("backup should not be called when primary succeeds")
	}
}

func TestRouter_FailsOverToNext(t *testing.T) {
	primary := &stubProvider{kind: "primary", err: errors.New("down")}
	backup := &stubProvider{kind: "backup"}
	r := NewRouter(primary, backup)

	resp, err := r.Complete(context.Background(), models.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "answer from backup" {
		t.Fatalf("expected backup answer, got %q", resp.Text)
	}
}

func TestRouter_AllProvidersFail(t *testing.T) {
	r := NewRouter(
		&stubProvider{kind: "a", err: errors.New("down")},
		&stubProvider{kind: "b", err: errors.New("also down")},
	)
	if _, err := r.Complete(context.Background(), models.CompletionRequest{}); err == nil {
		t.Fatal("expected error when all providers fail")
	}
}

func TestRouter_TracksCostPerCampaign(t *testing.T) {
	r := NewRouter(&stubProvider{kind: "primary"})

	for i := 0; i < 3; i++ {
		if _, err := r.CompleteFor(context.Background(), "camp-1", models.CompletionRequest{}); err != nil {
			t.Fatalf("CompleteFor: %v", err)
		}
	}
	if _, err := r.CompleteFor(context.Background(), "camp-2", models.CompletionRequest{}); err != nil {
		t.Fatalf("CompleteFor: %v", err)
	}

	c1 := r.Costs("camp-1")
	if c1.TotalTokens != 300 {
		t.Errorf("camp-1 tokens: expected 300, got %d", c1.TotalTokens)
	}
	if c1.ByProvider["primary"] < 0.029 || c1.ByProvider["primary"] > 0.031 {
		t.Errorf("camp-1 provider cost: expected ~0.03, got %f", c1.ByProvider["primary"])
	}
	c2 := r.Costs("camp-2")
	if c2.TotalTokens != 100 {
		t.Errorf("camp-2 tokens: expected 100, got %d", c2.TotalTokens)
	}
}

func TestEstimateCost(t *testing.T) {
	got := estimateCost("gpt-4o-mini", 1000, 1000)
	want := 0.00015 + 0.0006
	if got < want-1e-9 || got > want+1e-9 {
		t.Errorf("estimateCost = %f, want %f", got, want)
	}
	// Unknown model uses the generic fallback rate.
	if estimateCost("mystery-model", 1000, 0) != 0.001 {
		t.Error("unknown model should use fallback rate")
	}
}
