package monitoring

import (
	"context"
	"testing"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

func TestSink_Rollups(t *testing.T) {
	s := NewSink()

	s.Record(context.Background(), models.RunMetrics{
		CampaignID: "camp-1", Success: true, ExecutionMs: 100, TokensUsed: 50, CostUSD: 0.01,
	})
	s.Record(context.Background(), models.RunMetrics{
		CampaignID: "camp-1", Success: false, ExecutionMs: 300, ErrorCode: "GENERATION_UNAVAILABLE",
	})
	s.Record(context.Background(), models.RunMetrics{
		CampaignID: "camp-2", Success: true, ExecutionMs: 40,
	})

	r := s.RollupFor("camp-1")
	if r.Runs != 2 || r.Failures != 1 {
		t.Fatalf("camp-1 rollup: runs=%d failures=%d", r.Runs, r.Failures)
	}
	if r.AvgLatencyMs != 200 {
		t.Errorf("expected avg latency 200, got %d", r.AvgLatencyMs)
	}
	if r.TotalTokens != 50 {
		t.Errorf("expected 50 tokens, got %d", r.TotalTokens)
	}
	if got := s.RollupFor("camp-2"); got.Runs != 1 {
		t.Errorf("camp-2 rollup: runs=%d", got.Runs)
	}
	if got := s.RollupFor("unknown"); got.Runs != 0 {
		t.Errorf("unknown campaign should have empty rollup")
	}
}

func TestSink_RecordNeverPanics(t *testing.T) {
	// A sink with a nil map would panic on write; Record must swallow it.
	s := &Sink{}
	s.Record(context.Background(), models.RunMetrics{CampaignID: "camp-1", Success: true})
}
