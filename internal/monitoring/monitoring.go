// Package monitoring implements the run-metrics sink. Recording is
// fire-and-forget: a sink failure, or even a panic inside it, never
// propagates into the workflow that emitted the metric.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

var tracer = otel.Tracer("insight-engine/monitoring")

// Rollup is the aggregate view for one campaign, served to dashboards.
type Rollup struct {
	Runs         int64   `json:"runs"`
	Failures     int64   `json:"failures"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	TotalTokens  int64   `json:"total_tokens"`
	AvgLatencyMs int64   `json:"avg_latency_ms"`

	totalLatencyMs int64
}

// Sink implements contracts.MonitorSink: structured log + otel span
// per run, plus in-memory per-campaign rollups.
type Sink struct {
	mu      sync.RWMutex
	rollups map[string]*Rollup
}

// NewSink creates an empty metrics sink.
func NewSink() *Sink {
	return &Sink{rollups: make(map[string]*Rollup)}
}

// Record ingests one run's metrics. Never panics into the caller.
func (s *Sink) Record(ctx context.Context, m models.RunMetrics) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("monitoring sink panicked, metric dropped")
		}
	}()

	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	_, span := tracer.Start(ctx, "run.record", trace.WithAttributes(
		attribute.String("campaign_id", m.CampaignID),
		attribute.String("workflow_id", m.WorkflowID),
		attribute.Bool("success", m.Success),
		attribute.Int64("execution_ms", m.ExecutionMs),
		attribute.Int64("tokens_used", m.TokensUsed),
		attribute.Float64("cost_usd", m.CostUSD),
	))
	span.End()

	evt := log.Info()
	if !m.Success {
		evt = log.Warn()
	}
	evt.
		Str("campaign_id", m.CampaignID).
		Str("workflow_id", m.WorkflowID).
		Str("intent", string(m.Intent)).
		Str("error_code", m.ErrorCode).
		Bool("success", m.Success).
		Int64("execution_ms", m.ExecutionMs).
		Int("result_count", m.ResultCount).
		Int64("tokens_used", m.TokensUsed).
		Float64("cost_usd", m.CostUSD).
		Strs("tools", m.ToolsExecuted).
		Msg("📊 run recorded")

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rollups[m.CampaignID]
	if !ok {
		r = &Rollup{}
		s.rollups[m.CampaignID] = r
	}
	r.Runs++
	if !m.Success {
		r.Failures++
	}
	r.TotalCostUSD += m.CostUSD
	r.TotalTokens += m.TokensUsed
	r.totalLatencyMs += m.ExecutionMs
	r.AvgLatencyMs = r.totalLatencyMs / r.Runs
}

// RollupFor returns a copy of one campaign's aggregates.
func (s *Sink) RollupFor(campaignID string) Rollup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.rollups[campaignID]; ok {
		return *r
	}
	return Rollup{}
}
