package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/pkg/contracts"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// CostSummary is the accumulated spend for one campaign.
type CostSummary struct {
	TotalCostUSD float64            `json:"total_cost_usd"`
	TotalTokens  int64              `json:"total_tokens"`
	ByProvider   map[string]float64 `json:"by_provider"`
}

// Router tries completion providers in registration order, failing
// over to the next on error. It implements contracts.CompletionProvider
// itself so callers stay provider-agnostic, and tracks per-campaign
// spend for budget reporting.
type Router struct {
	providers []contracts.CompletionProvider

	latencyMu sync.RWMutex
	latencies map[string]int64

	costMu sync.RWMutex
	costs  map[string]*CostSummary
}

// NewRouter creates a router over providers in fallback order.
func NewRouter(providers ...contracts.CompletionProvider) *Router {
	return &Router{
		providers: providers,
		latencies: make(map[string]int64),
		costs:     make(map[string]*CostSummary),
	}
}

func (r *Router) Kind() string { return "router" }

// Complete tries each provider in order and returns the first success.
func (r *Router) Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error) {
	return r.CompleteFor(ctx, "", req)
}

// CompleteFor is Complete with spend attributed to one campaign.
func (r *Router) CompleteFor(ctx context.Context, campaignID string, req models.CompletionRequest) (*models.Completion, error) {
	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no completion providers configured")
	}

	var lastErr error
	for _, p := range r.providers {
		start := time.Now()
		resp, err := p.Complete(ctx, req)
		if err != nil {
			log.Warn().
				Str("provider", p.Kind()).
				Err(err).
				Msg("Provider call failed, trying next")
			lastErr = err
			continue
		}

		r.trackLatency(p.Kind(), time.Since(start).Milliseconds())
		r.trackCost(campaignID, p.Kind(), resp.Usage)
		return resp, nil
	}

	return nil, fmt.Errorf("all providers failed, last error: %w", lastErr)
}

// HealthCheck passes if any provider is healthy.
func (r *Router) HealthCheck(ctx context.Context) error {
	var lastErr error
	for _, p := range r.providers {
		if err := p.HealthCheck(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no completion providers configured")
	}
	return lastErr
}

func (r *Router) trackLatency(provider string, ms int64) {
	r.latencyMu.Lock()
	defer r.latencyMu.Unlock()
	prev := r.latencies[provider]
	if prev == 0 {
		r.latencies[provider] = ms
		return
	}
	// Exponential moving average
	r.latencies[provider] = (prev*7 + ms*3) / 10
}

func (r *Router) trackCost(campaignID, provider string, usage models.TokenUsage) {
	r.costMu.Lock()
	defer r.costMu.Unlock()

	key := campaignID
	if key == "" {
		key = "default"
	}
	summary, ok := r.costs[key]
	if !ok {
		summary = &CostSummary{ByProvider: make(map[string]float64)}
		r.costs[key] = summary
	}
	summary.TotalCostUSD += usage.CostUSD
	summary.TotalTokens += usage.TotalTokens
	summary.ByProvider[provider] += usage.CostUSD
}

// Costs returns a copy of the accumulated spend for one campaign.
func (r *Router) Costs(campaignID string) CostSummary {
	r.costMu.RLock()
	defer r.costMu.RUnlock()

	if campaignID == "" {
		campaignID = "default"
	}
	summary, ok := r.costs[campaignID]
	if !ok {
		return CostSummary{ByProvider: map[string]float64{}}
	}
	cp := CostSummary{
		TotalCostUSD: summary.TotalCostUSD,
		TotalTokens:  summary.TotalTokens,
		ByProvider:   make(map[string]float64, len(summary.ByProvider)),
	}
	for k, v := range summary.ByProvider {
		cp.ByProvider[k] = v
	}
	return cp
}
