// Package contracts defines the service interfaces of the insight engine.
//
// These interfaces form the boundary between the core (orchestrator, RAG
// pipeline, resilience layer) and its external collaborators (storage,
// model providers, monitoring). Handlers and the orchestrator depend only
// on these, so swapping an in-memory implementation for a Postgres-backed
// one is a wiring change in main.go.
package contracts

import (
	"context"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// ── Storage ─────────────────────────────────────────────────

// Storage is the persistence boundary the core consumes. The ORM-side
// schema is out of scope here; the core only needs these semantics.
type Storage interface {
	CampaignStore
	CheckpointStore
	ContentStore
	ErrorStatStore

	// Ping checks whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// CampaignStore registers campaigns, reads their snapshots and
// commits spend.
type CampaignStore interface {
	PutCampaign(ctx context.Context, campaign *models.CampaignContext) error

	GetCampaign(ctx context.Context, id string) (*models.CampaignContext, error)

	// CommitSpend atomically adds a successful stage's proposed spend to
	// the campaign. Failed stages never reach this, so no partial charge
	// is ever recorded.
	CommitSpend(ctx context.Context, campaignID string, amount float64) error
}

// CheckpointStore persists workflow state between stages, keyed by
// workflow_id, enabling resume/inspection after a crash.
type CheckpointStore interface {
	PutCheckpoint(ctx context.Context, workflowID string, state *models.WorkflowState) error

	// GetCheckpoint returns nil, nil when no checkpoint exists.
	GetCheckpoint(ctx context.Context, workflowID string) (*models.WorkflowState, error)
}

// ContentStore persists scraped content and derived records.
type ContentStore interface {
	// SaveContentBatch tolerates partial failure: one bad record is
	// counted, not fatal to the batch.
	SaveContentBatch(ctx context.Context, items []models.ContentItem) (models.BatchSaveResult, error)

	ListContent(ctx context.Context, campaignID string, limit int) ([]models.ContentItem, error)
	SaveInsights(ctx context.Context, insights []models.Insight) error
	SavePainPoints(ctx context.Context, points []models.PainPoint) error
}

// ErrorStatStore mirrors handled errors into time-bucketed counters
// for dashboards. Write failures are swallowed by callers.
type ErrorStatStore interface {
	RecordErrorStat(ctx context.Context, rec models.ErrorRecord) error
	ErrorStats(ctx context.Context, component string) (map[string]int64, error)
}

// ── Providers ───────────────────────────────────────────────

// EmbeddingDriver generates fixed-dimension vector embeddings.
// Implementations truncate overlong input deterministically before
// sending; they never silently drop a request.
type EmbeddingDriver interface {
	Kind() string
	Dimensions() int
	MaxBatchSize() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	HealthCheck(ctx context.Context) error
}

// CompletionProvider is the opaque text-completion capability.
// Failures surface as provider-error kinds, and Usage is always
// populated on success for cost accounting.
type CompletionProvider interface {
	Kind() string
	Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error)
	HealthCheck(ctx context.Context) error
}

// ── Search ──────────────────────────────────────────────────

// VectorSearcher runs similarity search scoped to one campaign.
// The campaignID argument is mandatory and non-overridable: it is not
// part of the filter map, so callers cannot widen the scope.
type VectorSearcher interface {
	SearchVector(ctx context.Context, campaignID string, vector []float64, topK int, filter map[string]string) ([]models.RetrievalResult, error)
}

// KeywordSearcher runs full-text/keyword search scoped to one campaign.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, campaignID string, query string, topK int) ([]models.RetrievalResult, error)
}

// ── Pipeline services ───────────────────────────────────────

// GuardrailService validates input and sanitizes output at the LLM
// boundary. Pure over its inputs apart from rate-limit bookkeeping.
type GuardrailService interface {
	ValidateQuery(query, userID string) models.GuardrailVerdict
	SanitizeOutput(text string) string
}

// IntentService classifies a query given recent conversation history.
// Never returns an error: classification failure degrades to
// conversational with confidence 0.0.
type IntentService interface {
	Classify(ctx context.Context, query string, history []models.Message) models.IntentResult
}

// RetrievalService fuses vector and keyword search.
type RetrievalService interface {
	Search(ctx context.Context, query, campaignID string, topK int, filter map[string]string) ([]models.RetrievalResult, error)
}

// ── Monitoring ──────────────────────────────────────────────

// MonitorSink records per-run metrics. Fire-and-forget: it returns
// nothing and must never panic into the caller.
type MonitorSink interface {
	Record(ctx context.Context, m models.RunMetrics)
}
