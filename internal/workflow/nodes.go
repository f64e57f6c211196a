package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/internal/guardrails"
	"github.com/echolens/echolens/insight-engine/pkg/contracts"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// Node is one stage body. Stage() names its output slot; CostIncurring
// marks stages the budget gate must check before invoking. Nodes read
// prior stage outputs from the state but write only their own slot —
// the orchestrator records the returned output, commits any proposed
// spend, and owns every other state mutation.
type Node interface {
	Stage() models.Stage
	CostIncurring() bool
	Run(ctx context.Context, st *models.WorkflowState) (models.StageOutput, error)
}

// ── Collaborator boundaries ─────────────────────────────────

// Scouter collects raw community content for a campaign. The actual
// scraping lives outside this module; runs receive the frozen stage
// config so automatic and custom campaigns scout differently without
// the scouter branching on campaign type.
type Scouter interface {
	Scout(ctx context.Context, campaign *models.CampaignContext, cfg models.StageConfig) ([]models.ContentItem, error)
}

// Analyzer derives insights and pain points from cleaned content.
type Analyzer interface {
	Analyze(ctx context.Context, campaign *models.CampaignContext, items []models.ContentItem) ([]models.Insight, []models.PainPoint, models.TokenUsage, error)
}

// Indexer embeds the run's content, insights and pain points into the
// retrieval corpus, returning the proposed embedding spend.
type Indexer interface {
	Index(ctx context.Context, campaignID string, items []models.ContentItem, insights []models.Insight, points []models.PainPoint) (float64, error)
}

// ChatRunner answers one chat query (the RAG synthesizer).
type ChatRunner interface {
	Run(ctx context.Context, req models.ChatRequest) models.ChatResult
}

// ── Scout ───────────────────────────────────────────────────

// scoutSpendPerItem is the per-item collection cost proposed to the
// budget. Committed by the orchestrator only when the stage succeeds.
const scoutSpendPerItem = 0.001

type scoutNode struct {
	scouter Scouter
	storage contracts.Storage
}

func (n *scoutNode) Stage() models.Stage { return models.StageScout }
func (n *scoutNode) CostIncurring() bool { return true }

func (n *scoutNode) Run(ctx context.Context, st *models.WorkflowState) (models.StageOutput, error) {
	items, err := n.scouter.Scout(ctx, st.Campaign, st.Config)
	if err != nil {
		return models.StageOutput{}, fmt.Errorf("scout: %w", err)
	}

	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].CampaignID = st.Campaign.ID
	}

	saved := models.BatchSaveResult{}
	if len(items) > 0 {
		saved, err = n.storage.SaveContentBatch(ctx, items)
		if err != nil {
			return models.StageOutput{}, fmt.Errorf("save scouted batch: %w", err)
		}
	}

	allClean := len(items) > 0
	for _, item := range items {
		if !item.Clean {
			allClean = false
			break
		}
	}

	log.Info().
		Str("workflow_id", st.WorkflowID).
		Str("campaign_id", st.Campaign.ID).
		Int("scouted", len(items)).
		Int("saved", saved.Saved).
		Int("failed", saved.Failed).
		Msg("🔎 scout stage complete")

	return models.StageOutput{
		Stage: models.StageScout,
		Payload: map[string]interface{}{
			"scouted_count": len(items),
			"saved":         saved.Saved,
			"failed":        saved.Failed,
			"all_clean":     allClean,
		},
		ProposedSpend: float64(len(items)) * scoutSpendPerItem,
	}, nil
}

// ── Clean ───────────────────────────────────────────────────

type cleanNode struct {
	storage contracts.Storage
}

func (n *cleanNode) Stage() models.Stage { return models.StageClean }
func (n *cleanNode) CostIncurring() bool { return false }

// Run normalizes raw bodies, marks items clean and rewrites the batch.
// Score clamping also happens in the store, but cleaning is where
// out-of-range values are expected, so normalize here too.
func (n *cleanNode) Run(ctx context.Context, st *models.WorkflowState) (models.StageOutput, error) {
	items, err := n.storage.ListContent(ctx, st.Campaign.ID, 0)
	if err != nil {
		return models.StageOutput{}, fmt.Errorf("list content: %w", err)
	}

	cleaned := make([]models.ContentItem, 0, len(items))
	for _, item := range items {
		if item.Clean {
			continue
		}
		item.Title = guardrails.NormalizeWhitespace(item.Title)
		item.Body = guardrails.NormalizeWhitespace(item.Body)
		item.ClampScores()
		item.Clean = true
		cleaned = append(cleaned, item)
	}

	if len(cleaned) > 0 {
		if _, err := n.storage.SaveContentBatch(ctx, cleaned); err != nil {
			return models.StageOutput{}, fmt.Errorf("save cleaned batch: %w", err)
		}
	}

	return models.StageOutput{
		Stage: models.StageClean,
		Payload: map[string]interface{}{
			"cleaned_count": len(cleaned),
		},
	}, nil
}

// ── Analyze ─────────────────────────────────────────────────

type analyzeNode struct {
	analyzer Analyzer
	indexer  Indexer
	storage  contracts.Storage
}

func (n *analyzeNode) Stage() models.Stage { return models.StageAnalyze }
func (n *analyzeNode) CostIncurring() bool { return true }

func (n *analyzeNode) Run(ctx context.Context, st *models.WorkflowState) (models.StageOutput, error) {
	items, err := n.storage.ListContent(ctx, st.Campaign.ID, 0)
	if err != nil {
		return models.StageOutput{}, fmt.Errorf("list content: %w", err)
	}
	if len(items) == 0 {
		return models.StageOutput{
			Stage:   models.StageAnalyze,
			Payload: map[string]interface{}{"insights": 0, "pain_points": 0},
		}, nil
	}

	insights, painPoints, usage, err := n.analyzer.Analyze(ctx, st.Campaign, items)
	if err != nil {
		return models.StageOutput{}, fmt.Errorf("analyze: %w", err)
	}
	if err := n.storage.SaveInsights(ctx, insights); err != nil {
		return models.StageOutput{}, fmt.Errorf("save insights: %w", err)
	}
	if err := n.storage.SavePainPoints(ctx, painPoints); err != nil {
		return models.StageOutput{}, fmt.Errorf("save pain points: %w", err)
	}

	// Feed the retrieval corpus so the chat path can ground against
	// this run's findings.
	embedSpend, err := n.indexer.Index(ctx, st.Campaign.ID, items, insights, painPoints)
	if err != nil {
		return models.StageOutput{}, fmt.Errorf("index content: %w", err)
	}

	log.Info().
		Str("workflow_id", st.WorkflowID).
		Str("campaign_id", st.Campaign.ID).
		Int("insights", len(insights)).
		Int("pain_points", len(painPoints)).
		Msg("🧠 analyze stage complete")

	return models.StageOutput{
		Stage: models.StageAnalyze,
		Payload: map[string]interface{}{
			"insights":    len(insights),
			"pain_points": len(painPoints),
			"indexed":     len(items),
		},
		ProposedSpend: usage.CostUSD + embedSpend,
		TokensUsed:    usage.TotalTokens,
	}, nil
}

// ── Chatbot ─────────────────────────────────────────────────

type chatbotNode struct {
	runner ChatRunner
}

func (n *chatbotNode) Stage() models.Stage { return models.StageChatbot }
func (n *chatbotNode) CostIncurring() bool { return true }

func (n *chatbotNode) Run(ctx context.Context, st *models.WorkflowState) (models.StageOutput, error) {
	result := n.runner.Run(ctx, models.ChatRequest{
		UserQuery:    st.UserQuery,
		CampaignID:   st.Campaign.ID,
		UserID:       st.UserID,
		Conversation: st.Conversation,
	})

	st.AppendMessage("user", st.UserQuery)
	if result.Answer != "" {
		st.AppendMessage("assistant", result.Answer)
	}

	// Conversation rides the state, not the stage slot.
	stored := result
	stored.Conversation = nil

	return models.StageOutput{
		Stage: models.StageChatbot,
		Payload: map[string]interface{}{
			"success":      result.Success,
			"error_code":   result.ErrorCode,
			"result_count": len(result.Sources),
			"intent":       string(result.Metadata.Intent),
		},
		Chat:          &stored,
		ProposedSpend: result.Metadata.CostUSD,
		TokensUsed:    result.Metadata.TokensUsed,
	}, nil
}

// ── Monitoring ──────────────────────────────────────────────

type monitoringNode struct {
	sink contracts.MonitorSink
}

func (n *monitoringNode) Stage() models.Stage { return models.StageMonitoring }
func (n *monitoringNode) CostIncurring() bool { return false }

func (n *monitoringNode) Run(ctx context.Context, st *models.WorkflowState) (models.StageOutput, error) {
	// The chat pipeline records its own query metrics on every path,
	// success or not; recording the run again here would double-count
	// it in the rollups. The stage output just echoes the outcome.
	if out := st.StageOutputFor(models.StageChatbot); out != nil {
		success := false
		errorCode := ""
		if out.Chat != nil {
			success = out.Chat.Success
			errorCode = out.Chat.ErrorCode
		}
		return models.StageOutput{
			Stage: models.StageMonitoring,
			Payload: map[string]interface{}{
				"success":    success,
				"error_code": errorCode,
			},
		}, nil
	}

	// Content-analysis runs only reach this stage when every prior
	// stage succeeded, so the record is a completed run by construction.
	n.sink.Record(ctx, models.RunMetrics{
		WorkflowID:  st.WorkflowID,
		CampaignID:  st.Campaign.ID,
		QueryLen:    len(st.UserQuery),
		ExecutionMs: st.Metrics.ElapsedMs,
		TokensUsed:  st.Metrics.TokensUsed,
		CostUSD:     st.Metrics.TotalCost,
		Success:     true,
		Status:      models.StatusCompleted,
		Timestamp:   time.Now().UTC(),
	})
	return models.StageOutput{Stage: models.StageMonitoring}, nil
}
