// Package workflow implements the campaign workflow orchestrator: a
// state machine routing a run through scout → clean → analyze or the
// chat path, with per-transition checkpointing, budget gating and
// resilience-wrapped stage execution.
//
// Routing lives in an explicit transition table (transitions.go), so
// the graph is data and testable without executing a stage. Stage
// bodies live in nodes.go behind narrow collaborator interfaces.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/internal/resilience"
	"github.com/echolens/echolens/insight-engine/pkg/contracts"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// Orchestrator drives workflow runs. One orchestrator serves many
// concurrent runs; all cross-run state lives in the storage
// collaborator, except the cancellation flags it owns.
type Orchestrator struct {
	router     *Router
	nodes      map[models.Stage]Node
	storage    contracts.Storage
	resilience *resilience.Manager

	// Cancellation flags, checked at node boundaries only — a running
	// stage is never interrupted mid-flight.
	cancelMu  sync.Mutex
	cancelled map[string]bool
}

// New creates an orchestrator over the given collaborators.
func New(
	storage contracts.Storage,
	manager *resilience.Manager,
	scouter Scouter,
	analyzer Analyzer,
	indexer Indexer,
	chat ChatRunner,
	sink contracts.MonitorSink,
) (*Orchestrator, error) {
	router, err := NewRouter()
	if err != nil {
		return nil, err
	}

	nodes := map[models.Stage]Node{}
	for _, n := range []Node{
		&scoutNode{scouter: scouter, storage: storage},
		&cleanNode{storage: storage},
		&analyzeNode{analyzer: analyzer, indexer: indexer, storage: storage},
		&chatbotNode{runner: chat},
		&monitoringNode{sink: sink},
	} {
		nodes[n.Stage()] = n
	}

	return &Orchestrator{
		router:     router,
		nodes:      nodes,
		storage:    storage,
		resilience: manager,
		cancelled:  make(map[string]bool),
	}, nil
}

// ── Scheduler entry points ──────────────────────────────────

// TriggerScout runs the content-analysis path for one campaign.
// This is the opaque entry point the external scheduler invokes for
// both automatic and custom campaigns; the campaign type drives the
// stage config, not the caller.
func (o *Orchestrator) TriggerScout(ctx context.Context, campaignID string) models.TriggerResult {
	campaign, err := o.storage.GetCampaign(ctx, campaignID)
	if err != nil {
		return models.TriggerResult{Status: models.StatusFailed, Reason: fmt.Sprintf("campaign lookup: %v", err)}
	}
	if campaign.OverBudget() {
		return models.TriggerResult{
			Status: models.StatusSkipped,
			Reason: fmt.Sprintf("budget exhausted: %.4f of %.4f spent", campaign.CurrentSpend, campaign.BudgetLimit),
		}
	}

	st := models.NewWorkflowState(campaign, "", nil)
	o.run(ctx, st)

	return models.TriggerResult{
		Status:     st.Status,
		Reason:     st.FailReason,
		WorkflowID: st.WorkflowID,
	}
}

// TriggerChat runs the chat path and returns the synthesized result.
func (o *Orchestrator) TriggerChat(ctx context.Context, req models.ChatRequest) (models.ChatResult, error) {
	campaign, err := o.storage.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return models.ChatResult{}, fmt.Errorf("campaign lookup: %w", err)
	}

	st := models.NewWorkflowState(campaign, req.UserQuery, req.Conversation)
	st.UserID = req.UserID
	o.run(ctx, st)

	out := st.StageOutputFor(models.StageChatbot)
	if out == nil {
		return models.ChatResult{
			ErrorCode: "WORKFLOW_FAILED",
			Answer:    "Something went wrong processing your question. Please try again.",
			Sources:   []models.RetrievalResult{},
		}, nil
	}

	result := models.ChatResult{Sources: []models.RetrievalResult{}}
	if out.Chat != nil {
		result = *out.Chat
		if result.Sources == nil {
			result.Sources = []models.RetrievalResult{}
		}
	}
	result.Conversation = st.Conversation
	result.Metadata.TokensUsed = out.TokensUsed
	result.Metadata.CostUSD = out.ProposedSpend
	result.Metadata.ExecutionMs = st.Metrics.ElapsedMs
	return result, nil
}

// Resume continues a checkpointed run after a crash. Returns the
// state's terminal status, or an error if no checkpoint exists.
func (o *Orchestrator) Resume(ctx context.Context, workflowID string) (models.TriggerResult, error) {
	st, err := o.storage.GetCheckpoint(ctx, workflowID)
	if err != nil {
		return models.TriggerResult{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if st == nil {
		return models.TriggerResult{}, fmt.Errorf("no checkpoint for workflow %s", workflowID)
	}
	if err := st.Validate(); err != nil {
		return models.TriggerResult{}, fmt.Errorf("checkpoint invalid: %w", err)
	}
	if st.Terminal {
		return models.TriggerResult{Status: st.Status, Reason: st.FailReason, WorkflowID: workflowID}, nil
	}

	log.Info().Str("workflow_id", workflowID).Str("stage", string(st.CurrentStage)).Msg("resuming workflow from checkpoint")
	o.run(ctx, st)
	return models.TriggerResult{Status: st.Status, Reason: st.FailReason, WorkflowID: workflowID}, nil
}

// Inspect returns the checkpointed state for a run, nil if unknown.
func (o *Orchestrator) Inspect(ctx context.Context, workflowID string) (*models.WorkflowState, error) {
	return o.storage.GetCheckpoint(ctx, workflowID)
}

// Cancel flags a run for cancellation. Takes effect at the next node
// boundary; the currently executing stage always finishes.
func (o *Orchestrator) Cancel(workflowID string) {
	o.cancelMu.Lock()
	o.cancelled[workflowID] = true
	o.cancelMu.Unlock()
}

func (o *Orchestrator) isCancelled(workflowID string) bool {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	return o.cancelled[workflowID]
}

func (o *Orchestrator) clearCancelled(workflowID string) {
	o.cancelMu.Lock()
	delete(o.cancelled, workflowID)
	o.cancelMu.Unlock()
}

// ── Run loop ────────────────────────────────────────────────

// run drives the state machine to a terminal stage. Every transition
// is checkpointed before the next stage executes, so a crash between
// stages loses at most the in-flight stage.
func (o *Orchestrator) run(ctx context.Context, st *models.WorkflowState) {
	start := time.Now()
	defer o.clearCancelled(st.WorkflowID)

	for !st.Terminal {
		if o.isCancelled(st.WorkflowID) {
			o.finish(ctx, st, models.StatusFailed, "cancelled")
			return
		}

		next, err := o.router.Next(st)
		if err != nil {
			o.finish(ctx, st, models.StatusFailed, err.Error())
			return
		}
		st.CurrentStage = next

		switch next {
		case models.StageError:
			// Malformed state: terminate without side effects. No
			// checkpoint is written, so a bad trigger leaves no trace
			// in storage.
			st.Kind = models.WorkflowError
			o.terminate(st, models.StatusFailed, "workflow routed to error state")
			o.logFinish(st)
			return
		case models.StageDone:
			st.Metrics.Add(0, 0, time.Since(start))
			o.finish(ctx, st, models.StatusCompleted, "")
			return
		case models.StageRoute:
			// Routing has no body and is re-derived from the state on
			// resume, so the decision is not checkpointed.
			if st.UserQuery != "" {
				st.Kind = models.WorkflowChatQuery
			} else {
				st.Kind = models.WorkflowContentAnalysis
			}
			continue
		}

		node, ok := o.nodes[next]
		if !ok {
			o.finish(ctx, st, models.StatusFailed, fmt.Sprintf("no node for stage %s", next))
			return
		}

		// Budget gate: refuse to start a cost-incurring stage once the
		// campaign has spent its budget.
		if node.CostIncurring() && st.Campaign.OverBudget() {
			err := models.NewAppError(models.KindBudgetExceeded, models.SeverityHigh,
				"orchestrator", string(next),
				fmt.Sprintf("campaign %s over budget: %.4f of %.4f spent", st.Campaign.ID, st.Campaign.CurrentSpend, st.Campaign.BudgetLimit),
				models.ErrBudgetExceeded)
			o.finish(ctx, st, models.StatusFailed, err.Error())
			return
		}

		var out models.StageOutput
		stageStart := time.Now()
		err = o.resilience.Execute(ctx, resilience.Policy{
			Component:  "orchestrator",
			Operation:  string(next),
			Severity:   models.SeverityHigh,
			MaxRetries: 2,
		}, func(ctx context.Context) error {
			var stageErr error
			out, stageErr = node.Run(ctx, st)
			return stageErr
		})
		if err != nil {
			o.finish(ctx, st, models.StatusFailed, fmt.Sprintf("stage %s: %v", next, err))
			return
		}

		// A degraded stage (recovery returned success without output)
		// still gets an output slot so routing and resume stay sane.
		if out.Stage == "" {
			out.Stage = next
		}
		if err := st.RecordStage(out); err != nil {
			o.finish(ctx, st, models.StatusFailed, err.Error())
			return
		}
		st.Metrics.Add(out.TokensUsed, out.ProposedSpend, time.Since(stageStart))

		// Spend is proposed by the stage and committed here, only
		// after it succeeded — a failed stage never leaves a charge.
		if out.ProposedSpend > 0 {
			if err := o.storage.CommitSpend(ctx, st.Campaign.ID, out.ProposedSpend); err != nil {
				o.finish(ctx, st, models.StatusFailed, fmt.Sprintf("commit spend: %v", err))
				return
			}
			st.Campaign.CurrentSpend += out.ProposedSpend
		}

		o.checkpoint(ctx, st)
	}
}

// finish marks the run terminal and writes the final checkpoint.
func (o *Orchestrator) finish(ctx context.Context, st *models.WorkflowState, status models.WorkflowStatus, reason string) {
	o.terminate(st, status, reason)
	o.checkpoint(ctx, st)
	o.logFinish(st)
}

func (o *Orchestrator) terminate(st *models.WorkflowState, status models.WorkflowStatus, reason string) {
	st.Terminal = true
	st.Status = status
	st.FailReason = reason
	if status == models.StatusCompleted {
		st.CurrentStage = models.StageDone
	}
}

func (o *Orchestrator) logFinish(st *models.WorkflowState) {
	evt := log.Info()
	if st.Status != models.StatusCompleted {
		evt = log.Warn()
	}
	evt.
		Str("workflow_id", st.WorkflowID).
		Str("kind", string(st.Kind)).
		Str("status", string(st.Status)).
		Str("reason", st.FailReason).
		Float64("total_cost", st.Metrics.TotalCost).
		Int64("tokens", st.Metrics.TokensUsed).
		Msg("workflow finished")
}

// checkpoint persists the state keyed by workflow_id. A checkpoint
// write failure is logged but does not fail the run: losing resume
// granularity is better than failing a healthy workflow.
func (o *Orchestrator) checkpoint(ctx context.Context, st *models.WorkflowState) {
	if err := o.storage.PutCheckpoint(ctx, st.WorkflowID, st); err != nil {
		log.Error().Err(err).Str("workflow_id", st.WorkflowID).Msg("checkpoint write failed")
	}
}

// IsBudgetAbort reports whether a run failed on the budget gate.
func IsBudgetAbort(st *models.WorkflowState) bool {
	return st != nil && st.Status == models.StatusFailed &&
		strings.Contains(st.FailReason, "over budget")
}
