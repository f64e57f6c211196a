// Package api is the HTTP boundary of the insight engine: the chat
// endpoint, the scheduler-facing campaign triggers, and read-only
// inspection of workflows, rollups and error statistics. Handlers stay
// thin; all semantics live in the orchestrator and its collaborators.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/internal/llm"
	"github.com/echolens/echolens/insight-engine/internal/monitoring"
	"github.com/echolens/echolens/insight-engine/internal/workflow"
	"github.com/echolens/echolens/insight-engine/pkg/contracts"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store        contracts.Storage
	Orchestrator *workflow.Orchestrator
	Monitor      *monitoring.Sink
	Costs        *llm.Router
}

// ── Chat ────────────────────────────────────────────────────

// Chat handles POST /api/v1/chat.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CampaignID == "" {
		respondError(w, http.StatusBadRequest, "campaign_id is required")
		return
	}

	// Rate limiting is the guardrail validator's job: an over-limit
	// user gets a well-formed ChatResult with an explicit error code,
	// not a bare 429.
	result, err := h.Orchestrator.TriggerChat(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("campaign_id", req.CampaignID).Msg("chat trigger failed")
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ── Campaigns ───────────────────────────────────────────────

type createCampaignRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Type        models.CampaignType `json:"type"`
	Keywords    []string            `json:"keywords"`
	Sources     []string            `json:"sources"`
	Objectives  []string            `json:"objectives,omitempty"`
	BudgetLimit float64             `json:"budget_limit"`
}

// CreateCampaign handles POST /api/v1/campaigns.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	campaign, err := models.NewCampaignContext(req.ID, req.Name, req.Type, req.Keywords, req.Sources, req.BudgetLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	campaign.Objectives = append([]string(nil), req.Objectives...)

	if err := h.Store.PutCampaign(r.Context(), campaign); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("campaign_id", campaign.ID).Str("type", string(campaign.Type)).Msg("campaign registered")
	respondJSON(w, http.StatusCreated, campaign)
}

// GetCampaign handles GET /api/v1/campaigns/{campaignID}.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := h.Store.GetCampaign(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, campaign)
}

// TriggerScout handles POST /api/v1/campaigns/{campaignID}/scout.
// This is the opaque entry point an external scheduler calls; the
// response carries the terminal status so schedulers can distinguish
// completed, skipped (budget) and failed runs.
func (h *Handlers) TriggerScout(w http.ResponseWriter, r *http.Request) {
	result := h.Orchestrator.TriggerScout(r.Context(), chi.URLParam(r, "campaignID"))

	status := http.StatusOK
	if result.Status == models.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, result)
}

// ── Workflows ───────────────────────────────────────────────

// GetWorkflow handles GET /api/v1/campaigns/{campaignID}/workflows/{workflowID}.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	st, err := h.Orchestrator.Inspect(r.Context(), chi.URLParam(r, "workflowID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if st == nil || st.Campaign == nil || st.Campaign.ID != chi.URLParam(r, "campaignID") {
		respondError(w, http.StatusNotFound, "workflow not found")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// ResumeWorkflow handles POST /api/v1/workflows/{workflowID}/resume.
func (h *Handlers) ResumeWorkflow(w http.ResponseWriter, r *http.Request) {
	result, err := h.Orchestrator.Resume(r.Context(), chi.URLParam(r, "workflowID"))
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// CancelWorkflow handles POST /api/v1/workflows/{workflowID}/cancel.
// Takes effect at the next node boundary of a running workflow.
func (h *Handlers) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	h.Orchestrator.Cancel(workflowID)
	respondJSON(w, http.StatusAccepted, map[string]string{"workflow_id": workflowID, "status": "cancelling"})
}

// ── Observability ───────────────────────────────────────────

// CampaignRollup handles GET /api/v1/campaigns/{campaignID}/rollup.
func (h *Handlers) CampaignRollup(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Monitor.RollupFor(chi.URLParam(r, "campaignID")))
}

// CampaignCosts handles GET /api/v1/campaigns/{campaignID}/costs.
func (h *Handlers) CampaignCosts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Costs.Costs(chi.URLParam(r, "campaignID")))
}

// ErrorStats handles GET /api/v1/errors?component=<name>.
func (h *Handlers) ErrorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.ErrorStats(r.Context(), r.URL.Query().Get("component"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// ── Helpers ─────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
