package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/echolens/echolens/insight-engine/internal/config"
	"github.com/echolens/echolens/insight-engine/internal/guardrails"
	"github.com/echolens/echolens/insight-engine/internal/llm"
	"github.com/echolens/echolens/insight-engine/internal/monitoring"
	"github.com/echolens/echolens/insight-engine/internal/rag"
	"github.com/echolens/echolens/insight-engine/internal/resilience"
	"github.com/echolens/echolens/insight-engine/internal/store"
	"github.com/echolens/echolens/insight-engine/internal/workflow"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

type stubScouter struct{}

func (stubScouter) Scout(context.Context, *models.CampaignContext, models.StageConfig) ([]models.ContentItem, error) {
	return nil, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, *models.CampaignContext, []models.ContentItem) ([]models.Insight, []models.PainPoint, models.TokenUsage, error) {
	return nil, nil, models.TokenUsage{}, nil
}

type stubIndexer struct{}

func (stubIndexer) Index(context.Context, string, []models.ContentItem, []models.Insight, []models.PainPoint) (float64, error) {
	return 0, nil
}

type stubChat struct{}

func (stubChat) Run(context.Context, models.ChatRequest) models.ChatResult {
	return models.ChatResult{Success: true, Answer: "Pricing comes up often.", Sources: []models.RetrievalResult{}}
}

type stubIntentSvc struct{}

func (stubIntentSvc) Classify(context.Context, string, []models.Message) models.IntentResult {
	return models.IntentResult{Type: models.IntentConversational, Confidence: 0.5}
}

type stubRetrievalSvc struct{}

func (stubRetrievalSvc) Search(context.Context, string, string, int, map[string]string) ([]models.RetrievalResult, error) {
	return nil, nil
}

type stubProvider struct{}

func (stubProvider) Kind() string { return "stub" }

func (stubProvider) Complete(context.Context, models.CompletionRequest) (*models.Completion, error) {
	return &models.Completion{Text: "stub answer"}, nil
}

func (stubProvider) HealthCheck(context.Context) error { return nil }

func newTestServer(t *testing.T, chat workflow.ChatRunner) *httptest.Server {
	t.Helper()
	t.Setenv("ECHOLENS_DATA_DIR", "-")
	storage := store.NewMemoryStore()
	t.Cleanup(func() { storage.Close() })

	sink := monitoring.NewSink()
	manager := resilience.NewManager(5, 30*time.Second, storage)
	orch, err := workflow.New(storage, manager, stubScouter{}, stubAnalyzer{}, stubIndexer{}, chat, sink)
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}

	h := &Handlers{
		Store:        storage,
		Orchestrator: orch,
		Monitor:      sink,
		Costs:        llm.NewRouter(),
	}
	srv := httptest.NewServer(NewRouter(config.Load(), h))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, stubChat{})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCampaignLifecycle(t *testing.T) {
	srv := newTestServer(t, stubChat{})

	resp := postJSON(t, srv.URL+"/api/v1/campaigns",
		`{"id": "camp-1", "name": "Acme Watch", "type": "automatic", "keywords": ["acme"], "budget_limit": 5.0}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/api/v1/campaigns/camp-1")
	if err != nil {
		t.Fatal(err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", getResp.StatusCode)
	}
	var campaign models.CampaignContext
	if err := json.NewDecoder(getResp.Body).Decode(&campaign); err != nil {
		t.Fatal(err)
	}
	if campaign.ID != "camp-1" || campaign.Type != models.CampaignAutomatic {
		t.Fatalf("campaign = %+v", campaign)
	}

	// Scout runs synchronously through the workflow and completes on
	// the stub collaborators.
	scoutResp := postJSON(t, srv.URL+"/api/v1/campaigns/camp-1/scout", "")
	if scoutResp.StatusCode != http.StatusOK {
		t.Fatalf("scout status = %d", scoutResp.StatusCode)
	}
	var result models.TriggerResult
	if err := json.NewDecoder(scoutResp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Status != models.StatusCompleted {
		t.Fatalf("scout result = %+v", result)
	}

	// The finished run is inspectable under its campaign.
	wfResp, err := http.Get(srv.URL + "/api/v1/campaigns/camp-1/workflows/" + result.WorkflowID)
	if err != nil {
		t.Fatal(err)
	}
	defer wfResp.Body.Close()
	if wfResp.StatusCode != http.StatusOK {
		t.Fatalf("workflow status = %d", wfResp.StatusCode)
	}

	// But not under someone else's campaign.
	otherResp, err := http.Get(srv.URL + "/api/v1/campaigns/camp-2/workflows/" + result.WorkflowID)
	if err != nil {
		t.Fatal(err)
	}
	defer otherResp.Body.Close()
	if otherResp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-campaign status = %d", otherResp.StatusCode)
	}
}

func TestCreateCampaign_Invalid(t *testing.T) {
	srv := newTestServer(t, stubChat{})
	resp := postJSON(t, srv.URL+"/api/v1/campaigns", `{"name": "no id", "type": "automatic"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestChat_RequiresCampaign(t *testing.T) {
	srv := newTestServer(t, stubChat{})
	resp := postJSON(t, srv.URL+"/api/v1/chat", `{"user_query": "hi"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestChat_RoundTrip(t *testing.T) {
	srv := newTestServer(t, stubChat{})
	postJSON(t, srv.URL+"/api/v1/campaigns",
		`{"id": "camp-1", "name": "Acme Watch", "type": "automatic", "budget_limit": 5.0}`)

	resp := postJSON(t, srv.URL+"/api/v1/chat",
		`{"user_query": "what do users say about pricing?", "campaign_id": "camp-1", "user_id": "u1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result models.ChatResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Answer == "" {
		t.Fatalf("result = %+v", result)
	}
}

// Rate limiting belongs to the guardrail validator, so an over-limit
// caller still gets a well-formed chat response with an explicit error
// code rather than a bare 429.
func TestChat_RateLimitedVerdictReachesCaller(t *testing.T) {
	synth := rag.NewSynthesizer(
		guardrails.NewValidator(guardrails.WithRateLimit(1)),
		stubIntentSvc{},
		stubRetrievalSvc{},
		stubProvider{},
		monitoring.NewSink(),
		resilience.NewBreakerRegistry(5, 30*time.Second),
	)
	srv := newTestServer(t, synth)
	postJSON(t, srv.URL+"/api/v1/campaigns",
		`{"id": "camp-1", "name": "Acme Watch", "type": "automatic", "budget_limit": 5.0}`)

	body := `{"user_query": "what do users say about pricing?", "campaign_id": "camp-1", "user_id": "u1"}`
	first := postJSON(t, srv.URL+"/api/v1/chat", body)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d", first.StatusCode)
	}

	second := postJSON(t, srv.URL+"/api/v1/chat", body)
	if second.StatusCode != http.StatusOK {
		t.Fatalf("second status = %d, want a well-formed chat response", second.StatusCode)
	}
	var result models.ChatResult
	if err := json.NewDecoder(second.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("over-limit query must not succeed")
	}
	if result.ErrorCode != string(models.VerdictRateLimited) {
		t.Fatalf("error_code = %q, want %s", result.ErrorCode, models.VerdictRateLimited)
	}
	if result.Answer == "" {
		t.Error("rejection must still carry a user-safe answer")
	}
}

func TestResume_UnknownWorkflow(t *testing.T) {
	srv := newTestServer(t, stubChat{})
	resp := postJSON(t, srv.URL+"/api/v1/workflows/ghost/resume", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
