package scout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

func feedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestScout_DrainsFeeds(t *testing.T) {
	var gotQuery map[string]string
	srv := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"keywords": r.URL.Query().Get("keywords"),
			"months":   r.URL.Query().Get("months"),
			"depth":    r.URL.Query().Get("depth"),
		}
		w.Write([]byte(`[{"body": "love the new update", "sentiment_score": 0.8},
			{"body": "pricing is confusing", "sentiment_score": -0.4}]`))
	})

	campaign := &models.CampaignContext{
		ID:       "camp-1",
		Keywords: []string{"acme", "pricing"},
		Sources:  []string{srv.URL},
	}
	cfg := models.StageConfig{SearchDepth: "wide", CollectionMonths: 12}

	items, err := NewFeedScouter().Scout(context.Background(), campaign, cfg)
	if err != nil {
		t.Fatalf("Scout: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	if items[0].Source == "" || items[0].CollectedAt.IsZero() {
		t.Errorf("defaults not filled: %+v", items[0])
	}
	if gotQuery["keywords"] != "acme,pricing" || gotQuery["months"] != "12" || gotQuery["depth"] != "wide" {
		t.Errorf("query params: %v", gotQuery)
	}
}

func TestScout_SkipsDeadSource(t *testing.T) {
	dead := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collector offline", http.StatusBadGateway)
	})
	alive := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"body": "still collecting"}]`))
	})

	campaign := &models.CampaignContext{
		ID:      "camp-1",
		Sources: []string{dead.URL, alive.URL},
	}

	items, err := NewFeedScouter().Scout(context.Background(), campaign, models.StageConfig{})
	if err != nil {
		t.Fatalf("one live source must suffice: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
}

func TestScout_AllSourcesDead(t *testing.T) {
	dead := feedServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collector offline", http.StatusBadGateway)
	})

	campaign := &models.CampaignContext{ID: "camp-1", Sources: []string{dead.URL}}
	_, err := NewFeedScouter().Scout(context.Background(), campaign, models.StageConfig{})
	if err == nil {
		t.Fatal("expected error when every feed is down")
	}
	if models.ClassifyError(err) != models.KindProviderTransient {
		t.Errorf("classification = %s", models.ClassifyError(err))
	}
}

func TestScout_NoSources(t *testing.T) {
	campaign := &models.CampaignContext{ID: "camp-1"}
	items, err := NewFeedScouter().Scout(context.Background(), campaign, models.StageConfig{})
	if err != nil || items != nil {
		t.Fatalf("items=%v err=%v", items, err)
	}
}
