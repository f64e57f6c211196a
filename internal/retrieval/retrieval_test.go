package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Kind() string      { return "fake" }
func (f *fakeEmbedder) Dimensions() int   { return 3 }
func (f *fakeEmbedder) MaxBatchSize() int { return 100 }
func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}
func (f *fakeEmbedder) HealthCheck(context.Context) error { return nil }

type fakeVector struct {
	hits       []models.RetrievalResult
	err        error
	campaignID string
}

func (f *fakeVector) SearchVector(_ context.Context, campaignID string, _ []float64, _ int, _ map[string]string) ([]models.RetrievalResult, error) {
	f.campaignID = campaignID
	return f.hits, f.err
}

type fakeKeyword struct {
	hits       []models.RetrievalResult
	err        error
	campaignID string
}

func (f *fakeKeyword) SearchKeyword(_ context.Context, campaignID string, _ string, _ int) ([]models.RetrievalResult, error) {
	f.campaignID = campaignID
	return f.hits, f.err
}

func hit(id string, score float64, modality models.Modality, ts time.Time) models.RetrievalResult {
	return models.RetrievalResult{
		SourceID: id,
		Text:     "text " + id,
		Score:    score,
		Modality: modality,
		Provenance: models.Provenance{
			RecordID:   id,
			CampaignID: "camp-1",
			Timestamp:  ts,
		},
	}
}

func TestSearch_FusesBothPaths(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	vec := &fakeVector{hits: []models.RetrievalResult{
		hit("a", 0.9, models.ModalityVector, t0),
		hit("b", 0.5, models.ModalityVector, t0),
	}}
	kw := &fakeKeyword{hits: []models.RetrievalResult{
		hit("b", 0.8, models.ModalityKeyword, t0),
		hit("c", 0.7, models.ModalityKeyword, t0),
	}}
	e := NewEngine(&fakeEmbedder{}, vec, kw)

	results, err := e.Search(context.Background(), "battery complaints", "camp-1", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(results))
	}
	// b appears on both paths: max score 0.8, hybrid modality.
	if results[0].SourceID != "a" || results[1].SourceID != "b" || results[2].SourceID != "c" {
		t.Fatalf("unexpected order: %s %s %s", results[0].SourceID, results[1].SourceID, results[2].SourceID)
	}
	if results[1].Score != 0.8 {
		t.Errorf("duplicate should keep max score, got %f", results[1].Score)
	}
	if results[1].Modality != models.ModalityHybrid {
		t.Errorf("duplicate should become hybrid, got %s", results[1].Modality)
	}
}

func TestSearch_CampaignScopePropagates(t *testing.T) {
	vec := &fakeVector{}
	kw := &fakeKeyword{}
	e := NewEngine(&fakeEmbedder{}, vec, kw)

	if _, err := e.Search(context.Background(), "query text", "camp-42", 5, nil); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if vec.campaignID != "camp-42" || kw.campaignID != "camp-42" {
		t.Fatalf("campaign scope lost: vector=%q keyword=%q", vec.campaignID, kw.campaignID)
	}
}

func TestSearch_DegradesWhenVectorFails(t *testing.T) {
	t0 := time.Now()
	vec := &fakeVector{err: errors.New("provider down")}
	kw := &fakeKeyword{hits: []models.RetrievalResult{hit("k1", 0.6, models.ModalityKeyword, t0)}}
	e := NewEngine(&fakeEmbedder{}, vec, kw)

	results, err := e.Search(context.Background(), "query", "camp-1", 5, nil)
	if err != nil {
		t.Fatalf("expected degraded success, got %v", err)
	}
	if len(results) != 1 || results[0].SourceID != "k1" {
		t.Fatalf("expected keyword-only results, got %v", results)
	}
}

func TestSearch_DegradesWhenEmbedderFails(t *testing.T) {
	t0 := time.Now()
	kw := &fakeKeyword{hits: []models.RetrievalResult{hit("k1", 0.6, models.ModalityKeyword, t0)}}
	e := NewEngine(&fakeEmbedder{err: errors.New("embed down")}, &fakeVector{}, kw)

	results, err := e.Search(context.Background(), "query", "camp-1", 5, nil)
	if err != nil {
		t.Fatalf("expected degraded success, got %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected keyword-only results, got %v", results)
	}
}

func TestSearch_BothPathsFailing(t *testing.T) {
	vec := &fakeVector{err: errors.New("vector down")}
	kw := &fakeKeyword{err: errors.New("keyword down")}
	e := NewEngine(&fakeEmbedder{}, vec, kw)

	if _, err := e.Search(context.Background(), "query", "camp-1", 5, nil); err == nil {
		t.Fatal("expected error when both paths fail")
	}
}

func TestSearch_TopKAppliedAfterFusion(t *testing.T) {
	t0 := time.Now()
	vec := &fakeVector{hits: []models.RetrievalResult{
		hit("a", 0.9, models.ModalityVector, t0),
		hit("b", 0.8, models.ModalityVector, t0),
	}}
	kw := &fakeKeyword{hits: []models.RetrievalResult{
		hit("c", 0.85, models.ModalityKeyword, t0),
		hit("d", 0.1, models.ModalityKeyword, t0),
	}}
	e := NewEngine(&fakeEmbedder{}, vec, kw)

	results, err := e.Search(context.Background(), "query", "camp-1", 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected top-2 after fusion, got %d", len(results))
	}
	if results[0].SourceID != "a" || results[1].SourceID != "c" {
		t.Fatalf("expected a,c — got %s,%s", results[0].SourceID, results[1].SourceID)
	}
}

func TestSearch_EmptyCorpus(t *testing.T) {
	e := NewEngine(&fakeEmbedder{}, &fakeVector{}, &fakeKeyword{})
	results, err := e.Search(context.Background(), "query", "camp-1", 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %d", len(results))
	}
}

func TestFuse_TieBreakByTimestamp(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	fused := Fuse(
		[]models.RetrievalResult{hit("old", 0.5, models.ModalityVector, older)},
		[]models.RetrievalResult{hit("new", 0.5, models.ModalityKeyword, newer)},
	)
	if fused[0].SourceID != "new" {
		t.Fatalf("equal scores should rank newer first, got %s", fused[0].SourceID)
	}
}
