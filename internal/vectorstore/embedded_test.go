package vectorstore

import (
	"context"
	"testing"
	"time"
)

func seedStore(t *testing.T) *EmbeddedStore {
	t.Helper()
	s := NewEmbeddedStore()
	docs := []Doc{
		{ID: "d1", Text: "battery life drains too fast on the new model", Vector: []float64{1, 0, 0}, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "d2", Text: "great camera but the battery disappoints", Vector: []float64{0.9, 0.1, 0}, Metadata: map[string]string{"source": "reddit"}},
		{ID: "d3", Text: "shipping was slow, support never answered", Vector: []float64{0, 1, 0}},
	}
	if err := s.Upsert(context.Background(), "camp-1", docs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	// A different campaign's doc must never surface.
	other := []Doc{{ID: "x1", Text: "battery battery battery", Vector: []float64{1, 0, 0}}}
	if err := s.Upsert(context.Background(), "camp-2", other); err != nil {
		t.Fatalf("Upsert other: %v", err)
	}
	return s
}

func TestEmbedded_SearchVectorScopedToCampaign(t *testing.T) {
	s := seedStore(t)

	results, err := s.SearchVector(context.Background(), "camp-1", []float64{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("SearchVector: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Provenance.CampaignID != "camp-1" {
			t.Errorf("cross-campaign leak: %s from %s", r.SourceID, r.Provenance.CampaignID)
		}
	}
	if results[0].SourceID != "d1" {
		t.Errorf("expected d1 first (exact match), got %s", results[0].SourceID)
	}
	if results[0].Modality != "vector" {
		t.Errorf("expected vector modality, got %s", results[0].Modality)
	}
}

func TestEmbedded_SearchVectorMetadataFilter(t *testing.T) {
	s := seedStore(t)

	results, err := s.SearchVector(context.Background(), "camp-1", []float64{1, 0, 0}, 10, map[string]string{"source": "reddit"})
	if err != nil {
		t.Fatalf("SearchVector: %v", err)
	}
	if len(results) != 1 || results[0].SourceID != "d2" {
		t.Fatalf("expected only d2, got %v", results)
	}
}

func TestEmbedded_SearchVectorTopK(t *testing.T) {
	s := seedStore(t)

	results, err := s.SearchVector(context.Background(), "camp-1", []float64{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("SearchVector: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestEmbedded_SearchKeyword(t *testing.T) {
	s := seedStore(t)

	results, err := s.SearchKeyword(context.Background(), "camp-1", "battery life", 10)
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 keyword hits, got %d", len(results))
	}
	// d1 contains both terms, d2 only "battery".
	if results[0].SourceID != "d1" {
		t.Errorf("expected d1 first, got %s", results[0].SourceID)
	}
	if results[0].Score != 1.0 {
		t.Errorf("expected full-overlap score 1.0, got %f", results[0].Score)
	}
	for _, r := range results {
		if r.Provenance.CampaignID != "camp-1" {
			t.Errorf("cross-campaign leak in keyword path: %s", r.SourceID)
		}
		if r.Modality != "keyword" {
			t.Errorf("expected keyword modality, got %s", r.Modality)
		}
	}
}

func TestEmbedded_SearchKeywordEmptyQuery(t *testing.T) {
	s := seedStore(t)
	results, err := s.SearchKeyword(context.Background(), "camp-1", "   ", 10)
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for empty query, got %d", len(results))
	}
}

func TestEmbedded_CapacityLimit(t *testing.T) {
	s := NewEmbeddedStore(WithMaxDocs(2))
	docs := []Doc{
		{ID: "a", Vector: []float64{1}},
		{ID: "b", Vector: []float64{1}},
		{ID: "c", Vector: []float64{1}},
	}
	if err := s.Upsert(context.Background(), "camp-1", docs); err == nil {
		t.Fatal("expected capacity error")
	}
}

func TestEmbedded_DeleteAndCount(t *testing.T) {
	s := seedStore(t)

	if err := s.Delete(context.Background(), "camp-1", []string{"d1", "d3"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	count, err := s.Count(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 doc after delete, got %d", count)
	}
	// Other campaign untouched.
	count, _ = s.Count(context.Background(), "camp-2")
	if count != 1 {
		t.Fatalf("expected camp-2 unaffected, got %d", count)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float64{1, 0}, []float64{1, 0}); got < 0.999 {
		t.Errorf("identical vectors: expected ~1.0, got %f", got)
	}
	if got := cosineSimilarity([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors: expected 0, got %f", got)
	}
	if got := cosineSimilarity([]float64{0, 0}, []float64{1, 1}); got != 0 {
		t.Errorf("zero vector: expected 0, got %f", got)
	}
}
