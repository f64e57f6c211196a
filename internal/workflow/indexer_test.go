package workflow

import (
	"context"
	"testing"

	"github.com/echolens/echolens/insight-engine/internal/embeddings"
	"github.com/echolens/echolens/insight-engine/internal/vectorstore"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

type unitDriver struct{}

func (unitDriver) Kind() string      { return "unit" }
func (unitDriver) Dimensions() int   { return 3 }
func (unitDriver) MaxBatchSize() int { return 100 }

func (unitDriver) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

func (unitDriver) HealthCheck(context.Context) error { return nil }

func TestEmbedIndexer_IndexesAllRecordGroups(t *testing.T) {
	docs := vectorstore.NewEmbeddedStore()
	x := NewEmbedIndexer(embeddings.NewBatcher(unitDriver{}), docs)
	ctx := context.Background()

	items := []models.ContentItem{
		{ID: "c1", Body: "battery drains overnight", Source: "reddit"},
		{ID: "c2", Title: "pricing rant", Body: "the new tier doubled my bill", Source: "forum"},
	}
	insights := []models.Insight{{ID: "i1", Title: "Billing friction", Summary: "price changes surprise users"}}
	points := []models.PainPoint{{ID: "p1", Theme: "battery", Description: "rapid drain on idle"}}

	spend, err := x.Index(ctx, "camp-1", items, insights, points)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if spend <= 0 {
		t.Error("expected a positive embedding spend proposal")
	}

	count, err := docs.Count(ctx, "camp-1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 indexed docs (2 content + 1 insight + 1 pain point), got %d", count)
	}

	// Derived records are searchable and carry their kind.
	hits, err := docs.SearchKeyword(ctx, "camp-1", "billing friction", 10)
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.SourceID == "i1" {
			found = true
		}
	}
	if !found {
		t.Error("insight record not retrievable after indexing")
	}
}

func TestEmbedIndexer_EmptyRun(t *testing.T) {
	docs := vectorstore.NewEmbeddedStore()
	x := NewEmbedIndexer(embeddings.NewBatcher(unitDriver{}), docs)

	spend, err := x.Index(context.Background(), "camp-1", nil, nil, nil)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if spend != 0 {
		t.Errorf("empty run must propose zero spend, got %f", spend)
	}
}
