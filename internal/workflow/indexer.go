package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/echolens/echolens/insight-engine/internal/embeddings"
	"github.com/echolens/echolens/insight-engine/internal/vectorstore"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// embedCostPer1KTokens approximates small-embedding pricing for spend
// proposals; actual provider billing is reconciled elsewhere.
const embedCostPer1KTokens = 0.00002

// EmbedIndexer implements Indexer: embeds the run's content, insights
// and pain points through the batcher and upserts everything into the
// campaign's retrieval corpus. The three groups embed concurrently;
// batches within a group stay sequential.
type EmbedIndexer struct {
	batcher *embeddings.Batcher
	docs    vectorstore.DocStore
}

// NewEmbedIndexer creates the default indexer.
func NewEmbedIndexer(batcher *embeddings.Batcher, docs vectorstore.DocStore) *EmbedIndexer {
	return &EmbedIndexer{batcher: batcher, docs: docs}
}

// Index embeds all three record groups and writes them to the document
// store. Returns the estimated embedding spend for the orchestrator to
// commit.
func (x *EmbedIndexer) Index(ctx context.Context, campaignID string, items []models.ContentItem, insights []models.Insight, points []models.PainPoint) (float64, error) {
	groups := make(map[string][]string, 3)
	totalRunes := 0

	contentTexts := make([]string, len(items))
	for i, item := range items {
		text := item.Body
		if item.Title != "" {
			text = item.Title + "\n" + item.Body
		}
		contentTexts[i] = text
		totalRunes += len([]rune(text))
	}
	if len(contentTexts) > 0 {
		groups["content"] = contentTexts
	}

	insightTexts := make([]string, len(insights))
	for i, in := range insights {
		insightTexts[i] = in.Title + "\n" + in.Summary
		totalRunes += len([]rune(insightTexts[i]))
	}
	if len(insightTexts) > 0 {
		groups["insight"] = insightTexts
	}

	pointTexts := make([]string, len(points))
	for i, p := range points {
		pointTexts[i] = p.Theme + "\n" + p.Description
		totalRunes += len([]rune(pointTexts[i]))
	}
	if len(pointTexts) > 0 {
		groups["pain_point"] = pointTexts
	}

	if len(groups) == 0 {
		return 0, nil
	}

	vectors, err := x.batcher.EmbedGroups(ctx, groups)
	if err != nil {
		return 0, fmt.Errorf("embed groups: %w", err)
	}

	var docs []vectorstore.Doc
	if vs := vectors["content"]; len(vs) == len(items) {
		for i, item := range items {
			docs = append(docs, vectorstore.Doc{
				ID:     item.ID,
				Text:   strings.TrimSpace(contentTexts[i]),
				URL:    item.URL,
				Vector: vs[i],
				Metadata: map[string]string{
					"kind":   "content",
					"source": item.Source,
				},
				CreatedAt: item.PostedAt,
			})
		}
	}
	if vs := vectors["insight"]; len(vs) == len(insights) {
		for i, in := range insights {
			docs = append(docs, vectorstore.Doc{
				ID:        in.ID,
				Text:      strings.TrimSpace(insightTexts[i]),
				Vector:    vs[i],
				Metadata:  map[string]string{"kind": "insight"},
				CreatedAt: in.CreatedAt,
			})
		}
	}
	if vs := vectors["pain_point"]; len(vs) == len(points) {
		for i, p := range points {
			docs = append(docs, vectorstore.Doc{
				ID:        p.ID,
				Text:      strings.TrimSpace(pointTexts[i]),
				Vector:    vs[i],
				Metadata:  map[string]string{"kind": "pain_point"},
				CreatedAt: p.CreatedAt,
			})
		}
	}
	if len(docs) != len(items)+len(insights)+len(points) {
		return 0, fmt.Errorf("embed groups: got %d docs for %d records", len(docs), len(items)+len(insights)+len(points))
	}

	if err := x.docs.Upsert(ctx, campaignID, docs); err != nil {
		return 0, fmt.Errorf("upsert docs: %w", err)
	}

	// Rough 4-runes-per-token estimate.
	estTokens := float64(totalRunes) / 4
	return estTokens / 1000 * embedCostPer1KTokens, nil
}
