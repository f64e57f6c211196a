// Package retrieval implements hybrid search: vector and keyword
// lookups fan out concurrently and their candidates are fused into a
// single ranked list.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/pkg/contracts"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// DefaultTopK is the fused result count when the caller passes ≤0.
const DefaultTopK = 5

// Engine fuses vector and keyword search over one campaign's corpus.
// Either path failing degrades the engine to the surviving path; only
// both failing is an error.
type Engine struct {
	embedder contracts.EmbeddingDriver
	vector   contracts.VectorSearcher
	keyword  contracts.KeywordSearcher
	topK     int
}

// Option configures the engine.
type Option func(*Engine)

// WithTopK sets the default fused result count.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// NewEngine creates a retrieval engine over the given search backends.
func NewEngine(embedder contracts.EmbeddingDriver, vector contracts.VectorSearcher, keyword contracts.KeywordSearcher, opts ...Option) *Engine {
	e := &Engine{
		embedder: embedder,
		vector:   vector,
		keyword:  keyword,
		topK:     DefaultTopK,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs both paths concurrently and fuses their candidates.
// campaignID scopes every lookup; it is not part of the filter map so
// callers cannot widen it. Results are the fused top-k: duplicates
// merged by source keeping the max score, ranked descending.
func (e *Engine) Search(ctx context.Context, query, campaignID string, topK int, filter map[string]string) ([]models.RetrievalResult, error) {
	if topK <= 0 {
		topK = e.topK
	}

	var (
		wg          sync.WaitGroup
		vectorHits  []models.RetrievalResult
		keywordHits []models.RetrievalResult
		vectorErr   error
		keywordErr  error
	)

	// Paths run independently: one failing must not cancel the other,
	// so no errgroup-style cross-cancellation here.
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorHits, vectorErr = e.searchVector(ctx, query, campaignID, topK, filter)
	}()
	go func() {
		defer wg.Done()
		keywordHits, keywordErr = e.keyword.SearchKeyword(ctx, campaignID, query, topK)
	}()
	wg.Wait()

	if vectorErr != nil && keywordErr != nil {
		return nil, fmt.Errorf("retrieval failed on both paths: vector: %v; keyword: %w", vectorErr, keywordErr)
	}
	if vectorErr != nil {
		log.Warn().Err(vectorErr).Str("campaign_id", campaignID).Msg("vector path failed, degrading to keyword-only")
	}
	if keywordErr != nil {
		log.Warn().Err(keywordErr).Str("campaign_id", campaignID).Msg("keyword path failed, degrading to vector-only")
	}

	fused := Fuse(vectorHits, keywordHits)
	if topK < len(fused) {
		fused = fused[:topK]
	}
	return fused, nil
}

func (e *Engine) searchVector(ctx context.Context, query, campaignID string, topK int, filter map[string]string) ([]models.RetrievalResult, error) {
	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: empty response")
	}
	return e.vector.SearchVector(ctx, campaignID, vectors[0], topK, filter)
}

// Fuse merges candidates from both paths by source ID. A source seen
// on both paths keeps its max score and becomes hybrid. Ranking is by
// score descending; equal scores break by provenance timestamp, newer
// first, so ordering is deterministic.
func Fuse(vectorHits, keywordHits []models.RetrievalResult) []models.RetrievalResult {
	merged := make(map[string]models.RetrievalResult, len(vectorHits)+len(keywordHits))

	for _, r := range vectorHits {
		merged[r.SourceID] = r
	}
	for _, r := range keywordHits {
		prev, seen := merged[r.SourceID]
		if !seen {
			merged[r.SourceID] = r
			continue
		}
		best := prev
		if r.Score > best.Score {
			best = r
		}
		best.Modality = models.ModalityHybrid
		merged[r.SourceID] = best
	}

	fused := make([]models.RetrievalResult, 0, len(merged))
	for _, r := range merged {
		fused = append(fused, r)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if !fused[i].Provenance.Timestamp.Equal(fused[j].Provenance.Timestamp) {
			return fused[i].Provenance.Timestamp.After(fused[j].Provenance.Timestamp)
		}
		return fused[i].SourceID < fused[j].SourceID
	})
	return fused
}
