// Package vectorstore provides campaign-scoped document stores that
// back the retrieval engine's vector and keyword search paths. The
// embedded store serves development and tests; pgvector serves
// production.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// DefaultMaxDocs is the default cap for the embedded store (50K).
// Exceeding this triggers a warning nudging users to pgvector.
const DefaultMaxDocs = 50_000

// Doc is one stored passage with its embedding. Provenance fields are
// carried so search results can be traced back to the source record.
type Doc struct {
	ID         string
	CampaignID string
	Text       string
	URL        string
	Metadata   map[string]string
	Vector     []float64
	CreatedAt  time.Time
}

// EmbeddedStore is a lightweight in-memory document store using
// brute-force cosine similarity for vector search and term overlap for
// keyword search. Suitable for development and small campaigns
// (≤50K docs). For production, use pgvector.
type EmbeddedStore struct {
	mu      sync.RWMutex
	docs    map[string]*Doc // key: campaignID:id
	maxDocs int
}

// EmbeddedOption configures the embedded store.
type EmbeddedOption func(*EmbeddedStore)

// WithMaxDocs sets the maximum number of documents (default 50K).
func WithMaxDocs(max int) EmbeddedOption {
	return func(s *EmbeddedStore) { s.maxDocs = max }
}

// NewEmbeddedStore creates an in-memory document store.
func NewEmbeddedStore(opts ...EmbeddedOption) *EmbeddedStore {
	s := &EmbeddedStore{
		docs:    make(map[string]*Doc),
		maxDocs: DefaultMaxDocs,
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Info().Int("max_docs", s.maxDocs).Msg("Embedded document store initialized")
	return s
}

func (s *EmbeddedStore) Kind() string { return "embedded" }

// Upsert stores docs under one campaign. Docs without an ID get one.
func (s *EmbeddedStore) Upsert(_ context.Context, campaignID string, docs []Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newCount := 0
	for _, d := range docs {
		if _, exists := s.docs[key(campaignID, d.ID)]; !exists {
			newCount++
		}
	}
	total := len(s.docs) + newCount
	if total > s.maxDocs {
		return fmt.Errorf("embedded store capacity exceeded: %d > %d (consider pgvector)", total, s.maxDocs)
	}
	if total > int(float64(s.maxDocs)*0.9) {
		log.Warn().Int("count", total).Int("max", s.maxDocs).Msg("Embedded store nearing capacity — consider pgvector")
	}

	now := time.Now()
	for _, d := range docs {
		cp := d
		cp.CampaignID = campaignID
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		s.docs[key(campaignID, cp.ID)] = &cp
	}
	return nil
}

// SearchVector runs brute-force cosine similarity over one campaign's
// docs. Only docs matching every filter entry are candidates.
func (s *EmbeddedStore) SearchVector(_ context.Context, campaignID string, vector []float64, topK int, filter map[string]string) ([]models.RetrievalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc   *Doc
		score float64
	}
	var candidates []scored

	for _, d := range s.docs {
		if d.CampaignID != campaignID {
			continue
		}
		if len(d.Vector) != len(vector) {
			continue
		}
		if !matchesFilter(d, filter) {
			continue
		}
		candidates = append(candidates, scored{doc: d, score: cosineSimilarity(vector, d.Vector)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if topK > len(candidates) {
		topK = len(candidates)
	}

	results := make([]models.RetrievalResult, topK)
	for i := 0; i < topK; i++ {
		results[i] = toResult(candidates[i].doc, candidates[i].score, models.ModalityVector)
	}
	return results, nil
}

// SearchKeyword scores one campaign's docs by query-term overlap:
// matched terms / query terms, so a doc containing every query word
// scores 1.0.
func (s *EmbeddedStore) SearchKeyword(_ context.Context, campaignID string, query string, topK int) ([]models.RetrievalResult, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc   *Doc
		score float64
	}
	var candidates []scored

	for _, d := range s.docs {
		if d.CampaignID != campaignID {
			continue
		}
		text := strings.ToLower(d.Text)
		matched := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		candidates = append(candidates, scored{doc: d, score: float64(matched) / float64(len(terms))})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if topK > len(candidates) {
		topK = len(candidates)
	}

	results := make([]models.RetrievalResult, topK)
	for i := 0; i < topK; i++ {
		results[i] = toResult(candidates[i].doc, candidates[i].score, models.ModalityKeyword)
	}
	return results, nil
}

// Delete removes docs by ID within one campaign.
func (s *EmbeddedStore) Delete(_ context.Context, campaignID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, key(campaignID, id))
	}
	return nil
}

// Count returns the number of docs stored for one campaign.
func (s *EmbeddedStore) Count(_ context.Context, campaignID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, d := range s.docs {
		if d.CampaignID == campaignID {
			count++
		}
	}
	return count, nil
}

func (s *EmbeddedStore) HealthCheck(_ context.Context) error {
	return nil // always healthy — it's in-memory
}

// ── Helpers ─────────────────────────────────────────────────

func key(campaignID, id string) string {
	return campaignID + ":" + id
}

func matchesFilter(d *Doc, filter map[string]string) bool {
	for fk, fv := range filter {
		if d.Metadata[fk] != fv {
			return false
		}
	}
	return true
}

func toResult(d *Doc, score float64, modality models.Modality) models.RetrievalResult {
	return models.RetrievalResult{
		SourceID: d.ID,
		Text:     d.Text,
		Score:    score,
		Modality: modality,
		Provenance: models.Provenance{
			RecordID:   d.ID,
			CampaignID: d.CampaignID,
			URL:        d.URL,
			Timestamp:  d.CreatedAt,
		},
	}
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"()")
		if len(f) >= 2 {
			terms = append(terms, f)
		}
	}
	return terms
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
