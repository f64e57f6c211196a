package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// PgvectorStore backs retrieval with PostgreSQL + pgvector: cosine
// similarity for the vector path, full-text rank for the keyword path.
// Users must provide their own PostgreSQL instance with pgvector
// installed. Connection URL is read from ECHOLENS_PGVECTOR_URL.
type PgvectorStore struct {
	pool       *pgxpool.Pool
	dimensions int
}

// NewPgvectorStore creates a pgvector-backed document store.
// It creates the required table and indexes if they don't exist.
func NewPgvectorStore(ctx context.Context, connURL string, dimensions int) (*PgvectorStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	s := &PgvectorStore{pool: pool, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	log.Info().Int("dims", dimensions).Msg("pgvector store initialized")
	return s, nil
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS el_docs (
			id          TEXT NOT NULL,
			campaign_id TEXT NOT NULL,
			content     TEXT NOT NULL DEFAULT '',
			url         TEXT NOT NULL DEFAULT '',
			metadata    JSONB NOT NULL DEFAULT '{}',
			vector      vector(%d) NOT NULL,
			tsv         TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (campaign_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_el_docs_campaign ON el_docs (campaign_id);
		CREATE INDEX IF NOT EXISTS idx_el_docs_tsv ON el_docs USING GIN (tsv);
	`, s.dimensions)

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PgvectorStore) Kind() string { return "pgvector" }

// Upsert batch-inserts docs for one campaign with ON CONFLICT update.
func (s *PgvectorStore) Upsert(ctx context.Context, campaignID string, docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO el_docs (id, campaign_id, content, url, metadata, vector, created_at)
		VALUES `)

	args := make([]interface{}, 0, len(docs)*7)
	for i, d := range docs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*7 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", base, base+1, base+2, base+3, base+4, base+5, base+6))
		id := d.ID
		if id == "" {
			id = uuid.NewString()
		}
		now := d.CreatedAt
		if now.IsZero() {
			now = time.Now()
		}
		metadata := d.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		args = append(args, id, campaignID, d.Text, d.URL, metadata, pgvectorArray(d.Vector), now)
	}

	sb.WriteString(` ON CONFLICT (campaign_id, id) DO UPDATE SET
		content = EXCLUDED.content,
		url = EXCLUDED.url,
		metadata = EXCLUDED.metadata,
		vector = EXCLUDED.vector`)

	_, err := s.pool.Exec(ctx, sb.String(), args...)
	return err
}

// SearchVector runs cosine similarity search scoped to one campaign.
// Metadata filters become JSONB equality predicates.
func (s *PgvectorStore) SearchVector(ctx context.Context, campaignID string, vector []float64, topK int, filter map[string]string) ([]models.RetrievalResult, error) {
	query := `SELECT id, campaign_id, content, url, created_at,
		1 - (vector <=> $1) AS score
		FROM el_docs
		WHERE campaign_id = $2`

	args := []interface{}{pgvectorArray(vector), campaignID}
	argIdx := 3

	for fk, fv := range filter {
		query += fmt.Sprintf(" AND metadata->>$%d = $%d", argIdx, argIdx+1)
		args = append(args, fk, fv)
		argIdx += 2
	}

	query += fmt.Sprintf(" ORDER BY vector <=> $1 LIMIT $%d", argIdx)
	args = append(args, topK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var results []models.RetrievalResult
	for rows.Next() {
		r, err := scanResult(rows.Scan, models.ModalityVector)
		if err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SearchKeyword runs full-text search scoped to one campaign, ranked
// by ts_rank and normalized into [0,1].
func (s *PgvectorStore) SearchKeyword(ctx context.Context, campaignID string, query string, topK int) ([]models.RetrievalResult, error) {
	sql := `SELECT id, campaign_id, content, url, created_at,
		LEAST(ts_rank(tsv, websearch_to_tsquery('english', $1)), 1.0) AS score
		FROM el_docs
		WHERE campaign_id = $2 AND tsv @@ websearch_to_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, sql, query, campaignID, topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []models.RetrievalResult
	for rows.Next() {
		r, err := scanResult(rows.Scan, models.ModalityKeyword)
		if err != nil {
			return nil, fmt.Errorf("keyword scan: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Delete removes docs by ID within one campaign.
func (s *PgvectorStore) Delete(ctx context.Context, campaignID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, "DELETE FROM el_docs WHERE campaign_id = $1 AND id = ANY($2)", campaignID, ids)
	return err
}

// Count returns the number of docs stored for one campaign.
func (s *PgvectorStore) Count(ctx context.Context, campaignID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM el_docs WHERE campaign_id = $1", campaignID).Scan(&count)
	return count, err
}

func (s *PgvectorStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() {
	s.pool.Close()
}

func scanResult(scan func(...any) error, modality models.Modality) (models.RetrievalResult, error) {
	var (
		id, campaignID, content, url string
		createdAt                    time.Time
		score                        float64
	)
	if err := scan(&id, &campaignID, &content, &url, &createdAt, &score); err != nil {
		return models.RetrievalResult{}, err
	}
	return models.RetrievalResult{
		SourceID: id,
		Text:     content,
		Score:    score,
		Modality: modality,
		Provenance: models.Provenance{
			RecordID:   id,
			CampaignID: campaignID,
			URL:        url,
			Timestamp:  createdAt,
		},
	}, nil
}

// pgvectorArray converts a float64 slice to pgvector's text format: [1.0,2.0,3.0]
func pgvectorArray(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%g", f))
	}
	sb.WriteByte(']')
	return sb.String()
}
