// Package store — in-memory Storage implementation.
// Used when PostgreSQL is not available (local dev, tests). Supports
// file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Campaigns   map[string]*models.CampaignContext `json:"campaigns"`
	Checkpoints map[string]*models.WorkflowState   `json:"checkpoints"` // key: workflow_id
	Content     map[string]*models.ContentItem     `json:"content"`     // key: campaign:id
	Insights    map[string][]models.Insight        `json:"insights"`    // key: campaign_id
	PainPoints  map[string][]models.PainPoint      `json:"pain_points"` // key: campaign_id
	ErrorStats  map[string]int64                   `json:"error_stats"` // key: component:kind:hour
}

// MemoryStore implements contracts.Storage with in-memory maps.
type MemoryStore struct {
	mu          sync.RWMutex
	campaigns   map[string]*models.CampaignContext
	checkpoints map[string]*models.WorkflowState // key: workflow_id
	content     map[string]*models.ContentItem   // key: campaign:id
	insights    map[string][]models.Insight      // key: campaign_id
	painPoints  map[string][]models.PainPoint    // key: campaign_id
	errorStats  map[string]int64                 // key: component:kind:hour

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{}
	closeOnce    sync.Once
}

// NewMemoryStore creates a new in-memory store.
// If ECHOLENS_DATA_DIR is set, data is persisted to a JSON file in that
// directory; set it to "-" to disable persistence entirely.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		campaigns:   make(map[string]*models.CampaignContext),
		checkpoints: make(map[string]*models.WorkflowState),
		content:     make(map[string]*models.ContentItem),
		insights:    make(map[string][]models.Insight),
		painPoints:  make(map[string][]models.PainPoint),
		errorStats:  make(map[string]int64),
		saveCh:      make(chan struct{}, 1),
		doneCh:      make(chan struct{}),
	}

	dataDir := os.Getenv("ECHOLENS_DATA_DIR")
	if dataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataDir = filepath.Join(home, ".echolens")
		}
	}
	if dataDir != "" && dataDir != "-" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// ── Campaigns ───────────────────────────────────────────────

// PutCampaign registers a campaign snapshot. Used by seeding and tests;
// production campaigns arrive through the snapshot file.
func (m *MemoryStore) PutCampaign(_ context.Context, c *models.CampaignContext) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("campaign must have an id")
	}
	m.mu.Lock()
	m.campaigns[c.ID] = c.Clone()
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetCampaign(_ context.Context, id string) (*models.CampaignContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %s not found", id)
	}
	return c.Clone(), nil
}

// CommitSpend atomically adds a committed stage spend to the campaign.
func (m *MemoryStore) CommitSpend(_ context.Context, campaignID string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("negative spend %f rejected", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return fmt.Errorf("campaign %s not found", campaignID)
	}
	c.CurrentSpend += amount
	m.requestSave()
	return nil
}

// ── Checkpoints ─────────────────────────────────────────────

// PutCheckpoint stores a deep copy of the workflow state, so later
// mutation of the live state never bleeds into the checkpoint.
func (m *MemoryStore) PutCheckpoint(_ context.Context, workflowID string, state *models.WorkflowState) error {
	if workflowID == "" {
		return fmt.Errorf("checkpoint requires a workflow_id")
	}
	cp, err := cloneState(state)
	if err != nil {
		return fmt.Errorf("clone checkpoint: %w", err)
	}
	m.mu.Lock()
	m.checkpoints[workflowID] = cp
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// GetCheckpoint returns nil, nil when no checkpoint exists.
func (m *MemoryStore) GetCheckpoint(_ context.Context, workflowID string) (*models.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.checkpoints[workflowID]
	if !ok {
		return nil, nil
	}
	return cloneState(st)
}

// ── Content ─────────────────────────────────────────────────

// SaveContentBatch stores items one by one: a malformed item is
// counted as failed, not fatal to the batch. Scores are clamped to
// their documented ranges at write time.
func (m *MemoryStore) SaveContentBatch(_ context.Context, items []models.ContentItem) (models.BatchSaveResult, error) {
	var result models.BatchSaveResult

	m.mu.Lock()
	for _, item := range items {
		if item.ID == "" || item.CampaignID == "" || item.Body == "" {
			result.Failed++
			continue
		}
		if item.ClampScores() {
			log.Warn().
				Str("content_id", item.ID).
				Str("campaign_id", item.CampaignID).
				Msg("out-of-range scores clamped at write")
		}
		if item.CollectedAt.IsZero() {
			item.CollectedAt = time.Now().UTC()
		}
		cp := item
		m.content[item.CampaignID+":"+item.ID] = &cp
		result.Saved++
	}
	m.mu.Unlock()

	if result.Saved > 0 {
		m.requestSave()
	}
	return result, nil
}

// ListContent returns up to limit items for a campaign, newest first.
func (m *MemoryStore) ListContent(_ context.Context, campaignID string, limit int) ([]models.ContentItem, error) {
	m.mu.RLock()
	var items []models.ContentItem
	for _, c := range m.content {
		if c.CampaignID == campaignID {
			items = append(items, *c)
		}
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].CollectedAt.After(items[j].CollectedAt)
	})
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryStore) SaveInsights(_ context.Context, insights []models.Insight) error {
	m.mu.Lock()
	for _, in := range insights {
		if in.CampaignID == "" {
			continue
		}
		m.insights[in.CampaignID] = append(m.insights[in.CampaignID], in)
	}
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) SavePainPoints(_ context.Context, points []models.PainPoint) error {
	m.mu.Lock()
	for _, p := range points {
		if p.CampaignID == "" {
			continue
		}
		m.painPoints[p.CampaignID] = append(m.painPoints[p.CampaignID], p)
	}
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ListInsights returns the analyze stage's findings for a campaign.
func (m *MemoryStore) ListInsights(_ context.Context, campaignID string) ([]models.Insight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Insight(nil), m.insights[campaignID]...), nil
}

// ListPainPoints returns extracted pain points for a campaign.
func (m *MemoryStore) ListPainPoints(_ context.Context, campaignID string) ([]models.PainPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.PainPoint(nil), m.painPoints[campaignID]...), nil
}

// ── Error stats ─────────────────────────────────────────────

// RecordErrorStat bumps the hour-bucketed counter for one error class.
func (m *MemoryStore) RecordErrorStat(_ context.Context, rec models.ErrorRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	key := fmt.Sprintf("%s:%s:%s", rec.Component, rec.Kind, ts.UTC().Format("2006-01-02T15"))

	m.mu.Lock()
	m.errorStats[key]++
	m.mu.Unlock()
	return nil
}

// ErrorStats returns the counters whose key starts with the component.
// Empty component returns everything.
func (m *MemoryStore) ErrorStats(_ context.Context, component string) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64)
	for k, v := range m.errorStats {
		if component == "" || hasComponentPrefix(k, component) {
			out[k] = v
		}
	}
	return out, nil
}

func hasComponentPrefix(key, component string) bool {
	return len(key) > len(component) && key[:len(component)] == component && key[len(component)] == ':'
}

// ── Lifecycle ───────────────────────────────────────────────

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops the save loop and flushes a final snapshot.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
	})
	return nil
}

// ── Persistence ─────────────────────────────────────────────

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop debounces save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Campaigns:   m.campaigns,
		Checkpoints: m.checkpoints,
		Content:     m.content,
		Insights:    m.insights,
		PainPoints:  m.painPoints,
		ErrorStats:  m.errorStats,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		log.Error().Err(err).Msg("snapshot marshal failed")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Error().Err(err).Msg("snapshot write failed")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Msg("snapshot rename failed")
	}
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("snapshot read failed, starting empty")
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("snapshot corrupt, starting empty")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Campaigns != nil {
		m.campaigns = snap.Campaigns
	}
	if snap.Checkpoints != nil {
		m.checkpoints = snap.Checkpoints
	}
	if snap.Content != nil {
		m.content = snap.Content
	}
	if snap.Insights != nil {
		m.insights = snap.Insights
	}
	if snap.PainPoints != nil {
		m.painPoints = snap.PainPoints
	}
	if snap.ErrorStats != nil {
		m.errorStats = snap.ErrorStats
	}
	log.Info().
		Int("campaigns", len(m.campaigns)).
		Int("checkpoints", len(m.checkpoints)).
		Int("content", len(m.content)).
		Msg("Snapshot loaded")
}

// cloneState deep-copies a workflow state via its JSON shape.
func cloneState(st *models.WorkflowState) (*models.WorkflowState, error) {
	if st == nil {
		return nil, fmt.Errorf("nil workflow state")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	var cp models.WorkflowState
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}
