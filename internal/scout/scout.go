// Package scout collects raw community content from the collector
// fleet's export feeds. Collectors run outside this service and expose
// their staged batches over HTTP; a campaign's Sources are the feed
// URLs to drain.
package scout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// maxFeedBytes bounds one feed response.
const maxFeedBytes = 8 << 20

// FeedScouter pulls content batches from collector export feeds.
type FeedScouter struct {
	client *http.Client
}

// Option configures the scouter.
type Option func(*FeedScouter)

// WithTimeout overrides the default 30s per-feed timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *FeedScouter) { s.client.Timeout = d }
}

// NewFeedScouter creates the default scouter.
func NewFeedScouter(opts ...Option) *FeedScouter {
	s := &FeedScouter{client: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scout drains every source feed for the campaign. A single failing
// feed is logged and skipped so one dead collector does not starve the
// run; all feeds failing is an error.
func (s *FeedScouter) Scout(ctx context.Context, campaign *models.CampaignContext, cfg models.StageConfig) ([]models.ContentItem, error) {
	if len(campaign.Sources) == 0 {
		return nil, nil
	}

	var items []models.ContentItem
	var failed int
	var lastErr error

	for _, source := range campaign.Sources {
		batch, err := s.fetch(ctx, source, campaign, cfg)
		if err != nil {
			failed++
			lastErr = err
			log.Warn().Err(err).Str("source", source).Str("campaign_id", campaign.ID).Msg("feed fetch failed, skipping source")
			continue
		}
		items = append(items, batch...)
	}

	if failed == len(campaign.Sources) {
		return nil, models.NewAppError(models.KindProviderTransient, models.SeverityHigh,
			"scout", "fetch", "all source feeds failed", lastErr)
	}
	return items, nil
}

func (s *FeedScouter) fetch(ctx context.Context, source string, campaign *models.CampaignContext, cfg models.StageConfig) ([]models.ContentItem, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("keywords", strings.Join(campaign.Keywords, ","))
	q.Set("months", strconv.Itoa(cfg.CollectionMonths))
	q.Set("depth", cfg.SearchDepth)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed returned %d: %s", resp.StatusCode, string(body))
	}

	var batch []models.ContentItem
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	now := time.Now().UTC()
	for i := range batch {
		if batch[i].Source == "" {
			batch[i].Source = u.Host
		}
		if batch[i].CollectedAt.IsZero() {
			batch[i].CollectedAt = now
		}
	}
	return batch, nil
}
