package models

import "time"

// ContentItem is one scraped community post/comment after ingestion.
type ContentItem struct {
	ID             string    `json:"id"`
	CampaignID     string    `json:"campaign_id"`
	Source         string    `json:"source"`
	Author         string    `json:"author,omitempty"`
	Title          string    `json:"title,omitempty"`
	Body           string    `json:"body"`
	URL            string    `json:"url,omitempty"`
	Clean          bool      `json:"clean"`
	SentimentScore float64   `json:"sentiment_score"` // [-1, 1]
	EchoScore      float64   `json:"echo_score"`      // [0, 100]
	EngagementRate float64   `json:"engagement_rate"` // [0, 1]
	PostedAt       time.Time `json:"posted_at"`
	CollectedAt    time.Time `json:"collected_at"`
}

// ClampScores enforces the documented numeric ranges at write time.
// The scraping side occasionally produces out-of-range values; the
// policy here is clamp, not reject, so one bad score never drops a
// whole record. Returns true if anything was adjusted.
func (c *ContentItem) ClampScores() bool {
	adjusted := false
	if clamped := clamp(c.SentimentScore, -1, 1); clamped != c.SentimentScore {
		c.SentimentScore = clamped
		adjusted = true
	}
	if clamped := clamp(c.EchoScore, 0, 100); clamped != c.EchoScore {
		c.EchoScore = clamped
		adjusted = true
	}
	if clamped := clamp(c.EngagementRate, 0, 1); clamped != c.EngagementRate {
		c.EngagementRate = clamped
		adjusted = true
	}
	return adjusted
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Insight is a derived finding produced by the analyze stage.
type Insight struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// PainPoint is a recurring negative theme extracted from content.
type PainPoint struct {
	ID          string    `json:"id"`
	CampaignID  string    `json:"campaign_id"`
	Theme       string    `json:"theme"`
	Description string    `json:"description"`
	Intensity   float64   `json:"intensity"` // [0, 1]
	Mentions    int       `json:"mentions"`
	CreatedAt   time.Time `json:"created_at"`
}

// BatchSaveResult reports a partial-failure-tolerant batch write.
type BatchSaveResult struct {
	Saved  int `json:"saved"`
	Failed int `json:"failed"`
}
