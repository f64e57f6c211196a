package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/echolens/echolens/insight-engine/pkg/contracts"
	"github.com/echolens/echolens/insight-engine/pkg/models"
)

// analyzeSampleSize caps how many content items go into one analysis
// prompt. The heaviest echo-score items carry most of the signal.
const analyzeSampleSize = 30

const analyzeSystemPrompt = `You analyze scraped community content for a market intelligence campaign.
From the content below, extract the key insights and recurring pain points.
Respond with JSON only:
{"insights": [{"title": "...", "summary": "...", "confidence": 0.0-1.0}],
 "pain_points": [{"theme": "...", "description": "...", "intensity": 0.0-1.0, "mentions": <count>}]}`

// LLMAnalyzer implements Analyzer on a completion provider.
type LLMAnalyzer struct {
	provider contracts.CompletionProvider
}

// NewLLMAnalyzer creates the default analyzer.
func NewLLMAnalyzer(provider contracts.CompletionProvider) *LLMAnalyzer {
	return &LLMAnalyzer{provider: provider}
}

// Analyze derives insights and pain points from content. Token usage
// is returned so the orchestrator can propose the spend.
func (a *LLMAnalyzer) Analyze(ctx context.Context, campaign *models.CampaignContext, items []models.ContentItem) ([]models.Insight, []models.PainPoint, models.TokenUsage, error) {
	sample := items
	if len(sample) > analyzeSampleSize {
		sample = sample[:analyzeSampleSize]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Campaign: %s (keywords: %s)\n\n", campaign.Name, strings.Join(campaign.Keywords, ", "))
	for i, item := range sample {
		fmt.Fprintf(&sb, "[%d] (%s, sentiment %.2f) %s\n", i+1, item.Source, item.SentimentScore, item.Body)
	}

	resp, err := a.provider.Complete(ctx, models.CompletionRequest{
		System:      analyzeSystemPrompt,
		Messages:    []models.Message{{Role: "user", Content: sb.String()}},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, nil, models.TokenUsage{}, err
	}

	insights, painPoints, err := parseAnalysis(resp.Text, campaign.ID)
	if err != nil {
		// Malformed model output is worth one more attempt.
		return nil, nil, resp.Usage, models.NewAppError(models.KindProviderTransient, models.SeverityMedium,
			"analyzer", "analyze", "unparseable analysis output", err)
	}
	return insights, painPoints, resp.Usage, nil
}

type rawAnalysis struct {
	Insights []struct {
		Title      string  `json:"title"`
		Summary    string  `json:"summary"`
		Confidence float64 `json:"confidence"`
	} `json:"insights"`
	PainPoints []struct {
		Theme       string  `json:"theme"`
		Description string  `json:"description"`
		Intensity   float64 `json:"intensity"`
		Mentions    int     `json:"mentions"`
	} `json:"pain_points"`
}

func parseAnalysis(text, campaignID string) ([]models.Insight, []models.PainPoint, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, nil, fmt.Errorf("no JSON object in analysis output")
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, nil, fmt.Errorf("decode analysis: %w", err)
	}

	now := time.Now().UTC()
	insights := make([]models.Insight, 0, len(raw.Insights))
	for _, in := range raw.Insights {
		if in.Title == "" {
			continue
		}
		insights = append(insights, models.Insight{
			ID:         uuid.NewString(),
			CampaignID: campaignID,
			Title:      in.Title,
			Summary:    in.Summary,
			Confidence: clamp01(in.Confidence),
			CreatedAt:  now,
		})
	}
	painPoints := make([]models.PainPoint, 0, len(raw.PainPoints))
	for _, p := range raw.PainPoints {
		if p.Theme == "" {
			continue
		}
		mentions := p.Mentions
		if mentions < 0 {
			mentions = 0
		}
		painPoints = append(painPoints, models.PainPoint{
			ID:          uuid.NewString(),
			CampaignID:  campaignID,
			Theme:       p.Theme,
			Description: p.Description,
			Intensity:   clamp01(p.Intensity),
			Mentions:    mentions,
			CreatedAt:   now,
		})
	}
	return insights, painPoints, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
