package models

import (
	"fmt"
	"strings"
	"time"
)

// CampaignType distinguishes the two collection paths.
// Automatic (brand-analytics) campaigns scan broadly over a wide window;
// custom campaigns are objective-driven with a narrower window.
type CampaignType string

const (
	CampaignAutomatic CampaignType = "automatic"
	CampaignCustom    CampaignType = "custom"
)

// CampaignContext is a read-only snapshot of campaign identity and budget
// handed into a workflow. It is copied, never shared, so a running workflow
// sees a stable view even if the campaign record changes underneath it.
type CampaignContext struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         CampaignType `json:"type"`
	Keywords     []string     `json:"keywords"`
	Sources      []string     `json:"sources"`
	Objectives   []string     `json:"objectives,omitempty"`
	BudgetLimit  float64      `json:"budget_limit"`
	CurrentSpend float64      `json:"current_spend"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NewCampaignContext validates and normalizes a campaign snapshot.
// Keywords are lowercased and deduplicated; budget values must be non-negative.
func NewCampaignContext(id, name string, typ CampaignType, keywords, sources []string, budgetLimit float64) (*CampaignContext, error) {
	if id == "" {
		return nil, fmt.Errorf("campaign id is required")
	}
	if typ != CampaignAutomatic && typ != CampaignCustom {
		return nil, fmt.Errorf("unknown campaign type: %s", typ)
	}
	if budgetLimit < 0 {
		return nil, fmt.Errorf("budget limit must be non-negative, got %f", budgetLimit)
	}

	seen := make(map[string]bool, len(keywords))
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		normalized = append(normalized, k)
	}

	return &CampaignContext{
		ID:          id,
		Name:        name,
		Type:        typ,
		Keywords:    normalized,
		Sources:     sources,
		BudgetLimit: budgetLimit,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// OverBudget reports whether spending has reached the budget limit.
// A zero limit means the campaign has no budget and every cost-incurring
// stage must be refused.
func (c *CampaignContext) OverBudget() bool {
	return c.CurrentSpend >= c.BudgetLimit
}

// BudgetRemaining returns the unspent budget, never negative.
func (c *CampaignContext) BudgetRemaining() float64 {
	r := c.BudgetLimit - c.CurrentSpend
	if r < 0 {
		return 0
	}
	return r
}

// Clone returns a deep copy so workflows can carry a private snapshot.
func (c *CampaignContext) Clone() *CampaignContext {
	cp := *c
	cp.Keywords = append([]string(nil), c.Keywords...)
	cp.Sources = append([]string(nil), c.Sources...)
	cp.Objectives = append([]string(nil), c.Objectives...)
	return &cp
}
