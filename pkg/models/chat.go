package models

import "time"

// ChatRequest is the chat boundary input.
type ChatRequest struct {
	UserQuery    string    `json:"user_query"`
	CampaignID   string    `json:"campaign_id"`
	UserID       string    `json:"user_id,omitempty"`
	Conversation []Message `json:"conversation_history,omitempty"`
}

// ChatMetadata carries per-query execution stats back to the caller
// and into the monitoring sink.
type ChatMetadata struct {
	Intent        IntentType `json:"intent_type,omitempty"`
	Confidence    float64    `json:"confidence,omitempty"`
	ExecutionMs   int64      `json:"execution_ms"`
	TokensUsed    int64      `json:"tokens_used"`
	CostUSD       float64    `json:"cost_usd"`
	ResultCount   int        `json:"result_count"`
	ToolsExecuted []string   `json:"tools_executed,omitempty"`
}

// ChatResult is the chat boundary output. It is always well-formed:
// failures carry an ErrorCode and a generic, non-leaking Answer, never
// a raw error message or stack trace.
type ChatResult struct {
	Success      bool              `json:"success"`
	Answer       string            `json:"answer,omitempty"`
	ErrorCode    string            `json:"error_code,omitempty"`
	Sources      []RetrievalResult `json:"sources"`
	Conversation []Message         `json:"conversation_history,omitempty"`
	Metadata     ChatMetadata      `json:"metadata"`
}

// TriggerResult is returned by the scheduler-facing entry points.
type TriggerResult struct {
	Status     WorkflowStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
}

// TokenUsage is surfaced by completion providers for cost accounting.
type TokenUsage struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Completion is one text-completion result.
type Completion struct {
	Text  string     `json:"text"`
	Usage TokenUsage `json:"usage"`
}

// CompletionRequest is the provider-agnostic completion input.
type CompletionRequest struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// RunMetrics is the per-run record emitted to the monitoring sink.
// The sink is fire-and-forget: its failures never fail a workflow.
type RunMetrics struct {
	WorkflowID    string         `json:"workflow_id"`
	CampaignID    string         `json:"campaign_id"`
	QueryLen      int            `json:"query_len"`
	ExecutionMs   int64          `json:"execution_time"`
	Intent        IntentType     `json:"intent_type,omitempty"`
	ToolsExecuted []string       `json:"tools_executed,omitempty"`
	ResultCount   int            `json:"result_count"`
	Success       bool           `json:"success"`
	CostUSD       float64        `json:"cost"`
	TokensUsed    int64          `json:"tokens_used"`
	ErrorCode     string         `json:"error_code,omitempty"`
	Status        WorkflowStatus `json:"status,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}
