package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names the nodes of the workflow graph.
type Stage string

const (
	StageStart      Stage = "start"
	StageRoute      Stage = "route_workflow"
	StageScout      Stage = "scout_content"
	StageClean      Stage = "clean_content"
	StageAnalyze    Stage = "analyze_content"
	StageChatbot    Stage = "chatbot_node"
	StageMonitoring Stage = "monitoring_agent"
	StageError      Stage = "error"
	StageDone       Stage = "done"
)

// WorkflowKind is the routing decision made at route_workflow.
type WorkflowKind string

const (
	WorkflowChatQuery       WorkflowKind = "chat_query"
	WorkflowContentAnalysis WorkflowKind = "content_analysis"
	WorkflowError           WorkflowKind = "error"
)

// WorkflowStatus is the terminal status surfaced to schedulers.
type WorkflowStatus string

const (
	StatusCompleted WorkflowStatus = "completed"
	StatusSkipped   WorkflowStatus = "skipped"
	StatusFailed    WorkflowStatus = "failed"
)

// Message is one turn of a conversation. Append-only within a session.
type Message struct {
	Role      string    `json:"role"` // "user" | "assistant" | "system"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// StageConfig is the frozen option map the orchestrator hands each node.
// It carries the automatic/custom campaign distinction so nodes never
// branch on campaign type themselves.
type StageConfig struct {
	Focus            string   `json:"focus"`             // "broad" | "objective"
	SearchDepth      string   `json:"search_depth"`      // "wide" | "narrow"
	CollectionMonths int      `json:"collection_months"` // collection window
	Objectives       []string `json:"campaign_objectives,omitempty"`
}

// StageConfigFor derives the per-stage option map from the campaign type.
func StageConfigFor(c *CampaignContext) StageConfig {
	if c != nil && c.Type == CampaignCustom {
		return StageConfig{
			Focus:            "objective",
			SearchDepth:      "narrow",
			CollectionMonths: 3,
			Objectives:       append([]string(nil), c.Objectives...),
		}
	}
	return StageConfig{
		Focus:            "broad",
		SearchDepth:      "wide",
		CollectionMonths: 12,
	}
}

// WorkflowMetrics accumulates usage over a run. All fields are
// monotonically non-decreasing; Add is the only mutation path.
type WorkflowMetrics struct {
	TokensUsed int64   `json:"tokens_used"`
	TotalCost  float64 `json:"total_cost"`
	ElapsedMs  int64   `json:"elapsed_ms"`
}

// Add accumulates usage. Negative deltas are ignored so the cost
// invariant (never decreases) holds even against buggy callers.
func (m *WorkflowMetrics) Add(tokens int64, cost float64, elapsed time.Duration) {
	if tokens > 0 {
		m.TokensUsed += tokens
	}
	if cost > 0 {
		m.TotalCost += cost
	}
	if elapsed > 0 {
		m.ElapsedMs += elapsed.Milliseconds()
	}
}

// StageOutput is the recorded result of one completed stage. The
// chatbot stage additionally carries its typed result in Chat so the
// chat boundary returns the synthesizer's sources and metadata intact,
// not a lossy payload projection.
type StageOutput struct {
	Stage         Stage                  `json:"stage"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Chat          *ChatResult            `json:"chat,omitempty"`
	ProposedSpend float64                `json:"proposed_spend,omitempty"`
	TokensUsed    int64                  `json:"tokens_used,omitempty"`
	CompletedAt   time.Time              `json:"completed_at"`
}

// WorkflowState is the record threaded through every stage of a run.
//
// Field ownership per stage (enforced by the orchestrator, validated
// in tests): scout writes "scout_content", clean writes "clean_content",
// analyze writes "analyze_content", chatbot writes "chatbot_node" and
// appends to Conversation. No stage writes another stage's output slot,
// and no stage touches Campaign spend directly — spend is proposed via
// StageOutput.ProposedSpend and committed by the orchestrator.
type WorkflowState struct {
	WorkflowID   string           `json:"workflow_id"` // immutable after creation
	Campaign     *CampaignContext `json:"campaign"`
	UserQuery    string           `json:"user_query,omitempty"`
	UserID       string           `json:"user_id,omitempty"`
	Kind         WorkflowKind     `json:"kind,omitempty"`
	CurrentStage Stage            `json:"current_stage"`
	StageOutputs []StageOutput    `json:"stage_outputs,omitempty"`
	Conversation []Message        `json:"conversation,omitempty"`
	Metrics      WorkflowMetrics  `json:"metrics"`
	Config       StageConfig      `json:"config"`
	Terminal     bool             `json:"terminal"`
	Status       WorkflowStatus   `json:"status,omitempty"`
	FailReason   string           `json:"fail_reason,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewWorkflowState builds a validated initial state at the start node.
// The campaign snapshot is cloned so the run owns its copy.
func NewWorkflowState(campaign *CampaignContext, userQuery string, conversation []Message) *WorkflowState {
	now := time.Now().UTC()
	st := &WorkflowState{
		WorkflowID:   uuid.NewString(),
		UserQuery:    userQuery,
		CurrentStage: StageStart,
		Conversation: append([]Message(nil), conversation...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if campaign != nil {
		st.Campaign = campaign.Clone()
		st.Config = StageConfigFor(campaign)
	}
	return st
}

// Validate checks the structural invariants of a state record.
// A state restored from a checkpoint must pass this before resuming.
func (s *WorkflowState) Validate() error {
	if s.WorkflowID == "" {
		return fmt.Errorf("workflow state has no workflow_id")
	}
	if s.Metrics.TotalCost < 0 {
		return fmt.Errorf("workflow %s: negative total_cost", s.WorkflowID)
	}
	return nil
}

// RecordStage appends a stage output. It refuses writes after the run
// has reached a terminal stage and refuses duplicate slots.
func (s *WorkflowState) RecordStage(out StageOutput) error {
	if s.Terminal {
		return fmt.Errorf("workflow %s is terminal, stage %s write rejected", s.WorkflowID, out.Stage)
	}
	for _, existing := range s.StageOutputs {
		if existing.Stage == out.Stage {
			return fmt.Errorf("workflow %s: stage %s already has an output", s.WorkflowID, out.Stage)
		}
	}
	if out.CompletedAt.IsZero() {
		out.CompletedAt = time.Now().UTC()
	}
	s.StageOutputs = append(s.StageOutputs, out)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// StageOutputFor returns a prior stage's output, or nil.
func (s *WorkflowState) StageOutputFor(stage Stage) *StageOutput {
	for i := range s.StageOutputs {
		if s.StageOutputs[i].Stage == stage {
			return &s.StageOutputs[i]
		}
	}
	return nil
}

// AppendMessage adds a conversation turn.
func (s *WorkflowState) AppendMessage(role, content string) {
	s.Conversation = append(s.Conversation, Message{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	s.UpdatedAt = time.Now().UTC()
}
