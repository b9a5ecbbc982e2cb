package domain

import "time"

// Signal is an anomaly observation that starts an investigation.
type Signal struct {
	ID          string         `json:"id" yaml:"id" validate:"required,max=128"`
	Type        string         `json:"type" yaml:"type" validate:"required,max=64"`
	Description string         `json:"description" yaml:"description" validate:"required"`
	Data        map[string]any `json:"data,omitempty" yaml:"data"`
	Keywords    []string       `json:"keywords,omitempty" yaml:"keywords" validate:"dive,required"`
	ReceivedAt  time.Time      `json:"received_at" yaml:"received_at"`
}

// OraclePurpose tags a judgment request with the step that issued it.
type OraclePurpose string

const (
	PurposeHypothesisGeneration  OraclePurpose = "hypothesis_generation"
	PurposeFinalJudgment         OraclePurpose = "final_judgment"
	PurposeCounterfactualInsight OraclePurpose = "counterfactual_insight"
	PurposePolicyEvolution       OraclePurpose = "policy_evolution"
)

// JudgeRequest is one oracle call.
type JudgeRequest struct {
	Purpose   OraclePurpose  `json:"purpose"`
	Prompt    string         `json:"prompt"`
	Context   map[string]any `json:"context,omitempty"`
	MaxTokens int            `json:"max_tokens,omitempty"`
}

// Judgment is the oracle's answer. Structured holds whatever JSON the oracle
// emitted; it is advisory and untrusted.
type Judgment struct {
	Text       string `json:"text"`
	Structured string `json:"structured,omitempty"`
}

// Action execution statuses.
const (
	ActionStatusSucceeded = "succeeded"
	ActionStatusFailed    = "failed"
	ActionStatusSimulated = "simulated"
)

type ActionResult struct {
	Action      string    `json:"action"`
	Status      string    `json:"status"`
	Detail      string    `json:"detail,omitempty"`
	SideEffects []string  `json:"side_effects"`
	ExecutedAt  time.Time `json:"executed_at"`
}

func (r *ActionResult) Succeeded() bool {
	return r.Status == ActionStatusSucceeded || r.Status == ActionStatusSimulated
}

// KnowledgeDocument is a reference document consulted while investigating.
type KnowledgeDocument struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Category  string    `json:"category" yaml:"category"`
	Keywords  []string  `json:"keywords" yaml:"keywords"`
	Content   string    `json:"content" yaml:"content"`
	Embedding []float32 `json:"-" yaml:"-"`
}

// EventType names notifications published while investigating.
type EventType string

const (
	EventInvestigationStarted   EventType = "investigation.started"
	EventInvestigationCompleted EventType = "investigation.completed"
	EventInvestigationFailed    EventType = "investigation.failed"
	EventEscalation             EventType = "escalation"
	EventDriftAlert             EventType = "drift.alert"
	EventPolicyEvolved          EventType = "policy.evolved"
)

type Event struct {
	Type     EventType      `json:"type"`
	SignalID string         `json:"signal_id,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}
