package domain

import (
	"context"

	"github.com/google/uuid"
)

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Oracle answers free-form judgment requests. Implementations may be slow or
// fail; callers wrap them with retries and treat structured output as a hint.
type Oracle interface {
	Judge(ctx context.Context, req JudgeRequest) (*Judgment, error)
}

// KnowledgeStore returns concatenated reference text relevant to a signal,
// built from at most five documents.
type KnowledgeStore interface {
	GetContextForSignal(ctx context.Context, signalType string, keywords []string) (string, error)
}

// EvidenceTool probes the plant for observations about one hypothesis.
type EvidenceTool interface {
	Name() string
	Probe(ctx context.Context, signal Signal, knowledge string, h *Hypothesis) ([]Evidence, error)
}

type ActionExecutor interface {
	Execute(ctx context.Context, action string, params map[string]any) (*ActionResult, error)
}

// PolicyStore persists immutable policy versions and a single active pointer.
type PolicyStore interface {
	GetCurrent(ctx context.Context) (*DecisionPolicy, error)
	Update(ctx context.Context, p *DecisionPolicy) error
	ListVersions(ctx context.Context) ([]DecisionPolicy, error)
	GetByVersion(ctx context.Context, version int) (*DecisionPolicy, error)
}

// ReplayStore is the append-only replay history, returned in chronological
// order.
type ReplayStore interface {
	Append(ctx context.Context, r *CounterfactualReplay) error
	List(ctx context.Context) ([]CounterfactualReplay, error)
	Count(ctx context.Context) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*CounterfactualReplay, error)
	TrimOldest(ctx context.Context, keep int) (int64, error)
}

type EvolutionLogStore interface {
	Append(ctx context.Context, r *PolicyEvolutionRecord) error
	List(ctx context.Context, limit int) ([]PolicyEvolutionRecord, error)
}

// RunStore checkpoints investigation state keyed by signal ID.
type RunStore interface {
	Save(ctx context.Context, s *RunState) error
	Load(ctx context.Context, signalID string) (*RunState, error)
	Delete(ctx context.Context, signalID string) error
}

type Notifier interface {
	Publish(ctx context.Context, e Event) error
}
