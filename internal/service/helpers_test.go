package service

import (
	"context"
	"sync"
	"testing"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/store"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func testHypothesis(t *testing.T, id string, f domain.Framework, confidence, impact, urgency, reversibility float64) *domain.Hypothesis {
	t.Helper()
	details, err := domain.DecodeFrameworkDetails(f, nil)
	if err != nil {
		t.Fatalf("details for %s: %v", f, err)
	}
	h, err := domain.NewHypothesis(domain.HypothesisInput{
		ID:            id,
		Description:   string(f) + " hypothesis",
		Confidence:    confidence,
		Impact:        impact,
		Urgency:       urgency,
		Reversibility: reversibility,
		ProposedBy:    "test",
		Details:       details,
	})
	if err != nil {
		t.Fatalf("new hypothesis: %v", err)
	}
	return h
}

func newTestMemory() (*StrategicMemory, *store.MemReplayStore, *store.MemEvolutionLogStore) {
	rs := store.NewMemReplayStore()
	es := store.NewMemEvolutionLogStore()
	return NewStrategicMemory(rs, es, testLogger()), rs, es
}

// replayWithScore builds a replay whose score is 0.4×production.
func replayWithScore(production float64, update bool) *domain.CounterfactualReplay {
	return &domain.CounterfactualReplay{
		SignalID:           "sig",
		ChosenFramework:    domain.FrameworkRCA,
		ProductionDelta:    production,
		ShouldUpdatePolicy: update,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Publish(ctx context.Context, e domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) types() []domain.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventType, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

// funcTool is an evidence tool backed by a function.
type funcTool struct {
	name  string
	probe func(ctx context.Context, h *domain.Hypothesis) ([]domain.Evidence, error)
}

func (t funcTool) Name() string { return t.name }

func (t funcTool) Probe(ctx context.Context, sig domain.Signal, knowledge string, h *domain.Hypothesis) ([]domain.Evidence, error) {
	return t.probe(ctx, h)
}

// verdictTool supports hypotheses of the given frameworks and refutes the
// rest, one full-weight item per hypothesis with a stable ID.
func verdictTool(support ...domain.Framework) funcTool {
	return funcTool{name: "verdict", probe: func(ctx context.Context, h *domain.Hypothesis) ([]domain.Evidence, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		supports := false
		for _, f := range support {
			if h.Framework() == f {
				supports = true
			}
		}
		return []domain.Evidence{domain.NewEvidence("ev_verdict_"+h.ID, h.ID, "test", "verdict", supports, 1, 1, nil)}, nil
	}}
}
