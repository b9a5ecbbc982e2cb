package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvidenceGatherer_FiltersAndSkipsFailures(t *testing.T) {
	h1 := testHypothesis(t, "h1", domain.FrameworkFMEA, 0.5, 5, 5, 5)
	h2 := testHypothesis(t, "h2", domain.FrameworkRCA, 0.5, 5, 5, 5)

	sensors := funcTool{name: "sensors", probe: func(ctx context.Context, h *domain.Hypothesis) ([]domain.Evidence, error) {
		ev := domain.NewEvidence("ev_sensors_"+h.ID, h.ID, "historian", "sensors", true, 0.8, 0.9, nil)
		ghost := domain.NewEvidence("ev_ghost_"+h.ID, "ghost", "historian", "sensors", true, 1, 1, nil)
		return []domain.Evidence{ev, ev, ghost}, nil
	}}
	broken := funcTool{name: "mes", probe: func(ctx context.Context, h *domain.Hypothesis) ([]domain.Evidence, error) {
		return nil, errors.New("mes offline")
	}}

	g := NewEvidenceGatherer([]domain.EvidenceTool{sensors, broken}, testLogger())
	g.SetConcurrency(1)
	seen := func(id string) bool { return id == "ev_sensors_h2" }

	out, err := g.Gather(context.Background(), domain.Signal{ID: "sig"}, "", []*domain.Hypothesis{h1, h2}, seen)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ev_sensors_h1", out[0].ID)
	assert.Equal(t, "h1", out[0].HypothesisID)
}

func TestEvidenceGatherer_ToolTimeoutIsSkipped(t *testing.T) {
	h := testHypothesis(t, "h1", domain.FrameworkFMEA, 0.5, 5, 5, 5)
	historian := funcTool{name: "historian", probe: func(ctx context.Context, h *domain.Hypothesis) ([]domain.Evidence, error) {
		tctx, cancel := context.WithTimeout(ctx, time.Millisecond)
		defer cancel()
		<-tctx.Done()
		return nil, fmt.Errorf("historian query: %w", tctx.Err())
	}}

	g := NewEvidenceGatherer([]domain.EvidenceTool{verdictTool(domain.FrameworkFMEA), historian}, testLogger())
	out, err := g.Gather(context.Background(), domain.Signal{ID: "sig"}, "", []*domain.Hypothesis{h}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ev_verdict_h1", out[0].ID)
}

func TestEvidenceGatherer_OrderedByHypothesisThenTool(t *testing.T) {
	h1 := testHypothesis(t, "h1", domain.FrameworkFMEA, 0.5, 5, 5, 5)
	h2 := testHypothesis(t, "h2", domain.FrameworkRCA, 0.5, 5, 5, 5)
	tool := func(name string) funcTool {
		return funcTool{name: name, probe: func(ctx context.Context, h *domain.Hypothesis) ([]domain.Evidence, error) {
			return []domain.Evidence{domain.NewEvidence(name+"_"+h.ID, h.ID, name, name, true, 1, 1, nil)}, nil
		}}
	}

	g := NewEvidenceGatherer([]domain.EvidenceTool{tool("a"), tool("b")}, testLogger())
	out, err := g.Gather(context.Background(), domain.Signal{ID: "sig"}, "", []*domain.Hypothesis{h1, h2}, nil)
	require.NoError(t, err)

	ids := make([]string, len(out))
	for i, ev := range out {
		ids[i] = ev.ID
	}
	assert.Equal(t, []string{"a_h1", "b_h1", "a_h2", "b_h2"}, ids)
}

func TestEvidenceGatherer_Cancelled(t *testing.T) {
	h := testHypothesis(t, "h1", domain.FrameworkFMEA, 0.5, 5, 5, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewEvidenceGatherer([]domain.EvidenceTool{verdictTool()}, testLogger())
	_, err := g.Gather(ctx, domain.Signal{ID: "sig"}, "", []*domain.Hypothesis{h}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvidenceGatherer_NoTools(t *testing.T) {
	h := testHypothesis(t, "h1", domain.FrameworkFMEA, 0.5, 5, 5, 5)
	out, err := NewEvidenceGatherer(nil, testLogger()).Gather(context.Background(), domain.Signal{ID: "sig"}, "", []*domain.Hypothesis{h}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
