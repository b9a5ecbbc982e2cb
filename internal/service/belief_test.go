package service

import (
	"errors"
	"testing"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldEvidence(t *testing.T) {
	full := func(supports bool) domain.Evidence {
		return domain.NewEvidence("e", "h", "s", "t", supports, 1, 1, nil)
	}
	assert.InDelta(t, 0.75, FoldEvidence(0.5, full(true)), 1e-9)
	assert.InDelta(t, 0.25, FoldEvidence(0.5, full(false)), 1e-9)

	weak := domain.NewEvidence("e", "h", "s", "t", true, 0.5, 0.5, nil)
	assert.InDelta(t, 0.5+0.5*0.25*0.5, FoldEvidence(0.5, weak), 1e-9)
}

func newBelief(hs ...*domain.Hypothesis) *domain.BeliefState {
	b := domain.NewBeliefState("belief_test", domain.Signal{ID: "sig"})
	b.Hypotheses = hs
	return b
}

func TestBeliefUpdater_UpdateIsIdempotent(t *testing.T) {
	u := NewBeliefUpdater(testLogger())
	policy := domain.DefaultDecisionPolicy()

	h1 := testHypothesis(t, "h1", domain.FrameworkFMEA, 0.55, 7, 7, 5)
	h2 := testHypothesis(t, "h2", domain.FrameworkRCA, 0.5, 6, 5, 4)
	_, err := h1.AddEvidence(domain.NewEvidence("e1", "h1", "s", "t", true, 1, 1, nil))
	require.NoError(t, err)
	_, err = h2.AddEvidence(domain.NewEvidence("e2", "h2", "s", "t", false, 1, 1, nil))
	require.NoError(t, err)

	b := newBelief(h1, h2)
	require.NoError(t, u.Update(b, policy))
	assert.InDelta(t, 0.775, h1.CurrentConfidence, 1e-9)
	assert.InDelta(t, 0.25, h2.CurrentConfidence, 1e-9)

	first := map[string]float64{}
	for k, v := range b.Posteriors {
		first[k] = v
	}

	require.NoError(t, u.Update(b, policy))
	assert.InDelta(t, 0.775, h1.CurrentConfidence, 1e-9)
	assert.Equal(t, first, b.Posteriors)

	sum := 0.0
	for _, p := range b.Posteriors {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, "h1", b.LeadingHypothesisID)
	assert.True(t, b.Converged)
	assert.Equal(t, "schedule_preventive_maintenance", b.RecommendedAction)
}

func TestBeliefUpdater_UniformFallback(t *testing.T) {
	u := NewBeliefUpdater(testLogger())
	b := newBelief(
		testHypothesis(t, "a", domain.FrameworkTOC, 0, 5, 5, 5),
		testHypothesis(t, "b", domain.FrameworkRCA, 0, 5, 5, 5),
	)
	require.NoError(t, u.Update(b, domain.DefaultDecisionPolicy()))
	assert.InDelta(t, 0.5, b.Posteriors["a"], 1e-9)
	assert.InDelta(t, 0.5, b.Posteriors["b"], 1e-9)
	assert.Equal(t, "a", b.LeadingHypothesisID)
	assert.False(t, b.Converged)
}

func TestBeliefUpdater_NoHypotheses(t *testing.T) {
	u := NewBeliefUpdater(testLogger())
	b := newBelief()
	require.NoError(t, u.Update(b, domain.DefaultDecisionPolicy()))
	assert.Empty(t, b.Posteriors)
	assert.Nil(t, b.Leader())
}

func TestBeliefUpdater_ResolvedIsFinal(t *testing.T) {
	u := NewBeliefUpdater(testLogger())
	b := newBelief(testHypothesis(t, "a", domain.FrameworkTOC, 0.5, 5, 5, 5))
	require.NoError(t, b.Resolve("rebalance_line_capacity"))

	err := u.Update(b, domain.DefaultDecisionPolicy())
	assert.True(t, errors.Is(err, domain.ErrBeliefResolved))
}
