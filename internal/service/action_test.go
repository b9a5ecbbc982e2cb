package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beliefWithLeader(h *domain.Hypothesis, confidence float64) *domain.BeliefState {
	b := domain.NewBeliefState("belief_test", domain.Signal{ID: "sig"})
	b.Hypotheses = []*domain.Hypothesis{h}
	b.Posteriors = map[string]float64{h.ID: confidence}
	b.LeadingHypothesisID = h.ID
	b.ConfidenceInLeader = confidence
	return b
}

func TestActionSelector_Bands(t *testing.T) {
	policy := domain.DefaultDecisionPolicy()
	sig := domain.Signal{ID: "sig", Type: "vibration"}

	tests := []struct {
		name       string
		confidence float64
		needsHuman bool
	}{
		{name: "act at threshold", confidence: 0.75, needsHuman: false},
		{name: "act above threshold", confidence: 0.9, needsHuman: false},
		{name: "escalate below threshold", confidence: 0.3, needsHuman: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := oracle.NewMockClient()
			s := NewActionSelector(mock, testLogger())
			h := testHypothesis(t, "h1", domain.FrameworkFMEA, 0.6, 7, 7, 5)

			sel := s.Select(context.Background(), sig, beliefWithLeader(h, tt.confidence), policy)
			assert.Equal(t, "schedule_preventive_maintenance", sel.Action)
			assert.Equal(t, tt.needsHuman, sel.NeedsHuman)
			assert.Empty(t, mock.Calls)
			assert.Greater(t, sel.Priority, 0.0)
		})
	}
}

func TestActionSelector_NoLeaderSkips(t *testing.T) {
	s := NewActionSelector(nil, testLogger())
	b := domain.NewBeliefState("belief_test", domain.Signal{ID: "sig"})

	sel := s.Select(context.Background(), domain.Signal{ID: "sig"}, b, domain.DefaultDecisionPolicy())
	assert.Empty(t, sel.Action)
	assert.False(t, sel.NeedsHuman)
}

func TestActionSelector_DeliberationActs(t *testing.T) {
	mock := oracle.NewMockClient()
	mock.Responses[domain.PurposeFinalJudgment] = `{"decision":"act","action":"replace_bearing","rationale":"vibration trend is clear"}`
	s := NewActionSelector(mock, testLogger())
	h := testHypothesis(t, "h1", domain.FrameworkFMEA, 0.6, 7, 7, 5)

	sel := s.Select(context.Background(), domain.Signal{ID: "sig"}, beliefWithLeader(h, 0.6), domain.DefaultDecisionPolicy())
	assert.Equal(t, "replace_bearing", sel.Action)
	assert.False(t, sel.NeedsHuman)
	assert.Equal(t, "oracle: vibration trend is clear", sel.Rationale)
	assert.Len(t, mock.CallsFor(domain.PurposeFinalJudgment), 1)
}

func TestActionSelector_DeliberationEscalates(t *testing.T) {
	mock := oracle.NewMockClient()
	mock.Responses[domain.PurposeFinalJudgment] = `{"decision":"escalate","rationale":"readings inconclusive"}`
	s := NewActionSelector(mock, testLogger())
	h := testHypothesis(t, "h1", domain.FrameworkRCA, 0.6, 6, 5, 4)

	sel := s.Select(context.Background(), domain.Signal{ID: "sig"}, beliefWithLeader(h, 0.5), domain.DefaultDecisionPolicy())
	assert.True(t, sel.NeedsHuman)
	assert.Equal(t, "open_root_cause_ticket", sel.Action)
	assert.Equal(t, "oracle: readings inconclusive", sel.Rationale)
}

func TestActionSelector_OracleErrorEscalates(t *testing.T) {
	mock := oracle.NewMockClient()
	mock.Errors[domain.PurposeFinalJudgment] = errors.New("provider down")
	s := NewActionSelector(mock, testLogger())
	h := testHypothesis(t, "h1", domain.FrameworkTOC, 0.6, 6, 6, 3)

	sel := s.Select(context.Background(), domain.Signal{ID: "sig"}, beliefWithLeader(h, 0.6), domain.DefaultDecisionPolicy())
	assert.True(t, sel.NeedsHuman)
	assert.Equal(t, "oracle unavailable for final judgment", sel.Rationale)
}

func TestActionSelector_UnusableJudgmentRetriedOnce(t *testing.T) {
	mock := oracle.NewMockClient()
	mock.Responses[domain.PurposeFinalJudgment] = `{"decision":"maybe"}`
	s := NewActionSelector(mock, testLogger())
	h := testHypothesis(t, "h1", domain.FrameworkTOC, 0.6, 6, 6, 3)

	sel := s.Select(context.Background(), domain.Signal{ID: "sig"}, beliefWithLeader(h, 0.6), domain.DefaultDecisionPolicy())
	assert.True(t, sel.NeedsHuman)
	assert.Equal(t, "no usable final judgment from oracle", sel.Rationale)

	calls := mock.CallsFor(domain.PurposeFinalJudgment)
	require.Len(t, calls, maxJudgmentAttempts)
	assert.Contains(t, calls[1].Prompt, `"maybe"`)
}

func TestActionSelector_UrgentHACCPActsWithoutOracle(t *testing.T) {
	mock := oracle.NewMockClient()
	s := NewActionSelector(mock, testLogger())

	details, err := domain.DecodeFrameworkDetails(domain.FrameworkHACCP, []byte(`{"regulation":"21 CFR 117","time_to_noncompliance_minutes":5}`))
	require.NoError(t, err)
	h, err := domain.NewHypothesis(domain.HypothesisInput{
		ID: "h1", Confidence: 0.6, Impact: 9, Urgency: 9, Reversibility: 8,
		RecommendedAction: "quarantine_affected_batch", Details: details,
	})
	require.NoError(t, err)

	sel := s.Select(context.Background(), domain.Signal{ID: "sig"}, beliefWithLeader(h, 0.6), domain.DefaultDecisionPolicy())
	assert.False(t, sel.NeedsHuman)
	assert.Equal(t, "quarantine_affected_batch", sel.Action)
	assert.Contains(t, sel.Rationale, "5 minutes")
	assert.Empty(t, mock.Calls)
}
