package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/oracle"
	"github.com/Harshitk-cp/vigil/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldEvolve(t *testing.T) {
	tests := []struct {
		name  string
		stats domain.StrategicMemoryStats
		want  bool
	}{
		{name: "below threshold", stats: domain.StrategicMemoryStats{Total: 24, SuboptimalCount: 24}, want: false},
		{name: "healthy", stats: domain.StrategicMemoryStats{Total: 25, SuboptimalCount: 7, UpdateCandidateCount: 4}, want: false},
		{name: "suboptimal rate", stats: domain.StrategicMemoryStats{Total: 25, SuboptimalCount: 8}, want: true},
		{name: "update candidates", stats: domain.StrategicMemoryStats{Total: 30, UpdateCandidateCount: 5}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldEvolve(tt.stats, DefaultEvolutionThreshold))
		})
	}
}

func TestApplySuggestion_ThresholdsKeepOrder(t *testing.T) {
	base := domain.DefaultDecisionPolicy()
	hints := oracle.ParseHints(oracle.NewJudgment(`{"threshold_deltas":{"act":-0.5}}`))

	next, changes := applySuggestion(base, hints)
	assert.InDelta(t, 0.25, next.ConfidenceThresholdAct, 1e-9)
	assert.InDelta(t, 0.20, next.ConfidenceThresholdEscalate, 1e-9)
	assert.Len(t, changes, 2)
	assert.Equal(t, domain.DefaultActThreshold, base.ConfidenceThresholdAct)
	require.NoError(t, next.Validate())
}

func TestApplySuggestion_ClampsThresholds(t *testing.T) {
	hints := oracle.ParseHints(oracle.NewJudgment(`{"threshold_deltas":{"act":3,"escalate":-3}}`))
	next, _ := applySuggestion(domain.DefaultDecisionPolicy(), hints)
	assert.Equal(t, 0.99, next.ConfidenceThresholdAct)
	assert.Equal(t, 0.05, next.ConfidenceThresholdEscalate)
}

func TestApplySuggestion_WeightsAndInsights(t *testing.T) {
	hints := oracle.ParseHints(oracle.NewJudgment(
		`{"framework_weight_deltas":{"HACCP":0.1,"NOPE":0.4},"new_insights":["favor HACCP on cold chain signals"]}`))

	next, changes := applySuggestion(domain.DefaultDecisionPolicy(), hints)
	require.NoError(t, next.Validate())
	assert.InDelta(t, 0.25/1.1, next.FrameworkWeights[domain.FrameworkHACCP], 1e-9)
	assert.InDelta(t, 0.30/1.1, next.FrameworkWeights[domain.FrameworkRCA], 1e-9)
	assert.Contains(t, next.PolicyInsights, "favor HACCP on cold chain signals")
	assert.Contains(t, changes, "insight: favor HACCP on cold chain signals")
	assert.Len(t, changes, len(domain.Frameworks)+1)
}

func TestApplySuggestion_NewCriteriaBumpArtifact(t *testing.T) {
	hints := oracle.ParseHints(oracle.NewJudgment(
		`{"new_criteria":[{"name":"Downtime_Cost","description":"lost output","weight":0.3,"threshold":500},{"description":"no name"}]}`))

	base := domain.DefaultDecisionPolicy()
	next, changes := applySuggestion(base, hints)

	require.Len(t, changes, 1)
	artifact := next.ReasoningArtifacts[0]
	assert.Equal(t, "1.1", artifact.Version.String())
	require.Len(t, artifact.Criteria, len(base.ReasoningArtifacts[0].Criteria)+1)

	added := artifact.Criteria[len(artifact.Criteria)-1]
	assert.Equal(t, "downtime_cost", added.Name)
	assert.Equal(t, 0.3, added.Weight)
	require.NotNil(t, added.Threshold)
	assert.Equal(t, 500.0, *added.Threshold)
	assert.Equal(t, "1.0", base.ReasoningArtifacts[0].Version.String())
	assert.Equal(t, "baseline-triage@1.0", artifact.EvolvedFrom)
	assert.Equal(t, "policy v1 evolution", artifact.EvolutionReason)
	assert.False(t, artifact.UpdatedAt.Before(base.ReasoningArtifacts[0].UpdatedAt))
	assert.Equal(t, []string{"criterion downtime_cost added to baseline-triage v1.1"}, changes)
}

func TestApplySuggestion_ExistingCriterionIsRevalidated(t *testing.T) {
	hints := oracle.ParseHints(oracle.NewJudgment(
		`{"new_criteria":[{"name":"Urgency","weight":0.9}],"reason":"urgency keeps predicting outcomes"}`))

	base := domain.DefaultDecisionPolicy()
	next, changes := applySuggestion(base, hints)

	artifact := next.ReasoningArtifacts[0]
	require.Len(t, artifact.Criteria, len(base.ReasoningArtifacts[0].Criteria))
	i := artifact.Criterion("urgency")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, 1, artifact.Criteria[i].TimesValidated)
	assert.Equal(t, 0.25, artifact.Criteria[i].Weight)
	assert.False(t, artifact.Criteria[i].LastRevised.Before(base.ReasoningArtifacts[0].Criteria[i].LastRevised))
	assert.Zero(t, base.ReasoningArtifacts[0].Criteria[i].TimesValidated)
	assert.Equal(t, "urgency keeps predicting outcomes", artifact.EvolutionReason)
	assert.Equal(t, []string{"criterion urgency revalidated in baseline-triage v1.1"}, changes)

	values := map[string]float64{"confidence": 1, "impact": 0, "urgency": 0, "reversibility": 0}
	assert.InDelta(t, base.ReasoningArtifacts[0].CalculatePriority(values), artifact.CalculatePriority(values), 1e-12)
}

func newTestEvolver(t *testing.T, mock *oracle.MockClient, replays int) (*PolicyEvolver, *PolicyService, *StrategicMemory, *DriftDetector) {
	t.Helper()
	ctx := context.Background()
	drift := NewDriftDetector(0, 0)
	policies := NewPolicyService(store.NewMemPolicyStore(), drift, testLogger())
	_, err := policies.Load(ctx)
	require.NoError(t, err)

	memory, _, _ := newTestMemory()
	for i := 0; i < replays; i++ {
		require.NoError(t, memory.Record(ctx, replayWithScore(-10, true)))
	}
	return NewPolicyEvolver(mock, memory, policies, testLogger()), policies, memory, drift
}

func TestPolicyEvolver_EvolveAndActivate(t *testing.T) {
	ctx := context.Background()
	mock := oracle.NewMockClient()
	mock.Responses[domain.PurposePolicyEvolution] = `{"threshold_deltas":{"act":0.05},"framework_weight_deltas":{"HACCP":0.1},"new_insights":["favor HACCP on cold chain signals"],"reason":"too many suboptimal quarantines"}`
	evolver, policies, memory, drift := newTestEvolver(t, mock, DefaultEvolutionThreshold)

	ok, err := evolver.ShouldEvolve(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := evolver.EvolveAndActivate(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.FromVersion)
	assert.Equal(t, 2, rec.ToVersion)
	assert.Equal(t, "too many suboptimal quarantines", rec.Reason)
	assert.Equal(t, DefaultEvolutionThreshold, rec.ReplaysSeen)

	current := policies.Current()
	assert.Equal(t, 2, current.Version)
	assert.InDelta(t, 0.80, current.ConfidenceThresholdAct, 1e-9)
	require.NotNil(t, current.EvolvedFrom)
	assert.Equal(t, rec.FromPolicyID, *current.EvolvedFrom)
	assert.Zero(t, current.AccuracyRate)
	for _, a := range current.ReasoningArtifacts {
		assert.Equal(t, DefaultEvolutionThreshold, a.UsageCount)
		assert.Zero(t, a.SuccessRate)
	}

	logged, err := memory.Evolutions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, rec.ID, logged[0].ID)

	assert.InDelta(t, 0.25/1.1, drift.Snapshot().Expected[domain.FrameworkHACCP], 1e-9)

	history, err := policies.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestPolicyEvolver_KeepsPolicyOnBadOracleOutput(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
	}{
		{name: "not json", response: "not json"},
		{name: "nothing applicable", response: `{"reason":"all good"}`},
		{name: "oracle error", err: errors.New("provider down")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mock := oracle.NewMockClient()
			mock.Responses[domain.PurposePolicyEvolution] = tt.response
			if tt.err != nil {
				mock.Errors[domain.PurposePolicyEvolution] = tt.err
			}
			evolver, policies, _, _ := newTestEvolver(t, mock, 1)
			before := policies.Current()

			next, changes, err := evolver.Evolve(ctx, before, nil)
			require.NoError(t, err)
			assert.Empty(t, changes)
			assert.Same(t, before, next)

			rec, err := evolver.EvolveAndActivate(ctx, nil)
			require.NoError(t, err)
			assert.Nil(t, rec)
			assert.Equal(t, 1, policies.Current().Version)
		})
	}
}

func TestPolicyEvolver_RequiresLoadedPolicy(t *testing.T) {
	memory, _, _ := newTestMemory()
	policies := NewPolicyService(store.NewMemPolicyStore(), nil, testLogger())
	evolver := NewPolicyEvolver(oracle.NewMockClient(), memory, policies, testLogger())

	_, err := evolver.EvolveAndActivate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPolicyNotLoaded)
}
