package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionPolicy_JSONRoundTrip(t *testing.T) {
	p := DefaultDecisionPolicy()
	p.Version = 4
	p.ConfidenceThresholdAct = 0.8125
	p.ConfidenceThresholdEscalate = 0.4375
	p.FrameworkWeights[FrameworkRCA] = 0.25
	p.FrameworkWeights[FrameworkHACCP] = 0.2
	p.PolicyInsights = append(p.PolicyInsights, "prefer HACCP when cold chain readings drift")

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var got DecisionPolicy
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, p.Version, got.Version)
	assert.Equal(t, p.ConfidenceThresholdAct, got.ConfidenceThresholdAct)
	assert.Equal(t, p.ConfidenceThresholdEscalate, got.ConfidenceThresholdEscalate)
	if diff := cmp.Diff(p.FrameworkWeights, got.FrameworkWeights); diff != "" {
		t.Errorf("framework weights mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, p.ReasoningArtifacts[0].Version, got.ReasoningArtifacts[0].Version)
	assert.Equal(t, p.PolicyInsights, got.PolicyInsights)
}

func TestDefaultDecisionPolicy_Valid(t *testing.T) {
	p := DefaultDecisionPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, 0.75, p.ConfidenceThresholdAct)
	assert.Equal(t, 0.45, p.ConfidenceThresholdEscalate)
	assert.Len(t, p.FrameworkWeights, 5)
}

func TestDecisionPolicy_ValidateRejectsInvertedThresholds(t *testing.T) {
	p := DefaultDecisionPolicy()
	p.ConfidenceThresholdEscalate = 0.8
	err := p.Validate()
	assert.True(t, errors.Is(err, ErrInvariantViolation))
}

func TestDecisionPolicy_NormalizeWeights(t *testing.T) {
	p := DefaultDecisionPolicy()
	p.FrameworkWeights[FrameworkRCA] = 0.9
	p.FrameworkWeights[FrameworkHACCP] = -0.2
	p.FrameworkWeights["SWOT"] = 0.4

	p.NormalizeWeights()

	require.NoError(t, p.Validate())
	_, hasUnknown := p.FrameworkWeights["SWOT"]
	assert.False(t, hasUnknown)
	assert.Greater(t, p.FrameworkWeights[FrameworkHACCP], 0.0)
	sum := 0.0
	for _, w := range p.FrameworkWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestDecisionPolicy_CloneIsDeep(t *testing.T) {
	p := DefaultDecisionPolicy()
	c := p.Clone()
	c.FrameworkWeights[FrameworkRCA] = 0.99
	c.ReasoningArtifacts[0].Criteria[0].Weight = 7
	c.PolicyInsights = append(c.PolicyInsights, "x")

	assert.Equal(t, 0.30, p.FrameworkWeights[FrameworkRCA])
	assert.Equal(t, 0.4, p.ReasoningArtifacts[0].Criteria[0].Weight)
	assert.Empty(t, p.PolicyInsights)
}

func TestDecisionPolicy_Band(t *testing.T) {
	p := DefaultDecisionPolicy()
	tests := []struct {
		confidence float64
		want       ConfidenceBand
	}{
		{0.95, BandAct},
		{0.75, BandAct},
		{0.7499, BandDeliberate},
		{0.45, BandDeliberate},
		{0.4499, BandEscalate},
		{0, BandEscalate},
	}
	for _, tt := range tests {
		if got := p.Band(tt.confidence); got != tt.want {
			t.Errorf("Band(%v) = %s, want %s", tt.confidence, got, tt.want)
		}
	}
}

func TestArtifactVersion_Bump(t *testing.T) {
	v := ArtifactVersion{Major: 1, Minor: 2}
	assert.Equal(t, "1.3", v.Bump(false).String())
	assert.Equal(t, "2.0", v.Bump(true).String())
	assert.True(t, v.Less(v.Bump(false)))
	assert.True(t, v.Bump(false).Less(v.Bump(true)))
}

func TestArtifactVersion_Text(t *testing.T) {
	var v ArtifactVersion
	require.NoError(t, v.UnmarshalText([]byte("3.14")))
	assert.Equal(t, ArtifactVersion{Major: 3, Minor: 14}, v)
	assert.Error(t, v.UnmarshalText([]byte("3")))
}

func TestReasoningArtifact_CalculatePriority(t *testing.T) {
	threshold := 0.5
	a := ReasoningArtifact{Criteria: []DiscoveredCriterion{
		{Name: "confidence", Weight: 3},
		{Name: "impact", Weight: 1, Threshold: &threshold},
		{Name: "unobserved", Weight: 10},
	}}

	got := a.CalculatePriority(map[string]float64{"confidence": 0.8, "impact": 0.4})
	assert.InDelta(t, (3*0.8+1*0.4)/4, got, 1e-12)

	assert.Equal(t, 0.0, a.CalculatePriority(map[string]float64{"other": 1}))
	assert.Equal(t, 0.0, (&ReasoningArtifact{Criteria: []DiscoveredCriterion{{Name: "x", Weight: 0}}}).
		CalculatePriority(map[string]float64{"x": 1}))
}

func TestReasoningArtifact_EvolveCopies(t *testing.T) {
	a := DefaultDecisionPolicy().ReasoningArtifacts[0]
	at := a.CreatedAt.Add(time.Hour)
	next := a.Evolve([]DiscoveredCriterion{{Name: "rpn", Weight: 0.2}, {Name: "RPN", Weight: 0.4}, {Name: "Impact"}}, false, "fmea signals", at)

	assert.Equal(t, "1.1", next.Version.String())
	assert.Len(t, next.Criteria, len(a.Criteria)+1)
	assert.Equal(t, "1.0", a.Version.String())
	assert.False(t, math.IsNaN(next.CalculatePriority(map[string]float64{"rpn": 0.5})))

	rpn := next.Criteria[next.Criterion("rpn")]
	assert.Equal(t, 0.2, rpn.Weight)
	assert.Equal(t, 1, rpn.TimesValidated)
	assert.Equal(t, at, rpn.LastRevised)

	impact := next.Criteria[next.Criterion("impact")]
	assert.Equal(t, 1, impact.TimesValidated)
	assert.Equal(t, 0, a.Criteria[a.Criterion("impact")].TimesValidated)

	assert.Equal(t, "baseline-triage@1.0", next.EvolvedFrom)
	assert.Equal(t, "fmea signals", next.EvolutionReason)
	assert.Equal(t, at, next.UpdatedAt)
	assert.Equal(t, -1, next.Criterion("downtime"))
}
