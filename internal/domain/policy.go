package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultActThreshold      = 0.75
	DefaultEscalateThreshold = 0.45

	// MinFrameworkWeight keeps every framework represented after evolution.
	MinFrameworkWeight = 0.01

	weightTolerance = 1e-6
)

// ConfidenceBand places a leader's confidence relative to policy thresholds.
type ConfidenceBand string

const (
	BandAct        ConfidenceBand = "act"
	BandDeliberate ConfidenceBand = "deliberate"
	BandEscalate   ConfidenceBand = "escalate"
)

// DiscoveredCriterion is a decision criterion learned from replays. Each
// time an evolution suggests it again it counts as validated.
type DiscoveredCriterion struct {
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Weight         float64   `json:"weight"`
	Threshold      *float64  `json:"threshold,omitempty"`
	DiscoveredFrom string    `json:"discovered_from"`
	DiscoveredAt   time.Time `json:"discovered_at"`
	TimesValidated int       `json:"times_validated"`
	LastRevised    time.Time `json:"last_revised"`
}

// ArtifactVersion is a major.minor version for reasoning artifacts.
type ArtifactVersion struct {
	Major int
	Minor int
}

func (v ArtifactVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Bump returns the next version. A major bump resets the minor component.
func (v ArtifactVersion) Bump(major bool) ArtifactVersion {
	if major {
		return ArtifactVersion{Major: v.Major + 1}
	}
	return ArtifactVersion{Major: v.Major, Minor: v.Minor + 1}
}

// Less reports whether v precedes o.
func (v ArtifactVersion) Less(o ArtifactVersion) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

func (v ArtifactVersion) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *ArtifactVersion) UnmarshalText(text []byte) error {
	major, minor, ok := strings.Cut(string(text), ".")
	if !ok {
		return fmt.Errorf("artifact version %q: want major.minor", text)
	}
	ma, err := strconv.Atoi(major)
	if err != nil {
		return fmt.Errorf("artifact version %q: %w", text, err)
	}
	mi, err := strconv.Atoi(minor)
	if err != nil {
		return fmt.Errorf("artifact version %q: %w", text, err)
	}
	v.Major, v.Minor = ma, mi
	return nil
}

// ReasoningArtifact is a named, versioned bundle of decision criteria.
// UsageCount and SuccessRate reflect the replays seen when the version was
// built.
type ReasoningArtifact struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Description     string                `json:"description"`
	Version         ArtifactVersion       `json:"version"`
	Criteria        []DiscoveredCriterion `json:"criteria"`
	UsageCount      int                   `json:"usage_count"`
	SuccessRate     float64               `json:"success_rate"`
	EvolvedFrom     string                `json:"evolved_from,omitempty"`
	EvolutionReason string                `json:"evolution_reason,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// Criterion returns the index of the criterion named name, or -1.
func (a *ReasoningArtifact) Criterion(name string) int {
	for i, c := range a.Criteria {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// CalculatePriority is the weighted average of the values named by the
// artifact's criteria. Criteria absent from values are ignored; the result
// is 0 when nothing matches or the matched weights sum to zero.
func (a *ReasoningArtifact) CalculatePriority(values map[string]float64) float64 {
	var num, den float64
	for _, c := range a.Criteria {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		num += c.Weight * v
		den += c.Weight
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Evolve returns a copy under the next version. Criteria not yet present
// are appended; a criterion already present is revalidated instead, so a
// name never carries weight twice.
func (a ReasoningArtifact) Evolve(criteria []DiscoveredCriterion, major bool, reason string, at time.Time) ReasoningArtifact {
	out := a.clone()
	for _, c := range criteria {
		if i := out.Criterion(c.Name); i >= 0 {
			out.Criteria[i].TimesValidated++
			out.Criteria[i].LastRevised = at
			continue
		}
		if c.LastRevised.IsZero() {
			c.LastRevised = at
		}
		out.Criteria = append(out.Criteria, c)
	}
	out.Version = a.Version.Bump(major)
	out.EvolvedFrom = a.ID + "@" + a.Version.String()
	out.EvolutionReason = reason
	out.UpdatedAt = at
	return out
}

func (a ReasoningArtifact) clone() ReasoningArtifact {
	out := a
	out.Criteria = make([]DiscoveredCriterion, len(a.Criteria))
	for i, c := range a.Criteria {
		if c.Threshold != nil {
			t := *c.Threshold
			c.Threshold = &t
		}
		out.Criteria[i] = c
	}
	return out
}

// DecisionPolicy holds the thresholds and weights that drive action
// selection. A stored version is never modified; evolution produces a new
// version.
type DecisionPolicy struct {
	ID                          uuid.UUID             `json:"id"`
	Version                     int                   `json:"version"`
	ConfidenceThresholdAct      float64               `json:"confidence_threshold_act"`
	ConfidenceThresholdEscalate float64               `json:"confidence_threshold_escalate"`
	FrameworkWeights            map[Framework]float64 `json:"framework_weights"`
	ReasoningArtifacts          []ReasoningArtifact   `json:"reasoning_artifacts"`
	PolicyInsights              []string              `json:"policy_insights"`
	IncidentsEvaluated          int                   `json:"incidents_evaluated"`
	AccuracyRate                float64               `json:"accuracy_rate"`
	EvolvedFrom                 *uuid.UUID            `json:"evolved_from,omitempty"`
	EvolutionReason             string                `json:"evolution_reason,omitempty"`
	CreatedAt                   time.Time             `json:"created_at"`
}

// DefaultDecisionPolicy is the policy seeded on first boot.
func DefaultDecisionPolicy() *DecisionPolicy {
	now := time.Now().UTC()
	return &DecisionPolicy{
		ID:                          uuid.New(),
		Version:                     1,
		ConfidenceThresholdAct:      DefaultActThreshold,
		ConfidenceThresholdEscalate: DefaultEscalateThreshold,
		FrameworkWeights:            DefaultFrameworkWeights(),
		ReasoningArtifacts: []ReasoningArtifact{{
			ID:          "baseline-triage",
			Name:        "Baseline triage",
			Description: "Ranks a leading hypothesis by confidence, impact, urgency and ease of reversal.",
			Version:     ArtifactVersion{Major: 1},
			Criteria: []DiscoveredCriterion{
				{Name: "confidence", Description: "current confidence in the leader", Weight: 0.4, DiscoveredFrom: "seed", DiscoveredAt: now, LastRevised: now},
				{Name: "impact", Description: "normalized impact", Weight: 0.25, DiscoveredFrom: "seed", DiscoveredAt: now, LastRevised: now},
				{Name: "urgency", Description: "normalized urgency", Weight: 0.25, DiscoveredFrom: "seed", DiscoveredAt: now, LastRevised: now},
				{Name: "reversibility", Description: "normalized ease of reversal", Weight: 0.1, DiscoveredFrom: "seed", DiscoveredAt: now, LastRevised: now},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}},
		PolicyInsights: []string{},
		CreatedAt:      now,
	}
}

// Band classifies a confidence against the policy thresholds.
func (p *DecisionPolicy) Band(confidence float64) ConfidenceBand {
	switch {
	case confidence >= p.ConfidenceThresholdAct:
		return BandAct
	case confidence >= p.ConfidenceThresholdEscalate:
		return BandDeliberate
	default:
		return BandEscalate
	}
}

// Weight returns the expected share of a framework.
func (p *DecisionPolicy) Weight(f Framework) float64 {
	return p.FrameworkWeights[f]
}

// Clone returns a deep copy.
func (p *DecisionPolicy) Clone() *DecisionPolicy {
	out := *p
	out.FrameworkWeights = make(map[Framework]float64, len(p.FrameworkWeights))
	for k, v := range p.FrameworkWeights {
		out.FrameworkWeights[k] = v
	}
	out.ReasoningArtifacts = make([]ReasoningArtifact, len(p.ReasoningArtifacts))
	for i, a := range p.ReasoningArtifacts {
		out.ReasoningArtifacts[i] = a.clone()
	}
	out.PolicyInsights = append([]string{}, p.PolicyInsights...)
	if p.EvolvedFrom != nil {
		id := *p.EvolvedFrom
		out.EvolvedFrom = &id
	}
	return &out
}

// NormalizeWeights floors every framework weight at MinFrameworkWeight and
// rescales the distribution to sum to 1.
func (p *DecisionPolicy) NormalizeWeights() {
	if p.FrameworkWeights == nil {
		p.FrameworkWeights = DefaultFrameworkWeights()
		return
	}
	total := 0.0
	for _, f := range Frameworks {
		w := p.FrameworkWeights[f]
		if math.IsNaN(w) || w < MinFrameworkWeight {
			w = MinFrameworkWeight
		}
		p.FrameworkWeights[f] = w
		total += w
	}
	for k := range p.FrameworkWeights {
		if !ValidFramework(string(k)) {
			delete(p.FrameworkWeights, k)
		}
	}
	for _, f := range Frameworks {
		p.FrameworkWeights[f] /= total
	}
}

// Validate checks threshold ordering and the weight distribution.
func (p *DecisionPolicy) Validate() error {
	if p.ConfidenceThresholdEscalate <= 0 || p.ConfidenceThresholdAct > 1 ||
		p.ConfidenceThresholdEscalate >= p.ConfidenceThresholdAct {
		return fmt.Errorf("policy v%d thresholds escalate=%.3f act=%.3f: %w",
			p.Version, p.ConfidenceThresholdEscalate, p.ConfidenceThresholdAct, ErrInvariantViolation)
	}
	if len(p.FrameworkWeights) != len(Frameworks) {
		return fmt.Errorf("policy v%d has %d framework weights: %w", p.Version, len(p.FrameworkWeights), ErrInvariantViolation)
	}
	sum := 0.0
	for _, f := range Frameworks {
		w, ok := p.FrameworkWeights[f]
		if !ok || w < 0 {
			return fmt.Errorf("policy v%d weight for %s invalid: %w", p.Version, f, ErrInvariantViolation)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("policy v%d weights sum to %f: %w", p.Version, sum, ErrInvariantViolation)
	}
	return nil
}
