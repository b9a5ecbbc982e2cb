package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PosteriorTolerance bounds how far the posterior sum may drift from 1.
const PosteriorTolerance = 1e-6

// BeliefState is the current distribution of belief over a signal's
// competing hypotheses.
type BeliefState struct {
	ID                  string             `json:"id"`
	SignalID            string             `json:"signal_id"`
	SignalDescription   string             `json:"signal_description"`
	Hypotheses          []*Hypothesis      `json:"hypotheses"`
	Posteriors          map[string]float64 `json:"posterior_probabilities"`
	LeadingHypothesisID string             `json:"leading_hypothesis_id,omitempty"`
	ConfidenceInLeader  float64            `json:"confidence_in_leader"`
	Converged           bool               `json:"converged"`
	RecommendedAction   string             `json:"recommended_action,omitempty"`
	ActionTaken         string             `json:"action_taken,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	ResolvedAt          *time.Time         `json:"resolved_at,omitempty"`
}

func NewBeliefState(id string, signal Signal) *BeliefState {
	return &BeliefState{
		ID:                id,
		SignalID:          signal.ID,
		SignalDescription: signal.Description,
		Posteriors:        map[string]float64{},
		CreatedAt:         time.Now().UTC(),
	}
}

// Hypothesis looks up a hypothesis by ID.
func (b *BeliefState) Hypothesis(id string) *Hypothesis {
	for _, h := range b.Hypotheses {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// Leader returns the leading hypothesis, or nil when there is none.
func (b *BeliefState) Leader() *Hypothesis {
	if b.LeadingHypothesisID == "" {
		return nil
	}
	return b.Hypothesis(b.LeadingHypothesisID)
}

// Ranked returns hypotheses ordered by posterior, highest first. Ties keep
// list order.
func (b *BeliefState) Ranked() []*Hypothesis {
	out := append([]*Hypothesis(nil), b.Hypotheses...)
	sort.SliceStable(out, func(i, j int) bool {
		return b.Posteriors[out[i].ID] > b.Posteriors[out[j].ID]
	})
	return out
}

func (b *BeliefState) IsResolved() bool {
	return b.ResolvedAt != nil
}

// Resolve records the action that was taken. A resolved state is final.
func (b *BeliefState) Resolve(action string) error {
	if b.IsResolved() {
		return ErrBeliefResolved
	}
	now := time.Now().UTC()
	b.ActionTaken = action
	b.ResolvedAt = &now
	return nil
}

// Validate checks the posterior distribution and the leader choice.
func (b *BeliefState) Validate() error {
	if len(b.Hypotheses) == 0 {
		if len(b.Posteriors) != 0 || b.LeadingHypothesisID != "" {
			return fmt.Errorf("belief %s has posteriors without hypotheses: %w", b.ID, ErrInvariantViolation)
		}
		return nil
	}
	if len(b.Posteriors) != len(b.Hypotheses) {
		return fmt.Errorf("belief %s has %d posteriors for %d hypotheses: %w",
			b.ID, len(b.Posteriors), len(b.Hypotheses), ErrInvariantViolation)
	}

	sum := 0.0
	best, bestIdx := math.Inf(-1), -1
	for i, h := range b.Hypotheses {
		p, ok := b.Posteriors[h.ID]
		if !ok || math.IsNaN(p) || p < 0 {
			return fmt.Errorf("belief %s posterior for %s invalid: %w", b.ID, h.ID, ErrInvariantViolation)
		}
		sum += p
		if p > best {
			best, bestIdx = p, i
		}
	}
	if math.Abs(sum-1) > PosteriorTolerance {
		return fmt.Errorf("belief %s posteriors sum to %f: %w", b.ID, sum, ErrInvariantViolation)
	}
	if b.LeadingHypothesisID != b.Hypotheses[bestIdx].ID {
		return fmt.Errorf("belief %s leader %s is not the argmax %s: %w",
			b.ID, b.LeadingHypothesisID, b.Hypotheses[bestIdx].ID, ErrInvariantViolation)
	}
	return nil
}
