package service

import (
	"fmt"
	"math"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// beliefStep scales how far one evidence item moves confidence toward 1
// (supporting) or 0 (refuting).
const beliefStep = 0.5

// BeliefUpdater folds evidence into hypothesis confidence and recomputes
// posteriors. The arithmetic is a bounded heuristic, not Bayesian inference.
type BeliefUpdater struct {
	logger *zap.Logger
}

func NewBeliefUpdater(logger *zap.Logger) *BeliefUpdater {
	return &BeliefUpdater{logger: logger}
}

// FoldEvidence applies one evidence item to a confidence value.
func FoldEvidence(c float64, ev domain.Evidence) float64 {
	w := ev.Weight()
	if ev.Supports {
		return c + beliefStep*w*(1-c)
	}
	return c - beliefStep*w*c
}

// Update folds evidence not yet reflected in each hypothesis and refreshes
// posteriors, leader and convergence. Evidence is never folded twice.
func (u *BeliefUpdater) Update(b *domain.BeliefState, policy *domain.DecisionPolicy) error {
	if b.IsResolved() {
		return domain.ErrBeliefResolved
	}

	folded := 0
	for _, h := range b.Hypotheses {
		folded += h.ApplyPending(FoldEvidence)
	}

	b.Posteriors = make(map[string]float64, len(b.Hypotheses))
	b.LeadingHypothesisID = ""
	b.ConfidenceInLeader = 0
	b.Converged = false
	b.RecommendedAction = ""

	if len(b.Hypotheses) == 0 {
		return b.Validate()
	}

	probs := posteriors(b.Hypotheses)
	for i, h := range b.Hypotheses {
		b.Posteriors[h.ID] = probs[i]
	}
	leader := b.Hypotheses[floats.MaxIdx(probs)]
	b.LeadingHypothesisID = leader.ID
	b.ConfidenceInLeader = probs[floats.MaxIdx(probs)]
	b.Converged = b.ConfidenceInLeader >= policy.ConfidenceThresholdAct
	b.RecommendedAction = leader.RecommendedAction
	if b.RecommendedAction == "" {
		b.RecommendedAction = leader.Framework().DefaultAction()
	}

	if err := b.Validate(); err != nil {
		return fmt.Errorf("belief update: %w", err)
	}

	u.logger.Debug("beliefs updated",
		zap.String("signal_id", b.SignalID),
		zap.Int("hypotheses", len(b.Hypotheses)),
		zap.Int("evidence_folded", folded),
		zap.String("leader", b.LeadingHypothesisID),
		zap.Float64("confidence_in_leader", b.ConfidenceInLeader),
		zap.Bool("converged", b.Converged))
	return nil
}

// posteriors normalizes decision priorities, falling back to confidences and
// then to a uniform distribution when the sum is degenerate.
func posteriors(hs []*domain.Hypothesis) []float64 {
	probs := make([]float64, len(hs))
	for i, h := range hs {
		probs[i] = h.DecisionPriority()
	}
	if normalize(probs) {
		return probs
	}
	for i, h := range hs {
		probs[i] = h.CurrentConfidence
	}
	if normalize(probs) {
		return probs
	}
	for i := range probs {
		probs[i] = 1 / float64(len(probs))
	}
	return probs
}

func normalize(v []float64) bool {
	sum := floats.Sum(v)
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return false
	}
	floats.Scale(1/sum, v)
	return true
}
