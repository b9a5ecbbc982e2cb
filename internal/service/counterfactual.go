package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/oracle"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Heuristic delta scales.
const (
	productionScale   = 100.0
	urgencyMinutes    = 5.0
	reversibilityRisk = 10.0
	sideEffectCost    = 0.5
)

// CounterfactualAnalyzer contrasts an executed action with the runner-up
// hypothesis.
type CounterfactualAnalyzer struct {
	oracle domain.Oracle
	logger *zap.Logger
}

func NewCounterfactualAnalyzer(o domain.Oracle, logger *zap.Logger) *CounterfactualAnalyzer {
	return &CounterfactualAnalyzer{oracle: o, logger: logger}
}

// Analyze returns nil when no action was executed or fewer than two
// hypotheses exist.
func (a *CounterfactualAnalyzer) Analyze(ctx context.Context, st *domain.RunState) *domain.CounterfactualReplay {
	b := st.Belief
	if st.ActionResult == nil || b == nil || len(b.Hypotheses) < 2 {
		return nil
	}
	ranked := b.Ranked()
	chosen := b.Leader()
	if chosen == nil {
		chosen = ranked[0]
	}
	var alt *domain.Hypothesis
	for _, h := range ranked {
		if h.ID != chosen.ID {
			alt = h
			break
		}
	}

	altAction := alt.RecommendedAction
	if altAction == "" {
		altAction = alt.Framework().DefaultAction()
	}

	production := (b.Posteriors[chosen.ID] - b.Posteriors[alt.ID]) * productionScale
	if !st.ActionResult.Succeeded() {
		production = -production
	}

	policyVersion := 0
	if st.Policy != nil {
		policyVersion = st.Policy.Version
	}

	r := &domain.CounterfactualReplay{
		ID:                               uuid.New(),
		SignalID:                         st.SignalID,
		PolicyVersion:                    policyVersion,
		ChosenHypothesisID:               chosen.ID,
		ChosenHypothesisDescription:      chosen.Description,
		ChosenFramework:                  chosen.Framework(),
		ChosenAction:                     st.SelectedAction,
		AlternativeHypothesisID:          alt.ID,
		AlternativeHypothesisDescription: alt.Description,
		AlternativeFramework:             alt.Framework(),
		AlternativeAction:                altAction,
		ActualOutcome:                    actualOutcome(st.ActionResult),
		ProductionDelta:                  production,
		TimeDeltaMinutes:                 (alt.Urgency - chosen.Urgency) * urgencyMinutes,
		RiskDelta:                        (chosen.Reversibility - alt.Reversibility) / reversibilityRisk,
		CostDelta:                        -sideEffectCost * float64(len(st.ActionResult.SideEffects)),
		CreatedAt:                        time.Now().UTC(),
	}

	if !a.applyOracle(ctx, st.Signal, chosen, alt, r) {
		r.PredictedAlternativeOutcome = fmt.Sprintf("%s would have addressed %s", altAction, alt.Description)
		r.ShouldUpdatePolicy = !r.WasOptimalChoice()
		if r.WasOptimalChoice() {
			r.Insight = fmt.Sprintf("%s choice outscored %s alternative (score %.2f)", r.ChosenFramework, r.AlternativeFramework, r.Score())
		} else {
			r.Insight = fmt.Sprintf("%s alternative would likely have done better than %s (score %.2f)", r.AlternativeFramework, r.ChosenFramework, r.Score())
			r.UpdateRecommendation = fmt.Sprintf("weigh %s hypotheses more heavily for %s signals", r.AlternativeFramework, st.Signal.Type)
		}
	}
	return r
}

// applyOracle merges advisory oracle hints into r. It reports whether a
// usable insight was obtained.
func (a *CounterfactualAnalyzer) applyOracle(ctx context.Context, sig domain.Signal, chosen, alt *domain.Hypothesis, r *domain.CounterfactualReplay) bool {
	if a.oracle == nil {
		return false
	}
	j, err := a.oracle.Judge(ctx, domain.JudgeRequest{
		Purpose: domain.PurposeCounterfactualInsight,
		Prompt:  oracle.CounterfactualPrompt(sig, chosen, alt, r),
		Context: map[string]any{"signal_id": sig.ID, "score": r.Score()},
	})
	if err != nil {
		a.logger.Warn("counterfactual insight unavailable", zap.String("signal_id", sig.ID), zap.Error(err))
		return false
	}
	hints := oracle.ParseHints(j)
	insight, ok := hints.Text("insight")
	if !ok {
		a.logger.Debug("counterfactual hints unusable", zap.String("signal_id", sig.ID))
		return false
	}

	overrideDelta(hints, "production_delta", &r.ProductionDelta)
	overrideDelta(hints, "time_delta_minutes", &r.TimeDeltaMinutes)
	overrideDelta(hints, "risk_delta", &r.RiskDelta)
	overrideDelta(hints, "cost_delta", &r.CostDelta)

	r.Insight = insight
	if v, ok := hints.Text("predicted_alternative_outcome"); ok {
		r.PredictedAlternativeOutcome = v
	}
	if v, ok := hints.Bool("should_update_policy"); ok {
		r.ShouldUpdatePolicy = v
	} else {
		r.ShouldUpdatePolicy = !r.WasOptimalChoice()
	}
	if v, ok := hints.Text("update_recommendation"); ok {
		r.UpdateRecommendation = v
	}
	return true
}

func overrideDelta(h oracle.Hints, path string, dst *float64) {
	if v, ok := h.Float(path); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
		*dst = v
	}
}

func actualOutcome(res *domain.ActionResult) string {
	if res.Detail != "" {
		return res.Status + ": " + res.Detail
	}
	return res.Status
}
