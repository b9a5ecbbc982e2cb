package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/vigil/internal/domain"
)

const systemPrompt = `You are an operations reliability analyst for a manufacturing plant.
You reason with five frameworks: RCA (root cause analysis), COUNTERFACTUAL (what-if interventions),
FMEA (failure mode and effects analysis), TOC (theory of constraints) and HACCP (food safety hazard control).
Always answer with a single JSON object and nothing else.`

const hypothesisPrompt = `An anomaly signal needs competing explanations.

Signal type: %s
Description: %s
Candidate frameworks: %s

Reference knowledge:
%s

Propose up to 4 hypotheses. Respond ONLY with JSON, no markdown:
{"hypotheses":[{
  "framework":"RCA|COUNTERFACTUAL|FMEA|TOC|HACCP",
  "description":"one sentence",
  "confidence":0.0,
  "impact":1, "urgency":1, "reversibility":1,
  "recommended_action":"snake_case_action",
  "details":{ framework specific fields:
    RCA: cause_category (mechanical|process|human|environmental), expected_effect
    COUNTERFACTUAL: action, predicted_outcome, risk_delta, production_delta
    FMEA: failure_mode, severity, occurrence, detectability (each 1-10)
    TOC: constraint, throughput_impact, time_horizon_minutes, downstream_lines
    HACCP: regulation, violation_likelihood (0-1), time_to_noncompliance_minutes }
}]}`

const finalJudgmentPrompt = `Decide whether to act on the leading hypothesis or escalate to a human.

Signal: %s
Leading hypothesis (%s): %s
Confidence in leader: %.3f (act threshold %.2f, escalate threshold %.2f)
Proposed action: %s
Competing hypotheses:
%s
%s
Respond ONLY with JSON, no markdown:
{"decision":"act|escalate","action":"snake_case_action","rationale":"brief reason"}`

const counterfactualPrompt = `Review a completed decision against its best alternative.

Signal: %s
Chosen (%s): %s, action %s, outcome %s
Alternative (%s): %s, action %s
Estimated deltas (chosen minus alternative): production %.2f, time %.1f min, risk %.3f, cost %.2f

Respond ONLY with JSON, no markdown:
{"predicted_alternative_outcome":"...","insight":"one sentence lesson","should_update_policy":false,
 "update_recommendation":"optional","production_delta":null,"time_delta_minutes":null,"risk_delta":null,"cost_delta":null}
Leave a delta null to keep the estimate.`

const evolutionPrompt = `Propose an update to the decision policy based on replay history.

Current policy v%d: act threshold %.3f, escalate threshold %.3f
Framework weights: %s
Replay stats: %d total, accuracy %.3f, %d flagged for policy update
%s
Recent replays:
%s
Worst replays:
%s

Respond ONLY with JSON, no markdown. Omit anything you would not change:
{"reason":"why",
 "threshold_deltas":{"act":0.0,"escalate":0.0},
 "framework_weight_deltas":{"RCA":0.0,"COUNTERFACTUAL":0.0,"FMEA":0.0,"TOC":0.0,"HACCP":0.0},
 "new_insights":["..."],
 "new_criteria":[{"name":"...","description":"...","weight":0.1,"threshold":null}]}`

// HypothesisPrompt asks for hypotheses about a signal.
func HypothesisPrompt(signal domain.Signal, knowledge string, frameworks []domain.Framework) string {
	names := make([]string, len(frameworks))
	for i, f := range frameworks {
		names[i] = string(f)
	}
	if knowledge == "" {
		knowledge = "(none)"
	}
	return fmt.Sprintf(hypothesisPrompt, signal.Type, signal.Description, strings.Join(names, ", "), knowledge)
}

// FinalJudgmentPrompt asks whether to act on a leader in the deliberation band.
// feedback carries the reason a previous verdict was rejected, if any.
func FinalJudgmentPrompt(signal domain.Signal, belief *domain.BeliefState, policy *domain.DecisionPolicy, action, feedback string) string {
	leader := belief.Leader()
	var others strings.Builder
	for _, h := range belief.Ranked() {
		if h.ID == leader.ID {
			continue
		}
		fmt.Fprintf(&others, "- (%s) %s posterior=%.3f\n", h.Framework(), h.Description, belief.Posteriors[h.ID])
	}
	if feedback != "" {
		feedback = "Your previous answer was rejected: " + feedback + "\n"
	}
	return fmt.Sprintf(finalJudgmentPrompt,
		signal.Description,
		leader.Framework(), leader.Description,
		belief.ConfidenceInLeader, policy.ConfidenceThresholdAct, policy.ConfidenceThresholdEscalate,
		action, others.String(), feedback)
}

// CounterfactualPrompt asks the oracle to review a replay.
func CounterfactualPrompt(signal domain.Signal, chosen, alt *domain.Hypothesis, r *domain.CounterfactualReplay) string {
	return fmt.Sprintf(counterfactualPrompt,
		signal.Description,
		chosen.Framework(), chosen.Description, r.ChosenAction, r.ActualOutcome,
		alt.Framework(), alt.Description, r.AlternativeAction,
		r.ProductionDelta, r.TimeDeltaMinutes, r.RiskDelta, r.CostDelta)
}

// EvolutionPrompt asks for a policy revision from replay history.
func EvolutionPrompt(policy *domain.DecisionPolicy, stats domain.StrategicMemoryStats, drift *domain.DriftAlert, recent, worst []domain.CounterfactualReplay) string {
	weights := make([]string, 0, len(domain.Frameworks))
	for _, f := range domain.Frameworks {
		weights = append(weights, fmt.Sprintf("%s=%.3f", f, policy.FrameworkWeights[f]))
	}
	driftLine := ""
	if drift != nil {
		driftLine = fmt.Sprintf("Drift alert: %s %s (actual %.2f vs expected %.2f)\n",
			drift.Framework, drift.Kind, drift.ActualRate, drift.ExpectedRate)
	}
	return fmt.Sprintf(evolutionPrompt,
		policy.Version, policy.ConfidenceThresholdAct, policy.ConfidenceThresholdEscalate,
		strings.Join(weights, " "),
		stats.Total, stats.AccuracyRate, stats.UpdateCandidateCount,
		driftLine,
		summarizeReplays(recent), summarizeReplays(worst))
}

func summarizeReplays(replays []domain.CounterfactualReplay) string {
	if len(replays) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for i, r := range replays {
		fmt.Fprintf(&sb, "%d. [%s vs %s] score=%.2f optimal=%t insight=%q\n",
			i+1, r.ChosenFramework, r.AlternativeFramework, r.Score(), r.WasOptimalChoice(), r.Insight)
	}
	return sb.String()
}

// renderRequest appends the request context to the prompt as JSON.
func renderRequest(req domain.JudgeRequest) string {
	if len(req.Context) == 0 {
		return req.Prompt
	}
	ctxJSON, err := json.Marshal(req.Context)
	if err != nil {
		return req.Prompt
	}
	return req.Prompt + "\n\nContext:\n" + string(ctxJSON)
}
