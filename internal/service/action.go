package service

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/oracle"
	"go.uber.org/zap"
)

// maxJudgmentAttempts bounds how often a deliberation verdict is re-asked
// after an unusable answer.
const maxJudgmentAttempts = 2

// Selection is the outcome of action selection.
type Selection struct {
	Action     string
	NeedsHuman bool
	Rationale  string
	Priority   float64
}

// ActionSelector maps a belief state and policy onto act, escalate or skip.
type ActionSelector struct {
	oracle domain.Oracle
	logger *zap.Logger
}

func NewActionSelector(o domain.Oracle, logger *zap.Logger) *ActionSelector {
	return &ActionSelector{oracle: o, logger: logger}
}

func (s *ActionSelector) Select(ctx context.Context, sig domain.Signal, b *domain.BeliefState, policy *domain.DecisionPolicy) Selection {
	leader := b.Leader()
	if leader == nil {
		return Selection{Rationale: "no hypotheses to act on"}
	}

	action := leader.RecommendedAction
	if action == "" {
		action = leader.Framework().DefaultAction()
	}
	priority := artifactPriority(policy, leader, b.ConfidenceInLeader)
	c := b.ConfidenceInLeader

	switch policy.Band(c) {
	case domain.BandAct:
		return Selection{
			Action:    action,
			Priority:  priority,
			Rationale: fmt.Sprintf("confidence %.3f meets act threshold %.2f (priority %.2f)", c, policy.ConfidenceThresholdAct, priority),
		}
	case domain.BandEscalate:
		return Selection{
			Action:     action,
			NeedsHuman: true,
			Priority:   priority,
			Rationale:  fmt.Sprintf("confidence %.3f below escalate threshold %.2f", c, policy.ConfidenceThresholdEscalate),
		}
	}

	if d, ok := leader.Details().(domain.HACCPDetails); ok && d.IsUrgent() {
		return Selection{
			Action:    action,
			Priority:  priority,
			Rationale: fmt.Sprintf("food safety hazard %d minutes from noncompliance, acting at confidence %.3f", d.TimeToNoncomplianceMinutes, c),
		}
	}
	return s.deliberate(ctx, sig, b, policy, action, priority)
}

// deliberate asks the oracle for a verdict on a leader between thresholds.
// Anything other than a clear decision to act escalates.
func (s *ActionSelector) deliberate(ctx context.Context, sig domain.Signal, b *domain.BeliefState, policy *domain.DecisionPolicy, action string, priority float64) Selection {
	escalate := Selection{Action: action, NeedsHuman: true, Priority: priority}
	if s.oracle == nil {
		escalate.Rationale = "confidence in deliberation band and no oracle configured"
		return escalate
	}

	feedback := ""
	for attempt := 1; attempt <= maxJudgmentAttempts; attempt++ {
		j, err := s.oracle.Judge(ctx, domain.JudgeRequest{
			Purpose: domain.PurposeFinalJudgment,
			Prompt:  oracle.FinalJudgmentPrompt(sig, b, policy, action, feedback),
			Context: map[string]any{
				"signal_id":            sig.ID,
				"confidence_in_leader": b.ConfidenceInLeader,
				"artifact_priority":    priority,
			},
		})
		if err != nil {
			s.logger.Warn("final judgment failed, escalating", zap.String("signal_id", sig.ID), zap.Error(err))
			escalate.Rationale = "oracle unavailable for final judgment"
			return escalate
		}

		hints := oracle.ParseHints(j)
		decision, _ := hints.Text("decision")
		rationale, _ := hints.Text("rationale")
		switch decision {
		case "act":
			if a, ok := hints.Text("action"); ok {
				action = a
			}
			return Selection{Action: action, Priority: priority, Rationale: "oracle: " + rationale}
		case "escalate":
			escalate.Rationale = "oracle: " + rationale
			return escalate
		}
		feedback = fmt.Sprintf("decision %q is not one of act or escalate", decision)
		s.logger.Debug("unusable final judgment", zap.String("signal_id", sig.ID), zap.Int("attempt", attempt))
	}

	escalate.Rationale = "no usable final judgment from oracle"
	return escalate
}

// artifactPriority scores the leader with the policy's first reasoning
// artifact over features normalized to [0,1]. Reversibility is inverted so
// that harder-to-undo actions score lower.
func artifactPriority(policy *domain.DecisionPolicy, h *domain.Hypothesis, confidence float64) float64 {
	if len(policy.ReasoningArtifacts) == 0 {
		return 0
	}
	values := map[string]float64{
		"confidence":    confidence,
		"impact":        h.Impact / 10,
		"urgency":       h.Urgency / 10,
		"reversibility": 1 - h.Reversibility/10,
	}
	return policy.ReasoningArtifacts[0].CalculatePriority(values)
}
