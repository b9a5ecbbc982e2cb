package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/oracle"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ruleProposer   = "rule_engine"
	oracleProposer = "oracle"

	fallbackFrameworkCount = 3
	maxOracleHypotheses    = 4
)

// triggerRule proposes one hypothesis when any of its keywords appears in a
// signal's type, description or keywords.
type triggerRule struct {
	framework     domain.Framework
	keywords      []string
	confidence    float64
	impact        float64
	urgency       float64
	reversibility float64
	action        string
	details       func(sig domain.Signal, match string) domain.FrameworkDetails
	describe      func(sig domain.Signal, match string) string
}

var triggerRules = []triggerRule{
	{
		framework:     domain.FrameworkHACCP,
		keywords:      []string{"temperature", "contamination", "cold chain", "allergen", "sanitation"},
		confidence:    0.6,
		impact:        9,
		urgency:       9,
		reversibility: 8,
		action:        "quarantine_affected_batch",
		details: func(sig domain.Signal, match string) domain.FrameworkDetails {
			window := 30
			if v, ok := dataFloat(sig.Data, "minutes_to_limit"); ok {
				window = int(v)
			}
			return domain.HACCPDetails{
				Regulation:                 dataStringOr(sig.Data, "regulation", "HACCP CCP monitoring"),
				ViolationLikelihood:        0.6,
				TimeToNoncomplianceMinutes: window,
			}
		},
		describe: func(sig domain.Signal, match string) string {
			return fmt.Sprintf("Critical control point at risk: %s indicates a possible food safety hazard", match)
		},
	},
	{
		framework:     domain.FrameworkFMEA,
		keywords:      []string{"vibration", "smoke", "overheat", "bearing", "noise"},
		confidence:    0.55,
		impact:        7,
		urgency:       7,
		reversibility: 5,
		action:        "schedule_preventive_maintenance",
		details: func(sig domain.Signal, match string) domain.FrameworkDetails {
			severity := 6
			if match == "smoke" || match == "overheat" {
				severity = 8
			}
			return domain.FMEADetails{
				FailureMode:   dataStringOr(sig.Data, "equipment", "equipment") + " " + match + " failure",
				Severity:      severity,
				Occurrence:    5,
				Detectability: 4,
			}
		},
		describe: func(sig domain.Signal, match string) string {
			return fmt.Sprintf("Equipment failure mode developing: %s on %s", match, dataStringOr(sig.Data, "equipment", "the line"))
		},
	},
	{
		framework:     domain.FrameworkTOC,
		keywords:      []string{"jam", "backlog", "queue", "bottleneck", "starved"},
		confidence:    0.5,
		impact:        6,
		urgency:       6,
		reversibility: 3,
		action:        "rebalance_line_capacity",
		details: func(sig domain.Signal, match string) domain.FrameworkDetails {
			return domain.TOCDetails{
				Constraint:         dataStringOr(sig.Data, "station", "constraint station"),
				ThroughputImpact:   dataFloatOr(sig.Data, "throughput_drop", 0.2),
				TimeHorizonMinutes: 60,
				DownstreamLines:    dataStrings(sig.Data, "downstream_lines"),
			}
		},
		describe: func(sig domain.Signal, match string) string {
			return fmt.Sprintf("Throughput constraint: %s at %s is limiting the line", match, dataStringOr(sig.Data, "station", "a station"))
		},
	},
	{
		framework:     domain.FrameworkRCA,
		keywords:      []string{"defect", "reject", "scrap", "quality", "deviation"},
		confidence:    0.5,
		impact:        6,
		urgency:       5,
		reversibility: 4,
		action:        "open_root_cause_ticket",
		details: func(sig domain.Signal, match string) domain.FrameworkDetails {
			return domain.RCADetails{
				CauseCategory:  domain.CauseProcess,
				ExpectedEffect: "recurring " + match + " until the process cause is corrected",
			}
		},
		describe: func(sig domain.Signal, match string) string {
			return fmt.Sprintf("Process root cause behind rising %s", match)
		},
	},
	{
		framework:     domain.FrameworkCounterfactual,
		keywords:      []string{"shutdown", "halt", "reroute", "stop line"},
		confidence:    0.45,
		impact:        7,
		urgency:       6,
		reversibility: 6,
		action:        "apply_proposed_intervention",
		details: func(sig domain.Signal, match string) domain.FrameworkDetails {
			return domain.CounterfactualDetails{
				Action:           match,
				PredictedOutcome: "contain the anomaly at the cost of lost production",
				RiskDelta:        -0.2,
				ProductionDelta:  -10,
			}
		},
		describe: func(sig domain.Signal, match string) string {
			return fmt.Sprintf("Intervening with a %s would contain the anomaly sooner than waiting", match)
		},
	},
}

// HypothesisGenerator turns a signal into competing hypotheses using keyword
// rules, falling back to the oracle when no rule fires.
type HypothesisGenerator struct {
	oracle domain.Oracle
	logger *zap.Logger
}

func NewHypothesisGenerator(o domain.Oracle, logger *zap.Logger) *HypothesisGenerator {
	return &HypothesisGenerator{oracle: o, logger: logger}
}

// Classify returns the frameworks whose rules fire for the signal, or the
// three highest weighted frameworks of the policy when none do.
func (g *HypothesisGenerator) Classify(sig domain.Signal, policy *domain.DecisionPolicy) []domain.Framework {
	text := signalText(sig)
	var out []domain.Framework
	for _, r := range triggerRules {
		if _, ok := r.match(text); ok {
			out = append(out, r.framework)
		}
	}
	if len(out) > 0 {
		return out
	}

	ranked := append([]domain.Framework(nil), domain.Frameworks...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return policy.Weight(ranked[i]) > policy.Weight(ranked[j])
	})
	return ranked[:fallbackFrameworkCount]
}

// Generate builds hypotheses for the given frameworks. Oracle suggestions
// outside frameworks are dropped. An oracle failure yields an empty list, not
// an error, unless ctx itself is done.
func (g *HypothesisGenerator) Generate(ctx context.Context, sig domain.Signal, knowledge string, frameworks []domain.Framework) ([]*domain.Hypothesis, error) {
	allowed := make(map[domain.Framework]bool, len(frameworks))
	for _, f := range frameworks {
		allowed[f] = true
	}

	text := signalText(sig)
	var out []*domain.Hypothesis
	for _, r := range triggerRules {
		if !allowed[r.framework] {
			continue
		}
		match, ok := r.match(text)
		if !ok {
			continue
		}
		h, err := domain.NewHypothesis(domain.HypothesisInput{
			ID:                newHypothesisID(r.framework),
			Description:       r.describe(sig, match),
			Confidence:        r.confidence,
			Impact:            r.impact,
			Urgency:           r.urgency,
			Reversibility:     r.reversibility,
			ProposedBy:        ruleProposer,
			RecommendedAction: r.action,
			Details:           r.details(sig, match),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}

	if len(out) == 0 && g.oracle != nil {
		var err error
		out, err = g.fromOracle(ctx, sig, knowledge, frameworks, allowed)
		if err != nil {
			if errors.Is(err, domain.ErrInvariantViolation) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn("oracle hypothesis generation failed, continuing without hypotheses",
				zap.String("signal_id", sig.ID), zap.Error(err))
			out = nil
		}
	}
	return out, nil
}

func (g *HypothesisGenerator) fromOracle(ctx context.Context, sig domain.Signal, knowledge string, frameworks []domain.Framework, allowed map[domain.Framework]bool) ([]*domain.Hypothesis, error) {
	j, err := g.oracle.Judge(ctx, domain.JudgeRequest{
		Purpose: domain.PurposeHypothesisGeneration,
		Prompt:  oracle.HypothesisPrompt(sig, knowledge, frameworks),
		Context: map[string]any{"signal_id": sig.ID, "signal_type": sig.Type, "data": sig.Data},
	})
	if err != nil {
		return nil, err
	}
	hints := oracle.ParseHints(j)
	if !hints.Valid() {
		return nil, fmt.Errorf("hypothesis hints: %w", domain.ErrParseFailure)
	}

	var out []*domain.Hypothesis
	for _, item := range hints.Objects("hypotheses") {
		if len(out) == maxOracleHypotheses {
			break
		}
		name, _ := item.Text("framework")
		f := domain.Framework(strings.ToUpper(name))
		desc, ok := item.Text("description")
		if !domain.ValidFramework(string(f)) || !allowed[f] || !ok {
			g.logger.Debug("skipping oracle hypothesis", zap.String("framework", name))
			continue
		}
		details, err := domain.DecodeFrameworkDetails(f, []byte(item.Raw("details")))
		if err != nil {
			// Malformed payload: keep the hypothesis with empty details.
			details, _ = domain.DecodeFrameworkDetails(f, nil)
		}
		action, ok := item.Text("recommended_action")
		if !ok {
			action = f.DefaultAction()
		}
		h, err := domain.NewHypothesis(domain.HypothesisInput{
			ID:                newHypothesisID(f),
			Description:       desc,
			Confidence:        floatHint(item, "confidence", 0.5),
			Impact:            floatHint(item, "impact", 5),
			Urgency:           floatHint(item, "urgency", 5),
			Reversibility:     floatHint(item, "reversibility", 5),
			ProposedBy:        oracleProposer,
			RecommendedAction: action,
			Details:           details,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (r triggerRule) match(text string) (string, bool) {
	for _, kw := range r.keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

// newHypothesisID returns hyp_<framework>_<12 hex chars>, 48 random bits.
func newHypothesisID(f domain.Framework) string {
	id := uuid.New()
	return fmt.Sprintf("hyp_%s_%x", strings.ToLower(string(f)), id[:6])
}

func signalText(sig domain.Signal) string {
	parts := []string{strings.ReplaceAll(sig.Type, "_", " "), sig.Description}
	parts = append(parts, sig.Keywords...)
	return strings.ToLower(strings.Join(parts, " "))
}

func floatHint(h oracle.Hints, path string, def float64) float64 {
	if v, ok := h.Float(path); ok {
		return v
	}
	return def
}

func dataFloat(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func dataFloatOr(data map[string]any, key string, def float64) float64 {
	if v, ok := dataFloat(data, key); ok {
		return v
	}
	return def
}

func dataStringOr(data map[string]any, key, def string) string {
	if s, ok := data[key].(string); ok && s != "" {
		return s
	}
	return def
}

func dataStrings(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
