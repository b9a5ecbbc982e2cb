package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/oracle"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultEvolutionThreshold = 25

	suboptimalRateTrigger  = 0.30
	updateCandidateTrigger = 5

	evolutionRecentReplays = 30
	evolutionWorstReplays  = 10

	minThreshold = 0.05
	maxThreshold = 0.99
	thresholdGap = 0.05
)

// PolicyEvolver proposes new policy versions from strategic memory.
type PolicyEvolver struct {
	oracle    domain.Oracle
	memory    *StrategicMemory
	policies  *PolicyService
	threshold int
	logger    *zap.Logger

	mu sync.Mutex
}

func NewPolicyEvolver(o domain.Oracle, memory *StrategicMemory, policies *PolicyService, logger *zap.Logger) *PolicyEvolver {
	return &PolicyEvolver{
		oracle:    o,
		memory:    memory,
		policies:  policies,
		threshold: DefaultEvolutionThreshold,
		logger:    logger,
	}
}

func (e *PolicyEvolver) SetThreshold(n int) {
	if n > 0 {
		e.threshold = n
	}
}

// ShouldEvolve is false below the replay threshold, and otherwise true when
// more than 30% of replays were suboptimal or at least five ask for a policy
// update.
func (e *PolicyEvolver) ShouldEvolve(ctx context.Context) (bool, error) {
	stats, err := e.memory.Stats(ctx)
	if err != nil {
		return false, err
	}
	return shouldEvolve(stats, e.threshold), nil
}

func shouldEvolve(stats domain.StrategicMemoryStats, threshold int) bool {
	if stats.Total < threshold {
		return false
	}
	return stats.SuboptimalRate() > suboptimalRateTrigger || stats.UpdateCandidateCount >= updateCandidateTrigger
}

// Evolve asks the oracle for a revision of policy. It returns a new version
// and the list of changes, or the incoming policy and no changes when the
// oracle fails or suggests nothing applicable. policy is never modified.
func (e *PolicyEvolver) Evolve(ctx context.Context, policy *domain.DecisionPolicy, drift *domain.DriftAlert) (*domain.DecisionPolicy, []string, error) {
	stats, err := e.memory.Stats(ctx)
	if err != nil {
		return policy, nil, err
	}
	recent, err := e.memory.Recent(ctx, evolutionRecentReplays)
	if err != nil {
		return policy, nil, err
	}
	worst, err := e.memory.Worst(ctx, evolutionWorstReplays)
	if err != nil {
		return policy, nil, err
	}

	if e.oracle == nil {
		return policy, nil, nil
	}
	j, err := e.oracle.Judge(ctx, domain.JudgeRequest{
		Purpose: domain.PurposePolicyEvolution,
		Prompt:  oracle.EvolutionPrompt(policy, stats, drift, recent, worst),
		Context: map[string]any{"policy_version": policy.Version, "replays": stats.Total},
	})
	if err != nil {
		e.logger.Warn("policy evolution oracle failed, keeping policy", zap.Int("version", policy.Version), zap.Error(err))
		return policy, nil, nil
	}
	hints := oracle.ParseHints(j)
	if !hints.Valid() {
		e.logger.Warn("policy evolution output unparseable, keeping policy",
			zap.Int("version", policy.Version), zap.Error(domain.ErrParseFailure))
		return policy, nil, nil
	}

	next, changes := applySuggestion(policy, hints)
	if len(changes) == 0 {
		return policy, nil, nil
	}

	next.ID = uuid.New()
	next.Version = policy.Version + 1
	parent := policy.ID
	next.EvolvedFrom = &parent
	next.IncidentsEvaluated = stats.Total
	next.AccuracyRate = stats.AccuracyRate
	for i := range next.ReasoningArtifacts {
		next.ReasoningArtifacts[i].UsageCount = stats.Total
		next.ReasoningArtifacts[i].SuccessRate = stats.AccuracyRate
	}
	next.CreatedAt = time.Now().UTC()
	next.EvolutionReason, _ = hints.Text("reason")
	if next.EvolutionReason == "" {
		next.EvolutionReason = fmt.Sprintf("accuracy %.2f over %d replays", stats.AccuracyRate, stats.Total)
	}

	if err := next.Validate(); err != nil {
		e.logger.Warn("evolved policy invalid, keeping policy", zap.Int("version", policy.Version), zap.Error(err))
		return policy, nil, nil
	}
	return next, changes, nil
}

// applySuggestion applies the usable parts of an evolution suggestion to a
// copy of policy.
func applySuggestion(policy *domain.DecisionPolicy, hints oracle.Hints) (*domain.DecisionPolicy, []string) {
	next := policy.Clone()
	var changes []string

	act, esc := next.ConfidenceThresholdAct, next.ConfidenceThresholdEscalate
	if d, ok := hints.Float("threshold_deltas.act"); ok && isFinite(d) {
		act = clampThreshold(act + d)
	}
	if d, ok := hints.Float("threshold_deltas.escalate"); ok && isFinite(d) {
		esc = clampThreshold(esc + d)
	}
	if esc >= act {
		esc = act - thresholdGap
		if esc < minThreshold {
			esc = minThreshold
			act = minThreshold + thresholdGap
		}
	}
	if act != next.ConfidenceThresholdAct {
		changes = append(changes, fmt.Sprintf("act threshold %.3f -> %.3f", next.ConfidenceThresholdAct, act))
		next.ConfidenceThresholdAct = act
	}
	if esc != next.ConfidenceThresholdEscalate {
		changes = append(changes, fmt.Sprintf("escalate threshold %.3f -> %.3f", next.ConfidenceThresholdEscalate, esc))
		next.ConfidenceThresholdEscalate = esc
	}

	weightDeltas := hints.Numbers("framework_weight_deltas")
	touched := false
	for _, f := range domain.Frameworks {
		d, ok := weightDeltas[string(f)]
		if !ok || d == 0 || !isFinite(d) {
			continue
		}
		next.FrameworkWeights[f] += d
		touched = true
	}
	if touched {
		next.NormalizeWeights()
		for _, f := range domain.Frameworks {
			if math.Abs(next.FrameworkWeights[f]-policy.FrameworkWeights[f]) > 1e-9 {
				changes = append(changes, fmt.Sprintf("%s weight %.3f -> %.3f", f, policy.FrameworkWeights[f], next.FrameworkWeights[f]))
			}
		}
	}

	for _, insight := range hints.Strings("new_insights") {
		next.PolicyInsights = append(next.PolicyInsights, insight)
		changes = append(changes, "insight: "+insight)
	}

	var criteria []domain.DiscoveredCriterion
	now := time.Now().UTC()
	for _, c := range hints.Objects("new_criteria") {
		name, ok := c.Text("name")
		if !ok {
			continue
		}
		desc, _ := c.Text("description")
		w := floatHint(c, "weight", 0.1)
		if !isFinite(w) {
			continue
		}
		crit := domain.DiscoveredCriterion{
			Name:           strings.ToLower(name),
			Description:    desc,
			Weight:         math.Max(0, math.Min(1, w)),
			DiscoveredFrom: fmt.Sprintf("policy v%d evolution", policy.Version),
			DiscoveredAt:   now,
		}
		if t, ok := c.Float("threshold"); ok && isFinite(t) {
			crit.Threshold = &t
		}
		criteria = append(criteria, crit)
	}
	if len(criteria) > 0 {
		if len(next.ReasoningArtifacts) == 0 {
			next.ReasoningArtifacts = []domain.ReasoningArtifact{{
				ID:        "evolved-criteria",
				Name:      "Evolved criteria",
				Version:   domain.ArtifactVersion{Major: 1},
				CreatedAt: now,
			}}
		}
		first := next.ReasoningArtifacts[0]
		reason, _ := hints.Text("reason")
		if reason == "" {
			reason = fmt.Sprintf("policy v%d evolution", policy.Version)
		}
		evolved := first.Evolve(criteria, false, reason, now)
		next.ReasoningArtifacts[0] = evolved
		seen := make(map[string]bool, len(criteria))
		for _, c := range criteria {
			verb := "added to"
			if first.Criterion(c.Name) >= 0 || seen[c.Name] {
				verb = "revalidated in"
			}
			seen[c.Name] = true
			changes = append(changes, fmt.Sprintf("criterion %s %s %s v%s", c.Name, verb, first.ID, evolved.Version))
		}
	}

	return next, changes
}

// EvolveAndActivate evolves the active policy and makes the result active.
// It returns nil when nothing changed.
func (e *PolicyEvolver) EvolveAndActivate(ctx context.Context, drift *domain.DriftAlert) (*domain.PolicyEvolutionRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.policies.Current()
	if current == nil {
		return nil, ErrPolicyNotLoaded
	}
	next, changes, err := e.Evolve(ctx, current, drift)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, nil
	}
	if err := e.policies.Activate(ctx, next); err != nil {
		return nil, err
	}

	rec := &domain.PolicyEvolutionRecord{
		ID:           uuid.New(),
		FromPolicyID: current.ID,
		FromVersion:  current.Version,
		ToPolicyID:   next.ID,
		ToVersion:    next.Version,
		Reason:       next.EvolutionReason,
		Changes:      changes,
		ReplaysSeen:  next.IncidentsEvaluated,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.memory.RecordEvolution(ctx, rec); err != nil {
		e.logger.Warn("failed to log policy evolution", zap.Int("to_version", next.Version), zap.Error(err))
	}
	e.logger.Info("decision policy evolved",
		zap.Int("from_version", current.Version),
		zap.Int("to_version", next.Version),
		zap.Strings("changes", changes))
	return rec, nil
}

func clampThreshold(v float64) float64 {
	return math.Max(minThreshold, math.Min(maxThreshold, v))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
