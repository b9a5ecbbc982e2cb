package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxIterations = 2
	defaultMaxConcurrent = 8
)

var (
	ErrRunInProgress = errors.New("investigation already running for signal")
	ErrRunNotFound   = errors.New("investigation not found")
)

var tracer = otel.Tracer("vigil.investigation")

// InvestigationObserver receives per-step and per-run measurements.
type InvestigationObserver interface {
	ObserveStep(step domain.Step, d time.Duration, err error)
	ObserveOutcome(outcome domain.Outcome)
	ObserveDrift(alert *domain.DriftAlert)
	SetActiveInvestigations(n int)
}

// InvestigatorDeps are the collaborators of an Investigator. Notifier and
// Observer are optional.
type InvestigatorDeps struct {
	Knowledge domain.KnowledgeStore
	Generator *HypothesisGenerator
	Gatherer  *EvidenceGatherer
	Beliefs   *BeliefUpdater
	Selector  *ActionSelector
	Executor  domain.ActionExecutor
	Analyzer  *CounterfactualAnalyzer
	Memory    *StrategicMemory
	Drift     *DriftDetector
	Evolver   *PolicyEvolver
	Policies  *PolicyService
	Runs      domain.RunStore
	Notifier  domain.Notifier
	Observer  InvestigationObserver
}

type InvestigatorConfig struct {
	MaxIterations int
	MaxConcurrent int64
	Timeout       time.Duration
}

type stepFunc func(ctx context.Context, st *domain.RunState) (domain.Step, error)

// Investigator drives signals through the investigation graph. Each run is
// keyed by its signal ID, checkpointed after every step, and resumed from the
// last checkpoint when retried.
type Investigator struct {
	deps   InvestigatorDeps
	cfg    InvestigatorConfig
	logger *zap.Logger
	steps  map[domain.Step]stepFunc

	sem *semaphore.Weighted

	mu      sync.Mutex
	running map[string]struct{}

	async sync.WaitGroup
}

func NewInvestigator(deps InvestigatorDeps, cfg InvestigatorConfig, logger *zap.Logger) *Investigator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	inv := &Investigator{
		deps:    deps,
		cfg:     cfg,
		logger:  logger,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		running: make(map[string]struct{}),
	}
	inv.steps = map[domain.Step]stepFunc{
		domain.StepLoadKnowledge:        inv.loadKnowledge,
		domain.StepClassifyFrameworks:   inv.classifyFrameworks,
		domain.StepGenerateHypotheses:   inv.generateHypotheses,
		domain.StepGatherEvidence:       inv.gatherEvidence,
		domain.StepUpdateBeliefs:        inv.updateBeliefs,
		domain.StepSelectAction:         inv.selectAction,
		domain.StepExecuteAction:        inv.executeAction,
		domain.StepCounterfactualReplay: inv.counterfactualReplay,
		domain.StepCheckDrift:           inv.checkDrift,
		domain.StepEvolvePolicy:         inv.evolvePolicy,
	}
	return inv
}

// RouteAfterBeliefUpdate is the loop gate. It gathers more evidence only
// while unconverged, under the iteration cap, and while the evidence count
// keeps growing.
func RouteAfterBeliefUpdate(st *domain.RunState, maxIterations int) domain.Route {
	if st.Converged || st.Iteration >= maxIterations {
		return domain.RouteDecide
	}
	h := st.EvidenceHistory
	if len(h) >= 2 && h[len(h)-1] <= h[len(h)-2] {
		return domain.RouteDecide
	}
	return domain.RouteGatherMore
}

func RouteAfterSelection(st *domain.RunState) domain.Route {
	switch {
	case st.NeedsHuman:
		return domain.RouteEscalate
	case st.SelectedAction != "":
		return domain.RouteExecute
	default:
		return domain.RouteSkip
	}
}

func RouteAfterDriftCheck(st *domain.RunState) domain.Route {
	if st.PolicyUpdateRecommended {
		return domain.RouteEvolve
	}
	return domain.RouteEnd
}

// Investigate runs a signal to completion. A signal with a checkpoint resumes
// from its last completed step; a finished run is returned as stored.
func (inv *Investigator) Investigate(ctx context.Context, sig domain.Signal) (*domain.RunState, error) {
	if sig.ReceivedAt.IsZero() {
		sig.ReceivedAt = time.Now().UTC()
	}
	if !inv.acquire(sig.ID) {
		return nil, ErrRunInProgress
	}
	defer inv.release(sig.ID)

	if err := inv.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer inv.sem.Release(1)

	if inv.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.cfg.Timeout)
		defer cancel()
	}

	st, err := inv.deps.Runs.Load(ctx, sig.ID)
	switch {
	case err == nil:
		if st.Done() {
			return st, nil
		}
		relinkBelief(st)
		inv.logger.Info("resuming investigation", zap.String("signal_id", sig.ID), zap.String("step", string(st.Step)))
	case errors.Is(err, store.ErrNotFound):
		policy := inv.deps.Policies.Current()
		if policy == nil {
			return nil, ErrPolicyNotLoaded
		}
		st = domain.NewRunState(sig, policy)
		inv.logger.Info("investigation started",
			zap.String("signal_id", sig.ID),
			zap.String("signal_type", sig.Type),
			zap.Int("policy_version", policy.Version))
		inv.publish(ctx, domain.EventInvestigationStarted, st, nil)
	default:
		return nil, fmt.Errorf("load run state: %w", err)
	}

	return inv.run(ctx, st)
}

// Submit starts an investigation in the background. Wait blocks until all
// submitted runs return.
func (inv *Investigator) Submit(sig domain.Signal) {
	inv.async.Add(1)
	go func() {
		defer inv.async.Done()
		if _, err := inv.Investigate(context.Background(), sig); err != nil {
			inv.logger.Warn("background investigation ended with error", zap.String("signal_id", sig.ID), zap.Error(err))
		}
	}()
}

func (inv *Investigator) Wait() {
	inv.async.Wait()
}

// Resume continues a stored, unfinished run.
func (inv *Investigator) Resume(ctx context.Context, signalID string) (*domain.RunState, error) {
	st, err := inv.Get(ctx, signalID)
	if err != nil {
		return nil, err
	}
	return inv.Investigate(ctx, st.Signal)
}

func (inv *Investigator) Get(ctx context.Context, signalID string) (*domain.RunState, error) {
	st, err := inv.deps.Runs.Load(ctx, signalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return st, nil
}

func (inv *Investigator) acquire(signalID string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, ok := inv.running[signalID]; ok {
		return false
	}
	inv.running[signalID] = struct{}{}
	if inv.deps.Observer != nil {
		inv.deps.Observer.SetActiveInvestigations(len(inv.running))
	}
	return true
}

func (inv *Investigator) release(signalID string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.running, signalID)
	if inv.deps.Observer != nil {
		inv.deps.Observer.SetActiveInvestigations(len(inv.running))
	}
}

func (inv *Investigator) run(ctx context.Context, st *domain.RunState) (*domain.RunState, error) {
	ctx, span := tracer.Start(ctx, "investigation.run",
		trace.WithAttributes(
			attribute.String("signal.id", st.SignalID),
			attribute.String("signal.type", st.Signal.Type),
		),
	)
	defer span.End()

	for !st.Done() {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context done")
			return st, err
		}

		step := st.Step
		fn, ok := inv.steps[step]
		if !ok {
			return st, inv.fail(ctx, st, step, fmt.Errorf("unknown step %q: %w", step, domain.ErrInvariantViolation))
		}

		next, err := inv.runStep(ctx, fn, st, step)
		if err != nil {
			if ctx.Err() != nil {
				// Interrupted: keep the last completed step for a retry.
				inv.checkpoint(ctx, st)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return st, err
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return st, inv.fail(ctx, st, step, err)
		}

		st.Step = next
		st.UpdatedAt = time.Now().UTC()
		inv.checkpoint(ctx, st)
	}

	span.SetAttributes(attribute.String("investigation.outcome", string(st.Outcome)))
	if inv.deps.Observer != nil {
		inv.deps.Observer.ObserveOutcome(st.Outcome)
	}
	inv.logger.Info("investigation completed",
		zap.String("signal_id", st.SignalID),
		zap.String("outcome", string(st.Outcome)),
		zap.String("action", st.SelectedAction),
		zap.Int("iterations", st.Iteration))
	inv.publish(ctx, domain.EventInvestigationCompleted, st, map[string]any{
		"outcome":   st.Outcome,
		"action":    st.SelectedAction,
		"rationale": st.ActionRationale,
	})
	return st, nil
}

func (inv *Investigator) runStep(ctx context.Context, fn stepFunc, st *domain.RunState, step domain.Step) (domain.Step, error) {
	sctx, span := tracer.Start(ctx, "investigation."+string(step),
		trace.WithAttributes(
			attribute.String("signal.id", st.SignalID),
			attribute.Int("investigation.iteration", st.Iteration),
		),
	)
	defer span.End()

	start := time.Now()
	next, err := fn(sctx, st)
	if inv.deps.Observer != nil {
		inv.deps.Observer.ObserveStep(step, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("investigation.next", string(next)))
	inv.logger.Debug("step completed",
		zap.String("signal_id", st.SignalID),
		zap.String("step", string(step)),
		zap.String("next", string(next)),
		zap.Duration("duration", time.Since(start)))
	return next, nil
}

// fail ends the run with a fatal error and returns it with the partial state.
func (inv *Investigator) fail(ctx context.Context, st *domain.RunState, step domain.Step, err error) error {
	st.Error = err.Error()
	st.Finish(domain.OutcomeFailed)
	inv.checkpoint(ctx, st)
	if inv.deps.Observer != nil {
		inv.deps.Observer.ObserveOutcome(domain.OutcomeFailed)
	}
	inv.logger.Error("investigation failed",
		zap.String("signal_id", st.SignalID),
		zap.String("step", string(step)),
		zap.Error(err))
	inv.publish(ctx, domain.EventInvestigationFailed, st, map[string]any{"step": step, "error": err.Error()})
	return &domain.InvestigationError{SignalID: st.SignalID, Step: step, Err: err, State: st}
}

func (inv *Investigator) checkpoint(ctx context.Context, st *domain.RunState) {
	if err := inv.deps.Runs.Save(context.WithoutCancel(ctx), st); err != nil {
		inv.logger.Warn("failed to checkpoint investigation",
			zap.String("signal_id", st.SignalID),
			zap.String("step", string(st.Step)),
			zap.Error(err))
	}
}

func (inv *Investigator) publish(ctx context.Context, t domain.EventType, st *domain.RunState, payload map[string]any) {
	if inv.deps.Notifier == nil {
		return
	}
	e := domain.Event{Type: t, SignalID: st.SignalID, Payload: payload, At: time.Now().UTC()}
	if err := inv.deps.Notifier.Publish(context.WithoutCancel(ctx), e); err != nil {
		inv.logger.Warn("failed to publish event", zap.String("type", string(t)), zap.Error(err))
	}
}

// relinkBelief points a restored belief state at the run's own hypotheses.
func relinkBelief(st *domain.RunState) {
	if st.Belief == nil {
		return
	}
	st.Belief.Hypotheses = st.Hypotheses
}

func (inv *Investigator) loadKnowledge(ctx context.Context, st *domain.RunState) (domain.Step, error) {
	if inv.deps.Knowledge != nil {
		text, err := inv.deps.Knowledge.GetContextForSignal(ctx, st.Signal.Type, st.Signal.Keywords)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			inv.logger.Warn("knowledge lookup failed, continuing without context",
				zap.String("signal_id", st.SignalID), zap.Error(err))
		}
		st.KnowledgeContext = text
	}
	return domain.StepClassifyFrameworks, nil
}

func (inv *Investigator) classifyFrameworks(ctx context.Context, st *domain.RunState) (domain.Step, error) {
	st.Frameworks = inv.deps.Generator.Classify(st.Signal, st.Policy)
	return domain.StepGenerateHypotheses, nil
}

// generateHypotheses runs once per signal. Framework selections reach the
// drift detector only after the merge, so a retried step that already holds
// hypotheses records nothing again.
func (inv *Investigator) generateHypotheses(ctx context.Context, st *domain.RunState) (domain.Step, error) {
	if len(st.Hypotheses) == 0 {
		hs, err := inv.deps.Generator.Generate(ctx, st.Signal, st.KnowledgeContext, st.Frameworks)
		if err != nil {
			return "", err
		}
		for _, h := range hs {
			if st.Hypothesis(h.ID) == nil {
				st.Hypotheses = append(st.Hypotheses, h)
				inv.deps.Drift.Record(h.Framework())
			}
		}
	}
	st.Belief = domain.NewBeliefState("belief_"+st.SignalID, st.Signal)
	st.Belief.Hypotheses = st.Hypotheses
	return domain.StepGatherEvidence, nil
}

func (inv *Investigator) gatherEvidence(ctx context.Context, st *domain.RunState) (domain.Step, error) {
	evidence, err := inv.deps.Gatherer.Gather(ctx, st.Signal, st.KnowledgeContext, st.Hypotheses, st.HasEvidence)
	if err != nil {
		return "", err
	}
	for _, ev := range evidence {
		h := st.Hypothesis(ev.HypothesisID)
		if h == nil {
			continue
		}
		added, err := h.AddEvidence(ev)
		if err != nil {
			return "", err
		}
		if added {
			st.Evidence = append(st.Evidence, ev)
		}
	}
	return domain.StepUpdateBeliefs, nil
}

func (inv *Investigator) updateBeliefs(ctx context.Context, st *domain.RunState) (domain.Step, error) {
	if st.Belief == nil {
		st.Belief = domain.NewBeliefState("belief_"+st.SignalID, st.Signal)
	}
	st.Belief.Hypotheses = st.Hypotheses
	if err := inv.deps.Beliefs.Update(st.Belief, st.Policy); err != nil {
		return "", err
	}
	st.Converged = st.Belief.Converged
	st.EvidenceHistory = append(st.EvidenceHistory, len(st.Evidence))

	if RouteAfterBeliefUpdate(st, inv.cfg.MaxIterations) == domain.RouteGatherMore {
		st.Iteration++
		return domain.StepGatherEvidence, nil
	}
	return domain.StepSelectAction, nil
}

func (inv *Investigator) selectAction(ctx context.Context, st *domain.RunState) (domain.Step, error) {
	sel := inv.deps.Selector.Select(ctx, st.Signal, st.Belief, st.Policy)
	st.SelectedAction = sel.Action
	st.NeedsHuman = sel.NeedsHuman
	st.ActionRationale = sel.Rationale

	switch RouteAfterSelection(st) {
	case domain.RouteExecute:
		return domain.StepExecuteAction, nil
	case domain.RouteEscalate:
		inv.logger.Info("investigation escalated",
			zap.String("signal_id", st.SignalID),
			zap.String("proposed_action", st.SelectedAction),
			zap.String("rationale", st.ActionRationale))
		inv.publish(ctx, domain.EventEscalation, st, map[string]any{
			"proposed_action":      st.SelectedAction,
			"rationale":            st.ActionRationale,
			"leading_hypothesis":   st.Belief.LeadingHypothesisID,
			"confidence_in_leader": st.Belief.ConfidenceInLeader,
		})
		st.Finish(domain.OutcomeEscalated)
	default:
		st.Finish(domain.OutcomeSkipped)
	}
	return domain.StepEnd, nil
}

func (inv *Investigator) executeAction(ctx context.Context, st *domain.RunState) (domain.Step, error) {
	params := map[string]any{
		"signal_id": st.SignalID,
		"rationale": st.ActionRationale,
	}
	if leader := st.Belief.Leader(); leader != nil {
		params["hypothesis_id"] = leader.ID
		params["framework"] = leader.Framework()
	}

	res, err := inv.deps.Executor.Execute(ctx, st.SelectedAction, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		inv.logger.Warn("action execution failed",
			zap.String("signal_id", st.SignalID),
			zap.String("action", st.SelectedAction),
			zap.Error(err))
		res = &domain.ActionResult{
			Action:     st.SelectedAction,
			Status:     domain.ActionStatusFailed,
			Detail:     err.Error(),
			ExecutedAt: time.Now().UTC(),
		}
	}
	st.ActionResult = res
	if err := st.Belief.Resolve(st.SelectedAction); err != nil && !errors.Is(err, domain.ErrBeliefResolved) {
		return "", err
	}
	return domain.StepCounterfactualReplay, nil
}

func (inv *Investigator) counterfactualReplay(ctx context.Context, st *domain.RunState) (domain.Step, error) {
	if r := inv.deps.Analyzer.Analyze(ctx, st); r != nil {
		if err := inv.deps.Memory.Record(ctx, r); err != nil {
			inv.logger.Warn("failed to record replay", zap.String("signal_id", st.SignalID), zap.Error(err))
		}
		st.Counterfactual = r
	}
	return domain.StepCheckDrift, nil
}

func (inv *Investigator) checkDrift(ctx context.Context, st *domain.RunState) (domain.Step, error) {
	st.DriftAlert = inv.deps.Drift.DetectDrift()
	if st.DriftAlert != nil {
		if inv.deps.Observer != nil {
			inv.deps.Observer.ObserveDrift(st.DriftAlert)
		}
		inv.publish(ctx, domain.EventDriftAlert, st, map[string]any{
			"framework":      st.DriftAlert.Framework,
			"kind":           st.DriftAlert.Kind,
			"actual_rate":    st.DriftAlert.ActualRate,
			"expected_rate":  st.DriftAlert.ExpectedRate,
			"recommendation": st.DriftAlert.Recommendation,
		})
	}
	st.PolicyUpdateRecommended = st.DriftAlert != nil ||
		(st.Counterfactual != nil && st.Counterfactual.ShouldUpdatePolicy)

	if RouteAfterDriftCheck(st) == domain.RouteEvolve {
		return domain.StepEvolvePolicy, nil
	}
	st.Finish(domain.OutcomeConvergedAction)
	return domain.StepEnd, nil
}

// evolvePolicy evolves the active policy when memory warrants it. Failures
// leave the policy unchanged and do not fail the run.
func (inv *Investigator) evolvePolicy(ctx context.Context, st *domain.RunState) (domain.Step, error) {
	defer st.Finish(domain.OutcomeConvergedAction)

	ok, err := inv.deps.Evolver.ShouldEvolve(ctx)
	if err != nil {
		inv.logger.Warn("evolution check failed", zap.String("signal_id", st.SignalID), zap.Error(err))
		return domain.StepEnd, nil
	}
	if !ok {
		inv.logger.Debug("policy update recommended but memory below evolution criteria", zap.String("signal_id", st.SignalID))
		return domain.StepEnd, nil
	}

	rec, err := inv.deps.Evolver.EvolveAndActivate(ctx, st.DriftAlert)
	if err != nil {
		inv.logger.Warn("policy evolution failed, keeping active policy", zap.String("signal_id", st.SignalID), zap.Error(err))
		return domain.StepEnd, nil
	}
	if rec != nil {
		st.EvolvedPolicyVersion = rec.ToVersion
		inv.publish(ctx, domain.EventPolicyEvolved, st, map[string]any{
			"from_version": rec.FromVersion,
			"to_version":   rec.ToVersion,
			"reason":       rec.Reason,
			"changes":      rec.Changes,
		})
	}
	return domain.StepEnd, nil
}
