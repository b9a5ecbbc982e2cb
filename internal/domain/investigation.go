package domain

import "time"

// Step names a node of the investigation graph.
type Step string

const (
	StepLoadKnowledge        Step = "load_knowledge"
	StepClassifyFrameworks   Step = "classify_frameworks"
	StepGenerateHypotheses   Step = "generate_hypotheses"
	StepGatherEvidence       Step = "gather_evidence"
	StepUpdateBeliefs        Step = "update_beliefs"
	StepSelectAction         Step = "select_action"
	StepExecuteAction        Step = "execute_action"
	StepCounterfactualReplay Step = "counterfactual_replay"
	StepCheckDrift           Step = "check_drift"
	StepEvolvePolicy         Step = "evolve_policy"
	StepEnd                  Step = "end"
)

// Route is the label of an edge leaving a conditional step.
type Route string

const (
	RouteGatherMore Route = "gather_more"
	RouteDecide     Route = "decide"
	RouteExecute    Route = "execute"
	RouteEscalate   Route = "escalate"
	RouteSkip       Route = "skip"
	RouteEvolve     Route = "evolve"
	RouteEnd        Route = "end"
)

type Outcome string

const (
	OutcomeConvergedAction Outcome = "converged_action"
	OutcomeEscalated       Outcome = "escalated"
	OutcomeSkipped         Outcome = "skipped"
	OutcomeFailed          Outcome = "failed"
)

// RunState is the state carried through one investigation. Hypotheses and
// evidence are append-only.
type RunState struct {
	SignalID                string                `json:"signal_id"`
	Signal                  Signal                `json:"signal"`
	Step                    Step                  `json:"step"`
	KnowledgeContext        string                `json:"knowledge_context"`
	Frameworks              []Framework           `json:"frameworks"`
	Hypotheses              []*Hypothesis         `json:"hypotheses"`
	Evidence                []Evidence            `json:"evidence"`
	EvidenceHistory         []int                 `json:"evidence_history"`
	Belief                  *BeliefState          `json:"belief_state,omitempty"`
	Policy                  *DecisionPolicy       `json:"decision_policy,omitempty"`
	SelectedAction          string                `json:"selected_action,omitempty"`
	NeedsHuman              bool                  `json:"needs_human"`
	ActionRationale         string                `json:"action_rationale,omitempty"`
	ActionResult            *ActionResult         `json:"action_result,omitempty"`
	Counterfactual          *CounterfactualReplay `json:"counterfactual,omitempty"`
	DriftAlert              *DriftAlert           `json:"drift_alert,omitempty"`
	PolicyUpdateRecommended bool                  `json:"policy_update_recommended"`
	EvolvedPolicyVersion    int                   `json:"evolved_policy_version,omitempty"`
	Iteration               int                   `json:"iteration"`
	Converged               bool                  `json:"converged"`
	Outcome                 Outcome               `json:"outcome,omitempty"`
	Error                   string                `json:"error,omitempty"`
	StartedAt               time.Time             `json:"started_at"`
	UpdatedAt               time.Time             `json:"updated_at"`
	CompletedAt             *time.Time            `json:"completed_at,omitempty"`
}

func NewRunState(signal Signal, policy *DecisionPolicy) *RunState {
	now := time.Now().UTC()
	return &RunState{
		SignalID:  signal.ID,
		Signal:    signal,
		Step:      StepLoadKnowledge,
		Policy:    policy,
		StartedAt: now,
		UpdatedAt: now,
	}
}

func (s *RunState) Done() bool {
	return s.Step == StepEnd
}

// Hypothesis looks up a run hypothesis by ID.
func (s *RunState) Hypothesis(id string) *Hypothesis {
	for _, h := range s.Hypotheses {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// HasEvidence reports whether an evidence ID is already held by the run.
func (s *RunState) HasEvidence(id string) bool {
	for _, e := range s.Evidence {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Finish moves the run to its terminal step.
func (s *RunState) Finish(outcome Outcome) {
	now := time.Now().UTC()
	s.Outcome = outcome
	s.Step = StepEnd
	s.CompletedAt = &now
	s.UpdatedAt = now
}
