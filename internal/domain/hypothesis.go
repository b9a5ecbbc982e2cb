package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// CauseCategory classifies the root cause proposed by an RCA hypothesis.
type CauseCategory string

const (
	CauseMechanical    CauseCategory = "mechanical"
	CauseProcess       CauseCategory = "process"
	CauseHuman         CauseCategory = "human"
	CauseEnvironmental CauseCategory = "environmental"
)

func ValidCauseCategory(s string) bool {
	switch CauseCategory(s) {
	case CauseMechanical, CauseProcess, CauseHuman, CauseEnvironmental:
		return true
	}
	return false
}

// UrgentComplianceWindow is the time-to-noncompliance below which a HACCP
// hypothesis is considered urgent.
const UrgentComplianceWindow = 15

// minReversibility keeps DecisionPriority finite.
const minReversibility = 0.1

// FrameworkDetails is the framework-specific payload of a hypothesis. The set
// of implementations is closed: RCADetails, CounterfactualDetails,
// FMEADetails, TOCDetails and HACCPDetails.
type FrameworkDetails interface {
	Framework() Framework
	frameworkDetails()
}

type RCADetails struct {
	CauseCategory  CauseCategory `json:"cause_category"`
	ExpectedEffect string        `json:"expected_effect"`
}

type CounterfactualDetails struct {
	Action           string  `json:"action"`
	PredictedOutcome string  `json:"predicted_outcome"`
	RiskDelta        float64 `json:"risk_delta"`
	ProductionDelta  float64 `json:"production_delta"`
}

type FMEADetails struct {
	FailureMode   string `json:"failure_mode"`
	Severity      int    `json:"severity"`
	Occurrence    int    `json:"occurrence"`
	Detectability int    `json:"detectability"`
}

// RPN is the risk priority number, severity × occurrence × detectability.
func (d FMEADetails) RPN() int {
	return clampRating(d.Severity) * clampRating(d.Occurrence) * clampRating(d.Detectability)
}

type TOCDetails struct {
	Constraint         string   `json:"constraint"`
	ThroughputImpact   float64  `json:"throughput_impact"`
	TimeHorizonMinutes int      `json:"time_horizon_minutes"`
	DownstreamLines    []string `json:"downstream_lines"`
}

// BlastRadius is the number of downstream lines starved by the constraint.
func (d TOCDetails) BlastRadius() int {
	return len(d.DownstreamLines)
}

type HACCPDetails struct {
	Regulation                 string  `json:"regulation"`
	ViolationLikelihood        float64 `json:"violation_likelihood"`
	TimeToNoncomplianceMinutes int     `json:"time_to_noncompliance_minutes"`
}

func (d HACCPDetails) IsUrgent() bool {
	return d.TimeToNoncomplianceMinutes < UrgentComplianceWindow
}

func (RCADetails) Framework() Framework            { return FrameworkRCA }
func (CounterfactualDetails) Framework() Framework { return FrameworkCounterfactual }
func (FMEADetails) Framework() Framework           { return FrameworkFMEA }
func (TOCDetails) Framework() Framework            { return FrameworkTOC }
func (HACCPDetails) Framework() Framework          { return FrameworkHACCP }

func (RCADetails) frameworkDetails()            {}
func (CounterfactualDetails) frameworkDetails() {}
func (FMEADetails) frameworkDetails()           {}
func (TOCDetails) frameworkDetails()            {}
func (HACCPDetails) frameworkDetails()          {}

func clampRating(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

func normalizeDetails(d FrameworkDetails) FrameworkDetails {
	switch v := d.(type) {
	case RCADetails:
		if !ValidCauseCategory(string(v.CauseCategory)) {
			v.CauseCategory = CauseProcess
		}
		return v
	case FMEADetails:
		v.Severity = clampRating(v.Severity)
		v.Occurrence = clampRating(v.Occurrence)
		v.Detectability = clampRating(v.Detectability)
		return v
	case HACCPDetails:
		v.ViolationLikelihood = clampUnit(v.ViolationLikelihood)
		return v
	case TOCDetails:
		v.DownstreamLines = append([]string(nil), v.DownstreamLines...)
		return v
	}
	return d
}

// Hypothesis is a candidate explanation for a signal. The framework payload
// is fixed at construction and evidence only ever grows.
type Hypothesis struct {
	ID                string
	Description       string
	InitialConfidence float64
	CurrentConfidence float64
	Impact            float64
	Urgency           float64
	Reversibility     float64
	ProposedBy        string
	TargetAgent       string
	RecommendedAction string
	CreatedAt         time.Time
	LastUpdated       time.Time

	details  FrameworkDetails
	evidence []Evidence
	folded   int
}

// HypothesisInput carries the fields needed to construct a hypothesis.
type HypothesisInput struct {
	ID                string
	Description       string
	Confidence        float64
	Impact            float64
	Urgency           float64
	Reversibility     float64
	ProposedBy        string
	TargetAgent       string
	RecommendedAction string
	Details           FrameworkDetails
}

// NewHypothesis validates the input and clamps numeric fields into range.
func NewHypothesis(in HypothesisInput) (*Hypothesis, error) {
	if in.Details == nil {
		return nil, fmt.Errorf("hypothesis %q: %w", in.ID, ErrUnknownFramework)
	}
	if in.ID == "" {
		return nil, fmt.Errorf("hypothesis id is required: %w", ErrInvariantViolation)
	}
	now := time.Now().UTC()
	c := clampUnit(in.Confidence)
	return &Hypothesis{
		ID:                in.ID,
		Description:       in.Description,
		InitialConfidence: c,
		CurrentConfidence: c,
		Impact:            clampScale(in.Impact),
		Urgency:           clampScale(in.Urgency),
		Reversibility:     clampScale(in.Reversibility),
		ProposedBy:        in.ProposedBy,
		TargetAgent:       in.TargetAgent,
		RecommendedAction: in.RecommendedAction,
		CreatedAt:         now,
		LastUpdated:       now,
		details:           normalizeDetails(in.Details),
	}, nil
}

func (h *Hypothesis) Framework() Framework {
	if h.details == nil {
		return ""
	}
	return h.details.Framework()
}

func (h *Hypothesis) Details() FrameworkDetails {
	return h.details
}

// DecisionPriority is confidence × impact × urgency scaled by the inverse of
// reversibility. Reversibility is floored at 0.1.
func (h *Hypothesis) DecisionPriority() float64 {
	rev := math.Max(h.Reversibility, minReversibility)
	p := h.CurrentConfidence * h.Impact * h.Urgency / rev
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return 0
	}
	return p
}

// Evidence returns a copy of the evidence attached so far.
func (h *Hypothesis) Evidence() []Evidence {
	return append([]Evidence(nil), h.evidence...)
}

func (h *Hypothesis) EvidenceCount() int {
	return len(h.evidence)
}

// HasEvidence reports whether an evidence item with the given ID is attached.
func (h *Hypothesis) HasEvidence(id string) bool {
	for _, e := range h.evidence {
		if e.ID == id {
			return true
		}
	}
	return false
}

// AddEvidence appends ev. It returns false when evidence with the same ID is
// already attached.
func (h *Hypothesis) AddEvidence(ev Evidence) (bool, error) {
	if ev.HypothesisID != h.ID {
		return false, fmt.Errorf("evidence %s targets %s, not %s: %w", ev.ID, ev.HypothesisID, h.ID, ErrInvariantViolation)
	}
	if h.HasEvidence(ev.ID) {
		return false, nil
	}
	h.evidence = append(h.evidence, ev)
	return true, nil
}

// ApplyPending folds every evidence item not yet reflected in
// CurrentConfidence through fold and returns how many were folded. Calling it
// again without new evidence changes nothing.
func (h *Hypothesis) ApplyPending(fold func(confidence float64, ev Evidence) float64) int {
	pending := h.evidence[h.folded:]
	if len(pending) == 0 {
		return 0
	}
	c := h.CurrentConfidence
	for _, ev := range pending {
		c = clampUnit(fold(c, ev))
	}
	h.CurrentConfidence = c
	h.folded = len(h.evidence)
	h.LastUpdated = time.Now().UTC()
	return len(pending)
}

func (h *Hypothesis) PendingEvidence() int {
	return len(h.evidence) - h.folded
}

// Clone returns a deep copy that shares no mutable state with h.
func (h *Hypothesis) Clone() *Hypothesis {
	c := *h
	c.evidence = append([]Evidence(nil), h.evidence...)
	if h.details != nil {
		c.details = normalizeDetails(h.details)
	}
	return &c
}

type hypothesisJSON struct {
	ID                string          `json:"id"`
	Framework         Framework       `json:"framework"`
	Details           json.RawMessage `json:"details"`
	Description       string          `json:"description"`
	InitialConfidence float64         `json:"initial_confidence"`
	CurrentConfidence float64         `json:"current_confidence"`
	Impact            float64         `json:"impact"`
	Urgency           float64         `json:"urgency"`
	Reversibility     float64         `json:"reversibility"`
	DecisionPriority  float64         `json:"decision_priority"`
	ProposedBy        string          `json:"proposed_by"`
	TargetAgent       string          `json:"target_agent,omitempty"`
	RecommendedAction string          `json:"recommended_action,omitempty"`
	Evidence          []Evidence      `json:"evidence"`
	FoldedEvidence    int             `json:"folded_evidence"`
	CreatedAt         time.Time       `json:"created_at"`
	LastUpdated       time.Time       `json:"last_updated"`
}

func (h Hypothesis) MarshalJSON() ([]byte, error) {
	if h.details == nil {
		return nil, fmt.Errorf("hypothesis %q: %w", h.ID, ErrUnknownFramework)
	}
	details, err := json.Marshal(h.details)
	if err != nil {
		return nil, err
	}
	ev := h.evidence
	if ev == nil {
		ev = []Evidence{}
	}
	return json.Marshal(hypothesisJSON{
		ID:                h.ID,
		Framework:         h.details.Framework(),
		Details:           details,
		Description:       h.Description,
		InitialConfidence: h.InitialConfidence,
		CurrentConfidence: h.CurrentConfidence,
		Impact:            h.Impact,
		Urgency:           h.Urgency,
		Reversibility:     h.Reversibility,
		DecisionPriority:  h.DecisionPriority(),
		ProposedBy:        h.ProposedBy,
		TargetAgent:       h.TargetAgent,
		RecommendedAction: h.RecommendedAction,
		Evidence:          ev,
		FoldedEvidence:    h.folded,
		CreatedAt:         h.CreatedAt,
		LastUpdated:       h.LastUpdated,
	})
}

func (h *Hypothesis) UnmarshalJSON(data []byte) error {
	var raw hypothesisJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	details, err := DecodeFrameworkDetails(raw.Framework, raw.Details)
	if err != nil {
		return fmt.Errorf("hypothesis %q: %w", raw.ID, err)
	}
	if raw.FoldedEvidence < 0 || raw.FoldedEvidence > len(raw.Evidence) {
		return fmt.Errorf("hypothesis %q folded evidence %d out of range: %w", raw.ID, raw.FoldedEvidence, ErrInvariantViolation)
	}
	*h = Hypothesis{
		ID:                raw.ID,
		Description:       raw.Description,
		InitialConfidence: raw.InitialConfidence,
		CurrentConfidence: raw.CurrentConfidence,
		Impact:            raw.Impact,
		Urgency:           raw.Urgency,
		Reversibility:     raw.Reversibility,
		ProposedBy:        raw.ProposedBy,
		TargetAgent:       raw.TargetAgent,
		RecommendedAction: raw.RecommendedAction,
		CreatedAt:         raw.CreatedAt,
		LastUpdated:       raw.LastUpdated,
		details:           details,
		evidence:          raw.Evidence,
		folded:            raw.FoldedEvidence,
	}
	return nil
}

// DecodeFrameworkDetails decodes a payload for the given framework tag. An
// unrecognised tag yields ErrUnknownFramework.
func DecodeFrameworkDetails(f Framework, data []byte) (FrameworkDetails, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	switch f {
	case FrameworkRCA:
		var d RCADetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return normalizeDetails(d), nil
	case FrameworkCounterfactual:
		var d CounterfactualDetails
		err := json.Unmarshal(data, &d)
		return d, err
	case FrameworkFMEA:
		var d FMEADetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return normalizeDetails(d), nil
	case FrameworkTOC:
		var d TOCDetails
		err := json.Unmarshal(data, &d)
		return d, err
	case FrameworkHACCP:
		var d HACCPDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return normalizeDetails(d), nil
	default:
		return nil, fmt.Errorf("framework %q: %w", f, ErrUnknownFramework)
	}
}
