package domain

// Framework names the analytic lens a hypothesis was produced under.
type Framework string

const (
	FrameworkRCA            Framework = "RCA"
	FrameworkCounterfactual Framework = "COUNTERFACTUAL"
	FrameworkFMEA           Framework = "FMEA"
	FrameworkTOC            Framework = "TOC"
	FrameworkHACCP          Framework = "HACCP"
)

// Frameworks is the fixed iteration order used wherever results must be
// deterministic (drift checks, weight normalization, prompts).
var Frameworks = []Framework{
	FrameworkRCA,
	FrameworkCounterfactual,
	FrameworkFMEA,
	FrameworkTOC,
	FrameworkHACCP,
}

func ValidFramework(s string) bool {
	switch Framework(s) {
	case FrameworkRCA, FrameworkCounterfactual, FrameworkFMEA, FrameworkTOC, FrameworkHACCP:
		return true
	}
	return false
}

// DefaultFrameworkWeights is the expected framework distribution for a
// freshly seeded policy. Values sum to 1.
func DefaultFrameworkWeights() map[Framework]float64 {
	return map[Framework]float64{
		FrameworkRCA:            0.30,
		FrameworkCounterfactual: 0.15,
		FrameworkFMEA:           0.20,
		FrameworkTOC:            0.20,
		FrameworkHACCP:          0.15,
	}
}

// DefaultAction is the action proposed for a framework's hypothesis when
// neither a rule nor the oracle supplied one.
func (f Framework) DefaultAction() string {
	switch f {
	case FrameworkRCA:
		return "open_root_cause_ticket"
	case FrameworkCounterfactual:
		return "apply_proposed_intervention"
	case FrameworkFMEA:
		return "schedule_preventive_maintenance"
	case FrameworkTOC:
		return "rebalance_line_capacity"
	case FrameworkHACCP:
		return "quarantine_affected_batch"
	default:
		return "notify_operator"
	}
}
