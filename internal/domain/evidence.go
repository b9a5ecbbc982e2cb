package domain

import "time"

// Evidence is an observation that supports or refutes exactly one hypothesis.
// Values are never mutated after construction.
type Evidence struct {
	ID           string         `json:"id"`
	HypothesisID string         `json:"hypothesis_id"`
	Source       string         `json:"source"`
	Data         map[string]any `json:"data,omitempty"`
	Supports     bool           `json:"supports"`
	Strength     float64        `json:"strength"`
	Confidence   float64        `json:"confidence"`
	GatheredBy   string         `json:"gathered_by"`
	GatheredAt   time.Time      `json:"gathered_at"`
}

// NewEvidence builds an evidence item with strength and confidence clamped
// to [0,1].
func NewEvidence(id, hypothesisID, source, gatheredBy string, supports bool, strength, confidence float64, data map[string]any) Evidence {
	return Evidence{
		ID:           id,
		HypothesisID: hypothesisID,
		Source:       source,
		Data:         data,
		Supports:     supports,
		Strength:     clampUnit(strength),
		Confidence:   clampUnit(confidence),
		GatheredBy:   gatheredBy,
		GatheredAt:   time.Now().UTC(),
	}
}

// Weight is the contribution of this evidence to a belief update.
func (e Evidence) Weight() float64 {
	return clampUnit(e.Strength) * clampUnit(e.Confidence)
}

func clampUnit(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampScale(v float64) float64 {
	if v != v || v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}
