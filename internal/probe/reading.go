package probe

import (
	"context"
	"fmt"
	"math"

	"github.com/Harshitk-cp/vigil/internal/domain"
)

// ReadingSource is the source label on evidence produced from signal data.
const ReadingSource = "signal_readings"

const readingConfidence = 0.9

// limit describes one reading and the side of its limit that indicates the
// hypothesis is true.
type limit struct {
	key   string
	value float64
	scale float64
	above bool
}

var readingLimits = map[domain.Framework][]limit{
	domain.FrameworkHACCP: {
		{key: "temperature_c", value: 5, scale: 5, above: true},
		{key: "atp_rlu", value: 150, scale: 300, above: true},
	},
	domain.FrameworkFMEA: {
		{key: "vibration_mm_s", value: 7.1, scale: 7.1, above: true},
		{key: "bearing_temp_c", value: 80, scale: 20, above: true},
	},
	domain.FrameworkTOC: {
		{key: "queue_length", value: 10, scale: 20, above: true},
		{key: "throughput_drop", value: 0.1, scale: 0.4, above: true},
	},
	domain.FrameworkRCA: {
		{key: "defect_rate", value: 0.02, scale: 0.08, above: true},
	},
	domain.FrameworkCounterfactual: {
		{key: "downtime_cost_per_min", value: 500, scale: 1500, above: false},
	},
}

// ReadingProbe compares numeric readings carried in the signal against
// per-framework limits. A reading past its limit supports the hypothesis;
// one within it refutes it.
type ReadingProbe struct{}

func NewReadingProbe() *ReadingProbe {
	return &ReadingProbe{}
}

func (p *ReadingProbe) Name() string { return "reading_probe" }

func (p *ReadingProbe) Probe(ctx context.Context, sig domain.Signal, knowledge string, h *domain.Hypothesis) ([]domain.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Evidence
	for _, l := range readingLimits[h.Framework()] {
		v, ok := number(sig.Data[l.key])
		if !ok {
			continue
		}
		past := v > l.value
		if !l.above {
			past = v < l.value
		}
		strength := math.Min(1, math.Abs(v-l.value)/l.scale)
		out = append(out, domain.NewEvidence(
			fmt.Sprintf("ev_%s_%s_%s", p.Name(), h.ID, l.key),
			h.ID, ReadingSource, p.Name(),
			past, strength, readingConfidence,
			map[string]any{"reading": l.key, "value": v, "limit": l.value},
		))
	}
	return out, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
