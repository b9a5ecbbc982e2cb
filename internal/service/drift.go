package service

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
)

const (
	DefaultDriftWindow     = 50
	DefaultDriftMinSamples = 20

	overuseFactor     = 2.0
	underuseFactor    = 0.5
	underuseMinWeight = 0.10
)

// DriftSnapshot is a read-only view of the detector for reporting.
type DriftSnapshot struct {
	WindowSize   int                          `json:"window_size"`
	SampleSize   int                          `json:"sample_size"`
	MinSamples   int                          `json:"min_samples"`
	Actual       map[domain.Framework]float64 `json:"actual"`
	Expected     map[domain.Framework]float64 `json:"expected"`
	CurrentAlert *domain.DriftAlert           `json:"current_alert,omitempty"`
}

// DriftDetector tracks which frameworks recent hypotheses were generated
// under and flags departures from the expected distribution. It only
// observes; it never changes hypotheses.
type DriftDetector struct {
	mu         sync.Mutex
	window     []domain.Framework
	size       int
	minSamples int
	expected   map[domain.Framework]float64
}

func NewDriftDetector(windowSize, minSamples int) *DriftDetector {
	if windowSize <= 0 {
		windowSize = DefaultDriftWindow
	}
	if minSamples <= 0 {
		minSamples = DefaultDriftMinSamples
	}
	return &DriftDetector{
		size:       windowSize,
		minSamples: minSamples,
		window:     make([]domain.Framework, 0, windowSize),
		expected:   domain.DefaultFrameworkWeights(),
	}
}

// Record appends a framework selection, evicting the oldest when full.
func (d *DriftDetector) Record(f domain.Framework) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.window) == d.size {
		copy(d.window, d.window[1:])
		d.window = d.window[:d.size-1]
	}
	d.window = append(d.window, f)
}

// SetExpected replaces the expected distribution, normally with the active
// policy's framework weights.
func (d *DriftDetector) SetExpected(weights map[domain.Framework]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expected = make(map[domain.Framework]float64, len(domain.Frameworks))
	for _, f := range domain.Frameworks {
		d.expected[f] = weights[f]
	}
}

// DetectDrift returns the first framework, in fixed order, whose share of the
// window is out of band. It returns nil below the minimum sample size.
func (d *DriftDetector) DetectDrift() *domain.DriftAlert {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detectLocked()
}

func (d *DriftDetector) detectLocked() *domain.DriftAlert {
	n := len(d.window)
	if n < d.minSamples {
		return nil
	}
	actual := d.distributionLocked()
	for _, f := range domain.Frameworks {
		a, e := actual[f], d.expected[f]
		var kind domain.DriftKind
		switch {
		case a > e*overuseFactor:
			kind = domain.DriftOveruse
		case e > underuseMinWeight && a < e*underuseFactor:
			kind = domain.DriftUnderuse
		default:
			continue
		}
		return &domain.DriftAlert{
			Framework:      f,
			Kind:           kind,
			ActualRate:     a,
			ExpectedRate:   e,
			SampleSize:     n,
			Recommendation: driftRecommendation(f, kind, a, e),
			DetectedAt:     time.Now().UTC(),
		}
	}
	return nil
}

func driftRecommendation(f domain.Framework, kind domain.DriftKind, actual, expected float64) string {
	others := make([]string, 0, len(domain.Frameworks)-1)
	for _, o := range domain.Frameworks {
		if o != f {
			others = append(others, string(o))
		}
	}
	verb := "over-relying on"
	if kind == domain.DriftUnderuse {
		verb = "neglecting"
	}
	return fmt.Sprintf("Investigations are %s %s (%.0f%% of recent hypotheses vs %.0f%% expected). Consider %s.",
		verb, f, actual*100, expected*100, strings.Join(others, ", "))
}

// Distribution returns each framework's share of the current window.
func (d *DriftDetector) Distribution() map[domain.Framework]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.distributionLocked()
}

func (d *DriftDetector) distributionLocked() map[domain.Framework]float64 {
	out := make(map[domain.Framework]float64, len(domain.Frameworks))
	for _, f := range domain.Frameworks {
		out[f] = 0
	}
	if len(d.window) == 0 {
		return out
	}
	for _, f := range d.window {
		out[f]++
	}
	for f := range out {
		out[f] /= float64(len(d.window))
	}
	return out
}

func (d *DriftDetector) Snapshot() DriftSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	expected := make(map[domain.Framework]float64, len(d.expected))
	for k, v := range d.expected {
		expected[k] = v
	}
	return DriftSnapshot{
		WindowSize:   d.size,
		SampleSize:   len(d.window),
		MinSamples:   d.minSamples,
		Actual:       d.distributionLocked(),
		Expected:     expected,
		CurrentAlert: d.detectLocked(),
	}
}
