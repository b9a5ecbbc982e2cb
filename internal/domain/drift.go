package domain

import "time"

type DriftKind string

const (
	DriftOveruse  DriftKind = "OVERUSE"
	DriftUnderuse DriftKind = "UNDERUSE"
)

// DriftAlert reports a framework whose share of recent hypotheses departs
// from the expected distribution.
type DriftAlert struct {
	Framework      Framework `json:"framework"`
	Kind           DriftKind `json:"kind"`
	ActualRate     float64   `json:"actual_rate"`
	ExpectedRate   float64   `json:"expected_rate"`
	SampleSize     int       `json:"sample_size"`
	Recommendation string    `json:"recommendation"`
	DetectedAt     time.Time `json:"detected_at"`
}
