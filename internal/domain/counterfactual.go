package domain

import (
	"time"

	"github.com/google/uuid"
)

// Replay score weights. A replay whose chosen action scores at or above zero
// against the alternative counts as optimal.
const (
	scoreProductionWeight = 0.4
	scoreTimeWeight       = 0.3
	scoreRiskWeight       = 0.2
	scoreCostWeight       = 0.1
)

// CounterfactualReplay compares the action taken for a signal with the best
// alternative hypothesis. Deltas are chosen minus alternative.
type CounterfactualReplay struct {
	ID                               uuid.UUID `json:"id"`
	SignalID                         string    `json:"signal_id"`
	PolicyVersion                    int       `json:"policy_version"`
	ChosenHypothesisID               string    `json:"chosen_hypothesis_id"`
	ChosenHypothesisDescription      string    `json:"chosen_hypothesis_description"`
	ChosenFramework                  Framework `json:"chosen_framework"`
	ChosenAction                     string    `json:"chosen_action"`
	AlternativeHypothesisID          string    `json:"alternative_hypothesis_id"`
	AlternativeHypothesisDescription string    `json:"alternative_hypothesis_description"`
	AlternativeFramework             Framework `json:"alternative_framework"`
	AlternativeAction                string    `json:"alternative_action"`
	ActualOutcome                    string    `json:"actual_outcome"`
	PredictedAlternativeOutcome      string    `json:"predicted_alternative_outcome"`
	ProductionDelta                  float64   `json:"production_delta"`
	TimeDeltaMinutes                 float64   `json:"time_delta_minutes"`
	RiskDelta                        float64   `json:"risk_delta"`
	CostDelta                        float64   `json:"cost_delta"`
	Insight                          string    `json:"insight"`
	ShouldUpdatePolicy               bool      `json:"should_update_policy"`
	UpdateRecommendation             string    `json:"update_recommendation,omitempty"`
	CreatedAt                        time.Time `json:"created_at"`
}

// Score is 0.4·production − 0.3·time − 0.2·risk + 0.1·cost.
func (r *CounterfactualReplay) Score() float64 {
	return scoreProductionWeight*r.ProductionDelta -
		scoreTimeWeight*r.TimeDeltaMinutes -
		scoreRiskWeight*r.RiskDelta +
		scoreCostWeight*r.CostDelta
}

func (r *CounterfactualReplay) WasOptimalChoice() bool {
	return r.Score() >= 0
}

// StrategicMemoryStats summarizes the replay history.
type StrategicMemoryStats struct {
	Total                int     `json:"total"`
	OptimalCount         int     `json:"optimal_count"`
	SuboptimalCount      int     `json:"suboptimal_count"`
	AccuracyRate         float64 `json:"accuracy_rate"`
	UpdateCandidateCount int     `json:"update_candidate_count"`
	MeanScore            float64 `json:"mean_score"`
	MedianScore          float64 `json:"median_score"`
}

// SuboptimalRate is the share of replays that were not optimal.
func (s StrategicMemoryStats) SuboptimalRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.SuboptimalCount) / float64(s.Total)
}

// PolicyEvolutionRecord logs one policy evolution.
type PolicyEvolutionRecord struct {
	ID           uuid.UUID `json:"id"`
	FromPolicyID uuid.UUID `json:"from_policy_id"`
	FromVersion  int       `json:"from_version"`
	ToPolicyID   uuid.UUID `json:"to_policy_id"`
	ToVersion    int       `json:"to_version"`
	Reason       string    `json:"reason"`
	Changes      []string  `json:"changes"`
	ReplaysSeen  int       `json:"replays_seen"`
	CreatedAt    time.Time `json:"created_at"`
}
