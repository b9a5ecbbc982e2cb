package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

// AccuracyBucket is the accuracy of one chronological slice of replays.
type AccuracyBucket struct {
	Index    int     `json:"index"`
	Count    int     `json:"count"`
	Accuracy float64 `json:"accuracy"`
}

// StrategicMemory is the replay history and evolution log. Appends and the
// reads derived from them are serialized so concurrent investigations never
// lose updates.
type StrategicMemory struct {
	replays    domain.ReplayStore
	evolutions domain.EvolutionLogStore
	logger     *zap.Logger

	mu sync.Mutex
}

func NewStrategicMemory(rs domain.ReplayStore, es domain.EvolutionLogStore, logger *zap.Logger) *StrategicMemory {
	return &StrategicMemory{replays: rs, evolutions: es, logger: logger}
}

func (m *StrategicMemory) Record(ctx context.Context, r *domain.CounterfactualReplay) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.replays.Append(ctx, r); err != nil {
		return fmt.Errorf("record replay: %w", err)
	}
	return nil
}

func (m *StrategicMemory) RecordEvolution(ctx context.Context, rec *domain.PolicyEvolutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evolutions.Append(ctx, rec)
}

func (m *StrategicMemory) Size(ctx context.Context) (int, error) {
	return m.replays.Count(ctx)
}

func (m *StrategicMemory) Stats(ctx context.Context) (domain.StrategicMemoryStats, error) {
	m.mu.Lock()
	replays, err := m.replays.List(ctx)
	m.mu.Unlock()
	if err != nil {
		return domain.StrategicMemoryStats{}, err
	}
	return computeStats(replays), nil
}

func computeStats(replays []domain.CounterfactualReplay) domain.StrategicMemoryStats {
	s := domain.StrategicMemoryStats{Total: len(replays)}
	if s.Total == 0 {
		return s
	}
	scores := make(stats.Float64Data, 0, len(replays))
	for i := range replays {
		r := &replays[i]
		if r.WasOptimalChoice() {
			s.OptimalCount++
		} else {
			s.SuboptimalCount++
		}
		if r.ShouldUpdatePolicy {
			s.UpdateCandidateCount++
		}
		scores = append(scores, r.Score())
	}
	s.AccuracyRate = float64(s.OptimalCount) / float64(s.Total)
	s.MeanScore, _ = scores.Mean()
	s.MedianScore, _ = scores.Median()
	return s
}

// Recent returns the last n replays, oldest first.
func (m *StrategicMemory) Recent(ctx context.Context, n int) ([]domain.CounterfactualReplay, error) {
	replays, err := m.replays.List(ctx)
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(replays) > n {
		replays = replays[len(replays)-n:]
	}
	return replays, nil
}

// Worst returns the n lowest scoring replays, worst first.
func (m *StrategicMemory) Worst(ctx context.Context, n int) ([]domain.CounterfactualReplay, error) {
	replays, err := m.replays.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(replays, func(i, j int) bool {
		return replays[i].Score() < replays[j].Score()
	})
	if n >= 0 && len(replays) > n {
		replays = replays[:n]
	}
	return replays, nil
}

// AccuracyOverTime splits the history into chronological buckets of the
// given size and reports the accuracy of each.
func (m *StrategicMemory) AccuracyOverTime(ctx context.Context, bucket int) ([]AccuracyBucket, error) {
	if bucket <= 0 {
		return nil, fmt.Errorf("bucket size must be positive")
	}
	replays, err := m.replays.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []AccuracyBucket
	for start := 0; start < len(replays); start += bucket {
		end := min(start+bucket, len(replays))
		optimal := 0
		for i := start; i < end; i++ {
			if replays[i].WasOptimalChoice() {
				optimal++
			}
		}
		out = append(out, AccuracyBucket{
			Index:    len(out),
			Count:    end - start,
			Accuracy: float64(optimal) / float64(end-start),
		})
	}
	return out, nil
}

func (m *StrategicMemory) Evolutions(ctx context.Context, limit int) ([]domain.PolicyEvolutionRecord, error) {
	return m.evolutions.List(ctx, limit)
}

// Trim drops the oldest replays beyond the retention window.
func (m *StrategicMemory) Trim(ctx context.Context, retention int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replays.TrimOldest(ctx, retention)
}
