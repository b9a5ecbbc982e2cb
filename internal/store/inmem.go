package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/google/uuid"
)

// MemPolicyStore is a process-local PolicyStore used by the CLI and tests.
type MemPolicyStore struct {
	mu       sync.RWMutex
	versions []domain.DecisionPolicy
	active   int
}

func NewMemPolicyStore() *MemPolicyStore {
	return &MemPolicyStore{active: -1}
}

func (s *MemPolicyStore) GetCurrent(ctx context.Context) (*domain.DecisionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active < 0 {
		return nil, ErrNotFound
	}
	return s.versions[s.active].Clone(), nil
}

func (s *MemPolicyStore) Update(ctx context.Context, p *domain.DecisionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.Version == p.Version {
			return fmt.Errorf("policy version %d: %w", p.Version, ErrConflict)
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.versions = append(s.versions, *p.Clone())
	s.active = len(s.versions) - 1
	return nil
}

func (s *MemPolicyStore) ListVersions(ctx context.Context) ([]domain.DecisionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DecisionPolicy, len(s.versions))
	for i := range s.versions {
		out[i] = *s.versions[i].Clone()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *MemPolicyStore) GetByVersion(ctx context.Context, version int) (*domain.DecisionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.versions {
		if s.versions[i].Version == version {
			return s.versions[i].Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// MemReplayStore is a process-local ReplayStore.
type MemReplayStore struct {
	mu      sync.RWMutex
	replays []domain.CounterfactualReplay
}

func NewMemReplayStore() *MemReplayStore {
	return &MemReplayStore{}
}

func (s *MemReplayStore) Append(ctx context.Context, r *domain.CounterfactualReplay) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.replays = append(s.replays, *r)
	s.mu.Unlock()
	return nil
}

func (s *MemReplayStore) List(ctx context.Context) ([]domain.CounterfactualReplay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CounterfactualReplay(nil), s.replays...), nil
}

func (s *MemReplayStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.replays), nil
}

func (s *MemReplayStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CounterfactualReplay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.replays {
		if s.replays[i].ID == id {
			r := s.replays[i]
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemReplayStore) TrimOldest(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep < 0 {
		keep = 0
	}
	excess := len(s.replays) - keep
	if excess <= 0 {
		return 0, nil
	}
	s.replays = append([]domain.CounterfactualReplay(nil), s.replays[excess:]...)
	return int64(excess), nil
}

// MemEvolutionLogStore is a process-local EvolutionLogStore.
type MemEvolutionLogStore struct {
	mu      sync.RWMutex
	records []domain.PolicyEvolutionRecord
}

func NewMemEvolutionLogStore() *MemEvolutionLogStore {
	return &MemEvolutionLogStore{}
}

func (s *MemEvolutionLogStore) Append(ctx context.Context, r *domain.PolicyEvolutionRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.records = append(s.records, *r)
	s.mu.Unlock()
	return nil
}

// List returns the newest records first.
func (s *MemEvolutionLogStore) List(ctx context.Context, limit int) ([]domain.PolicyEvolutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.PolicyEvolutionRecord, 0, n)
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}
