package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/store"
	"go.uber.org/zap"
)

var (
	ErrPolicyNotFound  = errors.New("policy not found")
	ErrPolicyNotLoaded = errors.New("active policy not loaded")
)

// PolicyService owns the single active decision policy. Readers always see a
// complete version; activation persists before it swaps.
type PolicyService struct {
	policyStore domain.PolicyStore
	drift       *DriftDetector
	logger      *zap.Logger

	active atomic.Pointer[domain.DecisionPolicy]
	mu     sync.Mutex
}

func NewPolicyService(ps domain.PolicyStore, drift *DriftDetector, logger *zap.Logger) *PolicyService {
	return &PolicyService{
		policyStore: ps,
		drift:       drift,
		logger:      logger,
	}
}

// Load reads the active policy from the store, seeding the default policy on
// first boot.
func (s *PolicyService) Load(ctx context.Context) (*domain.DecisionPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.policyStore.GetCurrent(ctx)
	if errors.Is(err, store.ErrNotFound) {
		p = domain.DefaultDecisionPolicy()
		if err := s.policyStore.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("seed default policy: %w", err)
		}
		s.logger.Info("seeded default decision policy", zap.Int("version", p.Version))
	} else if err != nil {
		return nil, fmt.Errorf("load active policy: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	s.swap(p)
	return p.Clone(), nil
}

// Current returns a private copy of the active policy, or nil before Load.
func (s *PolicyService) Current() *domain.DecisionPolicy {
	p := s.active.Load()
	if p == nil {
		return nil
	}
	return p.Clone()
}

// Activate persists p as the new active version.
func (s *PolicyService) Activate(ctx context.Context, p *domain.DecisionPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.policyStore.Update(ctx, p); err != nil {
		return fmt.Errorf("activate policy v%d: %w", p.Version, err)
	}
	s.swap(p)
	s.logger.Info("decision policy activated",
		zap.Int("version", p.Version),
		zap.Float64("act_threshold", p.ConfidenceThresholdAct),
		zap.Float64("escalate_threshold", p.ConfidenceThresholdEscalate))
	return nil
}

func (s *PolicyService) swap(p *domain.DecisionPolicy) {
	s.active.Store(p.Clone())
	if s.drift != nil {
		s.drift.SetExpected(p.FrameworkWeights)
	}
}

func (s *PolicyService) History(ctx context.Context) ([]domain.DecisionPolicy, error) {
	versions, err := s.policyStore.ListVersions(ctx)
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []domain.DecisionPolicy{}
	}
	return versions, nil
}

func (s *PolicyService) Version(ctx context.Context, version int) (*domain.DecisionPolicy, error) {
	p, err := s.policyStore.GetByVersion(ctx, version)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return p, nil
}
