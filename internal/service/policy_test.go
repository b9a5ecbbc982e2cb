package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPolicyService_LoadSeedsDefault(t *testing.T) {
	ctx := context.Background()
	ps := store.NewMemPolicyStore()
	s := NewPolicyService(ps, nil, testLogger())
	assert.Nil(t, s.Current())

	p, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version)

	stored, err := ps.GetCurrent(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(p, stored, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Errorf("seeded policy mismatch (-loaded +stored):\n%s", diff)
	}

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
}

func TestPolicyService_ActivateSwapsAndUpdatesDrift(t *testing.T) {
	ctx := context.Background()
	drift := NewDriftDetector(0, 0)
	s := NewPolicyService(store.NewMemPolicyStore(), drift, testLogger())
	base, err := s.Load(ctx)
	require.NoError(t, err)

	next := base.Clone()
	next.ID = uuid.New()
	next.Version = 2
	next.FrameworkWeights[domain.FrameworkTOC] = 0.4
	next.FrameworkWeights[domain.FrameworkRCA] = 0.1
	require.NoError(t, s.Activate(ctx, next))

	assert.Equal(t, 2, s.Current().Version)
	assert.Equal(t, 0.4, drift.Snapshot().Expected[domain.FrameworkTOC])

	v1, err := s.Version(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, base.ID, v1.ID)

	_, err = s.Version(ctx, 9)
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestPolicyService_ActivateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := NewPolicyService(store.NewMemPolicyStore(), nil, testLogger())
	base, err := s.Load(ctx)
	require.NoError(t, err)

	bad := base.Clone()
	bad.Version = 2
	bad.ConfidenceThresholdEscalate = 0.9
	assert.ErrorIs(t, s.Activate(ctx, bad), domain.ErrInvariantViolation)
	assert.Equal(t, 1, s.Current().Version)
}

func TestPolicyService_CurrentIsACopy(t *testing.T) {
	s := NewPolicyService(store.NewMemPolicyStore(), nil, testLogger())
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	p := s.Current()
	p.ConfidenceThresholdAct = 0.1
	p.FrameworkWeights[domain.FrameworkRCA] = 0

	fresh := s.Current()
	assert.Equal(t, domain.DefaultActThreshold, fresh.ConfidenceThresholdAct)
	assert.Equal(t, 0.30, fresh.FrameworkWeights[domain.FrameworkRCA])
}

type MockPolicyStore struct {
	mock.Mock
}

func (m *MockPolicyStore) GetCurrent(ctx context.Context) (*domain.DecisionPolicy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DecisionPolicy), args.Error(1)
}

func (m *MockPolicyStore) Update(ctx context.Context, p *domain.DecisionPolicy) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockPolicyStore) ListVersions(ctx context.Context) ([]domain.DecisionPolicy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DecisionPolicy), args.Error(1)
}

func (m *MockPolicyStore) GetByVersion(ctx context.Context, version int) (*domain.DecisionPolicy, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DecisionPolicy), args.Error(1)
}

func TestPolicyService_ActivateStoreFailureKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	ps := new(MockPolicyStore)
	current := domain.DefaultDecisionPolicy()
	ps.On("GetCurrent", ctx).Return(current, nil)
	ps.On("Update", ctx, mock.MatchedBy(func(p *domain.DecisionPolicy) bool {
		return p.Version == 2
	})).Return(errors.New("connection reset"))

	s := NewPolicyService(ps, nil, testLogger())
	_, err := s.Load(ctx)
	require.NoError(t, err)

	next := current.Clone()
	next.ID = uuid.New()
	next.Version = 2
	err = s.Activate(ctx, next)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "activate policy v2")
	assert.Equal(t, 1, s.Current().Version)
	ps.AssertExpectations(t)
}

func TestPolicyService_SeedFailure(t *testing.T) {
	ctx := context.Background()
	ps := new(MockPolicyStore)
	ps.On("GetCurrent", ctx).Return(nil, store.ErrNotFound)
	ps.On("Update", ctx, mock.AnythingOfType("*domain.DecisionPolicy")).Return(errors.New("read-only"))

	s := NewPolicyService(ps, nil, testLogger())
	_, err := s.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed default policy")
	assert.Nil(t, s.Current())
}

func TestPolicyService_HistoryNeverNil(t *testing.T) {
	ctx := context.Background()
	ps := new(MockPolicyStore)
	ps.On("ListVersions", ctx).Return(nil, nil)

	versions, err := NewPolicyService(ps, nil, testLogger()).History(ctx)
	require.NoError(t, err)
	assert.NotNil(t, versions)
	assert.Empty(t, versions)
}
