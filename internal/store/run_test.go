package store

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRunStore(t *testing.T, dir string) *RunStore {
	t.Helper()
	s, err := NewRunStore(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestRunStore(t, "")

	sig := domain.Signal{ID: "sig-1", Type: "temperature_excursion", Description: "cold room at 9C"}
	st := domain.NewRunState(sig, domain.DefaultDecisionPolicy())
	st.Step = domain.StepGatherEvidence
	st.EvidenceHistory = []int{2}
	require.NoError(t, s.Save(ctx, st))

	got, err := s.Load(ctx, "sig-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepGatherEvidence, got.Step)
	assert.Equal(t, []int{2}, got.EvidenceHistory)
	assert.Equal(t, 1, got.Policy.Version)

	require.NoError(t, s.Delete(ctx, "sig-1"))
	_, err = s.Load(ctx, "sig-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewRunStore(dir, zap.NewNop())
	require.NoError(t, err)
	st := domain.NewRunState(domain.Signal{ID: "sig-2", Type: "line_jam", Description: "capper jam"}, nil)
	st.Finish(domain.OutcomeSkipped)
	require.NoError(t, s.Save(ctx, st))
	require.NoError(t, s.Close())

	s = newTestRunStore(t, dir)
	got, err := s.Load(ctx, "sig-2")
	require.NoError(t, err)
	assert.True(t, got.Done())
	assert.Equal(t, domain.OutcomeSkipped, got.Outcome)
}
