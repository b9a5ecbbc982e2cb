package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategicMemory_Stats(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMemory()

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)

	for _, r := range []float64{10, 20, -5, 30} {
		require.NoError(t, m.Record(ctx, replayWithScore(r, r < 0)))
	}

	stats, err = m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.OptimalCount)
	assert.Equal(t, 1, stats.SuboptimalCount)
	assert.Equal(t, 1, stats.UpdateCandidateCount)
	assert.InDelta(t, 0.75, stats.AccuracyRate, 1e-9)
	assert.InDelta(t, 5.5, stats.MeanScore, 1e-9)
	assert.InDelta(t, 6, stats.MedianScore, 1e-9)
}

func TestStrategicMemory_RecentAndWorst(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMemory()
	for _, r := range []float64{5, -10, 15, -20} {
		require.NoError(t, m.Record(ctx, replayWithScore(r, false)))
	}

	recent, err := m.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 15.0, recent[0].ProductionDelta)
	assert.Equal(t, -20.0, recent[1].ProductionDelta)

	worst, err := m.Worst(ctx, 2)
	require.NoError(t, err)
	require.Len(t, worst, 2)
	assert.Equal(t, -20.0, worst[0].ProductionDelta)
	assert.Equal(t, -10.0, worst[1].ProductionDelta)
}

func TestStrategicMemory_AccuracyOverTime(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMemory()
	for _, r := range []float64{1, 2, 3, -4} {
		require.NoError(t, m.Record(ctx, replayWithScore(r, false)))
	}

	buckets, err := m.AccuracyOverTime(ctx, 2)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, 1.0, buckets[0].Accuracy)
	assert.Equal(t, 0.5, buckets[1].Accuracy)
	assert.Equal(t, 1, buckets[1].Index)

	_, err = m.AccuracyOverTime(ctx, 0)
	assert.Error(t, err)
}

func TestStrategicMemory_Trim(t *testing.T) {
	ctx := context.Background()
	m, rs, _ := newTestMemory()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Record(ctx, replayWithScore(float64(i), false)))
	}

	n, err := m.Trim(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := rs.List(ctx)
	require.NoError(t, err)
	require.Len(t, left, 3)
	assert.Equal(t, 2.0, left[0].ProductionDelta)
}
