package service

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"go.uber.org/zap"
)

const defaultTunerInterval = 1 * time.Hour

// EvolutionTuner periodically evolves the active policy when strategic
// memory calls for it, independent of any single investigation.
type EvolutionTuner struct {
	evolver  *PolicyEvolver
	drift    *DriftDetector
	notifier domain.Notifier
	logger   *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewEvolutionTuner(evolver *PolicyEvolver, drift *DriftDetector, notifier domain.Notifier, logger *zap.Logger) *EvolutionTuner {
	return &EvolutionTuner{
		evolver:  evolver,
		drift:    drift,
		notifier: notifier,
		logger:   logger,
		interval: defaultTunerInterval,
		stopCh:   make(chan struct{}),
	}
}

func (t *EvolutionTuner) SetInterval(d time.Duration) {
	t.interval = d
}

// Start runs the tuner on a periodic schedule in a background goroutine.
func (t *EvolutionTuner) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		t.logger.Info("evolution tuner started", zap.Duration("interval", t.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := t.RunOnce(ctx); err != nil {
					t.logger.Error("evolution tuner run failed", zap.Error(err))
				}
				cancel()
			case <-t.stopCh:
				t.logger.Info("evolution tuner stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the tuner.
func (t *EvolutionTuner) Stop() {
	close(t.stopCh)
	t.wg.Wait()
}

// RunOnce evolves the policy if strategic memory warrants it.
func (t *EvolutionTuner) RunOnce(ctx context.Context) (*domain.PolicyEvolutionRecord, error) {
	ok, err := t.evolver.ShouldEvolve(ctx)
	if err != nil || !ok {
		return nil, err
	}
	rec, err := t.evolver.EvolveAndActivate(ctx, t.drift.DetectDrift())
	if err != nil || rec == nil {
		return nil, err
	}
	if t.notifier != nil {
		_ = t.notifier.Publish(ctx, domain.Event{
			Type: domain.EventPolicyEvolved,
			Payload: map[string]any{
				"from_version": rec.FromVersion,
				"to_version":   rec.ToVersion,
				"reason":       rec.Reason,
				"source":       "tuner",
			},
			At: time.Now().UTC(),
		})
	}
	return rec, nil
}
