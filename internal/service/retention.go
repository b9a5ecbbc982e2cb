package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetentionInterval = 1 * time.Hour
	DefaultMemoryRetention   = 5000
)

// RetentionService trims strategic memory to a fixed window of the most
// recent replays.
type RetentionService struct {
	memory    *StrategicMemory
	retention int
	logger    *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewRetentionService(memory *StrategicMemory, retention int, logger *zap.Logger) *RetentionService {
	if retention <= 0 {
		retention = DefaultMemoryRetention
	}
	return &RetentionService{
		memory:    memory,
		retention: retention,
		logger:    logger,
		interval:  defaultRetentionInterval,
		stopCh:    make(chan struct{}),
	}
}

func (s *RetentionService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs retention on a periodic schedule in a background goroutine.
func (s *RetentionService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("memory retention started",
			zap.Duration("interval", s.interval),
			zap.Int("retention", s.retention))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("memory retention stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the retention loop.
func (s *RetentionService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *RetentionService) run(ctx context.Context) {
	deleted, err := s.memory.Trim(ctx, s.retention)
	if err != nil {
		s.logger.Error("failed to trim strategic memory", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("trimmed strategic memory", zap.Int64("count", deleted), zap.Int("retention", s.retention))
	}
}
