package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errEmptyJudgment = errors.New("oracle returned empty text")

// RetryConfig controls how oracle calls are retried and paced.
type RetryConfig struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
	AttemptTimeout  time.Duration

	// RequestsPerSecond caps the call rate across all runs; 0 disables pacing.
	RequestsPerSecond float64
	Burst             int
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialInterval:   500 * time.Millisecond,
		MaxInterval:       5 * time.Second,
		Multiplier:        2.0,
		Jitter:            0.2,
		AttemptTimeout:    30 * time.Second,
		RequestsPerSecond: 5,
		Burst:             5,
	}
}

// Observer receives one call per Judge with its final outcome.
type Observer interface {
	ObserveOracleCall(purpose string, outcome string, attempts int, d time.Duration)
}

// Resilient wraps an oracle with pacing, per-attempt timeouts and
// exponential backoff. Exhausted retries surface as domain.ErrOracleFailure.
type Resilient struct {
	inner    domain.Oracle
	cfg      RetryConfig
	limiter  *rate.Limiter
	observer Observer
	logger   *zap.Logger
}

func NewResilient(inner domain.Oracle, cfg RetryConfig, logger *zap.Logger) *Resilient {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Resilient{inner: inner, cfg: cfg, limiter: limiter, logger: logger}
}

func (r *Resilient) SetObserver(o Observer) {
	r.observer = o
}

func (r *Resilient) Judge(ctx context.Context, req domain.JudgeRequest) (*domain.Judgment, error) {
	start := time.Now()
	attempts := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.Multiplier = r.cfg.Multiplier
	b.RandomizationFactor = r.cfg.Jitter

	op := func() (*domain.Judgment, error) {
		attempts++
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}

		attemptCtx := ctx
		if r.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
			defer cancel()
		}

		j, err := r.inner.Judge(attemptCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		if j == nil || strings.TrimSpace(j.Text) == "" {
			return nil, errEmptyJudgment
		}
		if j.Structured == "" {
			j.Structured = ExtractJSON(j.Text)
		}
		return j, nil
	}

	j, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("oracle call failed, retrying",
				zap.String("purpose", string(req.Purpose)),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)

	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	if r.observer != nil {
		r.observer.ObserveOracleCall(string(req.Purpose), outcome, attempts, time.Since(start))
	}

	if err != nil {
		r.logger.Warn("oracle call exhausted",
			zap.String("purpose", string(req.Purpose)),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s after %d attempts: %v", domain.ErrOracleFailure, req.Purpose, attempts, err)
	}
	return j, nil
}
