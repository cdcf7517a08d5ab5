// Package guard wraps every source adapter call with token-bucket rate
// limiting, jittered exponential retries, and a per-source circuit breaker.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scoutlabs/scout/internal/discovery"
	"github.com/scoutlabs/scout/internal/telemetry"
)

const defaultBreakerThreshold = 5

// Config holds guard configuration.
type Config struct {
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	BreakerThreshold int
}

// Guard serializes each source's outbound calls behind its declared rate
// ceiling and contains per-source failures so one source never affects
// another.
type Guard struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	retry    *RetryPolicy
	breaker  *breaker
	logger   *zap.Logger
}

// New constructs a Guard.
func New(cfg Config, logger *zap.Logger) *Guard {
	return &Guard{
		limiters: make(map[string]*rate.Limiter),
		retry:    NewRetryPolicy(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffMax),
		breaker:  newBreaker(cfg.BreakerThreshold),
		logger:   logger,
	}
}

// Register declares a source's rate ceiling before the first call.
func (g *Guard) Register(sourceID string, r discovery.Rate) {
	limit := rate.Limit(r.RequestsPerSecond)
	if r.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := r.Burst
	if burst <= 0 {
		burst = 1
	}
	g.mu.Lock()
	g.limiters[sourceID] = rate.NewLimiter(limit, burst)
	g.mu.Unlock()
}

// Do executes fn for the source, waiting on the token bucket first and
// retrying transient failures with backoff. Once the source's circuit is
// open, every call returns ErrCircuitOpen immediately.
func (g *Guard) Do(ctx context.Context, sourceID string, fn func(context.Context) error) error {
	if g.breaker.IsOpen(sourceID) {
		return fmt.Errorf("%w: %s", discovery.ErrCircuitOpen, sourceID)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := g.wait(ctx, sourceID); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			g.breaker.MarkSuccess(sourceID)
			return nil
		}
		if errors.Is(lastErr, discovery.ErrAuthExpired) {
			// Fatal for this source, and more calls cannot help.
			g.breaker.MarkFailure(sourceID)
			return lastErr
		}
		if g.breaker.MarkFailure(sourceID) {
			g.logger.Warn("circuit opened for source",
				zap.String("source_id", sourceID),
				zap.Error(lastErr),
			)
			return fmt.Errorf("%w: %s: %w", discovery.ErrCircuitOpen, sourceID, lastErr)
		}
		if !g.retry.ShouldRetry(lastErr, attempt) {
			return lastErr
		}

		delay := g.retry.Backoff(attempt)
		g.logger.Debug("retrying source call",
			zap.String("source_id", sourceID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(lastErr),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (g *Guard) wait(ctx context.Context, sourceID string) error {
	g.mu.Lock()
	limiter, ok := g.limiters[sourceID]
	if !ok {
		limiter = rate.NewLimiter(rate.Inf, 1)
		g.limiters[sourceID] = limiter
	}
	g.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		telemetry.ObserveThrottleDelay(sourceID, waited)
	}
	return nil
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
