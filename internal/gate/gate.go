package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/leozw/domain-tracker/internal/checker"
	"github.com/leozw/domain-tracker/internal/core"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 5 * time.Minute
)

// Gate bounds how many checks run at once and paces calls per upstream
// protocol. After an upstream rejects a call for exceeding its quota, the
// affected protocol backs off exponentially while the others keep running;
// the next success on that protocol resets it.
type Gate struct {
	sem      *semaphore.Weighted
	limiters map[core.Protocol]*rate.Limiter
	logger   *zap.Logger

	mu      sync.Mutex
	backoff map[core.Protocol]time.Duration
	holdOff map[core.Protocol]time.Time
}

func New(concurrency int64, minSpacing time.Duration, logger *zap.Logger) *Gate {
	spacing := rate.Inf
	if minSpacing > 0 {
		spacing = rate.Every(minSpacing)
	}
	return &Gate{
		sem: semaphore.NewWeighted(concurrency),
		limiters: map[core.Protocol]*rate.Limiter{
			core.ProtocolRDAP:  rate.NewLimiter(spacing, 1),
			core.ProtocolWHOIS: rate.NewLimiter(spacing, 1),
			core.ProtocolDNS:   rate.NewLimiter(spacing, 1),
		},
		logger:  logger,
		backoff: make(map[core.Protocol]time.Duration),
		holdOff: make(map[core.Protocol]time.Time),
	}
}

// Acquire blocks until a concurrency slot is free or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *Gate) Release() {
	g.sem.Release(1)
}

// Pace waits for the protocol's spacing limiter. A protocol inside an
// active backoff window is refused immediately with checker.ErrBackingOff
// rather than slept out: sleeping here would pin a concurrency slot and
// stall the other protocols. The caller falls through to the next protocol.
// Implements checker.Pacer.
func (g *Gate) Pace(ctx context.Context, p core.Protocol) error {
	if wait := g.holdOffRemaining(p); wait > 0 {
		return fmt.Errorf("%s held off for %s: %w",
			p, wait.Round(time.Millisecond), checker.ErrBackingOff)
	}

	limiter, ok := g.limiters[p]
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}

// Report feeds a probe outcome back into the backoff state. Implements
// checker.Pacer.
func (g *Gate) Report(p core.Protocol, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if checker.IsRateLimited(err) {
		next := g.backoff[p]
		if next == 0 {
			next = initialBackoff
		} else {
			next *= 2
			if next > maxBackoff {
				next = maxBackoff
			}
		}
		g.backoff[p] = next
		g.holdOff[p] = time.Now().Add(next)
		g.logger.Warn("upstream rate limited, backing off",
			zap.String("protocol", string(p)),
			zap.Duration("backoff", next),
		)
		return
	}

	if err == nil && g.backoff[p] > 0 {
		delete(g.backoff, p)
		delete(g.holdOff, p)
		g.logger.Info("upstream recovered, backoff reset",
			zap.String("protocol", string(p)),
		)
	}
}

// Backoff reports the remaining hold-off per protocol, for metrics.
func (g *Gate) Backoff(p core.Protocol) time.Duration {
	return g.holdOffRemaining(p)
}

func (g *Gate) holdOffRemaining(p core.Protocol) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.holdOff[p]
	if !ok {
		return 0
	}
	remaining := time.Until(until)
	if remaining < 0 {
		return 0
	}
	return remaining
}
