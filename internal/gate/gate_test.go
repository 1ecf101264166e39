package gate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leozw/domain-tracker/internal/checker"
	"github.com/leozw/domain-tracker/internal/core"
)

func TestConcurrencyBound(t *testing.T) {
	const limit = 5
	g := New(limit, 0, zap.NewNop())

	var inFlight, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Acquire(context.Background()); err != nil {
				return
			}
			defer g.Release()

			n := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(limit))
}

func TestBackoffOnRateLimitAndResetOnSuccess(t *testing.T) {
	g := New(5, 0, zap.NewNop())

	assert.Zero(t, g.Backoff(core.ProtocolWHOIS))

	g.Report(core.ProtocolWHOIS, fmt.Errorf("whois query: %w", checker.ErrRateLimited))
	first := g.Backoff(core.ProtocolWHOIS)
	assert.Greater(t, first, time.Duration(0))

	g.Report(core.ProtocolWHOIS, fmt.Errorf("whois query: %w", checker.ErrRateLimited))
	second := g.Backoff(core.ProtocolWHOIS)
	assert.Greater(t, second, first, "backoff doubles on repeated rejections")

	// Other protocols are unaffected.
	assert.Zero(t, g.Backoff(core.ProtocolRDAP))

	g.Report(core.ProtocolWHOIS, nil)
	assert.Zero(t, g.Backoff(core.ProtocolWHOIS))
}

func TestBackoffIsCapped(t *testing.T) {
	g := New(5, 0, zap.NewNop())
	for i := 0; i < 20; i++ {
		g.Report(core.ProtocolRDAP, checker.ErrRateLimited)
	}
	assert.LessOrEqual(t, g.Backoff(core.ProtocolRDAP), maxBackoff)
}

func TestOrdinaryErrorDoesNotTriggerBackoff(t *testing.T) {
	g := New(5, 0, zap.NewNop())
	g.Report(core.ProtocolRDAP, fmt.Errorf("rdap query: %w", context.DeadlineExceeded))
	assert.Zero(t, g.Backoff(core.ProtocolRDAP))
}

func TestPaceRefusesHeldOffProtocolImmediately(t *testing.T) {
	g := New(5, 0, zap.NewNop())
	g.Report(core.ProtocolWHOIS, checker.ErrRateLimited)

	start := time.Now()
	err := g.Pace(context.Background(), core.ProtocolWHOIS)
	assert.ErrorIs(t, err, checker.ErrBackingOff)
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"pace must refuse a held-off protocol instead of sleeping in a concurrency slot")

	// The window is still enforced: the refusal does not clear it.
	assert.Greater(t, g.Backoff(core.ProtocolWHOIS), time.Duration(0))
}

type staticProbe struct {
	status core.DomainStatus
}

func (p staticProbe) Probe(ctx context.Context, domain string) (core.DomainStatus, string, error) {
	return p.status, "", nil
}

func TestHeldOffRDAPDoesNotStallWHOIS(t *testing.T) {
	g := New(1, 0, zap.NewNop())
	g.Report(core.ProtocolRDAP, checker.ErrRateLimited)

	c := checker.NewWithProbes(nil,
		staticProbe{core.StatusUnregistered},
		staticProbe{core.StatusRegistered},
		g, false, zap.NewNop())

	start := time.Now()
	res := c.Check(context.Background(), "example.com")
	assert.Equal(t, core.StatusRegistered, res.Classification)
	assert.Equal(t, core.ProtocolWHOIS, res.Protocol)
	assert.Less(t, time.Since(start), time.Second,
		"the WHOIS answer must not wait out the RDAP backoff window")
}

func TestPaceWithoutBackoffIsImmediate(t *testing.T) {
	g := New(5, 0, zap.NewNop())
	start := time.Now()
	require.NoError(t, g.Pace(context.Background(), core.ProtocolRDAP))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
