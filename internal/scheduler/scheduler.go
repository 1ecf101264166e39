package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/domain-tracker/internal/config"
	"github.com/leozw/domain-tracker/internal/core"
	"github.com/leozw/domain-tracker/internal/engine"
	"github.com/leozw/domain-tracker/internal/metrics"
	"github.com/leozw/domain-tracker/internal/notify"
	"github.com/leozw/domain-tracker/internal/state"
)

// Checker classifies one domain. Satisfied by checker.Checker.
type Checker interface {
	Check(ctx context.Context, domain string) core.CheckResult
}

// Gate bounds in-flight checks. Satisfied by gate.Gate.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
	Backoff(p core.Protocol) time.Duration
}

// Scheduler drives monitoring cycles: every poll interval it fans out one
// gated check per tracked domain, applies the results sequentially against
// the store, persists once, and delivers due notifications. Cycles are
// strictly sequential; a new cycle never starts before the previous one's
// persistence completed.
type Scheduler struct {
	store   *state.Store
	checker Checker
	gate    Gate
	sink    notify.Sink
	metrics *metrics.Collector
	logger  *zap.Logger
	cfg     config.MonitorConfig

	cycleCount uint64
}

func New(store *state.Store, chk Checker, g Gate, sink notify.Sink, collector *metrics.Collector, cfg config.MonitorConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		checker: chk,
		gate:    g,
		sink:    sink,
		metrics: collector,
		logger:  logger,
		cfg:     cfg,
	}
}

// Run blocks until ctx is cancelled. The in-flight cycle finishes (or is
// abandoned at the cycle deadline) and state is saved before return.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("poll_interval", s.cfg.PollInterval),
		zap.Int64("concurrency", s.cfg.Concurrency),
	)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.runCycle(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, persisting state")
			if err := s.store.Save(); err != nil {
				s.logger.Error("final state save failed", zap.Error(err))
			}
			return
		case <-ticker.C:
		}
	}
}

// CycleCount reports completed cycles; used by tests and status reports.
func (s *Scheduler) CycleCount() uint64 {
	return s.cycleCount
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	cycleID := uuid.New().String()
	start := time.Now()
	domains := s.store.Domains()

	if len(domains) == 0 {
		s.logger.Debug("no domains to check", zap.String("cycle_id", cycleID))
		return
	}

	results := s.fanOut(ctx, domains)
	due := s.applyResults(results)

	if err := s.store.Save(); err != nil {
		s.logger.Error("cycle state save failed", zap.String("cycle_id", cycleID), zap.Error(err))
	}

	// Notifications go out only after the records that gate them are
	// persisted, so a crash cannot replay an alert.
	for _, payload := range due {
		s.deliverAlert(ctx, payload)
	}

	s.cycleCount++
	stats := s.store.Stats()
	s.metrics.RecordCycle(time.Since(start).Seconds(), stats)
	for _, p := range []core.Protocol{core.ProtocolRDAP, core.ProtocolWHOIS, core.ProtocolDNS} {
		s.metrics.RecordBackoff(p, s.gate.Backoff(p).Seconds())
	}

	s.logger.Info("cycle completed",
		zap.String("cycle_id", cycleID),
		zap.Uint64("cycle", s.cycleCount),
		zap.Int("domains", len(domains)),
		zap.Int("checked", len(results)),
		zap.Int("notified", len(due)),
		zap.Int("unregistered", stats.Unregistered),
		zap.Int("registered", stats.Registered),
		zap.Int("unknown", stats.Unknown),
		zap.Duration("duration", time.Since(start)),
	)

	if s.cfg.StatusReportCycles > 0 && s.cycleCount%uint64(s.cfg.StatusReportCycles) == 0 {
		s.sendStatusReport(ctx, stats)
	}
}

// fanOut dispatches one gated check per domain and collects the completed
// results. The cycle deadline bounds stragglers whose own timeouts misfire.
func (s *Scheduler) fanOut(ctx context.Context, domains []string) []core.CheckResult {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CycleDeadline)
	defer cancel()

	resultCh := make(chan core.CheckResult, len(domains))
	var wg sync.WaitGroup

	for _, domain := range domains {
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			if err := s.gate.Acquire(cctx); err != nil {
				return
			}
			defer s.gate.Release()
			resultCh <- s.checker.Check(cctx, d)
		}(domain)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var results []core.CheckResult
	for res := range resultCh {
		s.metrics.RecordCheck(res)
		results = append(results, res)
	}
	return results
}

// applyResults feeds every completed result to the transition engine under
// the store's single writer, and returns the alerts that are due.
func (s *Scheduler) applyResults(results []core.CheckResult) []engine.NotificationPayload {
	var due []engine.NotificationPayload
	now := time.Now().UTC()

	s.store.MutateNoSave(func(st *core.TrackerState) error {
		for _, res := range results {
			name := core.NormalizeDomain(res.Domain)
			rec, ok := st.Domains[name]
			if !ok {
				// Removed by the control plane while the check was in
				// flight; do not resurrect the record.
				continue
			}
			out := engine.ApplyResult(rec, res, now)
			st.TotalChecks++
			if out.NotificationDue {
				due = append(due, out.Payload)
			}
			if out.StatusChanged {
				s.logger.Info("domain status changed",
					zap.String("domain", name),
					zap.String("status", string(rec.Status)),
					zap.String("protocol", string(res.Protocol)),
					zap.String("detail", res.RawDetail),
				)
			}
		}
		return nil
	})

	return due
}

func (s *Scheduler) deliverAlert(ctx context.Context, payload engine.NotificationPayload) {
	msg := notify.RenderAvailableAlert(payload.Domain, payload.FirstSeen)
	err := s.sink.Send(ctx, notify.ClassAvailableAlert, payload.Domain, msg)
	s.metrics.RecordNotification(string(notify.ClassAvailableAlert), err == nil)
	if err != nil {
		// At-most-once: the flag stays set, the alert is dropped.
		s.logger.Error("availability alert delivery failed",
			zap.String("domain", payload.Domain),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("availability alert sent", zap.String("domain", payload.Domain))
}

func (s *Scheduler) sendStatusReport(ctx context.Context, stats core.Stats) {
	msg := notify.RenderStatusReport(s.cycleCount, stats, s.store.Snapshot(), s.cfg.StatusReportCycles)
	err := s.sink.Send(ctx, notify.ClassStatusReport, "", msg)
	s.metrics.RecordNotification(string(notify.ClassStatusReport), err == nil)
	if err != nil {
		s.logger.Error("status report delivery failed", zap.Error(err))
		return
	}
	s.logger.Info("status report sent", zap.Uint64("cycle", s.cycleCount))
}
