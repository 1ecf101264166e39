package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leozw/domain-tracker/internal/core"
)

type Collector struct {
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	checkErrors   *prometheus.CounterVec

	domainsByStatus *prometheus.GaugeVec

	cyclesTotal   prometheus.Counter
	cycleDuration prometheus.Histogram

	notificationsTotal *prometheus.CounterVec

	protocolBackoff *prometheus.GaugeVec
}

// NewCollector registers the tracker's metrics with reg. The entrypoint
// passes prometheus.DefaultRegisterer; tests pass a private registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_checks_total",
				Help: "Total number of domain checks performed",
			},
			[]string{"protocol", "classification"},
		),

		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_check_duration_seconds",
				Help:    "Duration of domain checks in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25},
			},
			[]string{"protocol"},
		),

		checkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_check_errors_total",
				Help: "Total number of failed or inconclusive checks",
			},
			[]string{"protocol"},
		),

		domainsByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tracker_domains",
				Help: "Number of tracked domains by current status",
			},
			[]string{"status"},
		),

		cyclesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracker_cycles_total",
				Help: "Total number of completed monitoring cycles",
			},
		),

		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tracker_cycle_duration_seconds",
				Help:    "Wall time of a full monitoring cycle in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		),

		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_notifications_total",
				Help: "Notifications attempted, by destination class and outcome",
			},
			[]string{"class", "outcome"},
		),

		protocolBackoff: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tracker_protocol_backoff_seconds",
				Help: "Remaining rate-limit backoff per upstream protocol",
			},
			[]string{"protocol"},
		),
	}
}

func (c *Collector) RecordCheck(result core.CheckResult) {
	c.checksTotal.WithLabelValues(string(result.Protocol), string(result.Classification)).Inc()
	c.checkDuration.WithLabelValues(string(result.Protocol)).Observe(result.Duration.Seconds())
	if result.Err != nil {
		c.checkErrors.WithLabelValues(string(result.Protocol)).Inc()
	}
}

func (c *Collector) RecordCycle(duration float64, stats core.Stats) {
	c.cyclesTotal.Inc()
	c.cycleDuration.Observe(duration)
	c.domainsByStatus.WithLabelValues(string(core.StatusUnregistered)).Set(float64(stats.Unregistered))
	c.domainsByStatus.WithLabelValues(string(core.StatusRegistered)).Set(float64(stats.Registered))
	c.domainsByStatus.WithLabelValues(string(core.StatusUnknown)).Set(float64(stats.Unknown))
}

func (c *Collector) RecordNotification(class string, success bool) {
	outcome := "sent"
	if !success {
		outcome = "failed"
	}
	c.notificationsTotal.WithLabelValues(class, outcome).Inc()
}

func (c *Collector) RecordBackoff(protocol core.Protocol, seconds float64) {
	c.protocolBackoff.WithLabelValues(string(protocol)).Set(seconds)
}
