package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcilerMetrics wraps collectors tracking order reconciliation health.
type ReconcilerMetrics struct {
	sweepRuns     *prometheus.CounterVec
	sweepOrders   *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	verifications *prometheus.CounterVec
	grants        *prometheus.CounterVec
}

var (
	reconcilerOnce sync.Once
	reconcilerReg  *ReconcilerMetrics
)

// Reconciler returns the lazily-initialised metrics registry shared by the
// sweep, the directed check, and the status poll.
func Reconciler() *ReconcilerMetrics {
	reconcilerOnce.Do(func() {
		reconcilerReg = &ReconcilerMetrics{
			sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "botstore",
				Subsystem: "sweep",
				Name:      "runs_total",
				Help:      "Count of sweep invocations segmented by outcome.",
			}, []string{"outcome"}),
			sweepOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "botstore",
				Subsystem: "sweep",
				Name:      "orders_total",
				Help:      "Count of orders handled by the sweep segmented by result.",
			}, []string{"result"}),
			sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "botstore",
				Subsystem: "sweep",
				Name:      "duration_seconds",
				Help:      "Latency distribution of sweep runs.",
				Buckets:   prometheus.DefBuckets,
			}),
			verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "botstore",
				Subsystem: "verify",
				Name:      "requests_total",
				Help:      "Count of directed verification requests segmented by resulting status.",
			}, []string{"status"}),
			grants: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "botstore",
				Subsystem: "grant",
				Name:      "attempts_total",
				Help:      "Count of access-grant attempts segmented by path and outcome.",
			}, []string{"path", "outcome"}),
		}
		prometheus.MustRegister(
			reconcilerReg.sweepRuns,
			reconcilerReg.sweepOrders,
			reconcilerReg.sweepDuration,
			reconcilerReg.verifications,
			reconcilerReg.grants,
		)
	})
	return reconcilerReg
}

// RecordSweep records one sweep run.
func (m *ReconcilerMetrics) RecordSweep(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.sweepRuns.WithLabelValues(outcome).Inc()
	m.sweepDuration.Observe(duration.Seconds())
}

// RecordSweepOrder records the result of one order within a sweep run.
// Results should be stable strings such as "updated", "waiting", or "error".
func (m *ReconcilerMetrics) RecordSweepOrder(result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.sweepOrders.WithLabelValues(result).Inc()
}

// RecordVerification records the status returned by one directed check.
func (m *ReconcilerMetrics) RecordVerification(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.verifications.WithLabelValues(status).Inc()
}

// RecordGrant records one access-grant attempt. Path is "verify" for the
// inline directed-check grant and "poll" for the deferred status-poll grant.
func (m *ReconcilerMetrics) RecordGrant(path string, granted bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if granted {
		outcome = "success"
	}
	m.grants.WithLabelValues(path, outcome).Inc()
}
