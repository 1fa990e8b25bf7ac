package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the Prometheus vectors the engine writes to while
// driving a plan.
//
// Grounded on internal/metrics/collector.go's promauto registration
// style, re-scoped from HTTP/LLM/agent domains to migration execution.
type Collector struct {
	migrationsApplied    *prometheus.CounterVec
	migrationsRolledBack *prometheus.CounterVec
	stepDuration         *prometheus.HistogramVec
	lockWaitDuration     prometheus.Histogram
	lockAcquireTotal     *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers every Yoyo metric under namespace (typically
// "yoyo") and returns a Collector ready to record against them.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.migrationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_applied_total",
			Help:      "Total number of migrations successfully applied",
		},
		[]string{"backend"},
	)

	c.migrationsRolledBack = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_rolled_back_total",
			Help:      "Total number of migrations successfully rolled back",
		},
		[]string{"backend"},
	)

	c.stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of a single migration step, regardless of outcome",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"direction", "outcome"},
	)

	c.lockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting to acquire the cross-process migration lock",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	c.lockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquire_total",
			Help:      "Total number of lock acquisition attempts by outcome",
		},
		[]string{"outcome"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordMigrationApplied increments the applied counter for backend.
// Safe to call on a nil Collector (metrics disabled).
func (c *Collector) RecordMigrationApplied(backend string) {
	if c == nil {
		return
	}
	c.migrationsApplied.WithLabelValues(backend).Inc()
}

// RecordMigrationRolledBack increments the rollback counter for backend.
// Safe to call on a nil Collector (metrics disabled).
func (c *Collector) RecordMigrationRolledBack(backend string) {
	if c == nil {
		return
	}
	c.migrationsRolledBack.WithLabelValues(backend).Inc()
}

// RecordStepDuration observes a step's wall-clock time. outcome is one
// of "ok", "ignored" or "failed". Safe to call on a nil Collector.
func (c *Collector) RecordStepDuration(direction, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(direction, outcome).Observe(d.Seconds())
}

// RecordLockWait observes how long a lock acquisition attempt waited,
// and tags the outcome ("acquired" or "timeout"). Safe to call on a nil
// Collector.
func (c *Collector) RecordLockWait(d time.Duration, outcome string) {
	if c == nil {
		return
	}
	c.lockWaitDuration.Observe(d.Seconds())
	c.lockAcquireTotal.WithLabelValues(outcome).Inc()
}
