package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	DispatcherErrorReasonDeadlineExceeded = "deadline_exceeded"
	DispatcherErrorReasonDB               = "db"
	DispatcherErrorReasonProvider         = "provider"
	DispatcherErrorReasonUnknown          = "unknown"
)

// DispatcherMetrics captures reminder dispatcher health signals.
type DispatcherMetrics struct {
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	errorsV    *prometheus.CounterVec
	dispatched *prometheus.CounterVec
	runLoopLag prometheus.Observer
}

var (
	dispatcherMetricsOnce sync.Once
	dispatcherMetrics     *DispatcherMetrics
)

// Dispatcher returns the singleton dispatcher metrics registry.
func Dispatcher() *DispatcherMetrics {
	return DispatcherWithConfig(Config{})
}

// DispatcherWithConfig returns the singleton dispatcher metrics registry using config labels.
func DispatcherWithConfig(cfg Config) *DispatcherMetrics {
	dispatcherMetricsOnce.Do(func() {
		dispatcherMetrics = newDispatcherMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return dispatcherMetrics
}

// ResetDispatcherMetricsForTest resets the dispatcher metrics singleton for tests.
func ResetDispatcherMetricsForTest() {
	dispatcherMetricsOnce = sync.Once{}
	dispatcherMetrics = nil
}

func newDispatcherMetrics(registerer prometheus.Registerer, cfg Config) *DispatcherMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "kasira"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kasira_dispatcher_runs_total",
		Help:        "Reminder dispatcher runs by job.",
		ConstLabels: constLabels,
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "kasira_dispatcher_run_duration_seconds",
		Help:        "Reminder dispatcher run latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"job"})
	errorsV := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kasira_dispatcher_errors_total",
		Help:        "Reminder dispatcher errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "kasira_dispatcher_reminders_total",
		Help:        "Reminders processed per run by outcome.",
		ConstLabels: constLabels,
	}, []string{"job", "outcome"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "kasira_dispatcher_runloop_lag_seconds",
		Help:        "Dispatcher run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(runs, duration, errorsV, dispatched, runLoopLag)

	return &DispatcherMetrics{
		runs:       runs,
		duration:   duration,
		errorsV:    errorsV,
		dispatched: dispatched,
		runLoopLag: runLoopLag,
	}
}

// IncRun increments the run counter for a dispatcher job.
func (m *DispatcherMetrics) IncRun(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

// ObserveRunDuration records dispatcher run latency in seconds.
func (m *DispatcherMetrics) ObserveRunDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncError increments the dispatcher error counter with classification.
func (m *DispatcherMetrics) IncError(job string, err error) {
	if m == nil || m.errorsV == nil || err == nil {
		return
	}
	m.errorsV.WithLabelValues(job, ClassifyDispatcherError(err)).Inc()
}

// AddDispatched increments processed reminder counts by outcome.
func (m *DispatcherMetrics) AddDispatched(job, outcome string, count int) {
	if m == nil || m.dispatched == nil || count <= 0 {
		return
	}
	m.dispatched.WithLabelValues(job, outcome).Add(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *DispatcherMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifyDispatcherError maps dispatcher errors to low-cardinality reasons.
func ClassifyDispatcherError(err error) string {
	if err == nil {
		return DispatcherErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return DispatcherErrorReasonDeadlineExceeded
	}
	if isDBError(err) {
		return DispatcherErrorReasonDB
	}
	return DispatcherErrorReasonUnknown
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
