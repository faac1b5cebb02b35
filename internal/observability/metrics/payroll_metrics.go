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
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonUnknown              = "unknown"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// PayrollMetrics captures batch health signals for payroll cycles and the scheduler.
type PayrollMetrics struct {
	employeeRuns     *prometheus.CounterVec
	calcDuration     prometheus.Histogram
	batchDuration    prometheus.Histogram
	inFlight         prometheus.Gauge
	cycleTransitions *prometheus.CounterVec
	lockConflicts    prometheus.Counter
	reconciliations  *prometheus.CounterVec
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobErrors        *prometheus.CounterVec
}

var (
	payrollMetricsOnce sync.Once
	payrollMetrics     *PayrollMetrics
)

// Payroll returns the process-wide payroll metrics registry.
func Payroll() *PayrollMetrics {
	return PayrollWithConfig(Config{})
}

// PayrollWithConfig returns the singleton registered against the default registerer.
func PayrollWithConfig(cfg Config) *PayrollMetrics {
	payrollMetricsOnce.Do(func() {
		payrollMetrics = NewPayrollMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return payrollMetrics
}

// ResetPayrollMetricsForTest resets the singleton for tests.
func ResetPayrollMetricsForTest() {
	payrollMetricsOnce = sync.Once{}
	payrollMetrics = nil
}

func NewPayrollMetrics(registerer prometheus.Registerer, cfg Config) *PayrollMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "payrollengine"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &PayrollMetrics{
		employeeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payroll_employee_runs_total",
			Help:        "Per-employee payroll calculations by outcome and failure code.",
			ConstLabels: constLabels,
		}, []string{"outcome", "code"}),
		calcDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "payroll_employee_calculation_seconds",
			Help:        "Latency of one employee calculation including input resolution.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			ConstLabels: constLabels,
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "payroll_cycle_batch_seconds",
			Help:        "Wall time of a cycle batch run.",
			Buckets:     []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800},
			ConstLabels: constLabels,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "payroll_worker_in_flight",
			Help:        "Employee calculations currently executing in the worker pool.",
			ConstLabels: constLabels,
		}),
		cycleTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payroll_cycle_transition_total",
			Help:        "Payroll cycle lifecycle transitions.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		lockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "payroll_cycle_lock_conflict_total",
			Help:        "Lock requests that lost the race to a concurrent lock.",
			ConstLabels: constLabels,
		}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payroll_extract_reconciliation_total",
			Help:        "Extract reconciliation checks by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payroll_scheduler_job_runs_total",
			Help:        "Scheduler job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "payroll_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "payroll_scheduler_job_errors_total",
			Help:        "Scheduler job errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
	}

	registerer.MustRegister(
		m.employeeRuns,
		m.calcDuration,
		m.batchDuration,
		m.inFlight,
		m.cycleTransitions,
		m.lockConflicts,
		m.reconciliations,
		m.jobRuns,
		m.jobDuration,
		m.jobErrors,
	)
	return m
}

// ObserveEmployeeRun records one employee calculation; code is empty on success.
func (m *PayrollMetrics) ObserveEmployeeRun(code string, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSucceeded
	if code != "" {
		outcome = OutcomeFailed
	}
	m.employeeRuns.WithLabelValues(outcome, code).Inc()
	m.calcDuration.Observe(duration.Seconds())
}

func (m *PayrollMetrics) ObserveBatch(duration time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(duration.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns its release.
func (m *PayrollMetrics) TrackInFlight() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

func (m *PayrollMetrics) IncCycleTransition(from, to string) {
	if m == nil {
		return
	}
	m.cycleTransitions.WithLabelValues(from, to).Inc()
}

func (m *PayrollMetrics) IncLockConflict() {
	if m == nil {
		return
	}
	m.lockConflicts.Inc()
}

func (m *PayrollMetrics) IncReconciliation(ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeSucceeded
	if !ok {
		outcome = OutcomeFailed
	}
	m.reconciliations.WithLabelValues(outcome).Inc()
}

func (m *PayrollMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *PayrollMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *PayrollMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

// ClassifyJobReason maps errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return JobReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return JobReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return JobReasonUniqueViolation
	default:
		return JobReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
