package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	"gorm.io/gorm"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "failed"),
		attribute.String("employee_id", "456"),
		attribute.String("failure_code", "NEGATIVE_NET_PAY"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "employee_id" {
			t.Fatalf("employee_id must not be exported as a label")
		}
	}
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	// Recording against a noop provider must not panic.
	m.RecordRun(context.Background(), "")
	m.RecordCycleTransition(context.Background(), "IN_PROGRESS", "LOCKED")
	m.RecordExtract(context.Background(), "ecr", nil)

	var nilMetrics *Metrics
	nilMetrics.RecordRun(context.Background(), "X")
}

func TestPayrollMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPayrollMetrics(reg, Config{ServiceName: "test", Environment: "test"})

	m.ObserveEmployeeRun("", 10*time.Millisecond)
	m.ObserveEmployeeRun("NEGATIVE_NET_PAY", 5*time.Millisecond)
	m.IncCycleTransition("IN_PROGRESS", "LOCKED")
	m.IncLockConflict()
	m.IncLockConflict()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.employeeRuns.WithLabelValues(OutcomeSucceeded, "")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.employeeRuns.WithLabelValues(OutcomeFailed, "NEGATIVE_NET_PAY")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cycleTransitions.WithLabelValues("IN_PROGRESS", "LOCKED")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.lockConflicts))

	release := m.TrackInFlight()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.inFlight))
	release()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.inFlight))
}

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, JobReasonDeadlineExceeded},
		{fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "55P03"}), JobReasonDBLockTimeout},
		{&pgconn.PgError{Code: "40001"}, JobReasonSerializationFailure},
		{gorm.ErrDuplicatedKey, JobReasonUniqueViolation},
		{errors.New("boom"), JobReasonUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyJobReason(tc.err), tc.err.Error())
	}
}

func TestHTTPMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := newHTTPMetrics(reg, Config{ServiceName: "test"})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/cycles/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cycles/42", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/cycles/:id", "200")))
}
