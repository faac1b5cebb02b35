package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payrollengine/internal/authorization"
	"github.com/smallbiznis/payrollengine/internal/config"
	extractdomain "github.com/smallbiznis/payrollengine/internal/extract/domain"
	"github.com/smallbiznis/payrollengine/internal/observability"
	payrolldomain "github.com/smallbiznis/payrollengine/internal/payroll/domain"
	payrollcycledomain "github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	statutorydomain "github.com/smallbiznis/payrollengine/internal/statutory/domain"
	"github.com/smallbiznis/payrollengine/internal/tenantcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTenant = "1001"

type stubCycleService struct {
	payrollcycledomain.Service

	lockErr   error
	lockedBy  string
	getErr    error
	runReq    payrollcycledomain.RunCycleRequest
	runResult *payrollcycledomain.RunCycleResult
	oneReq    payrollcycledomain.RunEmployeeRequest
	oneErr    error
}

func (s *stubCycleService) RunEmployee(ctx context.Context, req payrollcycledomain.RunEmployeeRequest) (*payrollcycledomain.Run, error) {
	s.oneReq = req
	if s.oneErr != nil {
		return nil, s.oneErr
	}
	return &payrollcycledomain.Run{CycleID: req.CycleID, EmployeeID: req.EmployeeID}, nil
}

func (s *stubCycleService) LockCycle(ctx context.Context, tenantID, cycleID snowflake.ID) (*payrollcycledomain.Cycle, error) {
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	s.lockedBy = tenantcontext.ActorFromContext(ctx).ID
	return &payrollcycledomain.Cycle{ID: cycleID, TenantID: tenantID, Status: payrollcycledomain.CycleStatusLocked}, nil
}

func (s *stubCycleService) GetCycle(ctx context.Context, tenantID, cycleID snowflake.ID) (*payrollcycledomain.Cycle, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &payrollcycledomain.Cycle{ID: cycleID, TenantID: tenantID, Status: payrollcycledomain.CycleStatusDraft}, nil
}

func (s *stubCycleService) RunCycle(ctx context.Context, req payrollcycledomain.RunCycleRequest) (*payrollcycledomain.RunCycleResult, error) {
	s.runReq = req
	return s.runResult, nil
}

type stubPayrollService struct {
	payrolldomain.Service

	err error
}

func (s *stubPayrollService) Preview(ctx context.Context, req payrolldomain.PreviewRequest) (*payrolldomain.PreviewResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &payrolldomain.PreviewResponse{EmployeeID: req.EmployeeID, Period: fmt.Sprintf("%04d-%02d", req.Year, req.Month)}, nil
}

type stubExtractService struct {
	extractdomain.Service

	err error
}

func (s *stubExtractService) Render(ctx context.Context, req extractdomain.GenerateRequest) (*extractdomain.Rendered, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &extractdomain.Rendered{
		Extract:     &extractdomain.Extract{ID: "01HZX"},
		Format:      req.Format,
		ContentType: "text/plain; charset=utf-8",
		Filename:    "ECR_202406_regular_01HZX.txt",
		Body:        []byte("100000000001#~#ASHA#~#30000.00\n"),
	}, nil
}

type stubAuthz struct {
	err   error
	calls []string
}

func (s *stubAuthz) Authorize(ctx context.Context, tenantID snowflake.ID, object, action string) error {
	s.calls = append(s.calls, action)
	return s.err
}

type testServer struct {
	engine   *gin.Engine
	cycles   *stubCycleService
	payroll  *stubPayrollService
	extracts *stubExtractService
}

func newTestServer(t *testing.T, cfg config.Config, authz authorization.Service) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		engine:   NewEngine(observability.Config{}, nil),
		cycles:   &stubCycleService{},
		payroll:  &stubPayrollService{},
		extracts: &stubExtractService{},
	}
	NewServer(ServerParams{
		Gin:        ts.engine,
		Cfg:        cfg,
		Log:        zap.NewNop(),
		PayrollSvc: ts.payroll,
		CycleSvc:   ts.cycles,
		ExtractSvc: ts.extracts,
		AuthzSvc:   authz,
	})
	return ts
}

func (ts *testServer) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func tenantHeaders() map[string]string {
	return map[string]string{HeaderTenant: testTenant, HeaderActorID: "42", HeaderActorRole: "payroll_admin"}
}

func TestTenantHeaderRequired(t *testing.T) {
	ts := newTestServer(t, config.Config{}, nil)

	rec := ts.do(http.MethodGet, "/api/payroll/cycles/5", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "tenant_required", payload.Errors[0].Code)

	rec = ts.do(http.MethodGet, "/api/payroll/cycles/5", nil, map[string]string{HeaderTenant: "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLockCycleIncompleteIsConflict(t *testing.T) {
	ts := newTestServer(t, config.Config{}, nil)
	ts.cycles.lockErr = fmt.Errorf("1 of 2 employees have a successful run: %w", payrollcycledomain.ErrIncompleteCycle)

	rec := ts.do(http.MethodPost, "/api/payroll/cycles/5/lock", nil, tenantHeaders())
	assert.Equal(t, http.StatusConflict, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "conflict", payload.Type)
	assert.Equal(t, "incomplete_cycle", payload.Code)
}

func TestLockCyclePassesActor(t *testing.T) {
	ts := newTestServer(t, config.Config{}, nil)

	rec := ts.do(http.MethodPost, "/api/payroll/cycles/5/lock", nil, tenantHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", ts.cycles.lockedBy)
}

func TestGetCycleNotFound(t *testing.T) {
	ts := newTestServer(t, config.Config{}, nil)
	ts.cycles.getErr = payrollcycledomain.ErrCycleNotFound

	rec := ts.do(http.MethodGet, "/api/payroll/cycles/5", nil, tenantHeaders())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "payroll_cycle_not_found", decodeError(t, rec).Code)

	rec = ts.do(http.MethodGet, "/api/payroll/cycles/not-an-id", nil, tenantHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunCycleNormalizesRunType(t *testing.T) {
	ts := newTestServer(t, config.Config{}, nil)
	ts.cycles.runResult = &payrollcycledomain.RunCycleResult{Attempted: 2, Succeeded: 2}

	rec := ts.do(http.MethodPost, "/api/payroll/cycles/run", gin.H{
		"month":        6,
		"year":         2024,
		"run_type":     "regular",
		"employee_ids": []string{"7"},
	}, tenantHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payrollcycledomain.RunTypeRegular, ts.cycles.runReq.RunType)
	assert.Equal(t, snowflake.ID(1001), ts.cycles.runReq.TenantID)
	assert.Equal(t, []string{"7"}, ts.cycles.runReq.EmployeeIDs)
}

func TestRunCyclePassesVariablePayments(t *testing.T) {
	ts := newTestServer(t, config.Config{}, nil)
	ts.cycles.runResult = &payrollcycledomain.RunCycleResult{}

	rec := ts.do(http.MethodPost, "/api/payroll/cycles/run", gin.H{
		"month": 6,
		"year":  2024,
		"variable_payments": gin.H{
			"7": []gin.H{{"code": "bonus", "amount": "2500.50", "taxable": true}},
		},
	}, tenantHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.cycles.runReq.VariablePayments["7"], 1)
	got := ts.cycles.runReq.VariablePayments["7"][0]
	assert.Equal(t, "bonus", got.Code)
	assert.Equal(t, "2500.5", got.Amount.String())
	assert.True(t, got.Taxable)
}

func TestRunEmployeeVariablePaymentsAreOptional(t *testing.T) {
	ts := newTestServer(t, config.Config{}, nil)

	rec := ts.do(http.MethodPost, "/api/payroll/cycles/5/employees/7/run", nil, tenantHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, ts.cycles.oneReq.VariablePayments)

	rec = ts.do(http.MethodPost, "/api/payroll/cycles/5/employees/7/run", gin.H{"variable_payments": []gin.H{}}, tenantHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ts.cycles.oneReq.VariablePayments)
	assert.Empty(t, *ts.cycles.oneReq.VariablePayments)

	ts.cycles.oneErr = fmt.Errorf("component HRA: %w", salarystructuredomain.ErrStructureVersionChanged)
	rec = ts.do(http.MethodPost, "/api/payroll/cycles/5/employees/7/run", nil, tenantHeaders())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "structure_version_changed", decodeError(t, rec).Code)
}

func TestPreviewCalculationFailure(t *testing.T) {
	ts := newTestServer(t, config.Config{}, nil)
	ts.payroll.err = fmt.Errorf("resolve PF: %w", statutorydomain.ErrConfigNotFound)

	rec := ts.do(http.MethodPost, "/api/payroll/preview", gin.H{"employee_id": "7", "month": 6, "year": 2024}, tenantHeaders())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "calculation_failed", payload.Type)
	assert.Equal(t, string(payrolldomain.FailureConfigNotFound), payload.Code)
}

func TestPreviewInvalidPeriod(t *testing.T) {
	ts := newTestServer(t, config.Config{}, nil)
	ts.payroll.err = payrolldomain.ErrInvalidPeriod

	rec := ts.do(http.MethodPost, "/api/payroll/preview", gin.H{"employee_id": "7", "month": 13, "year": 2024}, tenantHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateExtractDownloadsECR(t *testing.T) {
	ts := newTestServer(t, config.Config{}, nil)

	rec := ts.do(http.MethodGet, "/api/payroll/cycles/5/extract?format=ecr", nil, tenantHeaders())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ECR_202406_regular_01HZX.txt")
	assert.Equal(t, "100000000001#~#ASHA#~#30000.00\n", rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/payroll/cycles/5/extract?format=xml", nil, tenantHeaders())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.extracts.err = fmt.Errorf("pf_employer: %w", extractdomain.ErrExtractReconciliationFailed)
	rec = ts.do(http.MethodGet, "/api/payroll/cycles/5/extract", nil, tenantHeaders())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "reconciliation_failed", decodeError(t, rec).Type)
}

func TestAuthorizationGate(t *testing.T) {
	authz := &stubAuthz{err: authorization.ErrForbidden}
	ts := newTestServer(t, config.Config{AuthzEnabled: true}, authz)

	rec := ts.do(http.MethodPost, "/api/payroll/cycles/5/lock", nil, tenantHeaders())
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, []string{authorization.ActionCycleLock}, authz.calls)
	assert.Empty(t, ts.cycles.lockedBy)

	rec = ts.do(http.MethodPost, "/api/payroll/cycles/5/lock", nil, map[string]string{HeaderTenant: testTenant})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	authz.err = nil
	rec = ts.do(http.MethodPost, "/api/payroll/cycles/5/lock", nil, tenantHeaders())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, config.Config{}, nil)

	rec := ts.do(http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{payrollcycledomain.ErrDuplicateCycle, http.StatusConflict},
		{payrollcycledomain.ErrCycleAlreadyLocked, http.StatusConflict},
		{payrollcycledomain.ErrInvalidTransition, http.StatusConflict},
		{payrollcycledomain.ErrCycleBusy, http.StatusConflict},
		{extractdomain.ErrCycleNotFinalized, http.StatusConflict},
		{statutorydomain.ErrOverlappingConfig, http.StatusConflict},
		{statutorydomain.ErrInvalidBands, http.StatusBadRequest},
		{payrollcycledomain.ErrEmployeeNotInScope, http.StatusBadRequest},
		{fmt.Errorf("%w: %w", payrolldomain.ErrInvalidVariablePayment, payrolldomain.ErrInvalidInput), http.StatusBadRequest},
		{salarystructuredomain.ErrStructureVersionChanged, http.StatusConflict},
		{ErrRateLimited, http.StatusTooManyRequests},
		{authorization.ErrInvalidActor, http.StatusUnauthorized},
		{ErrServiceUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}
