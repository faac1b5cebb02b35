package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	attendancedomain "github.com/smallbiznis/payrollengine/internal/attendance/domain"
	auditdomain "github.com/smallbiznis/payrollengine/internal/audit/domain"
	"github.com/smallbiznis/payrollengine/internal/authorization"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	extractdomain "github.com/smallbiznis/payrollengine/internal/extract/domain"
	payrolldomain "github.com/smallbiznis/payrollengine/internal/payroll/domain"
	payrollcycledomain "github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	statutorydomain "github.com/smallbiznis/payrollengine/internal/statutory/domain"
	tenantsettingsdomain "github.com/smallbiznis/payrollengine/internal/tenantsettings/domain"
	"github.com/smallbiznis/payrollengine/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

// CalculationError carries the failure code of an employee-level calculation
// error out of the preview endpoint.
type CalculationError struct {
	Code payrolldomain.FailureCode
	Err  error
}

func (e *CalculationError) Error() string { return e.Err.Error() }

func (e *CalculationError) Unwrap() error { return e.Err }

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
	ErrTenantRequired     = errors.New("tenant_required")
)

var validationErrors = []error{
	ErrInvalidRequest,
	ErrTenantRequired,
	payrolldomain.ErrInvalidPeriod,
	payrolldomain.ErrInvalidVariablePayment,
	payrolldomain.ErrInvalidInput,
	attendancedomain.ErrInvalidPeriod,
	payrollcycledomain.ErrInvalidTenant,
	payrollcycledomain.ErrInvalidRunType,
	payrollcycledomain.ErrEmployeeNotInScope,
	statutorydomain.ErrInvalidTenant,
	statutorydomain.ErrInvalidRuleType,
	statutorydomain.ErrInvalidRate,
	statutorydomain.ErrInvalidBands,
	statutorydomain.ErrInvalidEffectiveRange,
	statutorydomain.ErrInvalidBaseComponents,
	salarystructuredomain.ErrInvalidTenant,
	salarystructuredomain.ErrInvalidCode,
	salarystructuredomain.ErrInvalidName,
	salarystructuredomain.ErrInvalidEffectiveFrom,
	salarystructuredomain.ErrEmptyStructure,
	salarystructuredomain.ErrInvalidComponent,
	salarystructuredomain.ErrDuplicateComponent,
	salarystructuredomain.ErrUnknownComputation,
	salarystructuredomain.ErrUnknownComponentKind,
	salarystructuredomain.ErrMissingBaseComponent,
	salarystructuredomain.ErrInvalidFormula,
	salarystructuredomain.ErrUnknownReference,
	salarystructuredomain.ErrCyclicComponentDependency,
	tenantsettingsdomain.ErrInvalidTenant,
	tenantsettingsdomain.ErrInvalidPrecision,
	tenantsettingsdomain.ErrInvalidFYStart,
	auditdomain.ErrInvalidTenant,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	pagination.ErrInvalidCursor,
	extractdomain.ErrInvalidTenant,
	extractdomain.ErrUnsupportedFormat,
}

var notFoundErrors = []error{
	ErrNotFound,
	payrollcycledomain.ErrCycleNotFound,
	payrollcycledomain.ErrRunNotFound,
	employeedomain.ErrNotFound,
	salarystructuredomain.ErrStructureNotFound,
	gorm.ErrRecordNotFound,
}

// Batch-integrity errors: the requested transition is refused and the
// cycle keeps its current state.
var conflictErrors = []error{
	ErrConflict,
	payrollcycledomain.ErrDuplicateCycle,
	payrollcycledomain.ErrInvalidTransition,
	payrollcycledomain.ErrIncompleteCycle,
	payrollcycledomain.ErrCycleAlreadyLocked,
	payrollcycledomain.ErrCycleLocked,
	payrollcycledomain.ErrCycleBusy,
	salarystructuredomain.ErrStructureVersionChanged,
	statutorydomain.ErrOverlappingConfig,
	extractdomain.ErrCycleNotFinalized,
	gorm.ErrDuplicatedKey,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var calcErr *CalculationError
	if errors.As(err, &calcErr) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "calculation_failed",
			Message: "payroll calculation failed",
			Code:    string(calcErr.Code),
		}
	}

	if matched := firstMatch(err, validationErrors); matched != nil {
		code := matched.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, extractdomain.ErrExtractReconciliationFailed):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "reconciliation_failed",
			Message: "extract totals do not match the locked cycle",
			Code:    extractdomain.ErrExtractReconciliationFailed.Error(),
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	}

	if matched := firstMatch(err, notFoundErrors); matched != nil {
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
			Code:    matched.Error(),
		}
	}
	if matched := firstMatch(err, conflictErrors); matched != nil {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
			Code:    matched.Error(),
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog feeds the request logger the same taxonomy the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func firstMatch(err error, candidates []error) error {
	for _, candidate := range candidates {
		if errors.Is(err, candidate) {
			return candidate
		}
	}
	return nil
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "tenant_required":
		return "tenant"
	case "employee_not_in_scope":
		return "employee_ids"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "tenant_required":
		return "X-Tenant-ID header is required"
	case "employee_not_in_scope":
		return "employee is not in scope for the period"
	default:
		return "invalid value"
	}
}
