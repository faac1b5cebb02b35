package domain

import (
	"errors"

	attendancedomain "github.com/smallbiznis/payrollengine/internal/attendance/domain"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	statutorydomain "github.com/smallbiznis/payrollengine/internal/statutory/domain"
)

var (
	ErrNegativeNetPay = errors.New("negative_net_pay_detected")
	ErrInvalidPeriod  = errors.New("invalid_period")
	ErrInvalidInput   = errors.New("invalid_calculation_input")
	ErrMissingRule    = errors.New("missing_statutory_rule")

	ErrInvalidVariablePayment = errors.New("invalid_variable_payment")
	// ErrNoRegularRun fails a supplementary run when the period has no
	// finalized regular run to add to.
	ErrNoRegularRun = errors.New("no_finalized_regular_run")
)

// FailureCode is the per-employee failure classification stored on FAILED runs.
// These codes are persisted. Do NOT rename.
type FailureCode string

const (
	FailureConfigNotFound       FailureCode = "CONFIG_NOT_FOUND"
	FailureInvalidStatutory     FailureCode = "INVALID_STATUTORY_CONFIG"
	FailureCyclicDependency     FailureCode = "CYCLIC_COMPONENT_DEPENDENCY"
	FailureInvalidStructure     FailureCode = "INVALID_STRUCTURE"
	FailureStructureNotFound    FailureCode = "STRUCTURE_NOT_FOUND"
	FailureCompensationNotFound FailureCode = "COMPENSATION_NOT_FOUND"
	FailureEmployeeNotFound     FailureCode = "EMPLOYEE_NOT_FOUND"
	FailureNoAttendanceData     FailureCode = "NO_ATTENDANCE_DATA"
	FailureNegativeNetPay       FailureCode = "NEGATIVE_NET_PAY_DETECTED"
	FailureNoRegularRun         FailureCode = "NO_REGULAR_RUN"
	FailureInternal             FailureCode = "INTERNAL"
)

// FailureCodeFor classifies an employee-level calculation error.
func FailureCodeFor(err error) FailureCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, statutorydomain.ErrConfigNotFound), errors.Is(err, ErrMissingRule):
		return FailureConfigNotFound
	case errors.Is(err, statutorydomain.ErrUnknownBaseComponent):
		return FailureInvalidStatutory
	case errors.Is(err, salarystructuredomain.ErrCyclicComponentDependency):
		return FailureCyclicDependency
	case errors.Is(err, salarystructuredomain.ErrStructureNotFound), errors.Is(err, salarystructuredomain.ErrNoDefaultStructure):
		return FailureStructureNotFound
	case errors.Is(err, salarystructuredomain.ErrUnknownComputation),
		errors.Is(err, salarystructuredomain.ErrUnknownComponentKind),
		errors.Is(err, salarystructuredomain.ErrMissingBaseComponent),
		errors.Is(err, salarystructuredomain.ErrInvalidFormula),
		errors.Is(err, salarystructuredomain.ErrUnknownReference),
		errors.Is(err, salarystructuredomain.ErrDuplicateComponent),
		errors.Is(err, salarystructuredomain.ErrEmptyStructure),
		errors.Is(err, salarystructuredomain.ErrInvalidComponent),
		errors.Is(err, salarystructuredomain.ErrComponentEvaluationFailure):
		return FailureInvalidStructure
	case errors.Is(err, employeedomain.ErrCompensationNotFound):
		return FailureCompensationNotFound
	case errors.Is(err, employeedomain.ErrNotFound):
		return FailureEmployeeNotFound
	case errors.Is(err, attendancedomain.ErrNoAttendanceData):
		return FailureNoAttendanceData
	case errors.Is(err, ErrNegativeNetPay):
		return FailureNegativeNetPay
	case errors.Is(err, ErrNoRegularRun):
		return FailureNoRegularRun
	default:
		return FailureInternal
	}
}

// IsEmployeeFailure reports whether err blocks only one employee rather than the batch.
func IsEmployeeFailure(err error) bool {
	code := FailureCodeFor(err)
	return code != "" && code != FailureInternal
}
