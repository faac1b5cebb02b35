package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	statutorydomain "github.com/smallbiznis/payrollengine/internal/statutory/domain"
)

// YTDSource returns cumulative taxable earnings and TDS from LOCKED or PAID
// cycles of the fiscal year that started at fyStart, strictly before period.
type YTDSource interface {
	YearToDate(ctx context.Context, tenantID, employeeID snowflake.ID, fyStart time.Time, period Period) (YTD, error)
}

// BaselineSource returns the SUCCEEDED run of the employee's LOCKED or PAID
// regular cycle for period, or ErrNoRegularRun.
type BaselineSource interface {
	Baseline(ctx context.Context, tenantID, employeeID snowflake.ID, period Period) (*Baseline, error)
}

type CalculateRequest struct {
	TenantID         snowflake.ID
	EmployeeID       snowflake.ID
	Period           Period
	VariablePayments []VariablePayment
	// Supplementary computes VariablePayments on top of the period's
	// finalized regular run.
	Supplementary bool
}

// Prepared is an engine Input plus the provenance a run must record.
type Prepared struct {
	Input              Input
	Employee           *employeedomain.Employee
	StructureCode      string
	StructureVersion   int
	StructureVersionID snowflake.ID
	StructureRevision  int
	StatutoryConfigIDs map[statutorydomain.RuleType]snowflake.ID
}

// Calculation is a completed engine run for one employee.
type Calculation struct {
	Prepared *Prepared
	Result   Result
	Checksum string
}

type Service interface {
	// Prepare fetches every input for one employee. It performs all I/O the
	// calculation needs; nothing is read afterwards.
	Prepare(ctx context.Context, req CalculateRequest) (*Prepared, error)
	// Calculate prepares and runs the engine. Prepared is returned alongside
	// calculation errors whenever the inputs were resolved.
	Calculate(ctx context.Context, req CalculateRequest) (*Calculation, error)
	// Preview is Calculate for the HTTP preview endpoint; nothing is persisted.
	Preview(ctx context.Context, req PreviewRequest) (*PreviewResponse, error)
}

type PreviewRequest struct {
	TenantID         snowflake.ID      `json:"-"`
	EmployeeID       string            `json:"employee_id"`
	Month            int               `json:"month"`
	Year             int               `json:"year"`
	VariablePayments []VariablePayment `json:"variable_payments"`
	Supplementary    bool              `json:"supplementary"`
}

type PreviewResponse struct {
	EmployeeID         string            `json:"employee_id"`
	Period             string            `json:"period"`
	StructureCode      string            `json:"structure_code"`
	StructureVersion   int               `json:"structure_version"`
	StatutoryConfigIDs map[string]string `json:"statutory_config_ids,omitempty"`
	Result             Result            `json:"result"`
	Checksum           string            `json:"checksum"`
}
