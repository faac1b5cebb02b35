package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	payrolldomain "github.com/smallbiznis/payrollengine/internal/payroll/domain"
	"gorm.io/gorm"
)

var (
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidRunType     = errors.New("invalid_run_type")
	ErrCycleNotFound      = errors.New("payroll_cycle_not_found")
	ErrRunNotFound        = errors.New("payroll_run_not_found")
	ErrDuplicateCycle     = errors.New("duplicate_payroll_cycle")
	ErrInvalidTransition  = errors.New("invalid_cycle_transition")
	ErrIncompleteCycle    = errors.New("incomplete_cycle")
	ErrCycleAlreadyLocked = errors.New("cycle_already_locked")
	// ErrCycleLocked rejects run writes against a LOCKED or PAID cycle.
	ErrCycleLocked        = errors.New("cycle_locked")
	ErrCycleBusy          = errors.New("cycle_busy")
	ErrEmployeeNotInScope = errors.New("employee_not_in_scope")
)

// Transition is a conditional status change. It applies only while the row
// still has From status and ExpectedVersion.
type Transition struct {
	TenantID        snowflake.ID
	CycleID         snowflake.ID
	From            CycleStatus
	To              CycleStatus
	ExpectedVersion int64
	At              time.Time
	Columns         map[string]any
}

type ListCyclesFilter struct {
	Status CycleStatus
	Year   int
	Limit  int
}

type Repository interface {
	InsertCycle(ctx context.Context, db *gorm.DB, cycle *Cycle) error
	FindCycle(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Cycle, error)
	FindCycleByKey(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, month, year int, runType RunType) (*Cycle, error)
	// FindCycleForUpdate reads the cycle with a row lock held until the
	// transaction ends.
	FindCycleForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Cycle, error)
	ListCycles(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListCyclesFilter) ([]Cycle, error)
	Transition(ctx context.Context, db *gorm.DB, t Transition) (bool, error)
	// TouchInProgress bumps version and updated_at only while the cycle is
	// IN_PROGRESS, which makes it the status guard for run writes in the same
	// transaction and invalidates any lock decided on the earlier version.
	TouchInProgress(ctx context.Context, db *gorm.DB, cycleID snowflake.ID, at time.Time) (bool, error)
	UpdateCounts(ctx context.Context, db *gorm.DB, cycleID snowflake.ID, employees, succeeded, failed int, at time.Time) error
	UpdateReconciliation(ctx context.Context, db *gorm.DB, cycleID snowflake.ID, status ReconciliationStatus, message string, at time.Time) error
	DeleteCycle(ctx context.Context, db *gorm.DB, tenantID, cycleID snowflake.ID, status CycleStatus, version int64) (bool, error)
	ListPaidUnreconciled(ctx context.Context, db *gorm.DB, limit int) ([]Cycle, error)

	ReplaceRun(ctx context.Context, db *gorm.DB, run *Run) error
	FindRun(ctx context.Context, db *gorm.DB, cycleID, employeeID snowflake.ID) (*Run, error)
	// DeleteRunsExcept removes runs of employees not in keep.
	DeleteRunsExcept(ctx context.Context, db *gorm.DB, cycleID snowflake.ID, keep []snowflake.ID) (int64, error)
	ListRuns(ctx context.Context, db *gorm.DB, tenantID, cycleID snowflake.ID) ([]Run, error)
	// ListFinalizedRuns returns SUCCEEDED runs of LOCKED or PAID cycles whose
	// period index (year*12 + month) lies in [fromIndex, toIndex).
	ListFinalizedRuns(ctx context.Context, db *gorm.DB, tenantID, employeeID snowflake.ID, fromIndex, toIndex int) ([]Run, error)
	// FindFinalizedRun returns the employee's SUCCEEDED run in the LOCKED or
	// PAID cycle with the given key.
	FindFinalizedRun(ctx context.Context, db *gorm.DB, tenantID, employeeID snowflake.ID, month, year int, runType RunType) (*Run, error)
}

// Reconciler checks a cycle's statutory extract against its stored totals.
type Reconciler interface {
	Reconcile(ctx context.Context, cycle *Cycle) error
}

type CreateCycleRequest struct {
	TenantID snowflake.ID `json:"-"`
	Month    int          `json:"month"`
	Year     int          `json:"year"`
	RunType  RunType      `json:"run_type"`
}

type RunCycleRequest struct {
	TenantID snowflake.ID `json:"-"`
	Month    int          `json:"month"`
	Year     int          `json:"year"`
	RunType  RunType      `json:"run_type"`
	// EmployeeIDs restricts the run to a subset of the in-scope employees.
	EmployeeIDs []string `json:"employee_ids"`
	// VariablePayments are keyed by employee ID. An employee without an
	// entry keeps the payments of their previous run; an empty list clears
	// them.
	VariablePayments map[string][]payrolldomain.VariablePayment `json:"variable_payments"`
}

type RunCycleResult struct {
	Cycle     *Cycle `json:"cycle"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	// Cancelled is true when the context ended before every employee ran.
	Cancelled bool `json:"cancelled"`
}

type RunEmployeeRequest struct {
	TenantID   snowflake.ID `json:"-"`
	CycleID    snowflake.ID `json:"-"`
	EmployeeID snowflake.ID `json:"-"`
	// VariablePayments replaces the run's payments when set.
	VariablePayments *[]payrolldomain.VariablePayment `json:"variable_payments"`
}

type ListCyclesRequest struct {
	TenantID snowflake.ID `form:"-"`
	Status   CycleStatus  `form:"status"`
	Year     int          `form:"year"`
}

type Service interface {
	CreateCycle(ctx context.Context, req CreateCycleRequest) (*Cycle, error)
	RunCycle(ctx context.Context, req RunCycleRequest) (*RunCycleResult, error)
	RunEmployee(ctx context.Context, req RunEmployeeRequest) (*Run, error)
	LockCycle(ctx context.Context, tenantID, cycleID snowflake.ID) (*Cycle, error)
	MarkPaid(ctx context.Context, tenantID, cycleID snowflake.ID) (*Cycle, error)
	DeleteCycle(ctx context.Context, tenantID, cycleID snowflake.ID) error
	GetCycle(ctx context.Context, tenantID, cycleID snowflake.ID) (*Cycle, error)
	ListCycles(ctx context.Context, req ListCyclesRequest) ([]Cycle, error)
	ListRuns(ctx context.Context, tenantID, cycleID snowflake.ID) ([]Run, error)
	// ReconcilePaid retries reconciliation for PAID cycles that have not passed.
	ReconcilePaid(ctx context.Context, limit int) (int, error)
}
