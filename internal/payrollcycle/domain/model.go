package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	payrolldomain "github.com/smallbiznis/payrollengine/internal/payroll/domain"
	"gorm.io/datatypes"
)

type CycleStatus string

const (
	CycleStatusDraft      CycleStatus = "DRAFT"
	CycleStatusInProgress CycleStatus = "IN_PROGRESS"
	CycleStatusLocked     CycleStatus = "LOCKED"
	CycleStatusPaid       CycleStatus = "PAID"
)

// Finalized reports whether runs of the cycle are frozen.
func (s CycleStatus) Finalized() bool {
	return s == CycleStatusLocked || s == CycleStatusPaid
}

type RunType string

const (
	RunTypeRegular       RunType = "REGULAR"
	RunTypeSupplementary RunType = "SUPPLEMENTARY"
)

func (t RunType) Valid() bool {
	return t == RunTypeRegular || t == RunTypeSupplementary
}

type ReconciliationStatus string

const (
	ReconciliationPending ReconciliationStatus = "PENDING"
	ReconciliationPassed  ReconciliationStatus = "PASSED"
	ReconciliationFailed  ReconciliationStatus = "FAILED"
)

// Totals are captured from the runs at lock time and are what extracts
// reconcile against.
type Totals struct {
	GrossEarnings   decimal.Decimal `gorm:"column:total_gross;type:numeric(20,4);not null" json:"gross_earnings"`
	GrossDeductions decimal.Decimal `gorm:"column:total_deductions;type:numeric(20,4);not null" json:"gross_deductions"`
	NetPay          decimal.Decimal `gorm:"column:total_net;type:numeric(20,4);not null" json:"net_pay"`
	PFEmployee      decimal.Decimal `gorm:"column:total_pf_employee;type:numeric(20,4);not null" json:"pf_employee"`
	PFEmployer      decimal.Decimal `gorm:"column:total_pf_employer;type:numeric(20,4);not null" json:"pf_employer"`
	ESIEmployee     decimal.Decimal `gorm:"column:total_esi_employee;type:numeric(20,4);not null" json:"esi_employee"`
	ESIEmployer     decimal.Decimal `gorm:"column:total_esi_employer;type:numeric(20,4);not null" json:"esi_employer"`
	ProfessionalTax decimal.Decimal `gorm:"column:total_professional_tax;type:numeric(20,4);not null" json:"professional_tax"`
	TDS             decimal.Decimal `gorm:"column:total_tds;type:numeric(20,4);not null" json:"tds"`
	LOPAmount       decimal.Decimal `gorm:"column:total_lop_amount;type:numeric(20,4);not null" json:"lop_amount"`
}

func ZeroTotals() Totals {
	return Totals{
		GrossEarnings: decimal.Zero, GrossDeductions: decimal.Zero, NetPay: decimal.Zero,
		PFEmployee: decimal.Zero, PFEmployer: decimal.Zero,
		ESIEmployee: decimal.Zero, ESIEmployer: decimal.Zero,
		ProfessionalTax: decimal.Zero, TDS: decimal.Zero, LOPAmount: decimal.Zero,
	}
}

// Add accumulates a successful run.
func (t Totals) Add(r Run) Totals {
	return Totals{
		GrossEarnings:   t.GrossEarnings.Add(r.GrossEarnings),
		GrossDeductions: t.GrossDeductions.Add(r.GrossDeductions),
		NetPay:          t.NetPay.Add(r.NetPay),
		PFEmployee:      t.PFEmployee.Add(r.PFEmployee),
		PFEmployer:      t.PFEmployer.Add(r.PFEmployer),
		ESIEmployee:     t.ESIEmployee.Add(r.ESIEmployee),
		ESIEmployer:     t.ESIEmployer.Add(r.ESIEmployer),
		ProfessionalTax: t.ProfessionalTax.Add(r.ProfessionalTax),
		TDS:             t.TDS.Add(r.TDS),
		LOPAmount:       t.LOPAmount.Add(r.LOPAmount),
	}
}

// Cycle is one monthly payroll batch for a tenant.
type Cycle struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_payroll_cycles_key,priority:1" json:"tenant_id"`
	Month    int          `gorm:"not null;uniqueIndex:ux_payroll_cycles_key,priority:2" json:"month"`
	Year     int          `gorm:"not null;uniqueIndex:ux_payroll_cycles_key,priority:3" json:"year"`
	RunType  RunType      `gorm:"type:text;not null;uniqueIndex:ux_payroll_cycles_key,priority:4" json:"run_type"`
	Status   CycleStatus  `gorm:"type:text;not null;index" json:"status"`
	Version  int64        `gorm:"not null" json:"version"`

	Totals Totals `gorm:"embedded" json:"totals"`
	// CurrencyPrecision is the tenant precision captured at lock; extracts
	// render and reconcile at this scale.
	CurrencyPrecision int32 `gorm:"column:currency_precision;not null;default:2" json:"currency_precision"`

	EmployeeCount  int `gorm:"not null" json:"employee_count"`
	SucceededCount int `gorm:"not null" json:"succeeded_count"`
	FailedCount    int `gorm:"not null" json:"failed_count"`

	ReconciliationStatus  ReconciliationStatus `gorm:"type:text;not null" json:"reconciliation_status"`
	ReconciliationMessage string               `gorm:"type:text" json:"reconciliation_message,omitempty"`
	ReconciledAt          *time.Time           `json:"reconciled_at,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	LockedBy  string     `gorm:"type:text" json:"locked_by,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	PaidBy    string     `gorm:"type:text" json:"paid_by,omitempty"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" json:"updated_at"`
}

func (Cycle) TableName() string { return "payroll_cycles" }

func (c Cycle) Period() payrolldomain.Period {
	return payrolldomain.Period{Month: c.Month, Year: c.Year}
}

type RunStatus string

const (
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
)

// Run is one employee's calculation inside a cycle. Amount columns are zero
// on FAILED runs.
type Run struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID `gorm:"column:tenant_id;not null;index:ix_payroll_runs_employee,priority:1" json:"tenant_id"`
	CycleID    snowflake.ID `gorm:"column:cycle_id;not null;uniqueIndex:ux_payroll_runs_cycle_employee,priority:1" json:"cycle_id"`
	EmployeeID snowflake.ID `gorm:"column:employee_id;not null;uniqueIndex:ux_payroll_runs_cycle_employee,priority:2;index:ix_payroll_runs_employee,priority:2" json:"employee_id"`

	Status         RunStatus                 `gorm:"type:text;not null" json:"status"`
	FailureCode    payrolldomain.FailureCode `gorm:"type:text" json:"failure_code,omitempty"`
	FailureMessage string                    `gorm:"type:text" json:"failure_message,omitempty"`

	Lines datatypes.JSONSlice[payrolldomain.Line] `gorm:"column:lines" json:"lines"`
	// VariablePayments are the one-off inputs of this run. A re-run without
	// new payments reuses them.
	VariablePayments datatypes.JSONSlice[payrolldomain.VariablePayment] `gorm:"column:variable_payments" json:"variable_payments"`

	TotalDays decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"total_days"`
	PaidDays  decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"paid_days"`
	LOPDays   decimal.Decimal `gorm:"column:lop_days;type:numeric(20,4);not null" json:"lop_days"`

	GrossEarnings          decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"gross_earnings"`
	LOPAmount              decimal.Decimal `gorm:"column:lop_amount;type:numeric(20,4);not null" json:"lop_amount"`
	TaxableEarnings        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"taxable_earnings"`
	PFWages                decimal.Decimal `gorm:"column:pf_wages;type:numeric(20,4);not null" json:"pf_wages"`
	PFEmployee             decimal.Decimal `gorm:"column:pf_employee;type:numeric(20,4);not null" json:"pf_employee"`
	PFEmployer             decimal.Decimal `gorm:"column:pf_employer;type:numeric(20,4);not null" json:"pf_employer"`
	ESIWages               decimal.Decimal `gorm:"column:esi_wages;type:numeric(20,4);not null" json:"esi_wages"`
	ESIEmployee            decimal.Decimal `gorm:"column:esi_employee;type:numeric(20,4);not null" json:"esi_employee"`
	ESIEmployer            decimal.Decimal `gorm:"column:esi_employer;type:numeric(20,4);not null" json:"esi_employer"`
	ProfessionalTax        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"professional_tax"`
	ProjectedAnnualTaxable decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"projected_annual_taxable"`
	AnnualTax              decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"annual_tax"`
	TDS                    decimal.Decimal `gorm:"column:tds;type:numeric(20,4);not null" json:"tds"`
	OtherDeductions        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"other_deductions"`
	GrossDeductions        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"gross_deductions"`
	NetPay                 decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"net_pay"`
	EmployerContributions  decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"employer_contributions"`

	StructureVersionID snowflake.ID                          `gorm:"column:structure_version_id" json:"structure_version_id,omitempty"`
	StructureCode      string                                `gorm:"type:text" json:"structure_code,omitempty"`
	StructureVersion   int                                   `json:"structure_version,omitempty"`
	StatutoryConfigIDs datatypes.JSONType[map[string]string] `gorm:"column:statutory_config_ids" json:"statutory_config_ids"`

	UsedSystemDefault     bool   `gorm:"not null" json:"used_system_default"`
	AssumedFullAttendance bool   `gorm:"not null" json:"assumed_full_attendance"`
	Checksum              string `gorm:"type:text" json:"checksum,omitempty"`

	CalculatedAt time.Time `gorm:"not null" json:"calculated_at"`
}

func (Run) TableName() string { return "payroll_runs" }

// FillResult copies the calculation outcome onto the run.
func (r *Run) FillResult(res payrolldomain.Result) {
	r.Lines = datatypes.JSONSlice[payrolldomain.Line](res.Lines)
	r.TotalDays = res.TotalDays
	r.PaidDays = res.PaidDays
	r.LOPDays = res.LOPDays
	r.GrossEarnings = res.GrossEarnings
	r.LOPAmount = res.LOPAmount
	r.TaxableEarnings = res.TaxableEarnings
	r.PFWages = res.PFWages
	r.PFEmployee = res.PFEmployee
	r.PFEmployer = res.PFEmployer
	r.ESIWages = res.ESIWages
	r.ESIEmployee = res.ESIEmployee
	r.ESIEmployer = res.ESIEmployer
	r.ProfessionalTax = res.ProfessionalTax
	r.ProjectedAnnualTaxable = res.ProjectedAnnualTaxable
	r.AnnualTax = res.AnnualTax
	r.TDS = res.TDS
	r.OtherDeductions = res.OtherDeductions
	r.GrossDeductions = res.GrossDeductions
	r.NetPay = res.NetPay
	r.EmployerContributions = res.EmployerContributions()
	r.UsedSystemDefault = res.UsedSystemDefault
	r.AssumedFullAttendance = res.AssumedFullAttendance
}

// SameOutcome reports whether o records the same calculation as r: status,
// failure, checksum, provenance and inputs. Identity and timestamps are
// ignored.
func (r Run) SameOutcome(o Run) bool {
	if r.Status != o.Status || r.FailureCode != o.FailureCode || r.FailureMessage != o.FailureMessage ||
		r.Checksum != o.Checksum ||
		r.StructureVersionID != o.StructureVersionID || r.StructureCode != o.StructureCode || r.StructureVersion != o.StructureVersion ||
		r.UsedSystemDefault != o.UsedSystemDefault || r.AssumedFullAttendance != o.AssumedFullAttendance {
		return false
	}
	if !payrolldomain.SameVariablePayments(r.VariablePayments, o.VariablePayments) {
		return false
	}
	a, b := r.StatutoryConfigIDs.Data(), o.StatutoryConfigIDs.Data()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	if len(r.Lines) != len(o.Lines) {
		return false
	}
	for i := range r.Lines {
		if r.Lines[i].Name != o.Lines[i].Name || r.Lines[i].Proratable != o.Lines[i].Proratable || r.Lines[i].Variable != o.Lines[i].Variable {
			return false
		}
	}
	return true
}

// ZeroAmounts initializes every amount column, for FAILED runs.
func (r *Run) ZeroAmounts() {
	r.FillResult(payrolldomain.Result{
		TotalDays: decimal.Zero, PaidDays: decimal.Zero, LOPDays: decimal.Zero,
		GrossEarnings: decimal.Zero, LOPAmount: decimal.Zero, TaxableEarnings: decimal.Zero,
		PFWages: decimal.Zero, PFEmployee: decimal.Zero, PFEmployer: decimal.Zero,
		ESIWages: decimal.Zero, ESIEmployee: decimal.Zero, ESIEmployer: decimal.Zero,
		ProfessionalTax: decimal.Zero, ProjectedAnnualTaxable: decimal.Zero, AnnualTax: decimal.Zero,
		TDS: decimal.Zero, OtherDeductions: decimal.Zero, GrossDeductions: decimal.Zero, NetPay: decimal.Zero,
	})
	r.Lines = datatypes.JSONSlice[payrolldomain.Line]{}
}
