package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	attendancedomain "github.com/smallbiznis/payrollengine/internal/attendance/domain"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	"github.com/smallbiznis/payrollengine/internal/salarystructure/formula"
	statutorydomain "github.com/smallbiznis/payrollengine/internal/statutory/domain"
)

// Applicability holds the per-employee statutory switches.
type Applicability struct {
	PF  bool `json:"pf"`
	ESI bool `json:"esi"`
	PT  bool `json:"pt"`
	TDS bool `json:"tds"`
}

// VariablePayment is a one-off amount (bonus, arrears) added to gross unprorated.
type VariablePayment struct {
	Code    string          `json:"code"`
	Amount  decimal.Decimal `json:"amount"`
	Taxable bool            `json:"taxable"`
	PFWage  bool            `json:"pf_wage,omitempty"`
}

// NormalizeVariablePayments upper-snakes codes and rejects empty, duplicate
// or negative entries. The result is never nil.
func NormalizeVariablePayments(in []VariablePayment) ([]VariablePayment, error) {
	out := make([]VariablePayment, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, vp := range in {
		code := formula.Identifier(vp.Code)
		if code == "" {
			return nil, fmt.Errorf("code %q: %w", vp.Code, ErrInvalidVariablePayment)
		}
		if seen[code] {
			return nil, fmt.Errorf("duplicate code %s: %w", code, ErrInvalidVariablePayment)
		}
		if vp.Amount.IsNegative() {
			return nil, fmt.Errorf("%s amount %s: %w", code, vp.Amount, ErrInvalidVariablePayment)
		}
		seen[code] = true
		vp.Code = code
		out = append(out, vp)
	}
	return out, nil
}

// SameVariablePayments compares payment lists entry by entry.
func SameVariablePayments(a, b []VariablePayment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Code != b[i].Code || !a[i].Amount.Equal(b[i].Amount) ||
			a[i].Taxable != b[i].Taxable || a[i].PFWage != b[i].PFWage {
			return false
		}
	}
	return true
}

// Baseline is what the employee's finalized regular run of the same period
// already paid. A supplementary calculation only adds to it.
type Baseline struct {
	RunID                  snowflake.ID
	GrossEarnings          decimal.Decimal
	PFWages                decimal.Decimal
	ProfessionalTax        decimal.Decimal
	ProjectedAnnualTaxable decimal.Decimal
}

// YTD carries cumulative figures for the fiscal year before the current period.
type YTD struct {
	TaxableEarnings decimal.Decimal `json:"taxable_earnings"`
	TDS             decimal.Decimal `json:"tds"`
}

// Input is everything the engine needs, fully resolved before computation.
type Input struct {
	Period           Period
	Precision        int32
	Plan             *salarystructuredomain.Plan
	Overrides        map[string]decimal.Decimal
	Applicability    Applicability
	AnnualExemptions decimal.Decimal
	Attendance       attendancedomain.Aggregate
	Rules            statutorydomain.Rules
	YTD              YTD
	RemainingPeriods int
	VariablePayments []VariablePayment
	// Baseline is set for supplementary runs, which compute variable
	// payments only and ignore Plan and Attendance.
	Baseline *Baseline
}

// Line is one component of the payslip breakdown.
type Line struct {
	Code       string                              `json:"code"`
	Name       string                              `json:"name"`
	Kind       salarystructuredomain.ComponentKind `json:"kind"`
	FullAmount decimal.Decimal                     `json:"full_amount"`
	Amount     decimal.Decimal                     `json:"amount"`
	Proratable bool                                `json:"proratable"`
	Variable   bool                                `json:"variable,omitempty"`
}

// Result is the rounded output of one employee calculation.
type Result struct {
	Lines []Line `json:"lines"`

	TotalDays decimal.Decimal `json:"total_days"`
	PaidDays  decimal.Decimal `json:"paid_days"`
	LOPDays   decimal.Decimal `json:"lop_days"`

	GrossEarnings   decimal.Decimal `json:"gross_earnings"`
	LOPAmount       decimal.Decimal `json:"lop_amount"`
	TaxableEarnings decimal.Decimal `json:"taxable_earnings"`

	PFWages     decimal.Decimal `json:"pf_wages"`
	PFEmployee  decimal.Decimal `json:"pf_employee"`
	PFEmployer  decimal.Decimal `json:"pf_employer"`
	ESIWages    decimal.Decimal `json:"esi_wages"`
	ESIEmployee decimal.Decimal `json:"esi_employee"`
	ESIEmployer decimal.Decimal `json:"esi_employer"`

	ProfessionalTax decimal.Decimal `json:"professional_tax"`

	ProjectedAnnualTaxable decimal.Decimal `json:"projected_annual_taxable"`
	AnnualTax              decimal.Decimal `json:"annual_tax"`
	TDS                    decimal.Decimal `json:"tds"`

	OtherDeductions decimal.Decimal `json:"other_deductions"`
	GrossDeductions decimal.Decimal `json:"gross_deductions"`
	NetPay          decimal.Decimal `json:"net_pay"`

	AssumedFullAttendance bool `json:"assumed_full_attendance"`
	UsedSystemDefault     bool `json:"used_system_default"`
}

// EmployerContributions is PF employer plus ESI employer.
func (r Result) EmployerContributions() decimal.Decimal {
	return r.PFEmployer.Add(r.ESIEmployer)
}

// checksumScale matches the numeric(20,4) storage scale.
const checksumScale = 4

// Checksum is a sha256 over the canonical result fields; identical inputs
// always produce the same value.
func (r Result) Checksum(employeeID snowflake.ID) string {
	parts := []string{employeeID.String()}
	for _, l := range r.Lines {
		parts = append(parts, l.Code, string(l.Kind), l.FullAmount.StringFixed(checksumScale), l.Amount.StringFixed(checksumScale))
	}
	for _, v := range []decimal.Decimal{
		r.TotalDays, r.PaidDays, r.LOPDays,
		r.GrossEarnings, r.LOPAmount, r.TaxableEarnings,
		r.PFWages, r.PFEmployee, r.PFEmployer,
		r.ESIWages, r.ESIEmployee, r.ESIEmployer,
		r.ProfessionalTax, r.ProjectedAnnualTaxable, r.AnnualTax, r.TDS,
		r.OtherDeductions, r.GrossDeductions, r.NetPay,
	} {
		parts = append(parts, v.StringFixed(checksumScale))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
