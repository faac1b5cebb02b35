package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Employee is master data owned by the HR system; the engine only reads it.
type Employee struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;index"`
	Code      string       `gorm:"type:text;not null"`
	Name      string       `gorm:"type:text;not null"`
	UAN       string       `gorm:"column:uan;type:text"`
	ESINumber string       `gorm:"column:esi_number;type:text"`
	JoinedOn  time.Time    `gorm:"column:joined_on;not null"`
	ExitedOn  *time.Time   `gorm:"column:exited_on"`
	Active    bool         `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

func (Employee) TableName() string { return "employees" }

// EmployedOn reports whether d falls inside the employment window.
func (e Employee) EmployedOn(d time.Time) bool {
	if d.Before(e.JoinedOn) {
		return false
	}
	return e.ExitedOn == nil || !d.After(*e.ExitedOn)
}

// AmountOverride replaces a structure component's fixed amount for one employee.
type AmountOverride struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

// Compensation binds an employee to a structure code plus per-employee overrides.
type Compensation struct {
	ID               snowflake.ID                        `gorm:"primaryKey"`
	TenantID         snowflake.ID                        `gorm:"column:tenant_id;not null;index:ix_employee_compensations_employee,priority:1"`
	EmployeeID       snowflake.ID                        `gorm:"column:employee_id;not null;index:ix_employee_compensations_employee,priority:2"`
	StructureCode    string                              `gorm:"column:structure_code;type:text"`
	Overrides        datatypes.JSONSlice[AmountOverride] `gorm:"column:overrides"`
	AnnualExemptions decimal.Decimal                     `gorm:"column:annual_exemptions;type:numeric(20,4);not null;default:0"`
	PFApplicable     bool                                `gorm:"column:pf_applicable;not null"`
	ESIApplicable    bool                                `gorm:"column:esi_applicable;not null"`
	TDSApplicable    bool                                `gorm:"column:tds_applicable;not null"`
	PTApplicable     bool                                `gorm:"column:pt_applicable;not null"`
	EffectiveFrom    time.Time                           `gorm:"column:effective_from;not null"`
	EffectiveTo      *time.Time                          `gorm:"column:effective_to"`
	CreatedAt        time.Time                           `gorm:"not null"`
	UpdatedAt        time.Time                           `gorm:"not null"`
}

func (Compensation) TableName() string { return "employee_compensations" }

// OverrideFor returns the per-employee amount for a component code, if any.
func (c Compensation) OverrideFor(code string) (decimal.Decimal, bool) {
	for _, o := range c.Overrides {
		if o.Code == code {
			return o.Amount, true
		}
	}
	return decimal.Zero, false
}
