package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ComponentKind string

const (
	KindEarning   ComponentKind = "EARNING"
	KindDeduction ComponentKind = "DEDUCTION"
)

// Computation is the closed set of ways a component amount is derived.
type Computation string

const (
	ComputationFixedAmount   Computation = "FIXED_AMOUNT"
	ComputationPercentOfBase Computation = "PERCENT_OF_BASE"
	ComputationFormula       Computation = "FORMULA"
)

// Component is one line of a salary structure. Only the fields relevant to
// its Computation are read: Amount for FIXED_AMOUNT, Percent and
// BaseComponent for PERCENT_OF_BASE, Formula for FORMULA.
type Component struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Kind          ComponentKind   `json:"kind"`
	Computation   Computation     `json:"computation"`
	Amount        decimal.Decimal `json:"amount"`
	Percent       decimal.Decimal `json:"percent"`
	BaseComponent string          `json:"base_component,omitempty"`
	Formula       string          `json:"formula,omitempty"`
	Proratable    bool            `json:"proratable"`
	PFWage        bool            `json:"pf_wage"`
	Taxable       bool            `json:"taxable"`
}

// Structure is one immutable-once-referenced version of a tenant template.
type Structure struct {
	ID            snowflake.ID                   `gorm:"primaryKey"`
	TenantID      snowflake.ID                   `gorm:"column:tenant_id;not null;uniqueIndex:ux_salary_structures_version,priority:1"`
	Code          string                         `gorm:"type:text;not null;uniqueIndex:ux_salary_structures_version,priority:2"`
	Version       int                            `gorm:"not null;uniqueIndex:ux_salary_structures_version,priority:3"`
	Name          string                         `gorm:"type:text;not null"`
	Components    datatypes.JSONSlice[Component] `gorm:"column:components;not null"`
	EffectiveFrom time.Time                      `gorm:"column:effective_from;not null"`
	// Revision counts in-place edits made before the version was referenced.
	Revision     int        `gorm:"not null;default:1"`
	ReferencedAt *time.Time `gorm:"column:referenced_at"`
	CreatedAt    time.Time  `gorm:"not null"`
	UpdatedAt    time.Time  `gorm:"not null"`
}

func (Structure) TableName() string { return "salary_structures" }

// Referenced reports whether a payroll run has used this version.
func (s Structure) Referenced() bool { return s.ReferencedAt != nil }

// Default marks the tenant's default structure code.
type Default struct {
	TenantID      snowflake.ID `gorm:"primaryKey;column:tenant_id"`
	StructureCode string       `gorm:"column:structure_code;type:text;not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

func (Default) TableName() string { return "salary_structure_defaults" }
