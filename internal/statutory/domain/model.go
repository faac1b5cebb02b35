package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RuleType identifies a statutory rule family.
// These codes are persisted on runs and extracts. Do NOT rename.
type RuleType string

const (
	RuleTypePF  RuleType = "PF"
	RuleTypeESI RuleType = "ESI"
	RuleTypePT  RuleType = "PT"
	RuleTypeTDS RuleType = "TDS"
)

var RuleTypes = []RuleType{RuleTypePF, RuleTypeESI, RuleTypePT, RuleTypeTDS}

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypePF, RuleTypeESI, RuleTypePT, RuleTypeTDS:
		return true
	}
	return false
}

// Config is one effective-dated version of a tenant's statutory rule.
// Rates are percentages (12 means 12%).
type Config struct {
	ID                  snowflake.ID                `gorm:"primaryKey"`
	TenantID            snowflake.ID                `gorm:"column:tenant_id;not null;index:ix_statutory_configs_lookup,priority:1"`
	RuleType            RuleType                    `gorm:"column:rule_type;type:text;not null;index:ix_statutory_configs_lookup,priority:2"`
	WageCeiling         decimal.Decimal             `gorm:"column:wage_ceiling;type:numeric(20,4);not null;default:0"`
	EmployeeRatePercent decimal.Decimal             `gorm:"column:employee_rate_percent;type:numeric(9,4);not null;default:0"`
	EmployerRatePercent decimal.Decimal             `gorm:"column:employer_rate_percent;type:numeric(9,4);not null;default:0"`
	StandardDeduction   decimal.Decimal             `gorm:"column:standard_deduction;type:numeric(20,4);not null;default:0"`
	CessRatePercent     decimal.Decimal             `gorm:"column:cess_rate_percent;type:numeric(9,4);not null;default:0"`
	Bands               datatypes.JSONSlice[Band]   `gorm:"column:bands"`
	BaseComponents      datatypes.JSONSlice[string] `gorm:"column:base_components"`
	EffectiveFrom       time.Time                   `gorm:"column:effective_from;not null;index:ix_statutory_configs_lookup,priority:3"`
	EffectiveTo         *time.Time                  `gorm:"column:effective_to"`
	CreatedAt           time.Time                   `gorm:"not null"`
	UpdatedAt           time.Time                   `gorm:"not null"`
}

func (Config) TableName() string { return "statutory_configs" }

// Contains reports whether d lies in [EffectiveFrom, EffectiveTo].
func (c Config) Contains(d time.Time) bool {
	if d.Before(c.EffectiveFrom) {
		return false
	}
	return c.EffectiveTo == nil || !d.After(*c.EffectiveTo)
}

func (c *Config) Validate() error {
	if c.TenantID == 0 {
		return ErrInvalidTenant
	}
	if !c.RuleType.Valid() {
		return ErrInvalidRuleType
	}
	for _, rate := range []decimal.Decimal{c.WageCeiling, c.EmployeeRatePercent, c.EmployerRatePercent, c.StandardDeduction, c.CessRatePercent} {
		if rate.IsNegative() {
			return ErrInvalidRate
		}
	}
	if c.EffectiveFrom.IsZero() {
		return ErrInvalidEffectiveRange
	}
	if c.EffectiveTo != nil && c.EffectiveTo.Before(c.EffectiveFrom) {
		return ErrInvalidEffectiveRange
	}
	switch c.RuleType {
	case RuleTypePF, RuleTypeESI:
		if !c.WageCeiling.IsPositive() {
			return ErrInvalidRate
		}
	case RuleTypePT, RuleTypeTDS:
		if len(c.Bands) == 0 {
			return ErrInvalidBands
		}
	}
	if len(c.BaseComponents) > 0 && c.RuleType != RuleTypePT {
		return ErrInvalidBaseComponents
	}
	seen := make(map[string]struct{}, len(c.BaseComponents))
	for _, code := range c.BaseComponents {
		if _, dup := seen[code]; dup || code == "" {
			return ErrInvalidBaseComponents
		}
		seen[code] = struct{}{}
	}
	return Bands(c.Bands).Validate()
}

// Rule is the resolved, engine-facing view of a statutory config.
type Rule struct {
	ConfigID            snowflake.ID
	RuleType            RuleType
	WageCeiling         decimal.Decimal
	EmployeeRatePercent decimal.Decimal
	EmployerRatePercent decimal.Decimal
	StandardDeduction   decimal.Decimal
	CessRatePercent     decimal.Decimal
	Bands               Bands
	BaseComponents      []string
	// SystemDefault marks a rule taken from the documented engine defaults
	// rather than tenant configuration.
	SystemDefault bool
}

func RuleFromConfig(c Config) *Rule {
	return &Rule{
		ConfigID:            c.ID,
		RuleType:            c.RuleType,
		WageCeiling:         c.WageCeiling,
		EmployeeRatePercent: c.EmployeeRatePercent,
		EmployerRatePercent: c.EmployerRatePercent,
		StandardDeduction:   c.StandardDeduction,
		CessRatePercent:     c.CessRatePercent,
		Bands:               Bands(c.Bands),
		BaseComponents:      []string(c.BaseComponents),
	}
}

// Rules is the full statutory rule set for one employee and period.
type Rules struct {
	PF  *Rule
	ESI *Rule
	PT  *Rule
	TDS *Rule
}

// UsedSystemDefault reports whether any rule came from the engine defaults.
func (r Rules) UsedSystemDefault() bool {
	for _, rule := range []*Rule{r.PF, r.ESI, r.PT, r.TDS} {
		if rule != nil && rule.SystemDefault {
			return true
		}
	}
	return false
}

// ConfigIDs returns the tenant config IDs used, keyed by rule type.
func (r Rules) ConfigIDs() map[RuleType]snowflake.ID {
	ids := make(map[RuleType]snowflake.ID, 4)
	for _, rule := range []*Rule{r.PF, r.ESI, r.PT, r.TDS} {
		if rule != nil {
			ids[rule.RuleType] = rule.ConfigID
		}
	}
	return ids
}
