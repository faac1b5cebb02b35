package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, cfg *Config) error
	FindEffective(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ruleType RuleType, on time.Time) (*Config, error)
	FindOverlapping(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ruleType RuleType, from time.Time, to *time.Time) ([]Config, error)
	CountByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListRequest) ([]Config, error)
}

// Resolver returns the statutory rule effective for a pay period.
type Resolver interface {
	Resolve(ctx context.Context, tenantID snowflake.ID, ruleType RuleType, periodEnd time.Time) (*Rule, error)
	// ResolveAll resolves the given rule types, or every type when none is
	// given. Types left out stay nil in the returned Rules.
	ResolveAll(ctx context.Context, tenantID snowflake.ID, periodEnd time.Time, ruleTypes ...RuleType) (Rules, error)
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
}

type ListRequest struct {
	TenantID snowflake.ID `json:"-"`
	RuleType RuleType     `json:"rule_type"`
	SortBy   string       `json:"sort_by"`
	OrderBy  string       `json:"order_by"`
}

type CreateRequest struct {
	TenantID            snowflake.ID    `json:"-"`
	RuleType            RuleType        `json:"rule_type"`
	WageCeiling         decimal.Decimal `json:"wage_ceiling"`
	EmployeeRatePercent decimal.Decimal `json:"employee_rate_percent"`
	EmployerRatePercent decimal.Decimal `json:"employer_rate_percent"`
	StandardDeduction   decimal.Decimal `json:"standard_deduction"`
	CessRatePercent     decimal.Decimal `json:"cess_rate_percent"`
	Bands               []Band          `json:"bands"`
	BaseComponents      []string        `json:"base_components"`
	EffectiveFrom       time.Time       `json:"effective_from"`
	EffectiveTo         *time.Time      `json:"effective_to"`
}

type Response struct {
	ID                  string          `json:"id"`
	TenantID            string          `json:"tenant_id"`
	RuleType            RuleType        `json:"rule_type"`
	WageCeiling         decimal.Decimal `json:"wage_ceiling"`
	EmployeeRatePercent decimal.Decimal `json:"employee_rate_percent"`
	EmployerRatePercent decimal.Decimal `json:"employer_rate_percent"`
	StandardDeduction   decimal.Decimal `json:"standard_deduction"`
	CessRatePercent     decimal.Decimal `json:"cess_rate_percent"`
	Bands               []Band          `json:"bands"`
	BaseComponents      []string        `json:"base_components,omitempty"`
	EffectiveFrom       time.Time       `json:"effective_from"`
	EffectiveTo         *time.Time      `json:"effective_to,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}
