package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/statutory/domain"
	"github.com/smallbiznis/payrollengine/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, cfg *domain.Config) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO statutory_configs (
			id, tenant_id, rule_type, wage_ceiling, employee_rate_percent, employer_rate_percent,
			standard_deduction, cess_rate_percent, bands, base_components,
			effective_from, effective_to, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID,
		cfg.TenantID,
		cfg.RuleType,
		cfg.WageCeiling,
		cfg.EmployeeRatePercent,
		cfg.EmployerRatePercent,
		cfg.StandardDeduction,
		cfg.CessRatePercent,
		cfg.Bands,
		cfg.BaseComponents,
		cfg.EffectiveFrom,
		cfg.EffectiveTo,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	).Error
}

func (r *repo) FindEffective(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ruleType domain.RuleType, on time.Time) (*domain.Config, error) {
	var cfg domain.Config
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND rule_type = ?", tenantID, ruleType).
		Where("effective_from <= ?", on).
		Where("(effective_to IS NULL OR effective_to >= ?)", on).
		Order("effective_from DESC").
		Limit(1).
		Find(&cfg).Error
	if err != nil {
		return nil, err
	}
	if cfg.ID == 0 {
		return nil, nil
	}
	return &cfg, nil
}

// FindOverlapping returns configs whose window intersects [from, to]; a nil to is open-ended.
func (r *repo) FindOverlapping(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ruleType domain.RuleType, from time.Time, to *time.Time) ([]domain.Config, error) {
	var items []domain.Config
	stmt := db.WithContext(ctx).
		Where("tenant_id = ? AND rule_type = ?", tenantID, ruleType).
		Where("(effective_to IS NULL OR effective_to >= ?)", from)
	if to != nil {
		stmt = stmt.Where("effective_from <= ?", *to)
	}
	if err := stmt.Order("effective_from ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Config{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListRequest) ([]domain.Config, error) {
	var items []domain.Config
	stmt := db.WithContext(ctx).
		Model(&domain.Config{}).
		Where("tenant_id = ?", tenantID)

	if filter.RuleType != "" {
		stmt = stmt.Where("rule_type = ?", filter.RuleType)
	}

	stmt = option.WithQuerySortBy(filter.SortBy, filter.OrderBy, map[string]bool{
		"effective_from": true,
		"created_at":     true,
		"rule_type":      true,
	}).Apply(stmt)
	stmt = option.ApplyOrder("id", "asc").Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
