package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/employee/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, tenantID, id snowflake.ID) (*domain.Employee, error) {
	var row domain.Employee
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, code, name, uan, esi_number, joined_on, exited_on, active, created_at, updated_at
		 FROM employees
		 WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repository) ListInScope(ctx context.Context, tenantID snowflake.ID, periodStart, periodEnd time.Time) ([]domain.Employee, error) {
	var rows []domain.Employee
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, code, name, uan, esi_number, joined_on, exited_on, active, created_at, updated_at
		 FROM employees
		 WHERE tenant_id = ?
		   AND active = ?
		   AND joined_on <= ?
		   AND (exited_on IS NULL OR exited_on >= ?)
		 ORDER BY id ASC`,
		tenantID, true, periodEnd, periodStart,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindCompensation(ctx context.Context, tenantID, employeeID snowflake.ID, asOf time.Time) (*domain.Compensation, error) {
	var row domain.Compensation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND employee_id = ?", tenantID, employeeID).
		Where("effective_from <= ?", asOf).
		Where("(effective_to IS NULL OR effective_to >= ?)", asOf).
		Order("effective_from DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}
