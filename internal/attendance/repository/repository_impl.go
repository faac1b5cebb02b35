package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/attendance/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListRecords(ctx context.Context, db *gorm.DB, tenantID, employeeID snowflake.ID, start, end time.Time) ([]domain.Record, error) {
	var rows []domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, employee_id, date, status, created_at
		 FROM attendance_records
		 WHERE tenant_id = ? AND employee_id = ? AND date >= ? AND date < ?
		 ORDER BY date ASC, id ASC`,
		tenantID, employeeID, start, dayAfter(end),
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) ListLeaves(ctx context.Context, db *gorm.DB, tenantID, employeeID snowflake.ID, start, end time.Time) ([]domain.Leave, error) {
	var rows []domain.Leave
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, employee_id, start_date, end_date, paid, status, created_at
		 FROM leave_records
		 WHERE tenant_id = ? AND employee_id = ? AND start_date < ? AND end_date >= ?
		 ORDER BY start_date ASC, id ASC`,
		tenantID, employeeID, dayAfter(end), start,
	).Scan(&rows).Error
	return rows, err
}

// dayAfter is the exclusive upper bound for rows stored with a time of day.
func dayAfter(end time.Time) time.Time {
	return domain.Day(end).AddDate(0, 0, 1)
}
