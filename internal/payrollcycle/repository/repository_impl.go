package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertCycle(ctx context.Context, db *gorm.DB, cycle *domain.Cycle) error {
	return db.WithContext(ctx).Create(cycle).Error
}

func (r *repo) FindCycle(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Cycle, error) {
	var row domain.Cycle
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
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

func (r *repo) FindCycleByKey(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, month, year int, runType domain.RunType) (*domain.Cycle, error) {
	var row domain.Cycle
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND month = ? AND year = ? AND run_type = ?", tenantID, month, year, runType).
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

func (r *repo) FindCycleForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Cycle, error) {
	var row domain.Cycle
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
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

func (r *repo) ListCycles(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListCyclesFilter) ([]domain.Cycle, error) {
	var rows []domain.Cycle
	stmt := db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Year > 0 {
		stmt = stmt.Where("year = ?", filter.Year)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("year DESC, month DESC, run_type ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, t domain.Transition) (bool, error) {
	updates := map[string]any{
		"status":     t.To,
		"version":    gorm.Expr("version + 1"),
		"updated_at": t.At,
	}
	for column, value := range t.Columns {
		updates[column] = value
	}

	result := db.WithContext(ctx).
		Model(&domain.Cycle{}).
		Where("tenant_id = ? AND id = ? AND status = ? AND version = ?", t.TenantID, t.CycleID, t.From, t.ExpectedVersion).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) TouchInProgress(ctx context.Context, db *gorm.DB, cycleID snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payroll_cycles SET version = version + 1, updated_at = ? WHERE id = ? AND status = ?`,
		at,
		cycleID,
		domain.CycleStatusInProgress,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) UpdateCounts(ctx context.Context, db *gorm.DB, cycleID snowflake.ID, employees, succeeded, failed int, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payroll_cycles
		 SET employee_count = ?, succeeded_count = ?, failed_count = ?, updated_at = ?
		 WHERE id = ?`,
		employees,
		succeeded,
		failed,
		at,
		cycleID,
	).Error
}

func (r *repo) UpdateReconciliation(ctx context.Context, db *gorm.DB, cycleID snowflake.ID, status domain.ReconciliationStatus, message string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payroll_cycles
		 SET reconciliation_status = ?, reconciliation_message = ?, reconciled_at = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		message,
		at,
		at,
		cycleID,
	).Error
}

func (r *repo) DeleteCycle(ctx context.Context, db *gorm.DB, tenantID, cycleID snowflake.ID, status domain.CycleStatus, version int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM payroll_cycles WHERE tenant_id = ? AND id = ? AND status = ? AND version = ?`,
		tenantID,
		cycleID,
		status,
		version,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected != 1 {
		return false, nil
	}
	if err := db.WithContext(ctx).Exec(`DELETE FROM payroll_runs WHERE cycle_id = ?`, cycleID).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *repo) ListPaidUnreconciled(ctx context.Context, db *gorm.DB, limit int) ([]domain.Cycle, error) {
	var rows []domain.Cycle
	stmt := db.WithContext(ctx).
		Where("status = ? AND reconciliation_status <> ?", domain.CycleStatusPaid, domain.ReconciliationPassed).
		Order("paid_at ASC, id ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ReplaceRun(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM payroll_runs WHERE cycle_id = ? AND employee_id = ?`,
		run.CycleID,
		run.EmployeeID,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) FindRun(ctx context.Context, db *gorm.DB, cycleID, employeeID snowflake.ID) (*domain.Run, error) {
	var row domain.Run
	err := db.WithContext(ctx).
		Where("cycle_id = ? AND employee_id = ?", cycleID, employeeID).
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

func (r *repo) DeleteRunsExcept(ctx context.Context, db *gorm.DB, cycleID snowflake.ID, keep []snowflake.ID) (int64, error) {
	stmt := db.WithContext(ctx).Where("cycle_id = ?", cycleID)
	if len(keep) > 0 {
		stmt = stmt.Where("employee_id NOT IN ?", keep)
	}
	result := stmt.Delete(&domain.Run{})
	return result.RowsAffected, result.Error
}

func (r *repo) ListRuns(ctx context.Context, db *gorm.DB, tenantID, cycleID snowflake.ID) ([]domain.Run, error) {
	var rows []domain.Run
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND cycle_id = ?", tenantID, cycleID).
		Order("employee_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListFinalizedRuns(ctx context.Context, db *gorm.DB, tenantID, employeeID snowflake.ID, fromIndex, toIndex int) ([]domain.Run, error) {
	var rows []domain.Run
	err := db.WithContext(ctx).
		Table("payroll_runs AS r").
		Select("r.*").
		Joins("JOIN payroll_cycles AS c ON c.id = r.cycle_id").
		Where("r.tenant_id = ? AND r.employee_id = ? AND r.status = ?", tenantID, employeeID, domain.RunStatusSucceeded).
		Where("c.status IN ?", []domain.CycleStatus{domain.CycleStatusLocked, domain.CycleStatusPaid}).
		Where("(c.year * 12 + c.month) >= ? AND (c.year * 12 + c.month) < ?", fromIndex, toIndex).
		Order("c.year ASC, c.month ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) FindFinalizedRun(ctx context.Context, db *gorm.DB, tenantID, employeeID snowflake.ID, month, year int, runType domain.RunType) (*domain.Run, error) {
	var row domain.Run
	err := db.WithContext(ctx).
		Table("payroll_runs AS r").
		Select("r.*").
		Joins("JOIN payroll_cycles AS c ON c.id = r.cycle_id").
		Where("r.tenant_id = ? AND r.employee_id = ? AND r.status = ?", tenantID, employeeID, domain.RunStatusSucceeded).
		Where("c.month = ? AND c.year = ? AND c.run_type = ?", month, year, runType).
		Where("c.status IN ?", []domain.CycleStatus{domain.CycleStatusLocked, domain.CycleStatusPaid}).
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
