package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.Structure) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO salary_structures (
			id, tenant_id, code, version, name, components, effective_from, revision, referenced_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.TenantID,
		s.Code,
		s.Version,
		s.Name,
		s.Components,
		s.EffectiveFrom,
		s.Revision,
		s.ReferencedAt,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

// UpdateComponents edits a version in place only while no run references it.
func (r *repo) UpdateComponents(ctx context.Context, db *gorm.DB, s *domain.Structure) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE salary_structures
		 SET name = ?, components = ?, effective_from = ?, revision = revision + 1, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND referenced_at IS NULL`,
		s.Name,
		s.Components,
		s.EffectiveFrom,
		s.UpdatedAt,
		s.TenantID,
		s.ID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Structure, error) {
	var row domain.Structure
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

func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*domain.Structure, error) {
	var row domain.Structure
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		Order("version DESC").
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

// FindEffective returns the newest version whose effective_from is on or before the date.
func (r *repo) FindEffective(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string, on time.Time) (*domain.Structure, error) {
	var row domain.Structure
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND code = ? AND effective_from <= ?", tenantID, code, on).
		Order("effective_from DESC").
		Order("version DESC").
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

func (r *repo) ListVersions(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) ([]domain.Structure, error) {
	var rows []domain.Structure
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, code).
		Order("version ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repo) FindDefault(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Default, error) {
	var row domain.Default
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, structure_code, updated_at
		 FROM salary_structure_defaults
		 WHERE tenant_id = ?`,
		tenantID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.TenantID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) UpsertDefault(ctx context.Context, db *gorm.DB, d *domain.Default) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"structure_code", "updated_at"}),
	}).Create(d).Error
}

func (r *repo) MarkReferenced(ctx context.Context, db *gorm.DB, id snowflake.ID, revision int, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE salary_structures
		 SET referenced_at = COALESCE(referenced_at, ?)
		 WHERE id = ? AND revision = ?`,
		at,
		id,
		revision,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
