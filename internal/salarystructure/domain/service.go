package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, s *Structure) error
	UpdateComponents(ctx context.Context, db *gorm.DB, s *Structure) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Structure, error)
	FindLatest(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*Structure, error)
	FindEffective(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string, on time.Time) (*Structure, error)
	ListVersions(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) ([]Structure, error)
	FindDefault(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Default, error)
	UpsertDefault(ctx context.Context, db *gorm.DB, d *Default) error
	// MarkReferenced freezes the version at the given revision. It reports
	// false when the row was edited since that revision was read.
	MarkReferenced(ctx context.Context, db *gorm.DB, id snowflake.ID, revision int, at time.Time) (bool, error)
}

// Resolved is everything the engine needs from the structure side for one
// employee and period.
type Resolved struct {
	Structure    *Structure
	Plan         *Plan
	Compensation *employeedomain.Compensation
}

type Resolver interface {
	Resolve(ctx context.Context, tenantID, employeeID snowflake.ID, periodEnd time.Time) (*Resolved, error)
	// MarkReferenced freezes a version inside the caller's transaction. It
	// fails with ErrStructureVersionChanged when the version was edited after
	// the calculation resolved the given revision.
	MarkReferenced(ctx context.Context, tx *gorm.DB, versionID snowflake.ID, revision int) error
}

type Service interface {
	CreateVersion(ctx context.Context, req CreateVersionRequest) (*Response, error)
	SetDefault(ctx context.Context, tenantID snowflake.ID, code string) error
	ListVersions(ctx context.Context, tenantID snowflake.ID, code string) ([]Response, error)
}

type CreateVersionRequest struct {
	TenantID      snowflake.ID `json:"-"`
	Code          string       `json:"code"`
	Name          string       `json:"name"`
	Components    []Component  `json:"components"`
	EffectiveFrom time.Time    `json:"effective_from"`
	MakeDefault   bool         `json:"make_default"`
}

type Response struct {
	ID            string      `json:"id"`
	TenantID      string      `json:"tenant_id"`
	Code          string      `json:"code"`
	Version       int         `json:"version"`
	Revision      int         `json:"revision"`
	Name          string      `json:"name"`
	Components    []Component `json:"components"`
	EffectiveFrom time.Time   `json:"effective_from"`
	Referenced    bool        `json:"referenced"`
	CreatedAt     time.Time   `json:"created_at"`
}
