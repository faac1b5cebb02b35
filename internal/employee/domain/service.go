package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound             = errors.New("employee_not_found")
	ErrCompensationNotFound = errors.New("compensation_not_found")
)

type Repository interface {
	FindByID(ctx context.Context, tenantID, id snowflake.ID) (*Employee, error)
	ListInScope(ctx context.Context, tenantID snowflake.ID, periodStart, periodEnd time.Time) ([]Employee, error)
	FindCompensation(ctx context.Context, tenantID, employeeID snowflake.ID, asOf time.Time) (*Compensation, error)
}

// Service is the read-only view of employee master data.
type Service interface {
	Get(ctx context.Context, tenantID, id snowflake.ID) (*Employee, error)
	// InScope lists employees employed at any point of the period, ordered by id.
	InScope(ctx context.Context, tenantID snowflake.ID, periodStart, periodEnd time.Time) ([]Employee, error)
	Compensation(ctx context.Context, tenantID, employeeID snowflake.ID, asOf time.Time) (*Compensation, error)
}
