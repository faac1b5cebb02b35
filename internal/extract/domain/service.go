package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidTenant               = errors.New("invalid_tenant")
	ErrUnsupportedFormat           = errors.New("unsupported_extract_format")
	ErrCycleNotFinalized           = errors.New("cycle_not_finalized")
	ErrExtractReconciliationFailed = errors.New("extract_reconciliation_failed")
)

type GenerateRequest struct {
	TenantID snowflake.ID
	CycleID  snowflake.ID
	Format   Format
}

// Rendered is an extract serialized for download.
type Rendered struct {
	Extract     *Extract
	Format      Format
	ContentType string
	Filename    string
	Body        []byte
}

type Service interface {
	Generate(ctx context.Context, tenantID, cycleID snowflake.ID) (*Extract, error)
	Render(ctx context.Context, req GenerateRequest) (*Rendered, error)
}
