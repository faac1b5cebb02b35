package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

type ListAuditLogRequest struct {
	pagination.Pagination
	TenantID   snowflake.ID `form:"-"`
	Action     string       `form:"action"`
	TargetType string       `form:"target_type"`
	TargetID   string       `form:"target_id"`
	ActorType  string       `form:"actor_type"`
	StartAt    *time.Time   `form:"start_at" time_format:"2006-01-02T15:04:05Z07:00"`
	EndAt      *time.Time   `form:"end_at" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	// AuditLog records one entry. The actor comes from the context; db, when
	// non-nil, lets the entry join the caller's transaction.
	AuditLog(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, action, targetType, targetID string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
