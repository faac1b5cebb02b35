package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem    ActorType = "SYSTEM"
	ActorTypeUser      ActorType = "USER"
	ActorTypeScheduler ActorType = "SCHEDULER"
)

// Actions written by the payroll services. These values are persisted.
const (
	ActionCycleCreated         = "payroll_cycle.created"
	ActionCycleStarted         = "payroll_cycle.started"
	ActionCycleLocked          = "payroll_cycle.locked"
	ActionCyclePaid            = "payroll_cycle.paid"
	ActionCycleDeleted         = "payroll_cycle.deleted"
	ActionCycleReconciled      = "payroll_cycle.reconciled"
	ActionExtractGenerated     = "payroll_extract.generated"
	ActionStatutoryCreated     = "statutory_config.created"
	ActionStructureVersioned   = "salary_structure.version_created"
	ActionStructureDefaultSet  = "salary_structure.default_set"
	ActionTenantSettingsUpdate = "tenant_settings.updated"
	ActionAuthorizationDenied  = "authorization.denied"
	ActionAuthorizationGranted = "authorization.granted"
)

const (
	TargetPayrollCycle    = "payroll_cycle"
	TargetStatutoryConfig = "statutory_config"
	TargetSalaryStructure = "salary_structure"
	TargetTenantSettings  = "tenant_settings"
	TargetAuthorization   = "authorization"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID      `gorm:"column:tenant_id;not null;index:ix_audit_logs_tenant_created,priority:1" json:"tenant_id"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null;index" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text;index" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:ix_audit_logs_tenant_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	TenantID   snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
