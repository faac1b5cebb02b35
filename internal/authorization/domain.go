package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

const (
	ObjectPayrollCycle    = "payroll_cycle"
	ObjectPayrollPreview  = "payroll_preview"
	ObjectPayrollExtract  = "payroll_extract"
	ObjectStatutoryConfig = "statutory_config"
	ObjectSalaryStructure = "salary_structure"
	ObjectTenantSettings  = "tenant_settings"
	ObjectAuditLog        = "audit_log"
)

const (
	ActionCycleView   = "payroll_cycle.view"
	ActionCycleCreate = "payroll_cycle.create"
	ActionCycleRun    = "payroll_cycle.run"
	ActionCycleLock   = "payroll_cycle.lock"
	ActionCyclePay    = "payroll_cycle.pay"
	ActionCycleDelete = "payroll_cycle.delete"

	ActionPreview         = "payroll.preview"
	ActionExtractGenerate = "payroll_extract.generate"

	ActionStatutoryView   = "statutory_config.view"
	ActionStatutoryCreate = "statutory_config.create"

	ActionStructureView       = "salary_structure.view"
	ActionStructureCreate     = "salary_structure.create"
	ActionStructureSetDefault = "salary_structure.set_default"

	ActionSettingsView   = "tenant_settings.view"
	ActionSettingsUpdate = "tenant_settings.update"

	ActionAuditLogView = "audit_log.view"
)

type Service interface {
	// Authorize checks the context actor against the tenant's role policies.
	Authorize(ctx context.Context, tenantID snowflake.ID, object, action string) error
}
