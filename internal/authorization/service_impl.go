package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/payrollengine/internal/audit/domain"
	"github.com/smallbiznis/payrollengine/internal/tenantcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	RoleAdmin    = "payroll_admin"
	RoleOperator = "payroll_operator"
	RoleViewer   = "viewer"
	RoleSystem   = "system"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, tenantID snowflake.ID, object, action string) error {
	if tenantID == 0 {
		return ErrInvalidTenant
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	actor := tenantcontext.ActorFromContext(ctx)
	subject, roleName, err := resolveActor(actor)
	if err != nil {
		s.auditDecision(ctx, auditdomain.ActionAuthorizationDenied, tenantID, actor, object, action)
		return err
	}

	dom := fmt.Sprintf("tenant:%s", tenantID)
	if err := s.ensureGrouping(subject, roleName, dom); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, dom, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDecision(ctx, auditdomain.ActionAuthorizationDenied, tenantID, actor, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditDecision(ctx, auditdomain.ActionAuthorizationGranted, tenantID, actor, object, action)
	}
	return nil
}

// resolveActor maps the request actor to a casbin subject and role.
func resolveActor(actor tenantcontext.Actor) (string, string, error) {
	id := strings.TrimSpace(actor.ID)
	if id == "" {
		return "", "", ErrInvalidActor
	}
	switch strings.ToLower(strings.TrimSpace(actor.Type)) {
	case "system", "scheduler":
		return "system", "role:" + RoleSystem, nil
	case "user":
		role := strings.ToLower(strings.TrimSpace(actor.Role))
		switch role {
		case RoleAdmin, RoleOperator, RoleViewer:
		default:
			return "", "", ErrForbidden
		}
		return "user:" + id, "role:" + role, nil
	default:
		return "", "", ErrInvalidActor
	}
}

// ensureGrouping keeps exactly one role per subject and tenant.
func (s *ServiceImpl) ensureGrouping(subject, roleName, dom string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", dom)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, dom)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, dom)
	return err
}

func (s *ServiceImpl) auditDecision(ctx context.Context, decision string, tenantID snowflake.ID, actor tenantcontext.Actor, object, action string) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.AuditLog(ctx, nil, tenantID, decision, auditdomain.TargetAuthorization, object, map[string]any{
		"object": object,
		"action": action,
		"actor":  actor.Type,
		"role":   actor.Role,
	})
	if err != nil {
		s.log.Warn("failed to audit authorization decision", zap.Error(err))
	}
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionCycleLock, ActionCyclePay, ActionCycleDelete, ActionStatutoryCreate:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	viewer := [][]string{
		{ObjectPayrollCycle, ActionCycleView},
		{ObjectStatutoryConfig, ActionStatutoryView},
		{ObjectSalaryStructure, ActionStructureView},
		{ObjectTenantSettings, ActionSettingsView},
	}
	operator := append([][]string{
		{ObjectPayrollCycle, ActionCycleCreate},
		{ObjectPayrollCycle, ActionCycleRun},
		{ObjectPayrollPreview, ActionPreview},
		{ObjectPayrollExtract, ActionExtractGenerate},
	}, viewer...)
	admin := append([][]string{
		{ObjectPayrollCycle, ActionCycleLock},
		{ObjectPayrollCycle, ActionCyclePay},
		{ObjectPayrollCycle, ActionCycleDelete},
		{ObjectStatutoryConfig, ActionStatutoryCreate},
		{ObjectSalaryStructure, ActionStructureCreate},
		{ObjectSalaryStructure, ActionStructureSetDefault},
		{ObjectTenantSettings, ActionSettingsUpdate},
		{ObjectAuditLog, ActionAuditLogView},
	}, operator...)
	// Background jobs only read cycles and generate extracts for reconciliation.
	system := [][]string{
		{ObjectPayrollCycle, ActionCycleView},
		{ObjectPayrollExtract, ActionExtractGenerate},
	}

	grants := map[string][][]string{
		RoleViewer:   viewer,
		RoleOperator: operator,
		RoleAdmin:    admin,
		RoleSystem:   system,
	}
	for role, rules := range grants {
		for _, rule := range rules {
			if _, err := enforcer.AddPolicy("role:"+role, rule[0], rule[1]); err != nil {
				return err
			}
		}
	}
	return nil
}
