package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/config"
	"github.com/smallbiznis/payrollengine/internal/statutory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ResolverParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Payroll *config.PayrollConfigHolder
	Repo    domain.Repository
}

type Resolver struct {
	db      *gorm.DB
	log     *zap.Logger
	payroll *config.PayrollConfigHolder
	repo    domain.Repository
}

func NewResolver(p ResolverParam) domain.Resolver {
	return &Resolver{
		db:      p.DB,
		log:     p.Log.Named("statutory.resolver"),
		payroll: p.Payroll,
		repo:    p.Repo,
	}
}

// Resolve picks the config whose effective window contains periodEnd. The
// system default is only consulted when the tenant has no statutory rows at
// all; a tenant with configuration but a gap fails hard.
func (r *Resolver) Resolve(ctx context.Context, tenantID snowflake.ID, ruleType domain.RuleType, periodEnd time.Time) (*domain.Rule, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if !ruleType.Valid() {
		return nil, domain.ErrInvalidRuleType
	}

	cfg, err := r.repo.FindEffective(ctx, r.db, tenantID, ruleType, periodEnd)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return domain.RuleFromConfig(*cfg), nil
	}

	count, err := r.repo.CountByTenant(ctx, r.db, tenantID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("%s effective %s: %w", ruleType, periodEnd.Format(time.DateOnly), domain.ErrConfigNotFound)
	}

	def, ok := r.payroll.SystemDefault(string(ruleType))
	if !ok {
		return nil, fmt.Errorf("%s has no system default: %w", ruleType, domain.ErrConfigNotFound)
	}
	r.log.Debug("using system default statutory rule",
		zap.String("tenant_id", tenantID.String()),
		zap.String("rule_type", string(ruleType)),
	)
	return ruleFromDefault(ruleType, def), nil
}

func (r *Resolver) ResolveAll(ctx context.Context, tenantID snowflake.ID, periodEnd time.Time, ruleTypes ...domain.RuleType) (domain.Rules, error) {
	if len(ruleTypes) == 0 {
		ruleTypes = domain.RuleTypes
	}
	var rules domain.Rules
	for _, ruleType := range ruleTypes {
		rule, err := r.Resolve(ctx, tenantID, ruleType, periodEnd)
		if err != nil {
			return domain.Rules{}, err
		}
		switch ruleType {
		case domain.RuleTypePF:
			rules.PF = rule
		case domain.RuleTypeESI:
			rules.ESI = rule
		case domain.RuleTypePT:
			rules.PT = rule
		case domain.RuleTypeTDS:
			rules.TDS = rule
		}
	}
	return rules, nil
}

func ruleFromDefault(ruleType domain.RuleType, def config.StatutoryDefault) *domain.Rule {
	bands := make(domain.Bands, 0, len(def.Bands))
	for _, b := range def.Bands {
		bands = append(bands, domain.Band{
			LowerBound:  b.LowerBound,
			UpperBound:  b.UpperBound,
			RatePercent: b.RatePercent,
			Amount:      b.Amount,
			Marginal:    b.Marginal,
		})
	}
	return &domain.Rule{
		RuleType:            ruleType,
		WageCeiling:         def.WageCeiling,
		EmployeeRatePercent: def.EmployeeRatePercent,
		EmployerRatePercent: def.EmployerRatePercent,
		StandardDeduction:   def.StandardDeduction,
		CessRatePercent:     def.CessRatePercent,
		Bands:               bands,
		SystemDefault:       true,
	}
}
