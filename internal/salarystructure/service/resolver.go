package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/cache"
	"github.com/smallbiznis/payrollengine/internal/clock"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	"github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ResolverParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	Employees employeedomain.Service
	Plans     cache.StructurePlanCache
}

type Resolver struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	employees employeedomain.Service
	plans     cache.StructurePlanCache
}

func NewResolver(p ResolverParam) domain.Resolver {
	return &Resolver{
		db:        p.DB,
		log:       p.Log.Named("salarystructure.resolver"),
		clock:     p.Clock,
		repo:      p.Repo,
		employees: p.Employees,
		plans:     p.Plans,
	}
}

func (r *Resolver) Resolve(ctx context.Context, tenantID, employeeID snowflake.ID, periodEnd time.Time) (*domain.Resolved, error) {
	comp, err := r.employees.Compensation(ctx, tenantID, employeeID, periodEnd)
	if err != nil {
		return nil, err
	}

	code := comp.StructureCode
	if code == "" {
		def, err := r.repo.FindDefault(ctx, r.db, tenantID)
		if err != nil {
			return nil, err
		}
		if def == nil {
			return nil, domain.ErrNoDefaultStructure
		}
		code = def.StructureCode
	}

	version, err := r.repo.FindEffective(ctx, r.db, tenantID, code, periodEnd)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, fmt.Errorf("%s effective %s: %w", code, periodEnd.Format(time.DateOnly), domain.ErrStructureNotFound)
	}

	key := cache.PlanKey{VersionID: version.ID, Revision: version.Revision}
	plan, ok := r.plans.Get(key)
	if !ok {
		plan, err = domain.Compile(version.Components)
		if err != nil {
			r.log.Warn("stored structure version does not compile",
				zap.String("structure_code", version.Code),
				zap.Int("version", version.Version),
				zap.Error(err),
			)
			return nil, err
		}
		r.plans.Set(key, plan)
	}

	return &domain.Resolved{Structure: version, Plan: plan, Compensation: comp}, nil
}

func (r *Resolver) MarkReferenced(ctx context.Context, tx *gorm.DB, versionID snowflake.ID, revision int) error {
	ok, err := r.repo.MarkReferenced(ctx, tx, versionID, revision, r.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("version %s revision %d: %w", versionID, revision, domain.ErrStructureVersionChanged)
	}
	return nil
}
