package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/cache"
	"github.com/smallbiznis/payrollengine/internal/clock"
	"github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	"github.com/smallbiznis/payrollengine/internal/salarystructure/formula"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Plans cache.StructurePlanCache
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	plans cache.StructurePlanCache
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("salarystructure.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		plans: p.Plans,
	}
}

// CreateVersion saves a structure definition. The latest version is edited in
// place while unreferenced; once a run has used it a new version is created.
func (s *Service) CreateVersion(ctx context.Context, req domain.CreateVersionRequest) (*domain.Response, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	code := formula.Identifier(req.Code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.EffectiveFrom.IsZero() {
		return nil, domain.ErrInvalidEffectiveFrom
	}

	plan, err := domain.Compile(req.Components)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var saved *domain.Structure
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		latest, err := s.repo.FindLatest(ctx, tx, req.TenantID, code)
		if err != nil {
			return err
		}

		if latest != nil && !latest.Referenced() {
			latest.Name = name
			latest.Components = datatypes.JSONSlice[domain.Component](plan.Components)
			latest.EffectiveFrom = req.EffectiveFrom.UTC()
			latest.UpdatedAt = now
			updated, err := s.repo.UpdateComponents(ctx, tx, latest)
			if err != nil {
				return err
			}
			if updated {
				s.plans.Invalidate(cache.PlanKey{VersionID: latest.ID, Revision: latest.Revision})
				latest.Revision++
				saved = latest
				return s.maybeSetDefault(ctx, tx, req, code)
			}
			// referenced concurrently; fall through to a new version
		}

		version := 1
		if latest != nil {
			version = latest.Version + 1
		}
		saved = &domain.Structure{
			ID:            s.genID.Generate(),
			TenantID:      req.TenantID,
			Code:          code,
			Version:       version,
			Name:          name,
			Components:    datatypes.JSONSlice[domain.Component](plan.Components),
			EffectiveFrom: req.EffectiveFrom.UTC(),
			Revision:      1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, saved); err != nil {
			return err
		}
		return s.maybeSetDefault(ctx, tx, req, code)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("salary structure saved",
		zap.String("tenant_id", saved.TenantID.String()),
		zap.String("structure_code", saved.Code),
		zap.Int("version", saved.Version),
	)
	resp := toResponse(saved)
	return &resp, nil
}

func (s *Service) maybeSetDefault(ctx context.Context, tx *gorm.DB, req domain.CreateVersionRequest, code string) error {
	if !req.MakeDefault {
		existing, err := s.repo.FindDefault(ctx, tx, req.TenantID)
		if err != nil || existing != nil {
			return err
		}
	}
	return s.repo.UpsertDefault(ctx, tx, &domain.Default{
		TenantID:      req.TenantID,
		StructureCode: code,
		UpdatedAt:     s.clock.Now(),
	})
}

// SetDefault marks code as the tenant's single default structure.
func (s *Service) SetDefault(ctx context.Context, tenantID snowflake.ID, code string) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}
	code = formula.Identifier(code)
	if code == "" {
		return domain.ErrInvalidCode
	}
	latest, err := s.repo.FindLatest(ctx, s.db, tenantID, code)
	if err != nil {
		return err
	}
	if latest == nil {
		return domain.ErrStructureNotFound
	}
	return s.repo.UpsertDefault(ctx, s.db, &domain.Default{
		TenantID:      tenantID,
		StructureCode: code,
		UpdatedAt:     s.clock.Now(),
	})
}

func (s *Service) ListVersions(ctx context.Context, tenantID snowflake.ID, code string) ([]domain.Response, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	rows, err := s.repo.ListVersions(ctx, s.db, tenantID, formula.Identifier(code))
	if err != nil {
		return nil, err
	}
	resp := make([]domain.Response, 0, len(rows))
	for i := range rows {
		resp = append(resp, toResponse(&rows[i]))
	}
	return resp, nil
}

func toResponse(s *domain.Structure) domain.Response {
	return domain.Response{
		ID:            s.ID.String(),
		TenantID:      s.TenantID.String(),
		Code:          s.Code,
		Version:       s.Version,
		Revision:      s.Revision,
		Name:          s.Name,
		Components:    []domain.Component(s.Components),
		EffectiveFrom: s.EffectiveFrom,
		Referenced:    s.Referenced(),
		CreatedAt:     s.CreatedAt,
	}
}
