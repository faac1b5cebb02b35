package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/clock"
	"github.com/smallbiznis/payrollengine/internal/config"
	"github.com/smallbiznis/payrollengine/internal/tenantsettings/domain"
	"github.com/smallbiznis/payrollengine/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Payroll *config.PayrollConfigHolder
	Repo    repository.Repository[domain.Settings]
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	payroll *config.PayrollConfigHolder
	repo    repository.Repository[domain.Settings]
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:     p.Log.Named("tenantsettings.service"),
		clock:   p.Clock,
		payroll: p.Payroll,
		repo:    p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID) (domain.Settings, error) {
	if tenantID == 0 {
		return domain.Settings{}, domain.ErrInvalidTenant
	}
	row, err := s.repo.FindOne(ctx, &domain.Settings{TenantID: tenantID})
	if err != nil {
		return domain.Settings{}, err
	}
	if row == nil {
		return s.defaults(tenantID), nil
	}
	return *row, nil
}

func (s *Service) Upsert(ctx context.Context, tenantID snowflake.ID, req domain.UpsertRequest) (domain.Settings, error) {
	current, err := s.Get(ctx, tenantID)
	if err != nil {
		return domain.Settings{}, err
	}

	now := s.clock.Now()
	if current.CreatedAt.IsZero() {
		current.CreatedAt = now
	}
	current.UpdatedAt = now
	if req.CurrencyPrecision != nil {
		current.CurrencyPrecision = *req.CurrencyPrecision
	}
	if req.FiscalYearStartMonth != nil {
		current.FiscalYearStartMonth = *req.FiscalYearStartMonth
	}
	if req.AssumeFullAttendance != nil {
		current.AssumeFullAttendance = *req.AssumeFullAttendance
	}
	if err := current.Validate(); err != nil {
		return domain.Settings{}, err
	}

	if err := s.repo.Save(ctx, &current); err != nil {
		return domain.Settings{}, err
	}
	s.log.Info("tenant payroll settings updated",
		zap.String("tenant_id", tenantID.String()),
		zap.Int32("precision", current.CurrencyPrecision),
		zap.Bool("assume_full_attendance", current.AssumeFullAttendance),
	)
	return current, nil
}

func (s *Service) defaults(tenantID snowflake.ID) domain.Settings {
	cfg := s.payroll.Get()
	return domain.Settings{
		TenantID:             tenantID,
		CurrencyPrecision:    cfg.DefaultPrecision,
		FiscalYearStartMonth: cfg.FiscalYearStartMonth,
	}
}
