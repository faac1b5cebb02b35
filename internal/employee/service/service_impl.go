package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/employee/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:  p.Log.Named("employee.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, tenantID, id snowflake.ID) (*domain.Employee, error) {
	emp, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, domain.ErrNotFound
	}
	return emp, nil
}

func (s *Service) InScope(ctx context.Context, tenantID snowflake.ID, periodStart, periodEnd time.Time) ([]domain.Employee, error) {
	return s.repo.ListInScope(ctx, tenantID, periodStart, periodEnd)
}

func (s *Service) Compensation(ctx context.Context, tenantID, employeeID snowflake.ID, asOf time.Time) (*domain.Compensation, error) {
	comp, err := s.repo.FindCompensation(ctx, tenantID, employeeID, asOf)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, domain.ErrCompensationNotFound
	}
	return comp, nil
}
