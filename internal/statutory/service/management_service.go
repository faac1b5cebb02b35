package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/clock"
	"github.com/smallbiznis/payrollengine/internal/salarystructure/formula"
	"github.com/smallbiznis/payrollengine/internal/statutory/domain"
	"github.com/smallbiznis/payrollengine/pkg/db"
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
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("statutory.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	now := s.clock.Now()
	cfg := &domain.Config{
		ID:                  s.genID.Generate(),
		TenantID:            req.TenantID,
		RuleType:            domain.RuleType(strings.ToUpper(strings.TrimSpace(string(req.RuleType)))),
		WageCeiling:         req.WageCeiling,
		EmployeeRatePercent: req.EmployeeRatePercent,
		EmployerRatePercent: req.EmployerRatePercent,
		StandardDeduction:   req.StandardDeduction,
		CessRatePercent:     req.CessRatePercent,
		Bands:               datatypes.JSONSlice[domain.Band](req.Bands),
		BaseComponents:      datatypes.JSONSlice[string](normalizeCodes(req.BaseComponents)),
		EffectiveFrom:       req.EffectiveFrom.UTC(),
		EffectiveTo:         req.EffectiveTo,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if cfg.EffectiveTo != nil {
		to := cfg.EffectiveTo.UTC()
		cfg.EffectiveTo = &to
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		overlapping, err := s.repo.FindOverlapping(ctx, tx, cfg.TenantID, cfg.RuleType, cfg.EffectiveFrom, cfg.EffectiveTo)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return domain.ErrOverlappingConfig
		}
		if err := s.repo.Insert(ctx, tx, cfg); err != nil {
			// the postgres exclusion constraint catches concurrent inserts that raced the check
			if db.IsDuplicateKeyErr(err) || db.IsExclusionViolation(err) {
				return domain.ErrOverlappingConfig
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("statutory config created",
		zap.String("tenant_id", cfg.TenantID.String()),
		zap.String("rule_type", string(cfg.RuleType)),
		zap.Time("effective_from", cfg.EffectiveFrom),
	)
	resp := toResponse(cfg)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	filter := domain.ListRequest{
		RuleType: domain.RuleType(strings.ToUpper(strings.TrimSpace(string(req.RuleType)))),
		SortBy:   strings.TrimSpace(req.SortBy),
		OrderBy:  strings.TrimSpace(req.OrderBy),
	}
	if filter.RuleType != "" && !filter.RuleType.Valid() {
		return nil, domain.ErrInvalidRuleType
	}

	items, err := s.repo.List(ctx, s.db, req.TenantID, filter)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func toResponse(c *domain.Config) domain.Response {
	return domain.Response{
		ID:                  c.ID.String(),
		TenantID:            c.TenantID.String(),
		RuleType:            c.RuleType,
		WageCeiling:         c.WageCeiling,
		EmployeeRatePercent: c.EmployeeRatePercent,
		EmployerRatePercent: c.EmployerRatePercent,
		StandardDeduction:   c.StandardDeduction,
		CessRatePercent:     c.CessRatePercent,
		Bands:               []domain.Band(c.Bands),
		BaseComponents:      []string(c.BaseComponents),
		EffectiveFrom:       c.EffectiveFrom,
		EffectiveTo:         c.EffectiveTo,
		CreatedAt:           c.CreatedAt,
	}
}

// normalizeCodes maps base codes to the identifier form salary structures use
// for component codes, so "House Rent" matches HOUSE_RENT.
func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = formula.Identifier(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
