package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	payrolldomain "github.com/smallbiznis/payrollengine/internal/payroll/domain"
	"github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
	"gorm.io/gorm"
)

// YTDSource sums finalized runs for the TDS projection.
type YTDSource struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewYTDSource(db *gorm.DB, repo domain.Repository) payrolldomain.YTDSource {
	return &YTDSource{db: db, repo: repo}
}

func (s *YTDSource) YearToDate(ctx context.Context, tenantID, employeeID snowflake.ID, fyStart time.Time, period payrolldomain.Period) (payrolldomain.YTD, error) {
	from := fyStart.Year()*12 + int(fyStart.Month())
	to := period.Year*12 + period.Month

	runs, err := s.repo.ListFinalizedRuns(ctx, s.db, tenantID, employeeID, from, to)
	if err != nil {
		return payrolldomain.YTD{}, err
	}

	ytd := payrolldomain.YTD{TaxableEarnings: decimal.Zero, TDS: decimal.Zero}
	for _, run := range runs {
		ytd.TaxableEarnings = ytd.TaxableEarnings.Add(run.TaxableEarnings)
		ytd.TDS = ytd.TDS.Add(run.TDS)
	}
	return ytd, nil
}

// BaselineSource reads the finalized regular run a supplementary run adds to.
type BaselineSource struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewBaselineSource(db *gorm.DB, repo domain.Repository) payrolldomain.BaselineSource {
	return &BaselineSource{db: db, repo: repo}
}

func (s *BaselineSource) Baseline(ctx context.Context, tenantID, employeeID snowflake.ID, period payrolldomain.Period) (*payrolldomain.Baseline, error) {
	run, err := s.repo.FindFinalizedRun(ctx, s.db, tenantID, employeeID, period.Month, period.Year, domain.RunTypeRegular)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%s: %w", period, payrolldomain.ErrNoRegularRun)
	}
	return &payrolldomain.Baseline{
		RunID:                  run.ID,
		GrossEarnings:          run.GrossEarnings,
		PFWages:                run.PFWages,
		ProfessionalTax:        run.ProfessionalTax,
		ProjectedAnnualTaxable: run.ProjectedAnnualTaxable,
	}, nil
}
