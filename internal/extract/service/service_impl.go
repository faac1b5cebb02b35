package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/payrollengine/internal/audit/domain"
	"github.com/smallbiznis/payrollengine/internal/clock"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	"github.com/smallbiznis/payrollengine/internal/extract/domain"
	"github.com/smallbiznis/payrollengine/internal/extract/render"
	"github.com/smallbiznis/payrollengine/internal/observability/logger"
	"github.com/smallbiznis/payrollengine/internal/observability/metrics"
	"github.com/smallbiznis/payrollengine/internal/observability/tracing"
	payrollcycledomain "github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Cycles    payrollcycledomain.Repository
	Employees employeedomain.Service
	Audit     auditdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	cycles    payrollcycledomain.Repository
	employees employeedomain.Service
	audit     auditdomain.Service
	metrics   *metrics.Metrics
}

// New serves both extract generation and post-payment reconciliation.
func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("extract.service"),
		clock:     p.Clock,
		cycles:    p.Cycles,
		employees: p.Employees,
		audit:     p.Audit,
		metrics:   p.Metrics,
	}
}

func (s *Service) Generate(ctx context.Context, tenantID, cycleID snowflake.ID) (*domain.Extract, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	cycle, err := s.cycles.FindCycle(ctx, s.db, tenantID, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, payrollcycledomain.ErrCycleNotFound
	}
	return s.build(ctx, cycle)
}

func (s *Service) Render(ctx context.Context, req domain.GenerateRequest) (out *domain.Rendered, err error) {
	ctx, span := tracing.Start(ctx, "extract.render",
		attribute.String("cycle_id", req.CycleID.String()),
		attribute.String("format", string(req.Format)),
	)
	defer func() {
		tracing.End(span, err)
		s.metrics.RecordExtract(ctx, string(req.Format), err)
	}()

	if req.Format == "" {
		req.Format = domain.FormatJSON
	}
	ex, err := s.Generate(ctx, req.TenantID, req.CycleID)
	if err != nil {
		return nil, err
	}
	body, contentType, err := render.Render(ex, req.Format)
	if err != nil {
		return nil, err
	}

	err = s.audit.AuditLog(ctx, nil, ex.TenantID, auditdomain.ActionExtractGenerated, auditdomain.TargetPayrollCycle, ex.CycleID.String(), map[string]any{
		"extract_id":       ex.ID,
		"format":           string(req.Format),
		"rows":             len(ex.Rows),
		"epf_contribution": ex.Totals.EPFContribution.String(),
	})
	if err != nil {
		return nil, err
	}

	logger.WithCycle(logger.WithContext(ctx, s.log), ex.TenantID.String(), ex.CycleID.String()).
		Info("statutory extract generated", zap.String("extract_id", ex.ID), zap.String("format", string(req.Format)), zap.Int("rows", len(ex.Rows)))

	return &domain.Rendered{
		Extract:     ex,
		Format:      req.Format,
		ContentType: contentType,
		Filename:    render.Filename(ex, req.Format),
		Body:        body,
	}, nil
}

// Reconcile checks that the extract of a finalized cycle matches its stored totals.
func (s *Service) Reconcile(ctx context.Context, cycle *payrollcycledomain.Cycle) error {
	_, err := s.build(ctx, cycle)
	return err
}

func (s *Service) build(ctx context.Context, cycle *payrollcycledomain.Cycle) (*domain.Extract, error) {
	if !cycle.Status.Finalized() {
		return nil, fmt.Errorf("cycle status %s: %w", cycle.Status, domain.ErrCycleNotFinalized)
	}

	runs, err := s.cycles.ListRuns(ctx, s.db, cycle.TenantID, cycle.ID)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.Row, 0, len(runs))
	for _, run := range runs {
		if run.Status != payrollcycledomain.RunStatusSucceeded {
			continue
		}
		emp, err := s.employees.Get(ctx, cycle.TenantID, run.EmployeeID)
		if err != nil {
			return nil, fmt.Errorf("employee %s: %w", run.EmployeeID, err)
		}
		rows = append(rows, rowFor(emp, run).Round(cycle.CurrencyPrecision))
	}

	totals := domain.Sum(rows)
	if err := reconcile(totals, cycle.Totals, cycle.CurrencyPrecision); err != nil {
		return nil, err
	}

	return &domain.Extract{
		ID:          ulid.Make().String(),
		TenantID:    cycle.TenantID,
		CycleID:     cycle.ID,
		Period:      cycle.Period().String(),
		RunType:     string(cycle.RunType),
		GeneratedAt: s.clock.Now(),
		Precision:   cycle.CurrencyPrecision,
		Rows:        rows,
		Totals:      totals,
	}, nil
}

func rowFor(emp *employeedomain.Employee, run payrollcycledomain.Run) domain.Row {
	return domain.Row{
		EmployeeID:      run.EmployeeID,
		EmployeeCode:    emp.Code,
		UAN:             emp.UAN,
		Name:            emp.Name,
		GrossWages:      run.GrossEarnings,
		EPFWages:        run.PFWages,
		EPSWages:        run.PFWages,
		EDLIWages:       run.PFWages,
		PFEmployee:      run.PFEmployee,
		PFEmployer:      run.PFEmployer,
		EPFContribution: run.PFEmployee.Add(run.PFEmployer),
		ESINumber:       emp.ESINumber,
		ESIWages:        run.ESIWages,
		ESIEmployee:     run.ESIEmployee,
		ESIEmployer:     run.ESIEmployer,
		NCPDays:         run.LOPDays,
	}
}

// reconcile compares extract sums with the totals captured at lock, both at
// the cycle's currency precision.
func reconcile(got domain.Totals, want payrollcycledomain.Totals, precision int32) error {
	checks := []struct {
		field     string
		got, want decimal.Decimal
	}{
		{"gross_wages", got.GrossWages, want.GrossEarnings},
		{"pf_employee", got.PFEmployee, want.PFEmployee},
		{"pf_employer", got.PFEmployer, want.PFEmployer},
		{"epf_contribution", got.EPFContribution, want.PFEmployee.Add(want.PFEmployer)},
		{"esi_employee", got.ESIEmployee, want.ESIEmployee},
		{"esi_employer", got.ESIEmployer, want.ESIEmployer},
	}
	for _, c := range checks {
		c.want = c.want.Round(precision)
		if !c.got.Equal(c.want) {
			return fmt.Errorf("%s: extract %s, cycle %s: %w", c.field, c.got.String(), c.want.String(), domain.ErrExtractReconciliationFailed)
		}
	}
	return nil
}
