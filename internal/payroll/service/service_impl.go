package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	attendancedomain "github.com/smallbiznis/payrollengine/internal/attendance/domain"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	"github.com/smallbiznis/payrollengine/internal/observability/logger"
	"github.com/smallbiznis/payrollengine/internal/observability/metrics"
	"github.com/smallbiznis/payrollengine/internal/observability/tracing"
	"github.com/smallbiznis/payrollengine/internal/payroll/domain"
	"github.com/smallbiznis/payrollengine/internal/payroll/engine"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	"github.com/smallbiznis/payrollengine/internal/salarystructure/formula"
	statutorydomain "github.com/smallbiznis/payrollengine/internal/statutory/domain"
	tenantsettingsdomain "github.com/smallbiznis/payrollengine/internal/tenantsettings/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	Metrics    *metrics.Metrics `optional:"true"`
	Settings   tenantsettingsdomain.Service
	Employees  employeedomain.Service
	Statutory  statutorydomain.Resolver
	Structures salarystructuredomain.Resolver
	Attendance attendancedomain.Aggregator
	YTD        domain.YTDSource
	Baselines  domain.BaselineSource
}

type Service struct {
	log        *zap.Logger
	metrics    *metrics.Metrics
	settings   tenantsettingsdomain.Service
	employees  employeedomain.Service
	statutory  statutorydomain.Resolver
	structures salarystructuredomain.Resolver
	attendance attendancedomain.Aggregator
	ytd        domain.YTDSource
	baselines  domain.BaselineSource
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:        p.Log.Named("payroll.service"),
		metrics:    p.Metrics,
		settings:   p.Settings,
		employees:  p.Employees,
		statutory:  p.Statutory,
		structures: p.Structures,
		attendance: p.Attendance,
		ytd:        p.YTD,
		baselines:  p.Baselines,
	}
}

func (s *Service) Prepare(ctx context.Context, req domain.CalculateRequest) (*domain.Prepared, error) {
	if req.TenantID == 0 || req.EmployeeID == 0 {
		return nil, domain.ErrInvalidInput
	}
	period, err := domain.NewPeriod(req.Period.Month, req.Period.Year)
	if err != nil {
		return nil, err
	}
	payments, err := domain.NormalizeVariablePayments(req.VariablePayments)
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.Get(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	emp, err := s.employees.Get(ctx, req.TenantID, req.EmployeeID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.structures.Resolve(ctx, req.TenantID, emp.ID, period.End())
	if err != nil {
		return nil, err
	}
	comp := resolved.Compensation
	applicability := domain.Applicability{
		PF:  comp.PFApplicable,
		ESI: comp.ESIApplicable,
		PT:  comp.PTApplicable,
		TDS: comp.TDSApplicable,
	}

	rules, err := s.resolveRules(ctx, req.TenantID, applicability, period)
	if err != nil {
		return nil, err
	}

	var (
		agg      attendancedomain.Aggregate
		baseline *domain.Baseline
	)
	if req.Supplementary {
		baseline, err = s.baselines.Baseline(ctx, req.TenantID, emp.ID, period)
		if err != nil {
			return nil, err
		}
	} else {
		agg, err = s.attendance.Aggregate(ctx, req.TenantID, emp.ID, period.Start(), period.End())
		if err != nil {
			return nil, err
		}
	}

	ytd := domain.YTD{TaxableEarnings: decimal.Zero, TDS: decimal.Zero}
	if applicability.TDS && !req.Supplementary {
		ytd, err = s.ytd.YearToDate(ctx, req.TenantID, emp.ID, settings.FiscalYearStart(period.Start()), period)
		if err != nil {
			return nil, err
		}
	}

	overrides := make(map[string]decimal.Decimal, len(comp.Overrides))
	for _, o := range comp.Overrides {
		overrides[formula.Identifier(o.Code)] = o.Amount
	}

	return &domain.Prepared{
		Input: domain.Input{
			Period:           period,
			Precision:        settings.CurrencyPrecision,
			Plan:             resolved.Plan,
			Overrides:        overrides,
			Applicability:    applicability,
			AnnualExemptions: comp.AnnualExemptions,
			Attendance:       agg,
			Rules:            rules,
			YTD:              ytd,
			RemainingPeriods: settings.RemainingPeriods(period.Start()),
			VariablePayments: payments,
			Baseline:         baseline,
		},
		Employee:           emp,
		StructureCode:      resolved.Structure.Code,
		StructureVersion:   resolved.Structure.Version,
		StructureVersionID: resolved.Structure.ID,
		StructureRevision:  resolved.Structure.Revision,
		StatutoryConfigIDs: rules.ConfigIDs(),
	}, nil
}

// resolveRules looks up only the rules the employee is subject to, so a
// tenant without a TDS config can still pay employees exempt from TDS.
func (s *Service) resolveRules(ctx context.Context, tenantID snowflake.ID, a domain.Applicability, period domain.Period) (statutorydomain.Rules, error) {
	wanted := make([]statutorydomain.RuleType, 0, len(statutorydomain.RuleTypes))
	for _, w := range []struct {
		applies  bool
		ruleType statutorydomain.RuleType
	}{
		{a.PF, statutorydomain.RuleTypePF},
		{a.ESI, statutorydomain.RuleTypeESI},
		{a.PT, statutorydomain.RuleTypePT},
		{a.TDS, statutorydomain.RuleTypeTDS},
	} {
		if w.applies {
			wanted = append(wanted, w.ruleType)
		}
	}
	if len(wanted) == 0 {
		return statutorydomain.Rules{}, nil
	}
	return s.statutory.ResolveAll(ctx, tenantID, period.End(), wanted...)
}

func (s *Service) Calculate(ctx context.Context, req domain.CalculateRequest) (calc *domain.Calculation, err error) {
	ctx, span := tracing.Start(ctx, "payroll.calculate",
		attribute.String("employee_id", req.EmployeeID.String()),
		attribute.String("period", req.Period.String()),
	)
	defer func() { tracing.End(span, err) }()

	prepared, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := engine.Calculate(prepared.Input)
	if err != nil {
		return &domain.Calculation{Prepared: prepared, Result: result}, err
	}
	return &domain.Calculation{
		Prepared: prepared,
		Result:   result,
		Checksum: result.Checksum(req.EmployeeID),
	}, nil
}

func (s *Service) Preview(ctx context.Context, req domain.PreviewRequest) (*domain.PreviewResponse, error) {
	employeeID, err := snowflake.ParseString(req.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("employee_id %q: %w", req.EmployeeID, domain.ErrInvalidInput)
	}
	period, err := domain.NewPeriod(req.Month, req.Year)
	if err != nil {
		return nil, err
	}

	calc, err := s.Calculate(ctx, domain.CalculateRequest{
		TenantID:         req.TenantID,
		EmployeeID:       employeeID,
		Period:           period,
		VariablePayments: req.VariablePayments,
		Supplementary:    req.Supplementary,
	})
	s.metrics.RecordPreview(ctx, string(domain.FailureCodeFor(err)))
	if err != nil {
		logger.WithContext(ctx, s.log).Info("payroll preview failed",
			zap.String("employee_id", employeeID.String()),
			zap.String("period", period.String()),
			zap.String("failure_code", string(domain.FailureCodeFor(err))),
			zap.Error(err),
		)
		return nil, err
	}

	configIDs := make(map[string]string, len(calc.Prepared.StatutoryConfigIDs))
	for ruleType, id := range calc.Prepared.StatutoryConfigIDs {
		if id != 0 {
			configIDs[string(ruleType)] = id.String()
		}
	}
	return &domain.PreviewResponse{
		EmployeeID:         employeeID.String(),
		Period:             period.String(),
		StructureCode:      calc.Prepared.StructureCode,
		StructureVersion:   calc.Prepared.StructureVersion,
		StatutoryConfigIDs: configIDs,
		Result:             calc.Result,
		Checksum:           calc.Checksum,
	}, nil
}
