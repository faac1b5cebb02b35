package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	attendancedomain "github.com/smallbiznis/payrollengine/internal/attendance/domain"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	"github.com/smallbiznis/payrollengine/internal/payroll/domain"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	statutorydomain "github.com/smallbiznis/payrollengine/internal/statutory/domain"
	tenantsettingsdomain "github.com/smallbiznis/payrollengine/internal/tenantsettings/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type stubSettings struct{ settings tenantsettingsdomain.Settings }

func (s stubSettings) Get(context.Context, snowflake.ID) (tenantsettingsdomain.Settings, error) {
	return s.settings, nil
}

func (s stubSettings) Upsert(context.Context, snowflake.ID, tenantsettingsdomain.UpsertRequest) (tenantsettingsdomain.Settings, error) {
	return s.settings, nil
}

type stubEmployees struct{ emp *employeedomain.Employee }

func (s stubEmployees) Get(_ context.Context, _, id snowflake.ID) (*employeedomain.Employee, error) {
	if s.emp == nil || s.emp.ID != id {
		return nil, employeedomain.ErrNotFound
	}
	return s.emp, nil
}

func (s stubEmployees) InScope(context.Context, snowflake.ID, time.Time, time.Time) ([]employeedomain.Employee, error) {
	return []employeedomain.Employee{*s.emp}, nil
}

func (s stubEmployees) Compensation(context.Context, snowflake.ID, snowflake.ID, time.Time) (*employeedomain.Compensation, error) {
	return nil, employeedomain.ErrCompensationNotFound
}

type stubStatutory struct {
	rules    map[statutorydomain.RuleType]*statutorydomain.Rule
	resolved []statutorydomain.RuleType
}

func (s *stubStatutory) Resolve(_ context.Context, _ snowflake.ID, ruleType statutorydomain.RuleType, _ time.Time) (*statutorydomain.Rule, error) {
	s.resolved = append(s.resolved, ruleType)
	rule, ok := s.rules[ruleType]
	if !ok {
		return nil, statutorydomain.ErrConfigNotFound
	}
	return rule, nil
}

func (s *stubStatutory) ResolveAll(ctx context.Context, tenantID snowflake.ID, periodEnd time.Time, ruleTypes ...statutorydomain.RuleType) (statutorydomain.Rules, error) {
	var rules statutorydomain.Rules
	for _, ruleType := range ruleTypes {
		rule, err := s.Resolve(ctx, tenantID, ruleType, periodEnd)
		if err != nil {
			return statutorydomain.Rules{}, err
		}
		switch ruleType {
		case statutorydomain.RuleTypePF:
			rules.PF = rule
		case statutorydomain.RuleTypeESI:
			rules.ESI = rule
		case statutorydomain.RuleTypePT:
			rules.PT = rule
		case statutorydomain.RuleTypeTDS:
			rules.TDS = rule
		}
	}
	return rules, nil
}

type stubStructures struct {
	resolved *salarystructuredomain.Resolved
}

func (s stubStructures) Resolve(context.Context, snowflake.ID, snowflake.ID, time.Time) (*salarystructuredomain.Resolved, error) {
	return s.resolved, nil
}

func (s stubStructures) MarkReferenced(context.Context, *gorm.DB, snowflake.ID, int) error {
	return nil
}

type stubAttendance struct {
	agg attendancedomain.Aggregate
	err error
}

func (s stubAttendance) Aggregate(context.Context, snowflake.ID, snowflake.ID, time.Time, time.Time) (attendancedomain.Aggregate, error) {
	return s.agg, s.err
}

type stubYTD struct {
	ytd    domain.YTD
	calls  int
	fyFrom time.Time
}

func (s *stubYTD) YearToDate(_ context.Context, _, _ snowflake.ID, fyStart time.Time, _ domain.Period) (domain.YTD, error) {
	s.calls++
	s.fyFrom = fyStart
	return s.ytd, nil
}

type stubBaselines struct {
	baseline *domain.Baseline
	calls    int
}

func (s *stubBaselines) Baseline(context.Context, snowflake.ID, snowflake.ID, domain.Period) (*domain.Baseline, error) {
	s.calls++
	if s.baseline == nil {
		return nil, domain.ErrNoRegularRun
	}
	return s.baseline, nil
}

type fixture struct {
	tenantID   snowflake.ID
	employee   *employeedomain.Employee
	statutory  *stubStatutory
	ytd        *stubYTD
	attendance *stubAttendance
	baselines  *stubBaselines
	comp       *employeedomain.Compensation
	svc        *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	plan, err := salarystructuredomain.Compile([]salarystructuredomain.Component{
		{Code: "BASIC", Name: "Basic", Kind: salarystructuredomain.KindEarning, Computation: salarystructuredomain.ComputationFixedAmount, Amount: decimal.NewFromInt(20000), Proratable: true, PFWage: true, Taxable: true},
	})
	require.NoError(t, err)

	f := &fixture{tenantID: node.Generate()}
	f.employee = &employeedomain.Employee{ID: node.Generate(), TenantID: f.tenantID, Code: "E001", Name: "Asha"}
	f.comp = &employeedomain.Compensation{
		ID: node.Generate(), TenantID: f.tenantID, EmployeeID: f.employee.ID,
		Overrides:        datatypes.JSONSlice[employeedomain.AmountOverride]{{Code: "basic", Amount: decimal.NewFromInt(30000)}},
		AnnualExemptions: decimal.Zero,
		PFApplicable:     true,
	}
	f.statutory = &stubStatutory{rules: map[statutorydomain.RuleType]*statutorydomain.Rule{
		statutorydomain.RuleTypePF: {
			ConfigID: node.Generate(), RuleType: statutorydomain.RuleTypePF,
			WageCeiling: decimal.NewFromInt(15000), EmployeeRatePercent: decimal.NewFromInt(12), EmployerRatePercent: decimal.NewFromInt(12),
		},
	}}
	f.ytd = &stubYTD{}
	f.baselines = &stubBaselines{}
	f.attendance = &stubAttendance{agg: attendancedomain.Aggregate{
		TotalDays: decimal.NewFromInt(30), PaidDays: decimal.NewFromInt(25), LOPDays: decimal.NewFromInt(5),
	}}

	structure := &salarystructuredomain.Structure{ID: node.Generate(), TenantID: f.tenantID, Code: "STD", Version: 3, Revision: 2}
	f.svc = NewService(ServiceParam{
		Log: zap.NewNop(),
		Settings: stubSettings{settings: tenantsettingsdomain.Settings{
			TenantID: f.tenantID, CurrencyPrecision: 2, FiscalYearStartMonth: 4,
		}},
		Employees:  stubEmployees{emp: f.employee},
		Statutory:  f.statutory,
		Structures: stubStructures{resolved: &salarystructuredomain.Resolved{Structure: structure, Plan: plan, Compensation: f.comp}},
		Attendance: f.attendance,
		YTD:        f.ytd,
		Baselines:  f.baselines,
	}).(*Service)
	return f
}

func TestPrepareResolvesOnlyApplicableRules(t *testing.T) {
	f := newFixture(t)

	prepared, err := f.svc.Prepare(context.Background(), domain.CalculateRequest{
		TenantID: f.tenantID, EmployeeID: f.employee.ID, Period: domain.Period{Month: 6, Year: 2025},
	})
	require.NoError(t, err)

	assert.Equal(t, []statutorydomain.RuleType{statutorydomain.RuleTypePF}, f.statutory.resolved)
	assert.Nil(t, prepared.Input.Rules.TDS)
	assert.Zero(t, f.ytd.calls)
	assert.Equal(t, "STD", prepared.StructureCode)
	assert.Equal(t, 3, prepared.StructureVersion)
	assert.Equal(t, 2, prepared.StructureRevision)
	assert.Equal(t, 10, prepared.Input.RemainingPeriods)
	assert.True(t, prepared.Input.Overrides["BASIC"].Equal(decimal.NewFromInt(30000)))
	assert.Len(t, prepared.StatutoryConfigIDs, 1)
}

func TestPrepareLoadsYTDForTDS(t *testing.T) {
	f := newFixture(t)
	f.comp.TDSApplicable = true
	f.statutory.rules[statutorydomain.RuleTypeTDS] = &statutorydomain.Rule{RuleType: statutorydomain.RuleTypeTDS}

	_, err := f.svc.Prepare(context.Background(), domain.CalculateRequest{
		TenantID: f.tenantID, EmployeeID: f.employee.ID, Period: domain.Period{Month: 2, Year: 2026},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.ytd.calls)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), f.ytd.fyFrom)
}

func TestCalculateAppliesOverrideAndProration(t *testing.T) {
	f := newFixture(t)

	calc, err := f.svc.Calculate(context.Background(), domain.CalculateRequest{
		TenantID: f.tenantID, EmployeeID: f.employee.ID, Period: domain.Period{Month: 6, Year: 2025},
	})
	require.NoError(t, err)

	assert.True(t, calc.Result.GrossEarnings.Equal(decimal.NewFromInt(25000)))
	assert.True(t, calc.Result.PFEmployee.Equal(decimal.NewFromInt(1800)))
	assert.NotEmpty(t, calc.Checksum)

	again, err := f.svc.Calculate(context.Background(), domain.CalculateRequest{
		TenantID: f.tenantID, EmployeeID: f.employee.ID, Period: domain.Period{Month: 6, Year: 2025},
	})
	require.NoError(t, err)
	assert.Equal(t, calc.Checksum, again.Checksum)
}

func TestCalculateMissingApplicableConfig(t *testing.T) {
	f := newFixture(t)
	f.comp.ESIApplicable = true

	_, err := f.svc.Calculate(context.Background(), domain.CalculateRequest{
		TenantID: f.tenantID, EmployeeID: f.employee.ID, Period: domain.Period{Month: 6, Year: 2025},
	})
	require.ErrorIs(t, err, statutorydomain.ErrConfigNotFound)
	assert.Equal(t, domain.FailureConfigNotFound, domain.FailureCodeFor(err))
}

func TestCalculateNoAttendanceData(t *testing.T) {
	f := newFixture(t)
	f.attendance.err = attendancedomain.ErrNoAttendanceData

	_, err := f.svc.Calculate(context.Background(), domain.CalculateRequest{
		TenantID: f.tenantID, EmployeeID: f.employee.ID, Period: domain.Period{Month: 6, Year: 2025},
	})
	assert.Equal(t, domain.FailureNoAttendanceData, domain.FailureCodeFor(err))
}

func TestPreview(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Preview(context.Background(), domain.PreviewRequest{
		TenantID:   f.tenantID,
		EmployeeID: f.employee.ID.String(),
		Month:      6,
		Year:       2025,
		VariablePayments: []domain.VariablePayment{
			{Code: "BONUS", Amount: decimal.NewFromInt(1000), Taxable: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "2025-06", resp.Period)
	assert.True(t, resp.Result.GrossEarnings.Equal(decimal.NewFromInt(26000)))
	assert.Contains(t, resp.StatutoryConfigIDs, "PF")

	_, err = f.svc.Preview(context.Background(), domain.PreviewRequest{TenantID: f.tenantID, EmployeeID: "nope", Month: 6, Year: 2025})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.Preview(context.Background(), domain.PreviewRequest{TenantID: f.tenantID, EmployeeID: f.employee.ID.String(), Month: 13, Year: 2025})
	require.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestPrepareNormalizesVariablePayments(t *testing.T) {
	f := newFixture(t)

	prepared, err := f.svc.Prepare(context.Background(), domain.CalculateRequest{
		TenantID: f.tenantID, EmployeeID: f.employee.ID, Period: domain.Period{Month: 6, Year: 2025},
		VariablePayments: []domain.VariablePayment{{Code: "diwali bonus", Amount: decimal.NewFromInt(5000)}},
	})
	require.NoError(t, err)
	require.Len(t, prepared.Input.VariablePayments, 1)
	assert.Equal(t, "DIWALI_BONUS", prepared.Input.VariablePayments[0].Code)

	_, err = f.svc.Prepare(context.Background(), domain.CalculateRequest{
		TenantID: f.tenantID, EmployeeID: f.employee.ID, Period: domain.Period{Month: 6, Year: 2025},
		VariablePayments: []domain.VariablePayment{
			{Code: "BONUS", Amount: decimal.NewFromInt(1)},
			{Code: "bonus", Amount: decimal.NewFromInt(2)},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidVariablePayment)
}

func TestCalculateSupplementaryUsesRegularRunBaseline(t *testing.T) {
	f := newFixture(t)
	f.attendance.err = attendancedomain.ErrNoAttendanceData
	f.baselines.baseline = &domain.Baseline{
		GrossEarnings:          decimal.NewFromInt(25000),
		PFWages:                decimal.NewFromInt(15000),
		ProfessionalTax:        decimal.Zero,
		ProjectedAnnualTaxable: decimal.Zero,
	}

	calc, err := f.svc.Calculate(context.Background(), domain.CalculateRequest{
		TenantID: f.tenantID, EmployeeID: f.employee.ID, Period: domain.Period{Month: 6, Year: 2025},
		Supplementary:    true,
		VariablePayments: []domain.VariablePayment{{Code: "BONUS", Amount: decimal.NewFromInt(4000), Taxable: true, PFWage: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.baselines.calls)
	require.Len(t, calc.Result.Lines, 1)
	assert.True(t, calc.Result.GrossEarnings.Equal(decimal.NewFromInt(4000)))
	// The regular run already used the whole PF ceiling.
	assert.True(t, calc.Result.PFEmployee.IsZero())
	assert.True(t, calc.Result.NetPay.Equal(decimal.NewFromInt(4000)))
}

func TestCalculateSupplementaryWithoutRegularRunFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Calculate(context.Background(), domain.CalculateRequest{
		TenantID: f.tenantID, EmployeeID: f.employee.ID, Period: domain.Period{Month: 6, Year: 2025},
		Supplementary: true,
	})
	require.ErrorIs(t, err, domain.ErrNoRegularRun)
	assert.Equal(t, domain.FailureNoRegularRun, domain.FailureCodeFor(err))
}
