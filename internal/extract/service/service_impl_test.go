package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/payrollengine/internal/audit/domain"
	auditrepository "github.com/smallbiznis/payrollengine/internal/audit/repository"
	auditservice "github.com/smallbiznis/payrollengine/internal/audit/service"
	"github.com/smallbiznis/payrollengine/internal/clock"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	"github.com/smallbiznis/payrollengine/internal/extract/domain"
	payrollcycledomain "github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
	payrollcyclerepository "github.com/smallbiznis/payrollengine/internal/payrollcycle/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type stubEmployees struct {
	byID map[snowflake.ID]*employeedomain.Employee
}

func (s stubEmployees) Get(_ context.Context, _, id snowflake.ID) (*employeedomain.Employee, error) {
	emp, ok := s.byID[id]
	if !ok {
		return nil, employeedomain.ErrNotFound
	}
	return emp, nil
}

func (s stubEmployees) InScope(context.Context, snowflake.ID, time.Time, time.Time) ([]employeedomain.Employee, error) {
	return nil, nil
}

func (s stubEmployees) Compensation(context.Context, snowflake.ID, snowflake.ID, time.Time) (*employeedomain.Compensation, error) {
	return nil, employeedomain.ErrCompensationNotFound
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	cycle *payrollcycledomain.Cycle
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T, status payrollcycledomain.CycleStatus) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&payrollcycledomain.Cycle{}, &payrollcycledomain.Run{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC))
	repo := payrollcyclerepository.Provide()
	ctx := context.Background()

	tenantID := node.Generate()
	employees := map[snowflake.ID]*employeedomain.Employee{}
	type amounts struct{ gross, pfWages, pfEmp, pfEr, esiEmp, esiEr, lop string }
	inputs := []amounts{
		{"20000", "15000", "1800", "1800", "0", "0", "0"},
		{"18000", "15000", "1800", "1800", "135", "585", "2"},
	}

	cycle := &payrollcycledomain.Cycle{
		ID: node.Generate(), TenantID: tenantID, Month: 6, Year: 2025,
		RunType: payrollcycledomain.RunTypeRegular, Status: status, Version: 3,
		CurrencyPrecision:    2,
		Totals:               payrollcycledomain.ZeroTotals(),
		ReconciliationStatus: payrollcycledomain.ReconciliationPending,
		CreatedAt:            clk.Now(), UpdatedAt: clk.Now(),
	}
	var runs []*payrollcycledomain.Run
	for i, in := range inputs {
		emp := &employeedomain.Employee{
			ID: node.Generate(), TenantID: tenantID,
			Code: fmt.Sprintf("E%03d", i+1), Name: fmt.Sprintf("Member %d", i+1),
			UAN: fmt.Sprintf("10010020030%d", i), Active: true,
		}
		employees[emp.ID] = emp

		run := &payrollcycledomain.Run{
			ID: node.Generate(), TenantID: tenantID, CycleID: cycle.ID, EmployeeID: emp.ID,
			Status: payrollcycledomain.RunStatusSucceeded, CalculatedAt: clk.Now(),
			StatutoryConfigIDs: datatypes.NewJSONType(map[string]string{}),
		}
		run.ZeroAmounts()
		run.GrossEarnings = d(in.gross)
		run.PFWages = d(in.pfWages)
		run.PFEmployee = d(in.pfEmp)
		run.PFEmployer = d(in.pfEr)
		run.ESIEmployee = d(in.esiEmp)
		run.ESIEmployer = d(in.esiEr)
		run.LOPDays = d(in.lop)
		runs = append(runs, run)
		cycle.Totals = cycle.Totals.Add(*run)
	}

	require.NoError(t, repo.InsertCycle(ctx, db, cycle))
	for _, run := range runs {
		require.NoError(t, repo.ReplaceRun(ctx, db, run))
	}

	audit := auditservice.NewService(auditservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepository.Provide()})
	svc := New(Params{
		DB: db, Log: zap.NewNop(), Clock: clk, Cycles: repo,
		Employees: stubEmployees{byID: employees}, Audit: audit,
	})
	return &fixture{svc: svc, db: db, cycle: cycle}
}

func TestGenerateReconcilesEPFContribution(t *testing.T) {
	f := newFixture(t, payrollcycledomain.CycleStatusLocked)

	ex, err := f.svc.Generate(context.Background(), f.cycle.TenantID, f.cycle.ID)
	require.NoError(t, err)
	require.Len(t, ex.Rows, 2)
	assert.NotEmpty(t, ex.ID)
	assert.Equal(t, "2025-06", ex.Period)

	want := f.cycle.Totals.PFEmployee.Add(f.cycle.Totals.PFEmployer)
	assert.True(t, want.Equal(ex.Totals.EPFContribution), ex.Totals.EPFContribution.String())
	assert.True(t, d("7200").Equal(ex.Totals.EPFContribution))
	assert.True(t, d("2").Equal(ex.Totals.NCPDays))
	for _, row := range ex.Rows {
		assert.True(t, row.PFEmployee.Add(row.PFEmployer).Equal(row.EPFContribution))
		assert.True(t, row.EPFWages.Equal(row.EPSWages))
	}
}

func TestGenerateRequiresFinalizedCycle(t *testing.T) {
	f := newFixture(t, payrollcycledomain.CycleStatusInProgress)
	_, err := f.svc.Generate(context.Background(), f.cycle.TenantID, f.cycle.ID)
	assert.ErrorIs(t, err, domain.ErrCycleNotFinalized)
}

func TestGenerateUnknownCycle(t *testing.T) {
	f := newFixture(t, payrollcycledomain.CycleStatusLocked)
	_, err := f.svc.Generate(context.Background(), f.cycle.TenantID, 42)
	assert.ErrorIs(t, err, payrollcycledomain.ErrCycleNotFound)
}

func TestGenerateDetectsTotalsMismatch(t *testing.T) {
	f := newFixture(t, payrollcycledomain.CycleStatusLocked)
	require.NoError(t, f.db.Model(&payrollcycledomain.Cycle{}).
		Where("id = ?", f.cycle.ID).
		Update("total_pf_employer", d("3599")).Error)

	_, err := f.svc.Generate(context.Background(), f.cycle.TenantID, f.cycle.ID)
	assert.ErrorIs(t, err, domain.ErrExtractReconciliationFailed)

	cycle, err := payrollcyclerepository.Provide().FindCycle(context.Background(), f.db, f.cycle.TenantID, f.cycle.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Reconcile(context.Background(), cycle), domain.ErrExtractReconciliationFailed)
}

func TestRenderECRWritesAuditEntry(t *testing.T) {
	f := newFixture(t, payrollcycledomain.CycleStatusPaid)

	out, err := f.svc.Render(context.Background(), domain.GenerateRequest{
		TenantID: f.cycle.TenantID, CycleID: f.cycle.ID, Format: domain.FormatECR,
	})
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", out.ContentType)
	assert.True(t, strings.HasSuffix(out.Filename, ".txt"))

	lines := strings.Split(strings.TrimSpace(string(out.Body)), "\n")
	require.Len(t, lines, 2)
	assert.Len(t, strings.Split(lines[0], "#~#"), 10)

	var count int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", auditdomain.ActionExtractGenerated).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func (f *fixture) setPrecision(t *testing.T, precision int32) {
	t.Helper()
	require.NoError(t, f.db.Model(&payrollcycledomain.Cycle{}).
		Where("id = ?", f.cycle.ID).
		Update("currency_precision", precision).Error)
}

func TestGenerateRendersAtCyclePrecision(t *testing.T) {
	f := newFixture(t, payrollcycledomain.CycleStatusLocked)
	f.setPrecision(t, 3)

	out, err := f.svc.Render(context.Background(), domain.GenerateRequest{
		TenantID: f.cycle.TenantID, CycleID: f.cycle.ID, Format: domain.FormatECR,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), out.Extract.Precision)
	fields := strings.Split(strings.Split(string(out.Body), "\n")[0], "#~#")
	assert.Equal(t, "20000.000", fields[2])
}

func TestReconcileComparesAtCyclePrecision(t *testing.T) {
	f := newFixture(t, payrollcycledomain.CycleStatusLocked)
	ctx := context.Background()
	run := f.firstRun(t)

	// Sub-precision drift on a stored run is not a mismatch at precision 0.
	f.setPrecision(t, 0)
	require.NoError(t, f.db.Model(&payrollcycledomain.Run{}).Where("id = ?", run.ID).Update("pf_employer", d("1800.3")).Error)
	ex, err := f.svc.Generate(ctx, f.cycle.TenantID, f.cycle.ID)
	require.NoError(t, err)
	assert.True(t, d("3600").Equal(ex.Totals.PFEmployer), ex.Totals.PFEmployer.String())

	// The same drift is a mismatch at precision 2.
	f.setPrecision(t, 2)
	_, err = f.svc.Generate(ctx, f.cycle.TenantID, f.cycle.ID)
	assert.ErrorIs(t, err, domain.ErrExtractReconciliationFailed)

	// A drift that survives rounding is a mismatch at any precision.
	f.setPrecision(t, 0)
	require.NoError(t, f.db.Model(&payrollcycledomain.Run{}).Where("id = ?", run.ID).Update("pf_employer", d("1801")).Error)
	_, err = f.svc.Generate(ctx, f.cycle.TenantID, f.cycle.ID)
	assert.ErrorIs(t, err, domain.ErrExtractReconciliationFailed)
}

func (f *fixture) firstRun(t *testing.T) payrollcycledomain.Run {
	t.Helper()
	runs, err := payrollcyclerepository.Provide().ListRuns(context.Background(), f.db, f.cycle.TenantID, f.cycle.ID)
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	return runs[0]
}
