package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/payrollengine/internal/audit/domain"
	"github.com/smallbiznis/payrollengine/internal/clock"
	"github.com/smallbiznis/payrollengine/internal/config"
	"github.com/smallbiznis/payrollengine/internal/cyclelock"
	employeedomain "github.com/smallbiznis/payrollengine/internal/employee/domain"
	"github.com/smallbiznis/payrollengine/internal/observability/logger"
	"github.com/smallbiznis/payrollengine/internal/observability/metrics"
	"github.com/smallbiznis/payrollengine/internal/observability/tracing"
	payrolldomain "github.com/smallbiznis/payrollengine/internal/payroll/domain"
	"github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
	"github.com/smallbiznis/payrollengine/internal/payrollcycle/guard"
	salarystructuredomain "github.com/smallbiznis/payrollengine/internal/salarystructure/domain"
	"github.com/smallbiznis/payrollengine/internal/tenantcontext"
	tenantsettingsdomain "github.com/smallbiznis/payrollengine/internal/tenantsettings/domain"
	"github.com/smallbiznis/payrollengine/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Payroll    *config.PayrollConfigHolder
	Repo       domain.Repository
	Calculator payrolldomain.Service
	Employees  employeedomain.Service
	Structures salarystructuredomain.Resolver
	Settings   tenantsettingsdomain.Service
	Audit      auditdomain.Service
	Locks      *cyclelock.Guard
	Reconciler domain.Reconciler `optional:"true"`
	Metrics    *metrics.Metrics  `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	payroll    *config.PayrollConfigHolder
	repo       domain.Repository
	calculator payrolldomain.Service
	employees  employeedomain.Service
	structures salarystructuredomain.Resolver
	settings   tenantsettingsdomain.Service
	audit      auditdomain.Service
	locks      *cyclelock.Guard
	reconciler domain.Reconciler
	metrics    *metrics.Metrics
	prom       *metrics.PayrollMetrics
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payrollcycle.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		payroll:    p.Payroll,
		repo:       p.Repo,
		calculator: p.Calculator,
		employees:  p.Employees,
		structures: p.Structures,
		settings:   p.Settings,
		audit:      p.Audit,
		locks:      p.Locks,
		reconciler: p.Reconciler,
		metrics:    p.Metrics,
		prom:       metrics.Payroll(),
	}
}

func (s *Service) CreateCycle(ctx context.Context, req domain.CreateCycleRequest) (*domain.Cycle, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	period, err := payrolldomain.NewPeriod(req.Month, req.Year)
	if err != nil {
		return nil, err
	}
	runType, err := normalizeRunType(req.RunType)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindCycleByKey(ctx, s.db, req.TenantID, period.Month, period.Year, runType)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%s %s: %w", period, runType, domain.ErrDuplicateCycle)
	}

	cycle, err := s.insertCycle(ctx, req.TenantID, period, runType)
	if err != nil {
		return nil, err
	}
	return cycle, nil
}

func (s *Service) insertCycle(ctx context.Context, tenantID snowflake.ID, period payrolldomain.Period, runType domain.RunType) (*domain.Cycle, error) {
	now := s.clock.Now()
	cycle := &domain.Cycle{
		ID:                   s.genID.Generate(),
		TenantID:             tenantID,
		Month:                period.Month,
		Year:                 period.Year,
		RunType:              runType,
		Status:               domain.CycleStatusDraft,
		Version:              1,
		Totals:               domain.ZeroTotals(),
		ReconciliationStatus: domain.ReconciliationPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertCycle(ctx, tx, cycle); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return fmt.Errorf("%s %s: %w", period, runType, domain.ErrDuplicateCycle)
			}
			return err
		}
		return s.audit.AuditLog(ctx, tx, tenantID, auditdomain.ActionCycleCreated, auditdomain.TargetPayrollCycle, cycle.ID.String(), map[string]any{
			"period":   period.String(),
			"run_type": string(runType),
		})
	})
	if err != nil {
		return nil, err
	}
	return cycle, nil
}

func (s *Service) RunCycle(ctx context.Context, req domain.RunCycleRequest) (result *domain.RunCycleResult, err error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	period, err := payrolldomain.NewPeriod(req.Month, req.Year)
	if err != nil {
		return nil, err
	}
	runType, err := normalizeRunType(req.RunType)
	if err != nil {
		return nil, err
	}
	subset, err := parseEmployeeIDs(req.EmployeeIDs)
	if err != nil {
		return nil, err
	}
	payments, err := parseVariablePayments(req.VariablePayments)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "payrollcycle.run",
		attribute.String("period", period.String()),
		attribute.String("run_type", string(runType)),
	)
	defer func() { tracing.End(span, err) }()

	cycle, err := s.findOrCreate(ctx, req.TenantID, period, runType)
	if err != nil {
		return nil, err
	}
	if err := guard.EnsureCanRun(cycle.Status); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	cycle, err = s.startCycle(ctx, cycle.TenantID, cycle.ID)
	if err != nil {
		return nil, err
	}

	inScope, err := s.inScopeIDs(ctx, cycle)
	if err != nil {
		return nil, err
	}
	scope := make(map[snowflake.ID]bool, len(inScope))
	for _, id := range inScope {
		scope[id] = true
	}
	for id := range payments {
		if !scope[id] {
			return nil, fmt.Errorf("variable payments for employee %s: %w", id, domain.ErrEmployeeNotInScope)
		}
	}
	targets := inScope
	if len(subset) > 0 {
		for _, id := range subset {
			if !scope[id] {
				return nil, fmt.Errorf("employee %s: %w", id, domain.ErrEmployeeNotInScope)
			}
		}
		targets = subset
	}

	log := logger.WithCycle(logger.WithContext(ctx, s.log), cycle.TenantID.String(), cycle.ID.String())
	log.Info("payroll cycle run started", zap.Int("employees", len(targets)), zap.String("period", period.String()))

	started := time.Now()
	succeeded, failed, cancelled, err := s.runBatch(ctx, cycle, targets, payments)
	s.prom.ObserveBatch(time.Since(started))

	// Counts are persisted even when the batch was cancelled so the cycle
	// reflects the runs that did complete.
	if countErr := s.refreshCounts(context.WithoutCancel(ctx), cycle, inScope); countErr != nil && err == nil {
		err = countErr
	}
	if err != nil {
		return nil, err
	}

	cycle, err = s.repo.FindCycle(context.WithoutCancel(ctx), s.db, cycle.TenantID, cycle.ID)
	if err != nil {
		return nil, err
	}
	log.Info("payroll cycle run finished",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Bool("cancelled", cancelled),
		zap.Duration("elapsed", time.Since(started)),
	)
	return &domain.RunCycleResult{
		Cycle:     cycle,
		Attempted: succeeded + failed,
		Succeeded: succeeded,
		Failed:    failed,
		Cancelled: cancelled,
	}, nil
}

// runBatch calculates targets on a bounded pool. Employee failures are
// recorded as FAILED runs; only persistence errors abort the batch.
// Cancellation stops scheduling new employees and keeps finished runs.
func (s *Service) runBatch(ctx context.Context, cycle *domain.Cycle, targets []snowflake.ID, payments map[snowflake.ID][]payrolldomain.VariablePayment) (succeeded, failed int, cancelled bool, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.poolSize())

	var mu sync.Mutex
	for _, employeeID := range targets {
		if gctx.Err() != nil {
			break
		}
		employeeID := employeeID
		var own *[]payrolldomain.VariablePayment
		if vps, ok := payments[employeeID]; ok {
			own = &vps
		}
		g.Go(func() error {
			run, err := s.runOne(gctx, cycle, employeeID, own)
			if err != nil {
				if isCancellation(err) {
					return nil
				}
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if run.Status == domain.RunStatusSucceeded {
				succeeded++
			} else {
				failed++
			}
			return nil
		})
	}

	err = g.Wait()
	cancelled = ctx.Err() != nil && succeeded+failed < len(targets)
	if err != nil && isCancellation(err) {
		err = nil
	}
	return succeeded, failed, cancelled, err
}

// runOne calculates and stores one employee. A nil payments pointer keeps
// the variable payments of the employee's current run in this cycle.
func (s *Service) runOne(ctx context.Context, cycle *domain.Cycle, employeeID snowflake.ID, payments *[]payrolldomain.VariablePayment) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := s.prom.TrackInFlight()
	defer done()
	started := time.Now()

	var vps []payrolldomain.VariablePayment
	if payments != nil {
		vps = *payments
	} else {
		current, err := s.repo.FindRun(ctx, s.db, cycle.ID, employeeID)
		if err != nil {
			return nil, err
		}
		if current != nil {
			vps = current.VariablePayments
		}
	}

	for attempt := 1; ; attempt++ {
		calc, calcErr := s.calculator.Calculate(ctx, payrolldomain.CalculateRequest{
			TenantID:         cycle.TenantID,
			EmployeeID:       employeeID,
			Period:           cycle.Period(),
			VariablePayments: vps,
			Supplementary:    cycle.RunType == domain.RunTypeSupplementary,
		})
		if calcErr != nil && isCancellation(calcErr) {
			return nil, calcErr
		}

		run, revision := s.newRun(cycle, employeeID, vps, calc, calcErr)
		stored, err := s.persistRun(ctx, cycle, run, revision)
		if errors.Is(err, salarystructuredomain.ErrStructureVersionChanged) && attempt < maxPersistAttempts {
			logger.WithContext(ctx, s.log).Info("structure edited during calculation, recalculating",
				zap.String("cycle_id", cycle.ID.String()),
				zap.String("employee_id", employeeID.String()),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		code := payrolldomain.FailureCodeFor(calcErr)
		s.prom.ObserveEmployeeRun(string(code), time.Since(started))
		s.metrics.RecordRun(ctx, string(code))
		if calcErr != nil {
			logger.WithContext(ctx, s.log).Warn("employee payroll run failed",
				zap.String("cycle_id", cycle.ID.String()),
				zap.String("employee_id", employeeID.String()),
				zap.String("failure_code", string(code)),
				zap.Error(calcErr),
			)
		}
		return stored, nil
	}
}

// newRun turns a calculation outcome into a run row and returns the
// structure revision it was computed from.
func (s *Service) newRun(cycle *domain.Cycle, employeeID snowflake.ID, payments []payrolldomain.VariablePayment, calc *payrolldomain.Calculation, calcErr error) (*domain.Run, int) {
	run := &domain.Run{
		ID:               s.genID.Generate(),
		TenantID:         cycle.TenantID,
		CycleID:          cycle.ID,
		EmployeeID:       employeeID,
		VariablePayments: datatypes.JSONSlice[payrolldomain.VariablePayment](payments),
		CalculatedAt:     s.clock.Now(),
	}
	if run.VariablePayments == nil {
		run.VariablePayments = datatypes.JSONSlice[payrolldomain.VariablePayment]{}
	}

	revision := 0
	if calc != nil && calc.Prepared != nil {
		run.StructureVersionID = calc.Prepared.StructureVersionID
		run.StructureCode = calc.Prepared.StructureCode
		run.StructureVersion = calc.Prepared.StructureVersion
		run.StatutoryConfigIDs = datatypes.NewJSONType(configIDStrings(calc.Prepared))
		revision = calc.Prepared.StructureRevision
	} else {
		run.StatutoryConfigIDs = datatypes.NewJSONType(map[string]string{})
	}

	if calcErr != nil {
		run.Status = domain.RunStatusFailed
		run.FailureCode = payrolldomain.FailureCodeFor(calcErr)
		run.FailureMessage = calcErr.Error()
		run.ZeroAmounts()
	} else {
		run.Status = domain.RunStatusSucceeded
		run.FillResult(calc.Result)
		run.Checksum = calc.Checksum
	}
	return run, revision
}

// persistRun replaces the employee's run in one transaction guarded by the
// cycle status. The structure version is frozen at the revision the
// calculation used; an edit in between fails with
// ErrStructureVersionChanged. When the stored run already records the same
// outcome it is kept untouched and returned instead.
func (s *Service) persistRun(ctx context.Context, cycle *domain.Cycle, run *domain.Run, revision int) (*domain.Run, error) {
	stored := run
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.TouchInProgress(ctx, tx, cycle.ID, run.CalculatedAt)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrCycleLocked
		}
		if run.Status == domain.RunStatusSucceeded && run.StructureVersionID != 0 {
			if err := s.structures.MarkReferenced(ctx, tx, run.StructureVersionID, revision); err != nil {
				return err
			}
		}

		existing, err := s.repo.FindRun(ctx, tx, cycle.ID, run.EmployeeID)
		if err != nil {
			return err
		}
		if existing != nil && existing.SameOutcome(*run) {
			stored = existing
			return nil
		}
		return s.repo.ReplaceRun(ctx, tx, run)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *Service) RunEmployee(ctx context.Context, req domain.RunEmployeeRequest) (*domain.Run, error) {
	var payments *[]payrolldomain.VariablePayment
	if req.VariablePayments != nil {
		vps, err := payrolldomain.NormalizeVariablePayments(*req.VariablePayments)
		if err != nil {
			return nil, err
		}
		payments = &vps
	}

	cycle, err := s.GetCycle(ctx, req.TenantID, req.CycleID)
	if err != nil {
		return nil, err
	}
	if err := guard.EnsureCanRun(cycle.Status); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	cycle, err = s.startCycle(ctx, cycle.TenantID, cycle.ID)
	if err != nil {
		return nil, err
	}
	inScope, err := s.inScopeIDs(ctx, cycle)
	if err != nil {
		return nil, err
	}
	found := false
	for _, id := range inScope {
		if id == req.EmployeeID {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("employee %s: %w", req.EmployeeID, domain.ErrEmployeeNotInScope)
	}

	run, err := s.runOne(ctx, cycle, req.EmployeeID, payments)
	if err != nil {
		return nil, err
	}
	if err := s.refreshCounts(ctx, cycle, inScope); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Service) LockCycle(ctx context.Context, tenantID, cycleID snowflake.ID) (cycle *domain.Cycle, err error) {
	ctx, span := tracing.Start(ctx, "payrollcycle.lock", attribute.String("cycle_id", cycleID.String()))
	defer func() { tracing.End(span, err) }()

	cycle, err = s.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCanLock(cycle); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	defer release()

	inScope, err := s.inScopeIDs(ctx, cycle)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var summary lockSummary
	for attempt := 1; ; attempt++ {
		summary, err = s.lockOnce(ctx, tenantID, cycleID, inScope, settings.CurrencyPrecision)
		if !errors.Is(err, errVersionMoved) {
			break
		}
		if attempt == maxLockAttempts {
			err = fmt.Errorf("runs kept changing during lock: %w", domain.ErrCycleBusy)
			break
		}
	}
	if err != nil {
		if errors.Is(err, domain.ErrCycleAlreadyLocked) {
			s.prom.IncLockConflict()
		}
		return nil, err
	}

	s.recordTransition(ctx, domain.CycleStatusInProgress, domain.CycleStatusLocked)
	logger.WithCycle(logger.WithContext(ctx, s.log), tenantID.String(), cycleID.String()).
		Info("payroll cycle locked",
			zap.Int("employees", len(inScope)),
			zap.Int64("discarded_runs", summary.discarded),
		)
	return s.GetCycle(ctx, tenantID, cycleID)
}

// errVersionMoved means a run write committed between the lock's read and
// its conditional update.
var errVersionMoved = errors.New("cycle_version_moved")

type lockSummary struct {
	totals    domain.Totals
	succeeded int
	failed    int
	discarded int64
}

// lockOnce decides and applies the lock in one transaction. The cycle row
// is read FOR UPDATE and the runs are read through the same transaction, so
// the completeness check and the totals describe exactly what is locked.
// Runs of employees no longer in scope are discarded.
func (s *Service) lockOnce(ctx context.Context, tenantID, cycleID snowflake.ID, inScope []snowflake.ID, precision int32) (lockSummary, error) {
	var summary lockSummary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cycle, err := s.repo.FindCycleForUpdate(ctx, tx, tenantID, cycleID)
		if err != nil {
			return err
		}
		if cycle == nil {
			return domain.ErrCycleNotFound
		}
		if err := guard.EnsureCanLock(cycle.Status); err != nil {
			return err
		}

		runs, err := s.repo.ListRuns(ctx, tx, tenantID, cycleID)
		if err != nil {
			return err
		}
		scope, succeeded := summarizeRuns(runs, inScope, &summary)
		if err := guard.EnsureComplete(scope, succeeded); err != nil {
			return fmt.Errorf("%d of %d employees have a successful run: %w", countIn(scope, succeeded), len(scope), err)
		}

		summary.discarded, err = s.repo.DeleteRunsExcept(ctx, tx, cycleID, inScope)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		totals := summary.totals
		ok, err := s.repo.Transition(ctx, tx, domain.Transition{
			TenantID:        tenantID,
			CycleID:         cycleID,
			From:            domain.CycleStatusInProgress,
			To:              domain.CycleStatusLocked,
			ExpectedVersion: cycle.Version,
			At:              now,
			Columns: map[string]any{
				"total_gross":            totals.GrossEarnings,
				"total_deductions":       totals.GrossDeductions,
				"total_net":              totals.NetPay,
				"total_pf_employee":      totals.PFEmployee,
				"total_pf_employer":      totals.PFEmployer,
				"total_esi_employee":     totals.ESIEmployee,
				"total_esi_employer":     totals.ESIEmployer,
				"total_professional_tax": totals.ProfessionalTax,
				"total_tds":              totals.TDS,
				"total_lop_amount":       totals.LOPAmount,
				"currency_precision":     precision,
				"employee_count":         len(inScope),
				"succeeded_count":        summary.succeeded,
				"failed_count":           summary.failed,
				"locked_at":              now,
				"locked_by":              tenantcontext.ActorFromContext(ctx).ID,
			},
		})
		if err != nil {
			return err
		}
		if !ok {
			return errVersionMoved
		}
		return s.audit.AuditLog(ctx, tx, tenantID, auditdomain.ActionCycleLocked, auditdomain.TargetPayrollCycle, cycleID.String(), map[string]any{
			"version":        cycle.Version + 1,
			"employees":      len(inScope),
			"discarded_runs": summary.discarded,
			"total_gross":    totals.GrossEarnings.String(),
			"total_net":      totals.NetPay.String(),
		})
	})
	return summary, err
}

// summarizeRuns counts and totals the runs of in-scope employees only.
func summarizeRuns(runs []domain.Run, inScope []snowflake.ID, summary *lockSummary) ([]string, map[string]bool) {
	scope := make([]string, 0, len(inScope))
	member := make(map[snowflake.ID]bool, len(inScope))
	for _, id := range inScope {
		scope = append(scope, id.String())
		member[id] = true
	}

	succeeded := make(map[string]bool, len(runs))
	summary.totals = domain.ZeroTotals()
	for _, run := range runs {
		if !member[run.EmployeeID] {
			continue
		}
		if run.Status != domain.RunStatusSucceeded {
			summary.failed++
			continue
		}
		summary.succeeded++
		succeeded[run.EmployeeID.String()] = true
		summary.totals = summary.totals.Add(run)
	}
	return scope, succeeded
}

func (s *Service) ensureCanLock(cycle *domain.Cycle) error {
	err := guard.EnsureCanLock(cycle.Status)
	if errors.Is(err, domain.ErrCycleAlreadyLocked) {
		s.prom.IncLockConflict()
	}
	return err
}

func (s *Service) MarkPaid(ctx context.Context, tenantID, cycleID snowflake.ID) (*domain.Cycle, error) {
	cycle, err := s.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return nil, err
	}
	if err := guard.EnsureCanMarkPaid(cycle.Status); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	defer release()

	cycle, err = s.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return nil, err
	}
	if err := guard.EnsureCanMarkPaid(cycle.Status); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	actor := tenantcontext.ActorFromContext(ctx)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.Transition(ctx, tx, domain.Transition{
			TenantID:        tenantID,
			CycleID:         cycleID,
			From:            domain.CycleStatusLocked,
			To:              domain.CycleStatusPaid,
			ExpectedVersion: cycle.Version,
			At:              now,
			Columns: map[string]any{
				"paid_at": now,
				"paid_by": actor.ID,
			},
		})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		return s.audit.AuditLog(ctx, tx, tenantID, auditdomain.ActionCyclePaid, auditdomain.TargetPayrollCycle, cycleID.String(), map[string]any{
			"version": cycle.Version + 1,
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(ctx, domain.CycleStatusLocked, domain.CycleStatusPaid)

	cycle, err = s.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return nil, err
	}
	if err := s.reconcile(ctx, cycle); err != nil {
		return nil, err
	}
	return s.GetCycle(ctx, tenantID, cycleID)
}

// reconcile records the extract check outcome on a PAID cycle. A mismatch is
// stored as FAILED, not returned; payment has already happened.
func (s *Service) reconcile(ctx context.Context, cycle *domain.Cycle) error {
	if s.reconciler == nil {
		return nil
	}

	status := domain.ReconciliationPassed
	message := ""
	if err := s.reconciler.Reconcile(ctx, cycle); err != nil {
		if isCancellation(err) {
			return err
		}
		status = domain.ReconciliationFailed
		message = err.Error()
		logger.WithCycle(logger.WithContext(ctx, s.log), cycle.TenantID.String(), cycle.ID.String()).
			Warn("payroll cycle reconciliation failed", zap.Error(err))
	}
	s.prom.IncReconciliation(status == domain.ReconciliationPassed)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateReconciliation(ctx, tx, cycle.ID, status, message, s.clock.Now()); err != nil {
			return err
		}
		return s.audit.AuditLog(ctx, tx, cycle.TenantID, auditdomain.ActionCycleReconciled, auditdomain.TargetPayrollCycle, cycle.ID.String(), map[string]any{
			"status": string(status),
		})
	})
}

func (s *Service) ReconcilePaid(ctx context.Context, limit int) (int, error) {
	cycles, err := s.repo.ListPaidUnreconciled(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}
	passed := 0
	for i := range cycles {
		if err := ctx.Err(); err != nil {
			return passed, err
		}
		if err := s.reconcile(ctx, &cycles[i]); err != nil {
			return passed, err
		}
		refreshed, err := s.repo.FindCycle(ctx, s.db, cycles[i].TenantID, cycles[i].ID)
		if err != nil {
			return passed, err
		}
		if refreshed != nil && refreshed.ReconciliationStatus == domain.ReconciliationPassed {
			passed++
		}
	}
	return passed, nil
}

func (s *Service) DeleteCycle(ctx context.Context, tenantID, cycleID snowflake.ID) error {
	cycle, err := s.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return err
	}
	if err := guard.EnsureCanDelete(cycle.Status); err != nil {
		return err
	}

	release, err := s.acquire(ctx, cycleID)
	if err != nil {
		return err
	}
	defer release()

	cycle, err = s.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return err
	}
	if err := guard.EnsureCanDelete(cycle.Status); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.DeleteCycle(ctx, tx, tenantID, cycleID, cycle.Status, cycle.Version)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		return s.audit.AuditLog(ctx, tx, tenantID, auditdomain.ActionCycleDeleted, auditdomain.TargetPayrollCycle, cycleID.String(), map[string]any{
			"status": string(cycle.Status),
			"period": cycle.Period().String(),
		})
	})
}

func (s *Service) GetCycle(ctx context.Context, tenantID, cycleID snowflake.ID) (*domain.Cycle, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	cycle, err := s.repo.FindCycle(ctx, s.db, tenantID, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, domain.ErrCycleNotFound
	}
	return cycle, nil
}

func (s *Service) ListCycles(ctx context.Context, req domain.ListCyclesRequest) ([]domain.Cycle, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.ListCycles(ctx, s.db, req.TenantID, domain.ListCyclesFilter{
		Status: req.Status,
		Year:   req.Year,
		Limit:  120,
	})
}

func (s *Service) ListRuns(ctx context.Context, tenantID, cycleID snowflake.ID) ([]domain.Run, error) {
	if _, err := s.GetCycle(ctx, tenantID, cycleID); err != nil {
		return nil, err
	}
	return s.repo.ListRuns(ctx, s.db, tenantID, cycleID)
}

func (s *Service) findOrCreate(ctx context.Context, tenantID snowflake.ID, period payrolldomain.Period, runType domain.RunType) (*domain.Cycle, error) {
	cycle, err := s.repo.FindCycleByKey(ctx, s.db, tenantID, period.Month, period.Year, runType)
	if err != nil {
		return nil, err
	}
	if cycle != nil {
		return cycle, nil
	}

	cycle, err = s.insertCycle(ctx, tenantID, period, runType)
	if errors.Is(err, domain.ErrDuplicateCycle) {
		// Lost the creation race; use the winner's row.
		cycle, err = s.repo.FindCycleByKey(ctx, s.db, tenantID, period.Month, period.Year, runType)
		if err == nil && cycle == nil {
			err = domain.ErrCycleNotFound
		}
	}
	return cycle, err
}

// startCycle reloads the cycle under the lock and moves DRAFT to IN_PROGRESS.
func (s *Service) startCycle(ctx context.Context, tenantID, cycleID snowflake.ID) (*domain.Cycle, error) {
	cycle, err := s.GetCycle(ctx, tenantID, cycleID)
	if err != nil {
		return nil, err
	}
	if err := guard.EnsureCanRun(cycle.Status); err != nil {
		return nil, err
	}
	if cycle.Status == domain.CycleStatusInProgress {
		return cycle, nil
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.Transition(ctx, tx, domain.Transition{
			TenantID:        tenantID,
			CycleID:         cycleID,
			From:            domain.CycleStatusDraft,
			To:              domain.CycleStatusInProgress,
			ExpectedVersion: cycle.Version,
			At:              now,
			Columns:         map[string]any{"started_at": now},
		})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		return s.audit.AuditLog(ctx, tx, tenantID, auditdomain.ActionCycleStarted, auditdomain.TargetPayrollCycle, cycleID.String(), map[string]any{
			"period": cycle.Period().String(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(ctx, domain.CycleStatusDraft, domain.CycleStatusInProgress)
	return s.GetCycle(ctx, tenantID, cycleID)
}

func (s *Service) inScopeIDs(ctx context.Context, cycle *domain.Cycle) ([]snowflake.ID, error) {
	period := cycle.Period()
	employees, err := s.employees.InScope(ctx, cycle.TenantID, period.Start(), period.End())
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(employees))
	for _, emp := range employees {
		ids = append(ids, emp.ID)
	}
	return ids, nil
}

// refreshCounts stores run counts over the in-scope employees.
func (s *Service) refreshCounts(ctx context.Context, cycle *domain.Cycle, inScope []snowflake.ID) error {
	runs, err := s.repo.ListRuns(ctx, s.db, cycle.TenantID, cycle.ID)
	if err != nil {
		return err
	}
	var summary lockSummary
	summarizeRuns(runs, inScope, &summary)
	return s.repo.UpdateCounts(ctx, s.db, cycle.ID, len(inScope), summary.succeeded, summary.failed, s.clock.Now())
}

func (s *Service) acquire(ctx context.Context, cycleID snowflake.ID) (func(), error) {
	release, err := s.locks.Acquire(ctx, cycleID)
	if errors.Is(err, cyclelock.ErrHeld) {
		s.prom.IncLockConflict()
		return nil, domain.ErrCycleBusy
	}
	return release, err
}

func (s *Service) recordTransition(ctx context.Context, from, to domain.CycleStatus) {
	s.prom.IncCycleTransition(string(from), string(to))
	s.metrics.RecordCycleTransition(ctx, string(from), string(to))
}

const (
	maxPersistAttempts = 3
	maxLockAttempts    = 3
)

func (s *Service) poolSize() int {
	size := s.payroll.Get().WorkerPoolSize
	if size <= 0 {
		return 1
	}
	return size
}

// parseVariablePayments keys payments by employee ID and normalizes each list.
func parseVariablePayments(raw map[string][]payrolldomain.VariablePayment) (map[snowflake.ID][]payrolldomain.VariablePayment, error) {
	out := make(map[snowflake.ID][]payrolldomain.VariablePayment, len(raw))
	for key, vps := range raw {
		id, err := snowflake.ParseString(key)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("variable payments for employee %q: %w", key, domain.ErrEmployeeNotInScope)
		}
		normalized, err := payrolldomain.NormalizeVariablePayments(vps)
		if err != nil {
			return nil, fmt.Errorf("employee %s: %w", id, err)
		}
		out[id] = normalized
	}
	return out, nil
}

func normalizeRunType(t domain.RunType) (domain.RunType, error) {
	if t == "" {
		return domain.RunTypeRegular, nil
	}
	if !t.Valid() {
		return "", domain.ErrInvalidRunType
	}
	return t, nil
}

func parseEmployeeIDs(raw []string) ([]snowflake.ID, error) {
	ids := make([]snowflake.ID, 0, len(raw))
	seen := make(map[snowflake.ID]bool, len(raw))
	for _, value := range raw {
		id, err := snowflake.ParseString(value)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("employee id %q: %w", value, domain.ErrEmployeeNotInScope)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func configIDStrings(p *payrolldomain.Prepared) map[string]string {
	out := make(map[string]string, len(p.StatutoryConfigIDs))
	for ruleType, id := range p.StatutoryConfigIDs {
		if id != 0 {
			out[string(ruleType)] = id.String()
		}
	}
	return out
}

func countIn(scope []string, succeeded map[string]bool) int {
	n := 0
	for _, id := range scope {
		if succeeded[id] {
			n++
		}
	}
	return n
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
