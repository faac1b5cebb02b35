package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/authorization"
	"github.com/smallbiznis/payrollengine/internal/clock"
	obsmetrics "github.com/smallbiznis/payrollengine/internal/observability/metrics"
	payrollcycledomain "github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
	"github.com/smallbiznis/payrollengine/internal/tenantcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobReconcilePaid = "reconcile_paid"
	JobStaleCycles   = "stale_cycles"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	CycleSvc payrollcycledomain.Service
	AuthzSvc authorization.Service `optional:"true"`
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   Config `optional:"true"`
}

type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	cycleSvc payrollcycledomain.Service
	authzSvc authorization.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.CycleSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		cycleSvc: p.CycleSvc,
		authzSvc: p.AuthzSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = tenantcontext.WithActor(ctx, tenantcontext.Actor{Type: "scheduler", ID: "scheduler", Role: authorization.RoleSystem})
	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	jobMetrics := obsmetrics.Payroll()
	jobMetrics.IncJobRun(name)

	err := fn(ctx)
	jobMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	jobMetrics.IncJobError(name, err)
	// A deadline is a soft timeout; the next tick resumes the work.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobReconcilePaid, s.ReconcilePaidJob},
		{JobStaleCycles, s.StaleCyclesJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

// ReconcilePaidJob retries extract reconciliation for PAID cycles that have
// not passed yet.
func (s *Scheduler) ReconcilePaidJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	passed, err := s.cycleSvc.ReconcilePaid(ctx, s.cfg.BatchSize)
	run.AddProcessed(passed)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.reconcile.failed", JobReconcilePaid, 0, err)
		return err
	}
	return nil
}

// StaleCyclesJob reports IN_PROGRESS cycles with no run activity within the
// recovery threshold. Cycles are never changed; operators re-run or delete them.
func (s *Scheduler) StaleCyclesJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	cutoff := s.clock.Now().Add(-s.cfg.RecoveryThreshold)

	cycles, err := s.fetchStaleCycles(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.cycle.fetch.failed", JobStaleCycles, 0, err)
		return err
	}
	for _, cycle := range cycles {
		if s.authzSvc != nil {
			if err := s.authzSvc.Authorize(ctx, cycle.TenantID, authorization.ObjectPayrollCycle, authorization.ActionCycleView); err != nil {
				s.logSchedulerError(ctx, run, "scheduler.authorize.failed", JobStaleCycles, cycle.TenantID, err,
					zap.String("cycle_id", idString(cycle.ID)),
				)
				continue
			}
		}
		s.logCycleStale(ctx, cycle)
		run.AddProcessed(1)
	}
	return nil
}

func (s *Scheduler) fetchStaleCycles(ctx context.Context, cutoff time.Time, limit int) ([]payrollcycledomain.Cycle, error) {
	var cycles []payrollcycledomain.Cycle
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", payrollcycledomain.CycleStatusInProgress, cutoff).
		Order("updated_at ASC, id ASC").
		Limit(limit).
		Find(&cycles).Error
	if err != nil {
		return nil, err
	}
	return cycles, nil
}
