// Package cyclelock provides the single-writer guard for payroll cycles: an
// in-process keyed mutex plus, when redis is configured, a cross-instance lock.
package cyclelock

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payrollengine/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	// ErrHeld is returned when another instance holds the cycle lock.
	ErrHeld       = errors.New("cycle_lock_held")
	ErrInvalidTTL = errors.New("cycle_lock_invalid_ttl")
)

type GuardParam struct {
	fx.In

	Log     *zap.Logger
	Payroll *config.PayrollConfigHolder
	Redis   *redis.Client `optional:"true"`
}

type Guard struct {
	log     *zap.Logger
	payroll *config.PayrollConfigHolder
	local   *KeyedMutex
	remote  *remoteLock
}

func NewGuard(p GuardParam) *Guard {
	return &Guard{
		log:     p.Log.Named("cyclelock"),
		payroll: p.Payroll,
		local:   NewKeyedMutex(),
		remote:  newRemoteLock(p.Redis),
	}
}

// Acquire takes the cycle lock. The returned release func is safe to call once
// the caller is done; it never fails.
func (g *Guard) Acquire(ctx context.Context, cycleID snowflake.ID) (func(), error) {
	unlock, err := g.local.Lock(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if g.remote == nil {
		return unlock, nil
	}

	held, err := g.remote.acquire(ctx, cycleID, g.ttl())
	if err != nil {
		unlock()
		return nil, err
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := g.remote.drop(releaseCtx, held); err != nil {
			g.log.Warn("failed to release cycle lock", zap.String("cycle_id", cycleID.String()), zap.Error(err))
		}
		unlock()
	}, nil
}

func (g *Guard) ttl() time.Duration {
	if g.payroll == nil {
		return config.DefaultPayrollConfig().LockTTL
	}
	return g.payroll.Get().LockTTL
}

var Module = fx.Module("cyclelock",
	fx.Provide(NewGuard),
)
