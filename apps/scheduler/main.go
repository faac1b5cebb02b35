package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrollengine/internal/attendance"
	"github.com/smallbiznis/payrollengine/internal/audit"
	"github.com/smallbiznis/payrollengine/internal/authorization"
	"github.com/smallbiznis/payrollengine/internal/clock"
	"github.com/smallbiznis/payrollengine/internal/config"
	"github.com/smallbiznis/payrollengine/internal/cyclelock"
	"github.com/smallbiznis/payrollengine/internal/employee"
	"github.com/smallbiznis/payrollengine/internal/extract"
	"github.com/smallbiznis/payrollengine/internal/observability"
	"github.com/smallbiznis/payrollengine/internal/payroll"
	"github.com/smallbiznis/payrollengine/internal/payrollcycle"
	"github.com/smallbiznis/payrollengine/internal/redisclient"
	"github.com/smallbiznis/payrollengine/internal/salarystructure"
	"github.com/smallbiznis/payrollengine/internal/scheduler"
	"github.com/smallbiznis/payrollengine/internal/statutory"
	"github.com/smallbiznis/payrollengine/internal/tenantsettings"
	"github.com/smallbiznis/payrollengine/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redisclient.Module,
		cyclelock.Module,

		// Domain services required by the reconciliation and stale-cycle jobs
		audit.Module,
		authorization.Module,
		tenantsettings.Module,
		employee.Module,
		attendance.Module,
		statutory.Module,
		salarystructure.Module,
		payroll.Module,
		payrollcycle.Module,
		extract.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
