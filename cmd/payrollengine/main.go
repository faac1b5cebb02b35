// Command payrollengine runs the HTTP API and the background scheduler in one
// process, applying migrations on startup when RUN_MIGRATION is set.
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
	"github.com/smallbiznis/payrollengine/internal/migration"
	"github.com/smallbiznis/payrollengine/internal/observability"
	"github.com/smallbiznis/payrollengine/internal/payroll"
	"github.com/smallbiznis/payrollengine/internal/payrollcycle"
	"github.com/smallbiznis/payrollengine/internal/ratelimit"
	"github.com/smallbiznis/payrollengine/internal/redisclient"
	"github.com/smallbiznis/payrollengine/internal/salarystructure"
	"github.com/smallbiznis/payrollengine/internal/scheduler"
	"github.com/smallbiznis/payrollengine/internal/server"
	"github.com/smallbiznis/payrollengine/internal/statutory"
	"github.com/smallbiznis/payrollengine/internal/tenantsettings"
	"github.com/smallbiznis/payrollengine/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		redisclient.Module,
		cyclelock.Module,
		ratelimit.Module,

		// Functional Domains
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

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
