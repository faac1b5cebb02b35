package payroll

import (
	"github.com/smallbiznis/payrollengine/internal/payroll/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payroll.service",
	fx.Provide(service.NewService),
)
