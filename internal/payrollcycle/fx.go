package payrollcycle

import (
	"github.com/smallbiznis/payrollengine/internal/payrollcycle/repository"
	"github.com/smallbiznis/payrollengine/internal/payrollcycle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payrollcycle.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewYTDSource),
	fx.Provide(service.NewBaselineSource),
	fx.Provide(service.NewService),
)
