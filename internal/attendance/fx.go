package attendance

import (
	"github.com/smallbiznis/payrollengine/internal/attendance/repository"
	"github.com/smallbiznis/payrollengine/internal/attendance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("attendance.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewAggregator),
)
