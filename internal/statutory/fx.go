package statutory

import (
	"github.com/smallbiznis/payrollengine/internal/statutory/repository"
	"github.com/smallbiznis/payrollengine/internal/statutory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("statutory.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewResolver),
	fx.Provide(service.NewService),
)
