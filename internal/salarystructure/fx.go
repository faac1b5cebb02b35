package salarystructure

import (
	"github.com/smallbiznis/payrollengine/internal/cache"
	"github.com/smallbiznis/payrollengine/internal/salarystructure/repository"
	"github.com/smallbiznis/payrollengine/internal/salarystructure/service"
	"go.uber.org/fx"
)

var Module = fx.Module("salarystructure.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewStructurePlanCache),
	fx.Provide(service.NewResolver),
	fx.Provide(service.NewService),
)
