package tenantsettings

import (
	"github.com/smallbiznis/payrollengine/internal/tenantsettings/domain"
	"github.com/smallbiznis/payrollengine/internal/tenantsettings/service"
	"github.com/smallbiznis/payrollengine/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("tenantsettings.service",
	fx.Provide(repository.ProvideStore[domain.Settings]),
	fx.Provide(service.NewService),
)
