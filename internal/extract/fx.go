package extract

import (
	"github.com/smallbiznis/payrollengine/internal/extract/domain"
	"github.com/smallbiznis/payrollengine/internal/extract/service"
	payrollcycledomain "github.com/smallbiznis/payrollengine/internal/payrollcycle/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("extract.service",
	fx.Provide(
		fx.Annotate(
			service.New,
			fx.As(new(domain.Service), new(payrollcycledomain.Reconciler)),
		),
	),
)
