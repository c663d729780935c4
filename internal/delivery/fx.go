package delivery

import (
	"github.com/smallbiznis/feeflow/internal/delivery/service"
	"go.uber.org/fx"
)

var Module = fx.Module("delivery.service",
	fx.Provide(service.NewService),
)
