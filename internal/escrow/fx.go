package escrow

import (
	"github.com/smallbiznis/freya/internal/escrow/service"
	"go.uber.org/fx"
)

var Module = fx.Module("escrow.service",
	fx.Provide(service.NewService),
)
