package dispute

import (
	"github.com/smallbiznis/freya/internal/dispute/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dispute.service",
	fx.Provide(service.NewService),
)
