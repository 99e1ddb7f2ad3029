package receipt

import (
	"github.com/smallbiznis/freya/internal/receipt/render"
	"github.com/smallbiznis/freya/internal/receipt/service"
	"go.uber.org/fx"
)

var Module = fx.Module("receipt.service",
	fx.Provide(
		render.NewRenderer,
		render.NewPDFRenderer,
		service.NewService,
	),
)
