package memory

import (
	"github.com/smallbiznis/freya/internal/store"
	"go.uber.org/fx"
)

var Module = fx.Module("store.memory",
	fx.Provide(
		fx.Annotate(New, fx.As(new(store.Store))),
	),
)
