package gormstore

import (
	"github.com/smallbiznis/freya/internal/store"
	"go.uber.org/fx"
)

var Module = fx.Module("store.gorm",
	fx.Provide(
		fx.Annotate(New, fx.As(new(store.Store))),
	),
)
