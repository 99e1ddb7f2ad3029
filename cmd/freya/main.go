package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freya/internal/clock"
	"github.com/smallbiznis/freya/internal/config"
	"github.com/smallbiznis/freya/internal/migration"
	"github.com/smallbiznis/freya/internal/observability"
	"github.com/smallbiznis/freya/internal/scheduler"
	"github.com/smallbiznis/freya/internal/server"
	"github.com/smallbiznis/freya/internal/store/gormstore"
	"github.com/smallbiznis/freya/internal/store/memory"
	"github.com/smallbiznis/freya/pkg/db"
	"go.uber.org/fx"
)

func main() {
	cfg := config.Load()

	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		storeModule(cfg),

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func storeModule(cfg config.Config) fx.Option {
	if cfg.UsesMemoryStore() {
		return memory.Module
	}
	return fx.Options(
		db.Module,
		gormstore.Module,
		migration.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
