package migration

import (
	"context"

	"github.com/smallbiznis/freya/internal/store/gormstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply brings the ledger schema up to date. Postgres uses the versioned
// migrations; other dialects fall back to gorm automigrate.
func Apply(conn *gorm.DB, log *zap.Logger) error {
	ctx := context.Background()
	log = log.Named("migration")
	dialect := conn.Dialector.Name()
	if dialect != "postgres" {
		log.Info("applying schema with gorm automigrate", zap.String("dialect", dialect))
		return gormstore.AutoMigrate(ctx, conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	res, err := RunMigrations(sqlDB)
	if err != nil {
		return err
	}
	log.Info("schema migrated",
		zap.Uint("version", res.Version),
		zap.Bool("applied", res.Applied),
	)
	return gormstore.EnsureSequences(ctx, conn)
}
