package migration

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/noah-isme/mute-meter-api/pkg/config"
)

// Module applies migrations on boot when DB_MIGRATE_ON_BOOT is set.
var Module = fx.Module("migrations",
	fx.Invoke(func(db *sqlx.DB, cfg *config.Config, logger *zap.Logger) error {
		if !cfg.Database.MigrateOnBoot {
			return nil
		}
		if err := RunMigrations(db.DB); err != nil {
			return err
		}
		logger.Info("database migrations applied")
		return nil
	}),
)
