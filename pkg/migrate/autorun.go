package migrate

import (
	"context"
	"fmt"

	"github.com/sergeJAVA/contractor-service/pkg/config"
	"github.com/sergeJAVA/contractor-service/pkg/db"
	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	"github.com/sergeJAVA/contractor-service/pkg/logger"
)

// MaybeRunDev brings the schema up to date in dev when the auto-migrate flag
// is on. SQLite databases are migrated from the models instead of goose.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"dialect": client.Dialect(),
	})

	if client.Dialect() == db.DialectSQLite {
		logg.Info(ctx, "running model auto-migration (dev auto-run)")
		if err := client.DB().WithContext(ctx).AutoMigrate(&models.Contractor{}, &models.OutboxMessage{}); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	logg.Info(ctx, "running Goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "Goose migrations completed")
	return nil
}
