package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/db/models"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
)

// MaybeRunDev migrates the schema when running in dev with MMN_AUTO_MIGRATE
// set. SQLite is migrated from the models; the goose files target Postgres.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})
	if strings.EqualFold(cfg.DB.Driver, "sqlite") {
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("auto-migrating models: %w", err)
		}
		return nil
	}

	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	applied, err := Up(ctx, sqlDB, DefaultDir)
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(applied)), "dev migrations applied")
	return nil
}
