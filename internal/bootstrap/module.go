package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"tesa/internal/bootstrap/config"
	"tesa/internal/bootstrap/database"
	"tesa/internal/bootstrap/logging"
	"tesa/internal/infrastructure/memory"
	sqlrepo "tesa/internal/infrastructure/persistence/sql/repository"
	sqluow "tesa/internal/infrastructure/persistence/sql/uow"
	"tesa/internal/ports"
	"tesa/internal/usecase/findings"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideStore),
	fx.Provide(provideApp),
	fx.Provide(findings.NewService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

// provideStore selects the store variant from config: "memory" for the
// ephemeral store, "sqlite"/"postgres" for the durable one. The returned
// *gorm.DB is nil for the memory variant.
func provideStore(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.FindingStore, *gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	if cfg.Database.Driver == "memory" {
		logging.Info(logCtx, "using ephemeral in-memory finding store")
		return memory.NewFindingStore(), nil, nil
	}

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return sqlrepo.NewFindingRepository(db, sqluow.NewUnitOfWork(db)), db, nil
}

func provideApp(cfg config.Config, store ports.FindingStore, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		Store:  store,
		DB:     db,
	}
}
