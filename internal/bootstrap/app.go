package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"tesa/internal/bootstrap/config"
	"tesa/internal/bootstrap/logging"
	"tesa/internal/errs"
	"tesa/internal/ports"
)

// App bundles the assembled application: configuration, the selected
// finding store, and the database handle (nil for the memory store).
type App struct {
	Config config.Config
	Store  ports.FindingStore
	DB     *gorm.DB
}

// InitStore runs the store's startup preparation. For the durable store
// this is the schema migration and it must finish before the store serves
// traffic; an unsupported schema aborts startup.
func (a *App) InitStore(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start store init")

	if err := a.Store.Init(logCtx); err != nil {
		return errs.Wrap(err, "init finding store")
	}

	logging.Info(logCtx, "store init completed")
	return nil
}

func (a *App) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if a.DB == nil {
		return nil
	}

	sqlDB, err := a.DB.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}

	if err := sqlDB.Close(); err != nil {
		return errs.Wrap(err, "close sql db")
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "bootstrap.app")), "database connection closed")
	return nil
}
