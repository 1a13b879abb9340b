// Package app wires configuration, storage, migrations and handlers into a
// runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/starterbot/core/bootstrap"
	"github.com/m3rciful/starterbot/core/buildinfo"
	"github.com/m3rciful/starterbot/core/database"
	"github.com/m3rciful/starterbot/core/logger"
	"github.com/m3rciful/starterbot/core/migrate"
	coretelegram "github.com/m3rciful/starterbot/core/telegram"
	"github.com/m3rciful/starterbot/core/telegram/router"
	"github.com/m3rciful/starterbot/core/telegram/sender"
	"github.com/m3rciful/starterbot/internal/handlers"
	"github.com/m3rciful/starterbot/internal/schema"
	"github.com/m3rciful/starterbot/internal/storage"
)

// App holds the initialized infrastructure of a running bot.
type App struct {
	cfg        *Config
	db         *sqlx.DB
	store      *storage.Storage
	handlers   *handlers.Handlers
	notifier   *sender.Dispatcher
	client     *http.Client
	migrations migrate.Summary
}

// Bootstrap initializes logging, connects to the database, applies pending
// migrations and marks the bot as restarted. Any failure aborts startup.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	registry, err := schema.Registry()
	if err != nil {
		return nil, fmt.Errorf("app: migration registry: %w", err)
	}

	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
		Registry: registry,
	})
	if err != nil {
		return nil, err
	}

	store := storage.New(res.DB)
	stats, err := store.UpdateBotStats(ctx)
	if err != nil {
		_ = res.DB.Close()
		return nil, fmt.Errorf("app: record restart: %w", err)
	}
	logger.LogEvent(ctx, logger.L, slog.LevelInfo, "app.bootstrap",
		slog.String("status", "ok"),
		slog.String("env", cfg.Env),
		slog.String("version", buildinfo.Version),
		slog.Int("users", stats.TotalUsers),
		slog.Int("migrations_applied", len(res.Migrations.Applied)),
	)

	poll := coretelegram.PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
	}
	client := coretelegram.BuildHTTPClient(coretelegram.HTTPClientOptions{
		LongPollTimeout: poll.LongPollTimeout(),
	})

	return &App{
		cfg:   cfg,
		db:    res.DB,
		store: store,
		handlers: handlers.New(handlers.Deps{
			Store:      store,
			Telegram:   cfg.Telegram,
			HTTPClient: client,
			StartedAt:  time.Now(),
		}),
		notifier:   sender.NewDispatcher(sender.Options{MaxRetries: 2}),
		client:     client,
		migrations: res.Migrations,
	}, nil
}

// TelegramRunOptions assembles the registry, routes and lifecycle hooks.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	if err := a.handlers.Register(reg); err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("app: register handlers: %w", err)
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: a.handlers.RejectAdmin,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{})...)

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), a.handlers.RateLimited),
		Routes:      routes,
		HTTPClient:  a.client,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt coretelegram.Runtime) error {
	if a.cfg.Telegram.AdminID == 0 {
		return nil
	}
	text := StartupNotice(rt, a.migrations)
	if err := a.notifier.Notify(ctx, rt.Bot, a.cfg.Telegram.AdminID, text); err != nil {
		logger.LogEvent(ctx, logger.L, slog.LevelWarn, "app.notify",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	return nil
}

func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	if err := a.store.SetBotStatus(ctx, storage.StatusStopped); err != nil {
		return fmt.Errorf("app: mark stopped: %w", err)
	}
	return nil
}

// Close drains pending notices and closes the database.
func (a *App) Close() error {
	a.notifier.Close()
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("app: close database: %w", err)
	}
	return nil
}

// StartupNotice is the message sent to the admin once the bot is running.
func StartupNotice(rt coretelegram.Runtime, sum migrate.Summary) string {
	mode := "Public Bot API"
	if rt.LocalAPI {
		mode = "Local Bot API"
	}
	text := fmt.Sprintf("🚀 Bot started (%s)\nAPI mode: %s\nMigrations applied: %d", buildinfo.Version, mode, len(sum.Applied))
	if list, truncated := logger.SummarizeStrings(sum.Applied, 3); list != "" {
		if truncated {
			list += ", ..."
		}
		text += " (" + list + ")"
	}
	if len(sum.Skipped) > 0 {
		text += fmt.Sprintf("\nMigrations skipped: %d", len(sum.Skipped))
	}
	return text
}

// OpenMigrations connects to the database for the migrate commands. The
// returned close function releases the connection.
func OpenMigrations(ctx context.Context, cfg *Config) (*migrate.Runner, func() error, error) {
	registry, err := schema.Registry()
	if err != nil {
		return nil, nil, fmt.Errorf("app: migration registry: %w", err)
	}
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return database.NewRunner(db, cfg.Database, registry), db.Close, nil
}
