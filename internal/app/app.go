// Package app wires configuration into the storage, sync and search
// components and runs the long-lived services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/edgard/chatmirror/internal/bot"
	"github.com/edgard/chatmirror/internal/bot/handlers"
	"github.com/edgard/chatmirror/internal/bot/tasks"
	"github.com/edgard/chatmirror/internal/config"
	"github.com/edgard/chatmirror/internal/database"
	"github.com/edgard/chatmirror/internal/httpapi"
	"github.com/edgard/chatmirror/internal/indexer"
	"github.com/edgard/chatmirror/internal/lock"
	"github.com/edgard/chatmirror/internal/logger"
	"github.com/edgard/chatmirror/internal/search"
	"github.com/edgard/chatmirror/internal/source"
	"github.com/edgard/chatmirror/internal/source/export"
	"github.com/edgard/chatmirror/internal/telegram"
)

// App holds the wired components.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Store  database.Store
	Engine *search.Engine
	Runner *indexer.Runner

	db    *sqlx.DB
	redis *redis.Client
	loc   *time.Location
}

// New connects to the database (and Redis when configured) and builds the
// store, search engine and sync runner.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	loc, err := cfg.Search.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	driverName, err := driverFor(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	db, err := database.NewDB(driverName, cfg.Database.DSN, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: log, db: db, loc: loc}

	a.Store, err = database.NewStore(db, source.TextNormalizer{}, database.Options{
		AcquireAttempts:  cfg.Database.AcquireAttempts,
		AcquireDelay:     cfg.Database.AcquireDelay,
		DeadlockMinDelay: cfg.Database.DeadlockMinDelay,
		DeadlockMaxDelay: cfg.Database.DeadlockMaxDelay,
	}, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = lock.NewRedisLocker(a.redis, cfg.Redis.Prefix)
		log.Info("Using Redis sync locks", "addr", cfg.Redis.Addr)
	}

	targets, err := buildTargets(cfg.Sync.Sources, loc, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Runner = indexer.NewRunner(a.Store, locker, targets, indexer.RunnerConfig{
		Concurrency: cfg.Sync.Concurrency,
		LockTTL:     cfg.Sync.LockTTL,
	}, log)

	a.Engine = search.NewEngine(a.Store, search.Config{
		FirstYear: cfg.Search.FirstYear,
		Location:  loc,
	}, log)

	return a, nil
}

func driverFor(name string) (string, error) {
	switch name {
	case "sqlite":
		return database.DriverSQLite, nil
	case "postgres":
		return database.DriverPostgres, nil
	default:
		return "", fmt.Errorf("%w: unsupported database driver %q", config.ErrConfiguration, name)
	}
}

func buildTargets(sources []config.SourceConfig, loc *time.Location, log *slog.Logger) ([]indexer.Target, error) {
	targets := make([]indexer.Target, 0, len(sources))
	for _, sc := range sources {
		switch sc.Type {
		case "export":
			targets = append(targets, indexer.Target{Name: sc.Name, Dialog: export.New(sc.Path, loc, log)})
		default:
			return nil, fmt.Errorf("%w: source %s has unsupported type %q", config.ErrConfiguration, sc.Name, sc.Type)
		}
	}
	return targets, nil
}

// Serve runs the scheduler together with the HTTP API and Telegram bot when
// they are configured, until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger: a.Logger,
		Syncer: a.Runner,
		Store:  a.Store,
	})
	sched, err := bot.NewScheduler(a.Logger, &a.Config.Scheduler, taskMap)
	if err != nil {
		return err
	}

	var api bot.Server
	if a.Config.HTTP.Addr != "" {
		api = httpapi.NewServer(httpapi.Config{
			Addr:         a.Config.HTTP.Addr,
			ReadTimeout:  a.Config.HTTP.ReadTimeout,
			WriteTimeout: a.Config.HTTP.WriteTimeout,
			Location:     a.loc,
		}, a.Engine, a.Logger)
	}

	var tg *tgbot.Bot
	if a.Config.Telegram.Token != "" {
		tg, err = a.newTelegramBot(ctx)
		if err != nil {
			return err
		}
	}

	return bot.NewBot(a.Logger, tg, sched, api).Run(ctx)
}

func (a *App) newTelegramBot(ctx context.Context) (*tgbot.Bot, error) {
	tg, err := telegram.NewTelegramBot(a.Config.Telegram.Token, a.Logger, tgbot.WithMiddlewares(logger.Middleware(a.Logger)))
	if err != nil {
		return nil, err
	}
	if a.Config.Telegram.DropPendingUpdates {
		if _, err := tg.DeleteWebhook(ctx, &tgbot.DeleteWebhookParams{DropPendingUpdates: true}); err != nil {
			return nil, fmt.Errorf("failed to drop pending updates: %w", err)
		}
	}

	registered := handlers.RegisterAllCommands(handlers.HandlerDeps{
		Logger:      a.Logger,
		AdminUserID: a.Config.Telegram.AdminUserID,
		Searcher:    a.Engine,
		Syncer:      a.Runner,
		Location:    a.loc,
	})
	if err := telegram.RegisterHandlers(ctx, tg, a.Logger, registered); err != nil {
		return nil, err
	}
	return tg, nil
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			a.Logger.Warn("Error closing redis client", "error", err)
		}
	}
	database.CloseDB(a.db)
}
