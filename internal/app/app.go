// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

// Package app loads configuration and assembles the console server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/k-t-corp/broccoli-console/internal/backend"
	"github.com/k-t-corp/broccoli-console/internal/observability"
	"github.com/k-t-corp/broccoli-console/internal/pkg/logger"
	redisrepo "github.com/k-t-corp/broccoli-console/internal/repository/redis"
	"github.com/k-t-corp/broccoli-console/internal/scheduler"
	"github.com/k-t-corp/broccoli-console/internal/web"
)

// Application holds all application dependencies
type Application struct {
	Config  *Config
	Logger  *logger.Logger
	Redis   *redisrepo.Client
	Backend *backend.Client
	Handler *web.Handler
	Server  *http.Server

	tracing   *observability.Provider
	scheduler *scheduler.Scheduler
}

// Run starts the console with the given configuration file and blocks until
// SIGINT or SIGTERM.
func Run(cfgFile string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, v, err := loadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting broccoli-console",
		"version", Version,
		"commit", Commit,
		"backend", maskURL(cfg.Backend.URL),
	)

	app, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	watchConfig(v, log)

	if err := app.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", app.Server.Addr)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errCh:
		log.Error("HTTP server failed", "error", err)
		_ = app.shutdown(context.Background())
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		return err
	}

	log.Info("broccoli-console stopped gracefully")
	return nil
}

// New wires every component from cfg without starting the listener.
func New(ctx context.Context, cfg *Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.Nop()
	}
	app := &Application{Config: cfg, Logger: log, scheduler: scheduler.New(log)}

	tracing, err := observability.NewProvider(observability.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "broccoli-console",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	app.tracing = tracing
	if tracing.Enabled() {
		log.Info("Tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	app.Backend = backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
	}, log)

	sessions, err := app.initSessions(ctx)
	if err != nil {
		_ = tracing.Shutdown(ctx)
		return nil, err
	}

	app.Handler = web.NewHandler(web.HandlerDeps{
		Backend:  app.Backend,
		Sessions: sessions,
		Shell: web.ShellOptions{
			Title:        cfg.Shell.Title,
			FetchTimeout: cfg.Shell.FetchTimeout,
			RenderWait:   cfg.Shell.RenderWait,
		},
		Version: Version,
		Logger:  log,
	})

	serverCfg := web.ServerConfig{
		Handler: app.Handler,
		Logger:  log,
		Tracing: tracing,
		CORS: web.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		},
		Compress:       cfg.Server.Compress,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   parseSize(cfg.Server.MaxRequestSize, 1<<20),
		LoginRateLimit: cfg.Server.LoginRateLimit,
		LoginWindow:    cfg.Server.LoginRateWindow,
	}
	// Only a shared session store is worth probing from /health.
	if app.Redis != nil {
		serverCfg.Health = app.Redis
	}

	app.Server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           web.NewServerRouter(serverCfg),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return app, nil
}

// initSessions picks the browser session store.
func (app *Application) initSessions(ctx context.Context) (web.SessionStore, error) {
	cfg := app.Config
	cookie := web.CookieConfig{
		Name:     cfg.Session.CookieName,
		Secure:   cfg.Session.CookieSecure,
		SameSite: parseSameSite(cfg.Session.CookieSameSite),
		Domain:   cfg.Session.CookieDomain,
	}

	if cfg.Session.Store != "redis" {
		app.Logger.Info("Using in-memory session store; sessions are lost on restart")
		store := web.NewMemorySessionStore(cfg.Session.TTL, cookie)
		if cfg.Session.PurgeSchedule != "" {
			err := app.scheduler.Add(scheduler.Job{
				Name:     "session-purge",
				Schedule: cfg.Session.PurgeSchedule,
				Run: func(context.Context) error {
					if n := store.Purge(); n > 0 {
						app.Logger.Debug("Purged expired sessions", "count", n, "remaining", store.Len())
					}
					return nil
				},
			})
			if err != nil {
				return nil, fmt.Errorf("failed to schedule session purge: %w", err)
			}
		}
		return store, nil
	}

	app.Logger.Info("Connecting to Redis...")
	opts := redisrepo.DefaultOptions()
	if cfg.Redis.PoolSize > 0 {
		opts.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.DialTimeout > 0 {
		opts.DialTimeout = cfg.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.Redis.WriteTimeout
	}
	if cfg.Redis.KeyPrefix != "" {
		opts.KeyPrefix = cfg.Redis.KeyPrefix
	}
	rdb, err := redisrepo.New(ctx, cfg.Redis.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.Redis = rdb
	app.Logger.Info("Redis connected", "url", maskURL(cfg.Redis.URL))

	return web.NewWebSessionStore(redisrepo.NewSessionStore(rdb, cfg.Session.TTL), cookie), nil
}

// shutdown stops the listener first, then flushes spans and closes Redis.
func (app *Application) shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down components...")

	var firstErr error
	if app.scheduler != nil {
		if err := app.scheduler.Stop(ctx); err != nil {
			app.Logger.Error("Error stopping scheduler", "error", err)
		}
	}
	if app.Server != nil {
		if err := app.Server.Shutdown(ctx); err != nil {
			app.Logger.Error("Error stopping HTTP server", "error", err)
			firstErr = err
		} else {
			app.Logger.Info("HTTP server stopped")
		}
	}

	if app.tracing != nil {
		if err := app.tracing.Shutdown(ctx); err != nil {
			app.Logger.Error("Error flushing traces", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			app.Logger.Error("Error closing Redis", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			app.Logger.Info("Redis connection closed")
		}
	}

	return firstErr
}

// watchConfig applies logging.level changes from the config file without a
// restart. Other settings still need one.
func watchConfig(v *viper.Viper, log *logger.Logger) {
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := v.GetString("logging.level")
		if level == log.GetLevel() {
			return
		}
		if err := log.SetLevel(level); err != nil {
			log.Warn("Ignoring invalid logging.level from config reload", "level", level, "error", err)
			return
		}
		log.Info("Log level changed", "level", level, "file", e.Name)
	})
	v.WatchConfig()
}

func newLogger(cfg *Config) (*logger.Logger, error) {
	return logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format, logger.OutputConfig{
		Output: cfg.Logging.Output,
		File: logger.FileConfig{
			Path:    cfg.Logging.File.Path,
			MaxSize: parseSize(cfg.Logging.File.MaxSize, 50*1024*1024),
		},
	})
}
