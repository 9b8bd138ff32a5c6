// Package main provides the entry point for sockmesh-server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/service"
	"github.com/yndnr/sockmesh-go/internal/demo"
	"github.com/yndnr/sockmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/sockmesh-go/internal/infra/confloader"
	"github.com/yndnr/sockmesh-go/internal/infra/shutdown"
	"github.com/yndnr/sockmesh-go/internal/infra/tlsroots"
	"github.com/yndnr/sockmesh-go/internal/server/config"
	"github.com/yndnr/sockmesh-go/internal/server/httpserver"
	"github.com/yndnr/sockmesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/sockmesh-go/internal/server/localserver"
	"github.com/yndnr/sockmesh-go/internal/server/wsserver"
	"github.com/yndnr/sockmesh-go/internal/storage"
	"github.com/yndnr/sockmesh-go/internal/storage/memory"
	"github.com/yndnr/sockmesh-go/internal/storage/redis"
	"github.com/yndnr/sockmesh-go/internal/telemetry/logger"
	"github.com/yndnr/sockmesh-go/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("sockmesh-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting sockmesh-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx, stop := context.WithCancelCause(context.Background())
	defer stop(nil)

	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout, shutdown.WithLogger(log))

	// Hooks run in reverse order of registration: listeners first, then
	// sessions, then the stores they write to.
	if *configFile != "" {
		watcher, err := watchConfig(*configFile, log)
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	var reloader *tlsroots.Reloader
	if cfg.Server.HTTP.TLSCertFile != "" && cfg.Server.HTTP.TLSKeyFile != "" {
		reloader, err = tlsroots.NewReloader(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile,
			tlsroots.WithLogger(log))
		if err != nil {
			return fmt.Errorf("load tls certificate: %w", err)
		}
		if err := reloader.Start(); err != nil {
			log.Warn("certificate hot reload disabled", "error", err)
		}
		shutdownHandler.OnShutdown("tls reloader", func(context.Context) error {
			return reloader.Stop()
		})
	}

	presence, err := initPresence(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init presence: %w", err)
	}
	if presence != nil {
		shutdownHandler.OnShutdown("presence store", func(context.Context) error {
			return presence.Close()
		})
	}

	metrics := metric.Global()
	registryOpts := []service.RegistryOption{
		service.WithLogger(log),
		service.WithMetrics(metrics),
	}
	if presence != nil {
		registryOpts = append(registryOpts, service.WithPresence(presence))
	}
	registry := service.NewRegistry(service.RegistryConfig{
		QueueSize:   cfg.Events.QueueSize,
		AckTimeout:  cfg.Events.AckTimeout,
		RateLimit:   cfg.Events.RateLimit,
		RateBurst:   cfg.Events.RateBurst,
		MaxSessions: cfg.Events.MaxSessions,
	}, registryOpts...)

	if presence != nil {
		syncCtx, stopSync := context.WithCancel(ctx)
		go syncPresence(syncCtx, registry, cfg.Presence.TTL/2, log)
		shutdownHandler.OnShutdown("presence sync", func(context.Context) error {
			stopSync()
			return nil
		})
	}

	demo.New(log).Register(registry)

	ws := wsserver.New(wsserver.Config{
		PingInterval:   cfg.Engine.PingInterval,
		PingTimeout:    cfg.Engine.PingTimeout,
		MaxPayload:     cfg.Engine.MaxPayload,
		WriteTimeout:   cfg.Engine.WriteTimeout,
		SendQueue:      cfg.Engine.SendQueue,
		AllowedOrigins: cfg.Server.HTTP.CORSAllowedOrigins,
	}, registry, wsserver.WithLogger(log))

	adminHandler := handler.New(registry, presence, log)

	var local *localserver.Server
	if cfg.Server.Local.Path != "" {
		local = localserver.New(cfg.Server.Local.Path, adminHandler, localserver.WithLogger(log))
		shutdownHandler.OnShutdown("local server", local.Shutdown)
	}

	shutdownHandler.OnShutdown("websocket server", ws.Shutdown)
	shutdownHandler.OnShutdown("registry", registry.Close)

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Handler:            adminHandler,
		WebSocket:          ws,
		Path:               cfg.Server.HTTP.Path,
		Metrics:            metrics.Handler(),
		Observer:           metrics,
		Logger:             log,
		CORSAllowedOrigins: cfg.Server.HTTP.CORSAllowedOrigins,
	})
	httpOpts := []httpserver.Option{httpserver.WithLogger(log)}
	if reloader != nil {
		httpOpts = append(httpOpts, httpserver.WithTLS(reloader))
	}
	httpServer := httpserver.New(cfg.Server.HTTP.Addr, router, httpOpts...)
	shutdownHandler.OnShutdown("http server", httpServer.Shutdown)

	go func() {
		log.Info("HTTP server listening",
			"addr", cfg.Server.HTTP.Addr,
			"path", cfg.Server.HTTP.Path,
			"tls", httpServer.TLSEnabled())
		if err := httpServer.ListenAndServe(); err != nil {
			stop(fmt.Errorf("http server: %w", err))
		}
	}()

	if local != nil {
		go func() {
			log.Info("local admin server listening", "path", local.Path())
			if err := local.ListenAndServe(); err != nil {
				stop(fmt.Errorf("local server: %w", err))
			}
		}()
	}

	log.Info("server started, press Ctrl+C to stop")
	waitErr := shutdownHandler.Wait(ctx)
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return errors.Join(cause, waitErr)
	}
	if waitErr != nil {
		return waitErr
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initLogger initializes the structured logger and installs it as the
// default for both the logger package and log/slog.
func initLogger(cfg *config.ServerConfig) (*slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}

	logger.SetDefault(log)
	return log.Slog(), nil
}

// watchConfig reapplies the log level whenever the config file changes.
// Other settings need a restart.
func watchConfig(path string, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(string) {
		cfg, err := loadConfig(path)
		if err != nil {
			log.Warn("config reload rejected", "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	watcher.StartAsync()
	return watcher, nil
}

// initPresence opens the configured presence store. The "none" backend
// returns a nil store.
func initPresence(ctx context.Context, cfg *config.ServerConfig) (storage.PresenceStore, error) {
	var store storage.PresenceStore
	switch cfg.Presence.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		store = memory.New(memory.WithTTL(cfg.Presence.TTL))
	case "redis":
		store = redis.New(
			cfg.Presence.Redis.Addr,
			cfg.Presence.Redis.Password,
			cfg.Presence.Redis.DB,
			redis.WithTTL(cfg.Presence.TTL),
			redis.WithPrefix(cfg.Presence.Redis.Prefix),
		)
	default:
		return nil, fmt.Errorf("unknown presence backend %q", cfg.Presence.Backend)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, fmt.Errorf("%s presence store: %w", cfg.Presence.Backend, err)
	}
	return store, nil
}

// syncPresence refreshes the presence entries of connected sessions every
// interval so they outlive the store TTL.
func syncPresence(ctx context.Context, registry *service.Registry, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := registry.SyncPresence(ctx)
			if err != nil {
				log.Warn("presence sync failed", "synced", n, "error", err)
				continue
			}
			log.Debug("presence synced", "sessions", n)
		case <-ctx.Done():
			return
		}
	}
}
