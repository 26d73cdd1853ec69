// Package main is the entry point for the murmur agent.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blueberrycongee/murmur/internal/config"
	"github.com/blueberrycongee/murmur/internal/observability"
	"github.com/blueberrycongee/murmur/internal/store/postgres"
)

type runOptions struct {
	configPath string
	once       bool
	dryRun     bool
	migrate    bool
}

func main() {
	var opts runOptions
	flag.StringVar(&opts.configPath, "config", "config/config.yaml", "path to configuration file")
	flag.BoolVar(&opts.once, "once", false, "run a single cognitive cycle and exit")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "keep memories in process and never publish")
	flag.BoolVar(&opts.migrate, "migrate", false, "create the database schema and exit")
	flag.Parse()

	if err := run(opts); err != nil {
		slog.Error("agent exited with error", "error", err)
		os.Exit(1)
	}
}

func run(opts runOptions) error {
	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(bootstrap)

	cfgManager, err := config.NewManager(opts.configPath, bootstrap)
	if err != nil {
		return err
	}
	defer cfgManager.Close()

	// Secrets are resolved into a private copy so the manager keeps the raw references.
	cfg := *cfgManager.Get()

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting murmur agent",
		"username", cfg.Agent.Username,
		"config_checksum", cfgManager.Status().Checksum,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secrets, err := resolveSecrets(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer secrets.Close()

	if opts.migrate {
		return migrate(ctx, &cfg, logger)
	}

	tracing, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, &cfg, tracing, logger, buildOptions{DryRun: opts.dryRun})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		a.close(shutdownCtx)
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	if opts.once {
		res, ran, err := a.scheduler.RunOnce(ctx)
		if err != nil {
			return err
		}
		logger.Info("single cycle finished",
			"ran", ran,
			"significance", res.Significance,
			"acted", res.Acted,
		)
		return nil
	}

	cfgManager.OnChange(a.applyConfig)
	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	if a.db != nil {
		go watchStorePool(ctx, a.db, logger, 30*time.Second)
	}

	server := newOpsServer(&cfg, a.ready)
	go func() {
		logger.Info("ops server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()

	runErr := a.scheduler.Run(ctx)

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", "error", err)
	}
	return runErr
}

func newLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := observability.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	l := observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     os.Stdout,
		JSONFormat: cfg.Format != "text",
	}, observability.NewRedactor())
	return l.Slog(), nil
}

func migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.EnsureSchema(ctx, db, cfg.Memory.Dimension); err != nil {
		return err
	}
	logger.Info("schema ready", "dimension", cfg.Memory.Dimension)
	return nil
}
