package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tableapi/tableapi/internal/api"
	"github.com/tableapi/tableapi/internal/api/uistatic"
	"github.com/tableapi/tableapi/internal/config"
	"github.com/tableapi/tableapi/internal/database"
	"github.com/tableapi/tableapi/internal/executor"
	"github.com/tableapi/tableapi/internal/export"
	"github.com/tableapi/tableapi/internal/observability"
	"github.com/tableapi/tableapi/internal/resource"
	"github.com/tableapi/tableapi/internal/statement"
	s3store "github.com/tableapi/tableapi/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("tableapi-server")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, err := database.Open(context.Background(), database.FromConfig(cfg.Database))
	if err != nil {
		logger.Error("failed to open database", slog.String("driver", cfg.Database.Driver), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	dialect, err := statement.DialectFor(cfg.Database.Driver)
	if err != nil {
		logger.Error("unsupported database driver", slog.Any("error", err))
		os.Exit(1)
	}
	builder, err := statement.NewBuilder(dialect, cfg.Table.Name, cfg.Table.IDColumn)
	if err != nil {
		logger.Error("invalid table configuration", slog.Any("error", err))
		os.Exit(1)
	}
	exec := executor.New(db, cfg.Database.StatementTimeout)
	rowService, err := resource.NewService(exec, builder, logger)
	if err != nil {
		logger.Error("failed to initialize row service", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger: logger,
		Rows:   rowService,
		Index: uistatic.Handler(uistatic.Page{
			Service:  cfg.Service.Name,
			Table:    cfg.Table.Name,
			IDColumn: cfg.Table.IDColumn,
		}),
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabaseDSN(cfg),
			exec.HealthCheck,
		),
		DependencyTimeout: time.Second,
	}

	if cfg.Export.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.FromConfig(cfg.ObjectStore))
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		exporter, err := export.New(rowService, objectStore, cfg.Table.Name, cfg.Table.IDColumn)
		if err != nil {
			logger.Error("failed to initialize exporter", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Exporter = exporter
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting table api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("driver", cfg.Database.Driver),
			slog.String("table", cfg.Table.Name),
			slog.Bool("export_enabled", cfg.Export.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("table api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down table api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
