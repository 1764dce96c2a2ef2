package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tableapi/tableapi/internal/config"
	"github.com/tableapi/tableapi/internal/export"
	"github.com/tableapi/tableapi/internal/observability"
	"github.com/tableapi/tableapi/internal/resource"
	"github.com/tableapi/tableapi/internal/rows"
)

type ReadinessCheck func(ctx context.Context) error

// RowService is the table surface used by the resource handlers.
type RowService interface {
	List(ctx context.Context) ([]rows.Row, error)
	Get(ctx context.Context, rawID string) ([]rows.Row, error)
	Insert(ctx context.Context, entries []resource.InsertEntry) (resource.BatchResult, error)
	Update(ctx context.Context, entries []resource.UpdateEntry) (resource.BatchResult, error)
	Delete(ctx context.Context, ids []string) (resource.BatchResult, error)
}

type Exporter interface {
	Export(ctx context.Context) (export.Summary, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Rows              RowService
	Exporter          Exporter
	Index             http.Handler
	MaxBodyBytes      int64
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/export", func(w http.ResponseWriter, r *http.Request) {
		handleExport(deps, w, r)
	})

	collection := "/" + cfg.Table.Name
	mux.HandleFunc("GET "+collection, func(w http.ResponseWriter, r *http.Request) {
		handleListRows(deps, w, r)
	})
	mux.HandleFunc("POST "+collection, func(w http.ResponseWriter, r *http.Request) {
		handleInsertRows(deps, w, r)
	})
	mux.HandleFunc("PUT "+collection, func(w http.ResponseWriter, r *http.Request) {
		handleUpdateRows(deps, w, r)
	})
	mux.HandleFunc("DELETE "+collection, func(w http.ResponseWriter, r *http.Request) {
		handleDeleteRows(deps, w, r)
	})
	mux.HandleFunc("GET "+collection+"/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetRow(deps, w, r)
	})

	if deps.Index != nil {
		mux.Handle("GET /{$}", deps.Index)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckDatabaseDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Database.Driver == config.DriverPostgres && cfg.Database.DataSourceName() == "" {
			return errors.New("database dsn is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
