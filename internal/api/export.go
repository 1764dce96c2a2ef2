package api

import (
	"log/slog"
	"net/http"

	"github.com/tableapi/tableapi/internal/observability"
)

func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "table export is not configured", false, nil)
		return
	}

	summary, err := deps.Exporter.Export(r.Context())
	if err != nil {
		observability.ObserveExport("failed", 0)
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "table export failed",
				slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
				slog.Any("error", err),
			)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "table export failed", true, map[string]any{"details": err.Error()})
		return
	}

	observability.ObserveExport("ok", int(summary.RowCount))
	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "table exported",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("object_key", summary.ObjectKey),
			slog.Int64("row_count", summary.RowCount),
		)
	}
	writeJSON(w, http.StatusOK, summary)
}
