package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/tableapi/tableapi/internal/observability"
	"github.com/tableapi/tableapi/internal/resource"
	"github.com/tableapi/tableapi/internal/rows"
)

const defaultMaxBodyBytes = 4 << 20

var itemIDPattern = regexp.MustCompile(`^[0-9]+$`)

func handleListRows(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRows(deps, w, r) {
		return
	}
	result, err := deps.Rows.List(r.Context())
	if err != nil {
		writeStatementError(deps, w, r, "failed to list rows", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleGetRow(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRows(deps, w, r) {
		return
	}
	rawID := r.PathValue("id")
	if !itemIDPattern.MatchString(rawID) {
		writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "row was not found", false, nil)
		return
	}
	result, err := deps.Rows.Get(r.Context(), rawID)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "NOT_FOUND", "row was not found", false, map[string]any{"id": rawID})
			return
		}
		writeStatementError(deps, w, r, "failed to get row", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleInsertRows(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRows(deps, w, r) {
		return
	}
	entries := make([]resource.InsertEntry, 0)
	for _, entry := range readBody(deps, r) {
		var row rows.Row
		if err := row.UnmarshalJSON(entry.Value); err != nil {
			logIgnoredBody(deps, r, err)
			entries = entries[:0]
			break
		}
		entries = append(entries, resource.InsertEntry{Key: entry.Key, Row: row})
	}

	result, err := deps.Rows.Insert(r.Context(), entries)
	if err != nil {
		writeStatementError(deps, w, r, "failed to insert rows", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inserted": result.Applied})
}

func handleUpdateRows(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRows(deps, w, r) {
		return
	}
	entries := make([]resource.UpdateEntry, 0)
	for _, entry := range readBody(deps, r) {
		var row rows.Row
		if err := row.UnmarshalJSON(entry.Value); err != nil {
			logIgnoredBody(deps, r, err)
			entries = entries[:0]
			break
		}
		entries = append(entries, resource.UpdateEntry{ID: entry.Key, Row: row})
	}

	result, err := deps.Rows.Update(r.Context(), entries)
	if err != nil {
		writeStatementError(deps, w, r, "failed to update rows", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": result.Applied, "skipped": result.Skipped})
}

func handleDeleteRows(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRows(deps, w, r) {
		return
	}
	body := readBody(deps, r)
	ids := make([]string, 0, len(body))
	for _, entry := range body {
		ids = append(ids, entry.Key)
	}

	result, err := deps.Rows.Delete(r.Context(), ids)
	if err != nil {
		writeStatementError(deps, w, r, "failed to delete rows", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": result.Applied, "skipped": result.Skipped})
}

// readBody returns the top-level entries of the JSON body. An empty or
// unparsable body yields no entries.
func readBody(deps Dependencies, r *http.Request) []rows.Entry {
	limit := deps.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		logIgnoredBody(deps, r, err)
		return nil
	}
	if int64(len(raw)) > limit {
		logIgnoredBody(deps, r, errors.New("request body too large"))
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	entries, err := rows.DecodeEntries(raw)
	if err != nil {
		logIgnoredBody(deps, r, err)
		return nil
	}
	return entries
}

func requireRows(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Rows == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ROWS_NOT_CONFIGURED", "row service is not configured", false, nil)
		return false
	}
	return true
}

func writeStatementError(deps Dependencies, w http.ResponseWriter, r *http.Request, message string, err error) {
	code := "STATEMENT_ERROR"
	status := http.StatusInternalServerError
	retryable := false
	if errors.Is(err, context.DeadlineExceeded) {
		code = "STATEMENT_TIMEOUT"
		status = http.StatusGatewayTimeout
		retryable = true
	}
	if deps.Logger != nil {
		deps.Logger.ErrorContext(r.Context(), message,
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("method", r.Method),
			slog.Any("error", err),
		)
	}
	writeError(r.Context(), w, status, code, message, retryable, map[string]any{"details": err.Error()})
}

func logIgnoredBody(deps Dependencies, r *http.Request, err error) {
	if deps.Logger == nil {
		return
	}
	deps.Logger.DebugContext(r.Context(), "request body ignored",
		slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
		slog.String("method", r.Method),
		slog.Any("error", err),
	)
}
