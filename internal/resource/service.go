// Package resource implements the table operations behind the HTTP handlers.
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tableapi/tableapi/internal/executor"
	"github.com/tableapi/tableapi/internal/observability"
	"github.com/tableapi/tableapi/internal/rows"
	"github.com/tableapi/tableapi/internal/statement"
)

var ErrNotFound = errors.New("row not found")

// Runner executes one statement. *executor.Executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, stmt statement.Statement, intent executor.Intent) (executor.Outcome, error)
}

// InsertEntry is one payload of a collection POST. Key is ignored.
type InsertEntry struct {
	Key string
	Row rows.Row
}

// UpdateEntry is one payload of a collection PUT, keyed by target id.
type UpdateEntry struct {
	ID  string
	Row rows.Row
}

type BatchResult struct {
	Applied int
	Skipped int
}

type Service struct {
	runner  Runner
	builder *statement.Builder
	logger  *slog.Logger
}

func NewService(runner Runner, builder *statement.Builder, logger *slog.Logger) (*Service, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if builder == nil {
		return nil, fmt.Errorf("statement builder is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{runner: runner, builder: builder, logger: logger}, nil
}

func (s *Service) List(ctx context.Context) ([]rows.Row, error) {
	outcome, err := s.runner.Execute(ctx, s.builder.SelectAll(), executor.IntentList)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	return outcome.Rows, nil
}

// Get returns the rows addressed by the text id. A malformed id is reported
// as ErrNotFound.
func (s *Service) Get(ctx context.Context, rawID string) ([]rows.Row, error) {
	id, ok := statement.ParseID(rawID)
	if !ok {
		return nil, ErrNotFound
	}
	outcome, err := s.runner.Execute(ctx, s.builder.SelectByID(id), executor.IntentLookup)
	if err != nil {
		return nil, fmt.Errorf("get row %d: %w", id, err)
	}
	if outcome.Kind == executor.OutcomeNotFound {
		return nil, ErrNotFound
	}
	return outcome.Rows, nil
}

// Exists runs a lookup for the id on every call. Malformed ids are absent.
func (s *Service) Exists(ctx context.Context, rawID string) (bool, error) {
	id, ok := statement.ParseID(rawID)
	if !ok {
		return false, nil
	}
	return s.exists(ctx, id)
}

func (s *Service) exists(ctx context.Context, id int64) (bool, error) {
	outcome, err := s.runner.Execute(ctx, s.builder.SelectByID(id), executor.IntentLookup)
	if err != nil {
		return false, fmt.Errorf("check row %d: %w", id, err)
	}
	return outcome.Found(), nil
}

// Insert runs one INSERT per entry in order and stops at the first failure.
// Entries inserted before the failure stay committed.
func (s *Service) Insert(ctx context.Context, entries []InsertEntry) (BatchResult, error) {
	var result BatchResult
	for _, entry := range entries {
		if _, err := s.runner.Execute(ctx, s.builder.Insert(entry.Row), executor.IntentMutate); err != nil {
			return result, fmt.Errorf("insert entry %q: %w", entry.Key, err)
		}
		result.Applied++
	}
	return result, nil
}

// Update applies each partial row whose id exists. Absent or malformed ids,
// and payloads with nothing to assign, are skipped without error.
func (s *Service) Update(ctx context.Context, entries []UpdateEntry) (BatchResult, error) {
	var result BatchResult
	defer func() { observability.AddSkippedEntries("update", result.Skipped) }()
	for _, entry := range entries {
		id, ok := statement.ParseID(entry.ID)
		if !ok {
			s.skip(ctx, "update", entry.ID, "malformed id")
			result.Skipped++
			continue
		}
		stmt, ok := s.builder.Update(id, entry.Row)
		if !ok {
			s.skip(ctx, "update", entry.ID, "no columns to assign")
			result.Skipped++
			continue
		}
		found, err := s.exists(ctx, id)
		if err != nil {
			return result, err
		}
		if !found {
			s.skip(ctx, "update", entry.ID, "absent id")
			result.Skipped++
			continue
		}
		if _, err := s.runner.Execute(ctx, stmt, executor.IntentMutate); err != nil {
			return result, fmt.Errorf("update row %d: %w", id, err)
		}
		result.Applied++
	}
	return result, nil
}

// Delete removes each listed id that exists. Absent ids are skipped.
func (s *Service) Delete(ctx context.Context, ids []string) (BatchResult, error) {
	var result BatchResult
	defer func() { observability.AddSkippedEntries("delete", result.Skipped) }()
	for _, rawID := range ids {
		id, ok := statement.ParseID(rawID)
		if !ok {
			s.skip(ctx, "delete", rawID, "malformed id")
			result.Skipped++
			continue
		}
		found, err := s.exists(ctx, id)
		if err != nil {
			return result, err
		}
		if !found {
			s.skip(ctx, "delete", rawID, "absent id")
			result.Skipped++
			continue
		}
		if _, err := s.runner.Execute(ctx, s.builder.DeleteByID(id), executor.IntentMutate); err != nil {
			return result, fmt.Errorf("delete row %d: %w", id, err)
		}
		result.Applied++
	}
	return result, nil
}

func (s *Service) skip(ctx context.Context, operation, rawID, reason string) {
	s.logger.DebugContext(ctx, "batch entry skipped",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("operation", operation),
		slog.String("id", rawID),
		slog.String("reason", reason),
	)
}
