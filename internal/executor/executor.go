// Package executor runs single statements against the shared pool and
// classifies what came back.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tableapi/tableapi/internal/observability"
	"github.com/tableapi/tableapi/internal/rows"
	"github.com/tableapi/tableapi/internal/statement"
)

var ErrEmptyStatement = errors.New("sql is required")

// Intent tells the executor how to read an empty result.
type Intent int

const (
	// IntentList reads a collection; no rows is an empty success.
	IntentList Intent = iota
	// IntentLookup reads one addressed row; no rows means not found.
	IntentLookup
	// IntentMutate writes; nothing is fetched.
	IntentMutate
)

func (i Intent) String() string {
	switch i {
	case IntentList:
		return "list"
	case IntentLookup:
		return "lookup"
	case IntentMutate:
		return "mutate"
	default:
		return "unknown"
	}
}

type OutcomeKind int

const (
	OutcomeEmpty OutcomeKind = iota
	OutcomeRows
	OutcomeNotFound
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeEmpty:
		return "empty"
	case OutcomeRows:
		return "rows"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one statement. Rows is non-nil for
// every kind so it can be serialized directly.
type Outcome struct {
	Kind         OutcomeKind
	Rows         []rows.Row
	RowsAffected int64
}

func (o Outcome) Found() bool {
	return o.Kind == OutcomeRows
}

type Executor struct {
	db      *sql.DB
	timeout time.Duration
}

// New returns an executor over db. A positive timeout bounds every statement.
func New(db *sql.DB, timeout time.Duration) *Executor {
	return &Executor{db: db, timeout: timeout}
}

// Execute runs stmt in its own transaction and commits it, reads included.
func (e *Executor) Execute(ctx context.Context, stmt statement.Statement, intent Intent) (Outcome, error) {
	if strings.TrimSpace(stmt.SQL) == "" {
		return Outcome{}, ErrEmptyStatement
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	outcome, err := e.execute(ctx, stmt, intent)
	status := outcome.Kind.String()
	if err != nil {
		status = "error"
		// Drivers report an expired deadline with their own errors.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
	}
	observability.ObserveStatement(intent.String(), status, time.Since(start))
	return outcome, err
}

func (e *Executor) execute(ctx context.Context, stmt statement.Statement, intent Intent) (Outcome, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		fetched  []rows.Row
		affected int64
	)
	if intent == IntentMutate {
		result, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return Outcome{}, fmt.Errorf("execute statement: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil {
			affected = n
		}
		fetched = make([]rows.Row, 0)
	} else {
		fetched, err = queryAll(ctx, tx, stmt)
		if err != nil {
			return Outcome{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Outcome{}, fmt.Errorf("commit tx: %w", err)
	}
	return Classify(fetched, intent, affected), nil
}

func queryAll(ctx context.Context, tx *sql.Tx, stmt statement.Statement) ([]rows.Row, error) {
	rs, err := tx.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("execute statement: %w", err)
	}
	defer func() { _ = rs.Close() }()

	fetched, err := rows.DecodeResultSet(rs)
	if err != nil {
		return nil, err
	}
	if err := rs.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}
	return fetched, nil
}

// Classify maps fetched rows to an outcome under the caller's intent.
func Classify(fetched []rows.Row, intent Intent, affected int64) Outcome {
	if fetched == nil {
		fetched = make([]rows.Row, 0)
	}
	switch {
	case len(fetched) > 0:
		return Outcome{Kind: OutcomeRows, Rows: fetched, RowsAffected: affected}
	case intent == IntentLookup:
		return Outcome{Kind: OutcomeNotFound, Rows: fetched}
	default:
		return Outcome{Kind: OutcomeEmpty, Rows: fetched, RowsAffected: affected}
	}
}

// HealthCheck pings the pool.
func (e *Executor) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
