// Package statement builds the parameterized SQL used against the configured
// table. Identifiers are always quoted; values are always bound.
package statement

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tableapi/tableapi/internal/rows"
)

// Dialect describes how a driver spells bind parameters.
type Dialect interface {
	Name() string
	Placeholder(position int) string
}

type dollarDialect struct{ name string }

func (d dollarDialect) Name() string { return d.name }

func (d dollarDialect) Placeholder(position int) string { return "$" + strconv.Itoa(position) }

type questionDialect struct{ name string }

func (d questionDialect) Name() string { return d.name }

func (d questionDialect) Placeholder(int) string { return "?" }

var (
	Postgres Dialect = dollarDialect{name: "pgx"}
	DuckDB   Dialect = questionDialect{name: "duckdb"}
	SQLite   Dialect = questionDialect{name: "sqlite3"}
)

// DialectFor returns the dialect registered for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case Postgres.Name():
		return Postgres, nil
	case DuckDB.Name():
		return DuckDB, nil
	case SQLite.Name():
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Statement is SQL text plus its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Builder renders statements for one table.
type Builder struct {
	dialect  Dialect
	table    string
	idColumn string
}

func NewBuilder(dialect Dialect, table, idColumn string) (*Builder, error) {
	if dialect == nil {
		return nil, fmt.Errorf("dialect is required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if strings.TrimSpace(idColumn) == "" {
		return nil, fmt.Errorf("id column is required")
	}
	return &Builder{dialect: dialect, table: table, idColumn: idColumn}, nil
}

func (b *Builder) IDColumn() string {
	return b.idColumn
}

func (b *Builder) SelectAll() Statement {
	return Statement{SQL: fmt.Sprintf("SELECT * FROM %s", QuoteIdent(b.table))}
}

func (b *Builder) SelectByID(id int64) Statement {
	return Statement{
		SQL: fmt.Sprintf("SELECT * FROM %s WHERE %s = %s",
			QuoteIdent(b.table), QuoteIdent(b.idColumn), b.dialect.Placeholder(1)),
		Args: []any{id},
	}
}

func (b *Builder) DeleteByID(id int64) Statement {
	return Statement{
		SQL: fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			QuoteIdent(b.table), QuoteIdent(b.idColumn), b.dialect.Placeholder(1)),
		Args: []any{id},
	}
}

// Insert renders an INSERT for row, columns in row order. An empty row
// inserts a record made of column defaults.
func (b *Builder) Insert(row rows.Row) Statement {
	if len(row) == 0 {
		return Statement{SQL: fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", QuoteIdent(b.table))}
	}
	columns, values := EncodeInsert(b.dialect, row)
	return Statement{
		SQL:  fmt.Sprintf("INSERT INTO %s %s VALUES %s", QuoteIdent(b.table), columns, values),
		Args: row.Values(),
	}
}

// Update renders an UPDATE of the given columns for one id. The id column
// itself is never assigned. ok is false when nothing is left to assign.
func (b *Builder) Update(id int64, partial rows.Row) (Statement, bool) {
	partial = partial.Without(b.idColumn)
	if len(partial) == 0 {
		return Statement{}, false
	}
	assignments := EncodeUpdateAssignments(b.dialect, partial)
	args := append(partial.Values(), id)
	return Statement{
		SQL: fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			QuoteIdent(b.table), assignments, QuoteIdent(b.idColumn), b.dialect.Placeholder(len(partial)+1)),
		Args: args,
	}, true
}

// EncodeInsert returns the parenthesized column list and placeholder tuple
// for row.
func EncodeInsert(dialect Dialect, row rows.Row) (string, string) {
	columns := make([]string, 0, len(row))
	placeholders := make([]string, 0, len(row))
	for i, field := range row {
		columns = append(columns, QuoteIdent(field.Column))
		placeholders = append(placeholders, dialect.Placeholder(i+1))
	}
	return "(" + strings.Join(columns, ", ") + ")", "(" + strings.Join(placeholders, ", ") + ")"
}

// EncodeUpdateAssignments returns `"col" = <placeholder>` pairs joined by commas.
func EncodeUpdateAssignments(dialect Dialect, partial rows.Row) string {
	assignments := make([]string, 0, len(partial))
	for i, field := range partial {
		assignments = append(assignments, QuoteIdent(field.Column)+" = "+dialect.Placeholder(i+1))
	}
	return strings.Join(assignments, ", ")
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// ParseID interprets the text form of an id. Anything that is not a base-10
// int64 is rejected.
func ParseID(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
