package rows

import "fmt"

// ResultSet is the subset of *sql.Rows used to decode a result.
type ResultSet interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// DecodeResultSet reads every remaining row of rs. An empty result decodes to
// an empty, non-nil slice.
func DecodeResultSet(rs ResultSet) ([]Row, error) {
	columns, err := rs.Columns()
	if err != nil {
		return nil, fmt.Errorf("result columns: %w", err)
	}

	out := make([]Row, 0)
	for rs.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rs.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			row[i] = Field{Column: column, Value: NormalizeValue(values[i])}
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
