package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9._-]{0,127}$`)

// BuildExportPath returns the key of a table snapshot taken at the given
// time, partitioned by UTC date.
func BuildExportPath(tableName string, takenAt time.Time) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	ts := takenAt.UTC()
	return path.Join(
		tableName,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("snapshot-%d.parquet", ts.UnixMilli()),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
