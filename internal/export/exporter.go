// Package export writes snapshots of the table to the object store as
// Parquet files.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tableapi/tableapi/internal/rows"
	"github.com/tableapi/tableapi/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

// Lister reads every row of the table. *resource.Service satisfies it.
type Lister interface {
	List(ctx context.Context) ([]rows.Row, error)
}

type Summary struct {
	Table      string    `json:"table"`
	ObjectKey  string    `json:"object_key"`
	RowCount   int64     `json:"row_count"`
	SizeBytes  int64     `json:"size_bytes"`
	ExportedAt time.Time `json:"exported_at"`
}

type Exporter struct {
	rows     Lister
	store    storage.ObjectStore
	table    string
	idColumn string
	now      func() time.Time
}

func New(lister Lister, store storage.ObjectStore, table, idColumn string) (*Exporter, error) {
	if lister == nil {
		return nil, fmt.Errorf("row lister is required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if table == "" || idColumn == "" {
		return nil, fmt.Errorf("table and id column are required")
	}
	return &Exporter{
		rows:     lister,
		store:    store,
		table:    table,
		idColumn: idColumn,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Export reads the whole table and uploads it as one Parquet object.
func (e *Exporter) Export(ctx context.Context) (Summary, error) {
	tableRows, err := e.rows.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("read table: %w", err)
	}

	exportedAt := e.now()
	encoded, err := EncodeRowsToParquet(tableRows, e.idColumn, exportedAt)
	if err != nil {
		return Summary{}, err
	}
	key, err := storage.BuildExportPath(e.table, exportedAt)
	if err != nil {
		return Summary{}, err
	}

	info, err := e.store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: parquetContentType})
	if err != nil {
		return Summary{}, fmt.Errorf("upload snapshot: %w", err)
	}
	objectKey := info.Key
	if objectKey == "" {
		objectKey = key
	}

	return Summary{
		Table:      e.table,
		ObjectKey:  objectKey,
		RowCount:   encoded.RecordCount,
		SizeBytes:  int64(len(encoded.Data)),
		ExportedAt: exportedAt,
	}, nil
}
