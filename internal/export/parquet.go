package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tableapi/tableapi/internal/rows"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
}

// parquetRow stores each table row as its JSON object so the file schema
// does not depend on the table's columns.
type parquetRow struct {
	RowID            int64  `parquet:"row_id"`
	RowJSON          string `parquet:"row_json"`
	ExportedAtUnixMs int64  `parquet:"exported_at_unix_ms"`
}

// EncodeRowsToParquet writes one record per row. An empty input produces a
// valid file with no records.
func EncodeRowsToParquet(tableRows []rows.Row, idColumn string, exportedAt time.Time) (ParquetEncodeResult, error) {
	records := make([]parquetRow, 0, len(tableRows))
	for i, row := range tableRows {
		rawID, ok := row.Get(idColumn)
		if !ok {
			return ParquetEncodeResult{}, fmt.Errorf("row %d has no %q column", i, idColumn)
		}
		id, err := rowID(rawID)
		if err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("row %d: %w", i, err)
		}
		payload, err := json.Marshal(row)
		if err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("encode row %d: %w", id, err)
		}
		records = append(records, parquetRow{
			RowID:            id,
			RowJSON:          string(payload),
			ExportedAtUnixMs: exportedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRow](buf)
	if _, err := writer.Write(records); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(records)),
	}, nil
}

func rowID(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid id %q: %w", v, err)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("unsupported id type %T", value)
	}
}
