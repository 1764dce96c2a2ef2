// Package rows holds the ordered row representation shared by the statement
// builders, the executor and the HTTP layer.
package rows

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

var ErrNotObject = errors.New("json value is not an object")

// Field is one column/value pair of a Row.
type Field struct {
	Column string
	Value  any
}

// Row is an ordered mapping from column name to scalar value. The order is
// the order of appearance in the source (JSON body or SELECT projection).
type Row []Field

func (r Row) Columns() []string {
	columns := make([]string, 0, len(r))
	for _, field := range r {
		columns = append(columns, field.Column)
	}
	return columns
}

func (r Row) Values() []any {
	values := make([]any, 0, len(r))
	for _, field := range r {
		values = append(values, field.Value)
	}
	return values
}

func (r Row) Get(column string) (any, bool) {
	for _, field := range r {
		if field.Column == column {
			return field.Value, true
		}
	}
	return nil, false
}

// Without returns a copy of r with column removed.
func (r Row) Without(column string) Row {
	out := make(Row, 0, len(r))
	for _, field := range r {
		if field.Column == column {
			continue
		}
		out = append(out, field)
	}
	return out
}

func (r Row) MarshalJSON() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte('{')
	for i, field := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Column)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal column %q: %w", field.Column, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object keeping key order. Nested objects
// and arrays are kept as their raw JSON text.
func (r *Row) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	entries, err := decodeObject(decoder)
	if err != nil {
		return err
	}
	row := make(Row, 0, len(entries))
	for _, entry := range entries {
		value, err := scalarFromJSON(entry.raw)
		if err != nil {
			return fmt.Errorf("decode column %q: %w", entry.key, err)
		}
		row = append(row, Field{Column: entry.key, Value: value})
	}
	*r = row
	return nil
}

// Entry is one key of a JSON object with its undecoded value.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// DecodeEntries decodes a JSON object into its entries in document order.
func DecodeEntries(data []byte) ([]Entry, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	entries, err := decodeObject(decoder)
	if err != nil {
		return nil, err
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after top-level object")
	}
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, Entry{Key: entry.key, Value: entry.raw})
	}
	return out, nil
}

type rawEntry struct {
	key string
	raw json.RawMessage
}

func decodeObject(decoder *json.Decoder) ([]rawEntry, error) {
	token, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	entries := make([]rawEntry, 0)
	positions := make(map[string]int)
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", keyToken)
		}
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode value of %q: %w", key, err)
		}
		// A repeated key keeps its first position and takes the last value.
		if at, seen := positions[key]; seen {
			entries[at].raw = raw
			continue
		}
		positions[key] = len(entries)
		entries = append(entries, rawEntry{key: key, raw: raw})
	}
	if _, err := decoder.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scalarFromJSON(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty value")
	}
	switch trimmed[0] {
	case '{', '[':
		return string(trimmed), nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if number, ok := value.(json.Number); ok {
		return numberValue(number)
	}
	return value, nil
}

// numberValue binds integers as int64. Integer literals outside the int64
// range are bound as their literal text so the database does the conversion.
func numberValue(number json.Number) (any, error) {
	if integer, err := number.Int64(); err == nil {
		return integer, nil
	}
	if !strings.ContainsAny(number.String(), ".eE") {
		return number.String(), nil
	}
	float, err := number.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", number, err)
	}
	if math.IsInf(float, 0) {
		return nil, fmt.Errorf("number %q out of range", number)
	}
	return float, nil
}

// NormalizeValue converts driver values into JSON-friendly scalars.
func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case time.Time:
		return typed.UTC()
	default:
		return typed
	}
}
