package present

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/askdb/askdb/internal/query"
)

// WriteCSV writes a header row followed by one record per result row. NULL
// becomes an empty field.
func WriteCSV(w io.Writer, result query.Result) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(result.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i := range record {
			record[i] = exportCell(cell(row, i))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

type parquetColumnType int

const (
	parquetString parquetColumnType = iota
	parquetInt64
	parquetDouble
	parquetBool
)

type parquetField struct {
	name   string
	source int
	typ    parquetColumnType
}

// WriteParquet writes the result as a single row group. Every column is
// optional so NULLs survive the round trip. Duplicate column names get a
// numeric suffix.
func WriteParquet(w io.Writer, result query.Result) error {
	fields := parquetFields(result)
	if len(fields) == 0 {
		return fmt.Errorf("result has no columns")
	}
	group := parquet.Group{}
	for _, field := range fields {
		group[field.name] = parquet.Optional(parquetNode(field.typ))
	}
	schema := parquet.NewSchema("result", group)

	// Group fields are laid out in name order; leaf column indexes follow it.
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })

	writer := parquet.NewWriter(w, schema)
	rows := make([]parquet.Row, 0, len(result.Rows))
	for _, source := range result.Rows {
		row := make(parquet.Row, 0, len(fields))
		for columnIndex, field := range fields {
			row = append(row, parquetValue(cell(source, field.source), field.typ, columnIndex))
		}
		rows = append(rows, row)
	}
	if len(rows) > 0 {
		if _, err := writer.WriteRows(rows); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func parquetFields(result query.Result) []parquetField {
	taken := map[string]bool{}
	fields := make([]parquetField, 0, len(result.Columns))
	for i, column := range result.Columns {
		base := column
		if base == "" {
			base = "column_" + strconv.Itoa(i+1)
		}
		name := base
		for n := 2; taken[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		taken[name] = true
		fields = append(fields, parquetField{name: name, source: i, typ: parquetType(result.Rows, i)})
	}
	return fields
}

func parquetType(rows [][]any, index int) parquetColumnType {
	typ := parquetString
	seen := false
	for _, row := range rows {
		value := cell(row, index)
		if value == nil {
			continue
		}
		var current parquetColumnType
		switch value.(type) {
		case int, int8, int16, int32, int64, uint8, uint16, uint32:
			current = parquetInt64
		case float32, float64, uint, uint64:
			current = parquetDouble
		case bool:
			current = parquetBool
		default:
			return parquetString
		}
		switch {
		case !seen:
			typ = current
			seen = true
		case typ == current:
		case (typ == parquetInt64 && current == parquetDouble) || (typ == parquetDouble && current == parquetInt64):
			typ = parquetDouble
		default:
			return parquetString
		}
	}
	return typ
}

func parquetNode(typ parquetColumnType) parquet.Node {
	switch typ {
	case parquetInt64:
		return parquet.Int(64)
	case parquetDouble:
		return parquet.Leaf(parquet.DoubleType)
	case parquetBool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func parquetValue(value any, typ parquetColumnType, columnIndex int) parquet.Value {
	if value == nil {
		return parquet.NullValue().Level(0, 0, columnIndex)
	}
	var converted any
	switch typ {
	case parquetInt64:
		converted = toInt64(value)
	case parquetDouble:
		f, _ := toFloat(value)
		converted = f
	case parquetBool:
		converted, _ = value.(bool)
	default:
		if t, ok := value.(time.Time); ok {
			converted = t.UTC().Format(time.RFC3339Nano)
		} else {
			converted = exportCell(value)
		}
	}
	return parquet.ValueOf(converted).Level(0, 1, columnIndex)
}

func toInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case int64:
		return typed
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	default:
		return 0
	}
}
