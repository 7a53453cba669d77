package present

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/query"
)

type ColumnKind string

const (
	ColumnNumeric     ColumnKind = "numeric"
	ColumnTemporal    ColumnKind = "temporal"
	ColumnCategorical ColumnKind = "categorical"
)

var numericTypeNames = []string{
	"int", "integer", "bigint", "smallint", "tinyint", "hugeint", "ubigint", "uinteger",
	"numeric", "decimal", "real", "double", "float", "double precision", "money",
}

var temporalTypeNames = []string{"date", "time", "timestamp", "timestamptz", "datetime"}

// classifyColumn prefers the declared database type and falls back to the
// scanned values when the driver reports none.
func classifyColumn(result query.Result, index int) ColumnKind {
	if index < len(result.ColumnTypes) {
		declared := strings.ToLower(strings.TrimSpace(result.ColumnTypes[index]))
		if declared != "" {
			base := declared
			if paren := strings.IndexByte(base, '('); paren >= 0 {
				base = strings.TrimSpace(base[:paren])
			}
			for _, name := range numericTypeNames {
				if base == name || strings.HasPrefix(base, name+" ") {
					return ColumnNumeric
				}
			}
			for _, name := range temporalTypeNames {
				if strings.HasPrefix(base, name) {
					return ColumnTemporal
				}
			}
			if isTextType(base) {
				return ColumnCategorical
			}
		}
	}
	return classifyValues(result.Rows, index)
}

func isTextType(base string) bool {
	switch {
	case strings.Contains(base, "char"), strings.Contains(base, "text"), base == "uuid", base == "bool", base == "boolean":
		return true
	default:
		return false
	}
}

func classifyValues(rows [][]any, index int) ColumnKind {
	seen := false
	allNumeric, allTemporal := true, true
	for _, row := range rows {
		if index >= len(row) || row[index] == nil {
			continue
		}
		seen = true
		switch row[index].(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, *big.Int, *big.Float:
			allTemporal = false
		case time.Time:
			allNumeric = false
		default:
			return ColumnCategorical
		}
	}
	switch {
	case !seen:
		return ColumnCategorical
	case allNumeric:
		return ColumnNumeric
	case allTemporal:
		return ColumnTemporal
	default:
		return ColumnCategorical
	}
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case *big.Int:
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f, true
	case *big.Float:
		f, _ := typed.Float64()
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(typed)), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// FormatCell renders one value for display. NULL is rendered as the empty
// string only by exporters; tables show it explicitly.
func FormatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return fmt.Sprint(typed)
	}
}

func exportCell(value any) string {
	if value == nil {
		return ""
	}
	return FormatCell(value)
}
