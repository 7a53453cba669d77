package present

import (
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/query"
)

type ChartKind string

const (
	ChartBar  ChartKind = "bar"
	ChartLine ChartKind = "line"
	ChartArea ChartKind = "area"
	ChartPie  ChartKind = "pie"
	ChartAuto ChartKind = "auto"
)

func ParseChartKind(raw string) (ChartKind, error) {
	switch kind := ChartKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case "":
		return ChartAuto, nil
	case ChartBar, ChartLine, ChartArea, ChartPie, ChartAuto:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown chart kind %q", raw)
	}
}

// NoChartError explains why a result cannot be charted. It is not a failure of
// the request; the table is still shown.
type NoChartError struct {
	Reason string
}

func (e *NoChartError) Error() string {
	return "chart unavailable: " + e.Reason
}

type Series struct {
	Name string `json:"name"`
	// Values line up with ChartData.Labels; nil marks a NULL or non-numeric cell.
	Values []*float64 `json:"values"`
}

type ChartData struct {
	Kind    ChartKind  `json:"kind"`
	XColumn string     `json:"x_column"`
	XKind   ColumnKind `json:"x_kind"`
	Labels  []string   `json:"labels"`
	Series  []Series   `json:"series"`
}

// ToChartSeries picks one categorical or temporal column for the x axis and
// plots every numeric column against it. Line, area and auto charts prefer a
// temporal axis; bar and pie prefer a categorical one. Pie charts plot only the
// first numeric column.
func ToChartSeries(result query.Result, kind ChartKind) (ChartData, error) {
	if kind == "" {
		kind = ChartAuto
	}
	if len(result.Rows) == 0 {
		return ChartData{}, &NoChartError{Reason: "result has no rows"}
	}

	kinds := make([]ColumnKind, len(result.Columns))
	var numeric, temporal, categorical []int
	for i := range result.Columns {
		kinds[i] = classifyColumn(result, i)
		switch kinds[i] {
		case ColumnNumeric:
			numeric = append(numeric, i)
		case ColumnTemporal:
			temporal = append(temporal, i)
		default:
			categorical = append(categorical, i)
		}
	}
	if len(numeric) == 0 {
		return ChartData{}, &NoChartError{Reason: "result has no numeric column"}
	}

	var preferred []int
	switch kind {
	case ChartLine, ChartArea, ChartAuto:
		preferred = append(append(preferred, temporal...), categorical...)
	default:
		preferred = append(append(preferred, categorical...), temporal...)
	}
	if len(preferred) == 0 {
		return ChartData{}, &NoChartError{Reason: "result has no categorical or temporal column"}
	}
	x := preferred[0]

	if kind == ChartAuto {
		if kinds[x] == ColumnTemporal {
			kind = ChartLine
		} else {
			kind = ChartBar
		}
	}
	if kind == ChartPie {
		numeric = numeric[:1]
	}

	labels := make([]string, len(result.Rows))
	for r, row := range result.Rows {
		labels[r] = FormatCell(cell(row, x))
	}
	series := make([]Series, 0, len(numeric))
	for _, column := range numeric {
		values := make([]*float64, len(result.Rows))
		for r, row := range result.Rows {
			if f, ok := toFloat(cell(row, column)); ok {
				values[r] = &f
			}
		}
		series = append(series, Series{Name: result.Columns[column], Values: values})
	}

	return ChartData{
		Kind:    kind,
		XColumn: result.Columns[x],
		XKind:   kinds[x],
		Labels:  labels,
		Series:  series,
	}, nil
}

func cell(row []any, index int) any {
	if index < len(row) {
		return row[index]
	}
	return nil
}
