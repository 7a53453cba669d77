// Package present maps query results into tables, chart-ready series and
// export formats. Nothing here talks to the database.
package present

import "github.com/askdb/askdb/internal/query"

type TabularView struct {
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	RowCount  int        `json:"row_count"`
	Truncated bool       `json:"truncated"`
}

func ToTable(result query.Result) TabularView {
	headers := make([]string, len(result.Columns))
	copy(headers, result.Columns)
	rows := make([][]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		cells := make([]string, len(headers))
		for i := range cells {
			if i < len(row) {
				cells[i] = FormatCell(row[i])
			} else {
				cells[i] = FormatCell(nil)
			}
		}
		rows = append(rows, cells)
	}
	return TabularView{
		Headers:   headers,
		Rows:      rows,
		RowCount:  len(rows),
		Truncated: result.Truncated,
	}
}
