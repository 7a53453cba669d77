package askdbctl

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

type answer struct {
	SQL   string `json:"sql"`
	Kind  string `json:"kind"`
	Table struct {
		Headers   []string   `json:"headers"`
		Rows      [][]string `json:"rows"`
		RowCount  int        `json:"row_count"`
		Truncated bool       `json:"truncated"`
	} `json:"table"`
	Chart *struct {
		Kind    string `json:"kind"`
		XColumn string `json:"x_column"`
		Series  []struct {
			Name string `json:"name"`
		} `json:"series"`
	} `json:"chart"`
	ChartUnavailable string         `json:"chart_unavailable"`
	Stats            map[string]any `json:"stats"`
}

type schemaView struct {
	Dialect string `json:"dialect"`
	Tables  []struct {
		Name    string `json:"name"`
		Columns []struct {
			Name     string `json:"name"`
			Type     string `json:"type"`
			Nullable bool   `json:"nullable"`
		} `json:"columns"`
	} `json:"tables"`
}

func renderAnswer(w io.Writer, raw []byte, output string) error {
	if output == "json" {
		writeJSON(w, raw)
		return nil
	}
	var a answer
	if err := json.Unmarshal(raw, &a); err != nil {
		return &requestError{err: fmt.Errorf("decode response: %w", err)}
	}
	if output == "csv" {
		return writeCSV(w, a.Table.Headers, a.Table.Rows)
	}

	_, _ = fmt.Fprintf(w, "SQL: %s\n\n", a.SQL)
	if a.Kind == "mutation" {
		_, _ = fmt.Fprintf(w, "%v rows affected\n", a.Stats["rows_affected"])
		return nil
	}
	if len(a.Table.Rows) == 0 {
		_, _ = fmt.Fprintf(w, "(0 rows) columns: %s\n", strings.Join(a.Table.Headers, ", "))
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(toRow(a.Table.Headers))
		for _, row := range a.Table.Rows {
			t.AppendRow(toRow(row))
		}
		t.Render()
		suffix := ""
		if a.Table.Truncated {
			suffix = ", truncated"
		}
		_, _ = fmt.Fprintf(w, "(%d rows%s)\n", a.Table.RowCount, suffix)
	}

	switch {
	case a.Chart != nil:
		names := make([]string, 0, len(a.Chart.Series))
		for _, series := range a.Chart.Series {
			names = append(names, series.Name)
		}
		_, _ = fmt.Fprintf(w, "chart: %s of %s by %s\n", a.Chart.Kind, strings.Join(names, ", "), a.Chart.XColumn)
	case a.ChartUnavailable != "":
		_, _ = fmt.Fprintf(w, "chart unavailable: %s\n", a.ChartUnavailable)
	}
	return nil
}

func renderSchema(w io.Writer, raw []byte, output string) error {
	if output == "json" {
		writeJSON(w, raw)
		return nil
	}
	var s schemaView
	if err := json.Unmarshal(raw, &s); err != nil {
		return &requestError{err: fmt.Errorf("decode response: %w", err)}
	}

	headers := []string{"table", "column", "type", "nullable"}
	rows := make([][]string, 0)
	for _, tbl := range s.Tables {
		for _, column := range tbl.Columns {
			rows = append(rows, []string{tbl.Name, column.Name, column.Type, strconv.FormatBool(column.Nullable)})
		}
	}
	if output == "csv" {
		return writeCSV(w, headers, rows)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(s.Dialect)
	t.AppendHeader(toRow(headers))
	for _, row := range rows {
		t.AppendRow(toRow(row))
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d tables, %d columns)\n", len(s.Tables), len(rows))
	return nil
}

func writeCSV(w io.Writer, headers []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

func toRow(values []string) table.Row {
	row := make(table.Row, len(values))
	for i, value := range values {
		row[i] = value
	}
	return row
}
