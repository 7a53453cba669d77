// Package schema describes the tables and columns of the connected database and
// keeps the latest description cached for the process.
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/database"
)

var ErrNoTables = errors.New("no tables found")

// Error reports an introspection failure that is not a connectivity problem.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("schema introspection failed: %v", e.Err)
	}
	return fmt.Sprintf("schema introspection failed: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type TableInfo struct {
	Schema  string       `json:"schema,omitempty"`
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// Description is immutable once built. Refreshing replaces it wholesale.
type Description struct {
	Dialect database.Dialect `json:"dialect"`
	Tables  []TableInfo      `json:"tables"`
}

// Clone copies the table and column slices so a caller can edit the result
// without touching the cached value.
func (d Description) Clone() Description {
	clone := Description{Dialect: d.Dialect}
	if d.Tables == nil {
		return clone
	}
	clone.Tables = make([]TableInfo, len(d.Tables))
	for i, table := range d.Tables {
		table.Columns = append(make([]ColumnInfo, 0, len(table.Columns)), table.Columns...)
		clone.Tables[i] = table
	}
	return clone
}

// Describer produces a fresh Description.
type Describer interface {
	Describe(ctx context.Context) (Description, error)
}

// QualifiedName omits the schema for tables in the dialect's default schema.
func (d Description) QualifiedName(table TableInfo) string {
	if table.Schema == "" || table.Schema == d.Dialect.DefaultSchema() {
		return table.Name
	}
	return table.Schema + "." + table.Name
}

// Table finds a table by bare or qualified name, case-insensitively.
func (d Description) Table(name string) (TableInfo, bool) {
	name = strings.TrimSpace(name)
	for _, table := range d.Tables {
		if strings.EqualFold(table.Name, name) || strings.EqualFold(d.QualifiedName(table), name) {
			return table, true
		}
	}
	return TableInfo{}, false
}

func (d Description) ColumnCount() int {
	total := 0
	for _, table := range d.Tables {
		total += len(table.Columns)
	}
	return total
}
