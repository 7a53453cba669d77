// Package query defines statement execution against the connected database and
// the guard every statement passes before it reaches a connection.
package query

import (
	"context"
	"time"
)

type Request struct {
	SQL string
	// RowLimit caps the rows scanned into the result. Zero means the engine
	// default.
	RowLimit int
	// AllowMutations must be set, after policy and role checks, for
	// INSERT/UPDATE/DELETE/MERGE to run.
	AllowMutations bool
}

type Result struct {
	Kind         StatementKind `json:"kind"`
	Columns      []string      `json:"columns"`
	ColumnTypes  []string      `json:"column_types"`
	Rows         [][]any       `json:"rows"`
	RowsAffected int64         `json:"rows_affected,omitempty"`
	Truncated    bool          `json:"truncated"`
	Duration     time.Duration `json:"duration"`
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
