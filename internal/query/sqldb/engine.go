// Package sqldb executes guarded statements over a database/sql pool.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
)

type Options struct {
	// QueryTimeout bounds each Execute call. Zero leaves only the caller's
	// deadline in place.
	QueryTimeout time.Duration
	// DefaultRowLimit applies when a request sets none. Zero means unlimited.
	DefaultRowLimit int
	Logger          *slog.Logger
}

type Engine struct {
	db      *sql.DB
	dialect database.Dialect
	opts    Options
	logger  *slog.Logger
}

func NewEngine(db *sql.DB, dialect database.Dialect, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Engine{db: db, dialect: dialect, opts: opts, logger: logger}
}

// Execute classifies the statement before touching the database, then runs it
// on a dedicated connection. Reads are always rolled back; permitted mutations
// are committed. The SQL text is passed to the driver unchanged.
func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	kind, err := query.Classify(request.SQL)
	if err != nil {
		return query.Result{}, err
	}
	if kind == query.StatementMutation && !request.AllowMutations {
		return query.Result{}, &query.UnsafeQueryError{Reason: "data-modifying statements are not allowed"}
	}
	if e.db == nil {
		return query.Result{}, &database.ConnectionError{Err: errors.New("database is not configured")}
	}

	if e.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return query.Result{}, database.AsConnectionError(fmt.Errorf("acquire connection: %w", err))
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{
		ReadOnly: kind == query.StatementRead && e.dialect.SupportsReadOnlyTx(),
	})
	if err != nil {
		return query.Result{}, database.AsConnectionError(fmt.Errorf("begin transaction: %w", err))
	}

	var result query.Result
	if kind == query.StatementRead {
		result, err = e.read(ctx, tx, request)
		_ = tx.Rollback()
	} else {
		result, err = e.mutate(ctx, tx, request)
	}
	if err != nil {
		return query.Result{}, err
	}

	result.Kind = kind
	result.Duration = time.Since(start)
	observability.ObserveQueryRows(len(result.Rows))
	e.logger.DebugContext(ctx, "statement executed",
		slog.String("kind", string(kind)),
		slog.Int("rows", len(result.Rows)),
		slog.Int64("rows_affected", result.RowsAffected),
		slog.Bool("truncated", result.Truncated),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

func (e *Engine) read(ctx context.Context, tx *sql.Tx, request query.Request) (query.Result, error) {
	rows, err := tx.QueryContext(ctx, request.SQL)
	if err != nil {
		return query.Result{}, executionError(ctx, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, executionError(ctx, err)
	}
	columnTypes := make([]string, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, columnType := range types {
			columnTypes[i] = strings.ToLower(columnType.DatabaseTypeName())
		}
	}

	limit := request.RowLimit
	if limit <= 0 {
		limit = e.opts.DefaultRowLimit
	}

	result := query.Result{Columns: columns, ColumnTypes: columnTypes, Rows: make([][]any, 0)}
	for rows.Next() {
		if limit > 0 && len(result.Rows) == limit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, executionError(ctx, err)
		}
		result.Rows = append(result.Rows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, executionError(ctx, err)
	}
	return result, nil
}

func (e *Engine) mutate(ctx context.Context, tx *sql.Tx, request query.Request) (query.Result, error) {
	res, err := tx.ExecContext(ctx, request.SQL)
	if err != nil {
		_ = tx.Rollback()
		return query.Result{}, executionError(ctx, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	if err := tx.Commit(); err != nil {
		return query.Result{}, executionError(ctx, err)
	}
	return query.Result{Columns: []string{}, ColumnTypes: []string{}, Rows: [][]any{}, RowsAffected: affected}, nil
}

func executionError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return query.NewExecutionError(err)
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
