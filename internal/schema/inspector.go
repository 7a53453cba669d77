package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/database"
)

const informationSchemaColumnsSQL = `
SELECT c.table_schema, c.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE t.table_type IN ('BASE TABLE', 'VIEW')
  AND c.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY c.table_schema, c.table_name, c.ordinal_position`

const sqliteColumnsSQL = `
SELECT 'main', m.name, p.name, p.type, CASE WHEN p."notnull" = 0 THEN 'YES' ELSE 'NO' END
FROM sqlite_master m
JOIN pragma_table_info(m.name) p
WHERE m.type IN ('table', 'view')
  AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`

// Inspector reads the catalog of a live database. It never writes.
type Inspector struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewInspector(db *sql.DB, dialect database.Dialect) *Inspector {
	return &Inspector{db: db, dialect: dialect}
}

func (i *Inspector) Describe(ctx context.Context) (Description, error) {
	if i == nil || i.db == nil {
		return Description{}, &database.ConnectionError{Err: fmt.Errorf("database is not configured")}
	}
	if err := i.db.PingContext(ctx); err != nil {
		return Description{}, database.AsConnectionError(err)
	}

	rows, err := i.db.QueryContext(ctx, i.catalogQuery())
	if err != nil {
		if ctx.Err() != nil {
			return Description{}, ctx.Err()
		}
		return Description{}, &Error{Op: "list columns", Err: err}
	}
	defer rows.Close()

	description := Description{Dialect: i.dialect}
	var current *TableInfo
	for rows.Next() {
		var (
			tableSchema string
			tableName   string
			columnName  string
			dataType    string
			isNullable  string
		)
		if err := rows.Scan(&tableSchema, &tableName, &columnName, &dataType, &isNullable); err != nil {
			return Description{}, &Error{Op: "scan column", Err: err}
		}
		if current == nil || current.Schema != tableSchema || current.Name != tableName {
			description.Tables = append(description.Tables, TableInfo{Schema: tableSchema, Name: tableName})
			current = &description.Tables[len(description.Tables)-1]
		}
		current.Columns = append(current.Columns, ColumnInfo{
			Name:     columnName,
			Type:     normalizeType(dataType),
			Nullable: strings.EqualFold(strings.TrimSpace(isNullable), "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return Description{}, ctx.Err()
		}
		return Description{}, &Error{Op: "iterate columns", Err: err}
	}
	if len(description.Tables) == 0 {
		return Description{}, &Error{Err: ErrNoTables}
	}
	return description, nil
}

func (i *Inspector) catalogQuery() string {
	if i.dialect == database.DialectSQLite {
		return sqliteColumnsSQL
	}
	return informationSchemaColumnsSQL
}

func normalizeType(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "unknown"
	}
	return value
}
