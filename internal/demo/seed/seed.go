// Package seed creates a small shop database (customers, products, orders) to
// ask questions against.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/observability"
)

type Summary struct {
	Customers int
	Products  int
	Orders    int
}

type columnTypes struct {
	id, text, money, timestamp string
}

func typesFor(dialect database.Dialect) columnTypes {
	switch dialect {
	case database.DialectPostgres:
		return columnTypes{id: "BIGINT", text: "TEXT", money: "DOUBLE PRECISION", timestamp: "TIMESTAMPTZ"}
	case database.DialectDuckDB:
		return columnTypes{id: "BIGINT", text: "VARCHAR", money: "DOUBLE", timestamp: "TIMESTAMP"}
	default:
		return columnTypes{id: "INTEGER", text: "TEXT", money: "REAL", timestamp: "TIMESTAMP"}
	}
}

func schemaStatements(dialect database.Dialect) []string {
	t := typesFor(dialect)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS customers (
	id %s PRIMARY KEY,
	name %s NOT NULL,
	country %s NOT NULL,
	signed_up_at %s NOT NULL
)`, t.id, t.text, t.text, t.timestamp),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS products (
	id %s PRIMARY KEY,
	name %s NOT NULL,
	category %s NOT NULL,
	price %s NOT NULL
)`, t.id, t.text, t.text, t.money),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS orders (
	id %s PRIMARY KEY,
	customer_id %s NOT NULL REFERENCES customers(id),
	product_id %s NOT NULL REFERENCES products(id),
	quantity %s NOT NULL,
	total %s NOT NULL,
	status %s NOT NULL,
	ordered_at %s NOT NULL
)`, t.id, t.id, t.id, t.id, t.money, t.text, t.timestamp),
	}
}

func insertSQL(dialect database.Dialect, table string, columns ...string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		if dialect == database.DialectPostgres {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		} else {
			placeholders[i] = "?"
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

// Seed creates the demo tables and fills them in one transaction. Existing
// rows are kept unless cfg.DropExisting is set.
func Seed(ctx context.Context, db *sql.DB, dialect database.Dialect, cfg Config, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	generator := NewGenerator(cfg.Seed)
	customers := generator.Customers(cfg.Customers)
	products := generator.Products()
	orders := generator.Orders(cfg.Orders, customers, products)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, database.AsConnectionError(err)
	}
	defer func() { _ = tx.Rollback() }()

	if cfg.DropExisting {
		for _, table := range []string{"orders", "products", "customers"} {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return Summary{}, fmt.Errorf("drop %s: %w", table, err)
			}
		}
	}
	for _, stmt := range schemaStatements(dialect) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return Summary{}, fmt.Errorf("create demo schema: %w", err)
		}
	}

	for _, c := range customers {
		if _, err := tx.ExecContext(ctx, insertSQL(dialect, "customers", "id", "name", "country", "signed_up_at"),
			c.ID, c.Name, c.Country, c.SignedUpAt); err != nil {
			return Summary{}, fmt.Errorf("insert customer %d: %w", c.ID, err)
		}
	}
	for _, p := range products {
		if _, err := tx.ExecContext(ctx, insertSQL(dialect, "products", "id", "name", "category", "price"),
			p.ID, p.Name, p.Category, p.Price); err != nil {
			return Summary{}, fmt.Errorf("insert product %d: %w", p.ID, err)
		}
	}
	for _, o := range orders {
		if _, err := tx.ExecContext(ctx, insertSQL(dialect, "orders", "id", "customer_id", "product_id", "quantity", "total", "status", "ordered_at"),
			o.ID, o.CustomerID, o.ProductID, o.Quantity, o.Total, o.Status, o.OrderedAt); err != nil {
			return Summary{}, fmt.Errorf("insert order %d: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit demo data: %w", err)
	}
	summary := Summary{Customers: len(customers), Products: len(products), Orders: len(orders)}
	logger.InfoContext(ctx, "seeded demo database",
		slog.String("dialect", string(dialect)),
		slog.Int("customers", summary.Customers),
		slog.Int("products", summary.Products),
		slog.Int("orders", summary.Orders),
	)
	return summary, nil
}
