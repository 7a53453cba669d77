package seed

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/schema"
)

func TestGeneratorDeterministicForSeed(t *testing.T) {
	fixedNow := time.Date(2026, 2, 19, 7, 30, 0, 0, time.UTC)

	g1 := NewGenerator(42)
	g2 := NewGenerator(42)
	g1.now = func() time.Time { return fixedNow }
	g2.now = func() time.Time { return fixedNow }

	c1, c2 := g1.Customers(10), g2.Customers(10)
	if !reflect.DeepEqual(c1, c2) {
		t.Fatalf("customers differ: %#v vs %#v", c1, c2)
	}
	p1, p2 := g1.Products(), g2.Products()
	if !reflect.DeepEqual(p1, p2) {
		t.Fatalf("products differ")
	}
	o1, o2 := g1.Orders(25, c1, p1), g2.Orders(25, c2, p2)
	if !reflect.DeepEqual(o1, o2) {
		t.Fatalf("orders differ")
	}
}

func TestGeneratorOrdersReferenceKnownRows(t *testing.T) {
	g := NewGenerator(7)
	customers := g.Customers(5)
	products := g.Products()
	signups := map[int64]time.Time{}
	for _, c := range customers {
		signups[c.ID] = c.SignedUpAt
	}

	for _, order := range g.Orders(100, customers, products) {
		signedUp, ok := signups[order.CustomerID]
		if !ok {
			t.Fatalf("order %d references unknown customer %d", order.ID, order.CustomerID)
		}
		if order.ProductID < 1 || order.ProductID > int64(len(products)) {
			t.Fatalf("order %d references unknown product %d", order.ID, order.ProductID)
		}
		if order.OrderedAt.Before(signedUp) {
			t.Fatalf("order %d predates signup", order.ID)
		}
		if order.Quantity < 1 || order.Total <= 0 {
			t.Fatalf("order %d = %+v", order.ID, order)
		}
	}
	if got := g.Orders(3, nil, products); got != nil {
		t.Fatalf("Orders() without customers = %v", got)
	}
}

func TestSeedSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.DBConfig{
		Dialect: database.DialectSQLite,
		DSN:     filepath.Join(t.TempDir(), "demo.db"),
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	cfg := Config{Customers: 12, Orders: 40, Seed: 1}
	summary, err := Seed(ctx, db, database.DialectSQLite, cfg, nil)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if summary.Customers != 12 || summary.Orders != 40 || summary.Products != len(catalog) {
		t.Fatalf("Seed() = %+v", summary)
	}

	var orders int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders o JOIN customers c ON c.id = o.customer_id`).Scan(&orders); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orders != 40 {
		t.Fatalf("joined orders = %d", orders)
	}

	description, err := schema.NewInspector(db, database.DialectSQLite).Describe(ctx)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	table, ok := description.Table("orders")
	if !ok {
		t.Fatal("orders table missing from schema")
	}
	if len(table.Columns) != 7 || table.Columns[6].Name != "ordered_at" || table.Columns[6].Type != "timestamp" {
		t.Fatalf("orders columns = %+v", table.Columns)
	}

	cfg.DropExisting = true
	cfg.Orders = 5
	if _, err := Seed(ctx, db, database.DialectSQLite, cfg, nil); err != nil {
		t.Fatalf("Seed() with DropExisting error = %v", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orders != 5 {
		t.Fatalf("orders after reseed = %d", orders)
	}
}

func TestInsertSQLPlaceholders(t *testing.T) {
	if got := insertSQL(database.DialectPostgres, "t", "a", "b"); got != "INSERT INTO t (a, b) VALUES ($1, $2)" {
		t.Fatalf("insertSQL(postgres) = %q", got)
	}
	if got := insertSQL(database.DialectSQLite, "t", "a", "b"); got != "INSERT INTO t (a, b) VALUES (?, ?)" {
		t.Fatalf("insertSQL(sqlite) = %q", got)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(map[string]string{
		"ASKDB_DEMO_CUSTOMERS":     "5",
		"ASKDB_DEMO_ORDERS":        "0",
		"ASKDB_DEMO_SEED":          "99",
		"ASKDB_DEMO_DROP_EXISTING": "true",
	}))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.Customers != 5 || cfg.Orders != 0 || cfg.Seed != 99 || !cfg.DropExisting {
		t.Fatalf("cfg = %+v", cfg)
	}

	for _, env := range []map[string]string{
		{"ASKDB_DEMO_CUSTOMERS": "0"},
		{"ASKDB_DEMO_ORDERS": "-1"},
		{"ASKDB_DEMO_SEED": "abc"},
		{"ASKDB_DEMO_DROP_EXISTING": "maybe"},
	} {
		if _, err := LoadConfigFromEnv(mapLookup(env)); err == nil {
			t.Fatalf("LoadConfigFromEnv(%v) error = nil", env)
		}
	}
	if _, err := LoadConfigFromEnv(nil); err == nil {
		t.Fatal("expected error for nil lookup")
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
