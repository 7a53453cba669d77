package query

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want StatementKind
	}{
		{name: "select", sql: "SELECT 1", want: StatementRead},
		{name: "lower case select with terminator", sql: "select id from orders;", want: StatementRead},
		{name: "parenthesised select", sql: "(SELECT 1) UNION (SELECT 2)", want: StatementRead},
		{name: "cte", sql: "WITH t AS (SELECT 1 AS x) SELECT x FROM t", want: StatementRead},
		{name: "cte with row lock", sql: "WITH t AS (SELECT id FROM orders FOR UPDATE) SELECT * FROM t", want: StatementRead},
		{name: "values", sql: "VALUES (1), (2)", want: StatementRead},
		{name: "literal mentioning drop", sql: "SELECT 'DROP TABLE orders; --' AS note", want: StatementRead},
		{name: "insert", sql: "INSERT INTO orders (id) VALUES (1)", want: StatementMutation},
		{name: "update", sql: "UPDATE orders SET total = 0", want: StatementMutation},
		{name: "delete", sql: "DELETE FROM orders", want: StatementMutation},
		{name: "data modifying cte", sql: "WITH d AS (DELETE FROM orders RETURNING *) SELECT count(*) FROM d", want: StatementMutation},
		{name: "cte calling replace", sql: "WITH n AS (SELECT replace(name, 'a', 'b') AS n FROM customer) SELECT n FROM n", want: StatementRead},
		{name: "cte with merge alias", sql: "WITH t AS (SELECT 1 AS merge) SELECT merge FROM t", want: StatementRead},
		{name: "recursive cte with column list", sql: "WITH RECURSIVE r(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM r WHERE n < 5) SELECT n FROM r", want: StatementRead},
		{name: "materialized cte", sql: "WITH t AS MATERIALIZED (SELECT id FROM orders) SELECT * FROM t", want: StatementRead},
		{name: "second cte deletes", sql: "WITH a AS (SELECT 1 AS x), b AS (DELETE FROM orders RETURNING id) SELECT * FROM a, b", want: StatementMutation},
		{name: "cte feeding insert", sql: "WITH t AS (SELECT id FROM orders) INSERT INTO archive SELECT id FROM t", want: StatementMutation},
		{name: "cte feeding replace", sql: "WITH t AS (SELECT 1 AS id) REPLACE INTO archive SELECT id FROM t", want: StatementMutation},
		{name: "leading comment", sql: "-- count them\nSELECT count(*) FROM customers", want: StatementRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.sql)
			if err != nil {
				t.Fatalf("Classify(%q) error = %v", tt.sql, err)
			}
			if got != tt.want {
				t.Fatalf("Classify(%q) = %q, want %q", tt.sql, got, tt.want)
			}
		})
	}
}

func TestClassifyRejects(t *testing.T) {
	for _, sqlText := range []string{
		"",
		"   ",
		"-- nothing",
		"SELECT 1; SELECT 2",
		"SELECT 1; DROP TABLE orders",
		"DROP TABLE orders",
		"CREATE TABLE x (id int)",
		"ALTER TABLE orders ADD COLUMN note text",
		"TRUNCATE orders",
		"GRANT SELECT ON orders TO public",
		"REVOKE ALL ON orders FROM public",
		"SELECT * INTO backup FROM orders",
		"PRAGMA writable_schema = 1",
		"ATTACH DATABASE 'x.db' AS x",
	} {
		_, err := Classify(sqlText)
		var unsafe *UnsafeQueryError
		if !errors.As(err, &unsafe) {
			t.Fatalf("Classify(%q) error = %v, want UnsafeQueryError", sqlText, err)
		}
	}
}
