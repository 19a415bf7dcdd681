// Package dbtest opens SQLite databases carrying the storefront schema for tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

var schema = []string{
	`CREATE TABLE products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  image TEXT NOT NULL DEFAULT '',
  price NUMERIC NOT NULL,
  count_in_stock INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  shipping_address TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  items_price NUMERIC NOT NULL,
  tax_price NUMERIC NOT NULL,
  shipping_price NUMERIC NOT NULL,
  total_price NUMERIC NOT NULL,
  is_paid INTEGER NOT NULL DEFAULT 0,
  paid_at DATETIME,
  payment_result TEXT,
  is_delivered INTEGER NOT NULL DEFAULT 0,
  delivered_at DATETIME,
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  image TEXT NOT NULL DEFAULT '',
  unit_price NUMERIC NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity >= 1),
  position INTEGER NOT NULL DEFAULT 0
);`,
	`CREATE TABLE payment_attempts (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  method TEXT NOT NULL,
  processor TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  status TEXT NOT NULL,
  reference TEXT,
  error_message TEXT,
  detail TEXT,
  created_at DATETIME
);`,
	`CREATE UNIQUE INDEX ux_payment_attempts_succeeded_reference
  ON payment_attempts (reference)
  WHERE status = 'succeeded' AND reference IS NOT NULL;`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE cart_snapshots (
  session_id TEXT PRIMARY KEY,
  payload TEXT NOT NULL,
  expires_at DATETIME,
  updated_at DATETIME
);`,
}

// Open returns a private in-memory database with every storefront table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, ddl := range schema {
		if err := db.Exec(ddl).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SeedProduct inserts a catalog row.
func SeedProduct(t testing.TB, db *gorm.DB, name, price string, stock int) models.Product {
	t.Helper()

	row := models.Product{
		ID:           uuid.New(),
		Name:         name,
		Slug:         name + "-" + uuid.NewString()[:8],
		Price:        decimal.RequireFromString(price),
		CountInStock: stock,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return row
}
