// Package dbtest opens in-memory SQLite databases carrying the same tables the
// goose migrations create, for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-backend/pkg/db"
)

var counter atomic.Int64

var schema = []string{
	`CREATE TABLE products (
		id text PRIMARY KEY,
		sku text NOT NULL UNIQUE,
		name text NOT NULL,
		price_cents integer NOT NULL,
		currency text NOT NULL DEFAULT 'usd',
		is_active boolean NOT NULL DEFAULT 1,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE inventory (
		product_id text PRIMARY KEY,
		quantity integer NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		low_stock_threshold integer NOT NULL DEFAULT 0,
		track_inventory boolean NOT NULL DEFAULT 1,
		allow_backorder boolean NOT NULL DEFAULT 0,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE inventory_movements (
		id text PRIMARY KEY,
		product_id text NOT NULL,
		order_id text NULL,
		kind text NOT NULL,
		delta integer NOT NULL,
		quantity_after integer NULL,
		actor text NOT NULL,
		created_at datetime
	)`,
	`CREATE UNIQUE INDEX inventory_movements_order_product_kind_key
		ON inventory_movements (order_id, product_id, kind) WHERE order_id IS NOT NULL`,
	`CREATE TABLE checkout_sessions (
		id text PRIMARY KEY,
		user_id text NULL,
		guest_email text NULL,
		status text NOT NULL DEFAULT 'open',
		cart_hash text NOT NULL,
		lines text NOT NULL,
		currency text NOT NULL,
		subtotal_cents integer NOT NULL,
		tax_cents integer NOT NULL DEFAULT 0,
		shipping_cents integer NOT NULL DEFAULT 0,
		discount_cents integer NOT NULL DEFAULT 0,
		total_cents integer NOT NULL,
		shipping_address text NULL,
		billing_address text NULL,
		payment_intent_id text NULL UNIQUE,
		order_id text NULL,
		last_failure text NULL,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE orders (
		id text PRIMARY KEY,
		order_number text NOT NULL UNIQUE,
		checkout_session_id text NOT NULL UNIQUE,
		user_id text NULL,
		guest_email text NULL,
		status text NOT NULL,
		payment_status text NOT NULL,
		fulfillment_status text NOT NULL DEFAULT 'unfulfilled',
		currency text NOT NULL,
		subtotal_cents integer NOT NULL,
		tax_cents integer NOT NULL DEFAULT 0,
		shipping_cents integer NOT NULL DEFAULT 0,
		discount_cents integer NOT NULL DEFAULT 0,
		total_cents integer NOT NULL,
		shipping_address text NULL,
		billing_address text NULL,
		inventory_synced_at datetime NULL,
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE order_items (
		id text PRIMARY KEY,
		order_id text NOT NULL,
		position integer NOT NULL,
		product_id text NOT NULL,
		sku text NOT NULL,
		name text NOT NULL,
		unit_price_cents integer NOT NULL,
		quantity integer NOT NULL CHECK (quantity > 0),
		total_price_cents integer NOT NULL,
		quantity_fulfilled integer NOT NULL DEFAULT 0 CHECK (quantity_fulfilled >= 0 AND quantity_fulfilled <= quantity),
		fulfillment_status text NOT NULL DEFAULT 'unfulfilled',
		created_at datetime,
		updated_at datetime
	)`,
	`CREATE TABLE order_status_history (
		id text PRIMARY KEY,
		order_id text NOT NULL,
		field text NOT NULL,
		from_value text NOT NULL,
		to_value text NOT NULL,
		actor text NOT NULL,
		note text NULL,
		created_at datetime
	)`,
	`CREATE TABLE payment_transactions (
		id text PRIMARY KEY,
		order_id text NULL,
		checkout_session_id text NULL,
		provider text NOT NULL,
		provider_transaction_id text NOT NULL,
		type text NOT NULL,
		status text NOT NULL,
		amount_cents integer NOT NULL,
		currency text NOT NULL,
		failure_reason text NULL,
		gateway_response text NULL,
		processed_at datetime NOT NULL,
		created_at datetime,
		UNIQUE (provider, provider_transaction_id, type, status)
	)`,
	`CREATE TABLE outbox_events (
		id text PRIMARY KEY,
		event_type text NOT NULL,
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		payload text NOT NULL,
		created_at datetime,
		published_at datetime NULL,
		attempt_count integer NOT NULL DEFAULT 0,
		last_error text NULL
	)`,
	`CREATE TABLE outbox_dlq (
		id text PRIMARY KEY,
		event_id text NOT NULL UNIQUE,
		event_type text NOT NULL,
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		payload_json text NOT NULL,
		error_reason text NOT NULL,
		error_message text NULL,
		attempt_count integer NOT NULL DEFAULT 0,
		failed_at datetime,
		created_at datetime
	)`,
}

// Open returns a fresh database with the full schema. Each call gets its own
// in-memory database and a single connection so transactions serialize.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, counter.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v\n%s", err, stmt)
		}
	}
	return conn
}

// Client wraps Open in the db.Client used by services.
func Client(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.FromGorm(conn), conn
}
