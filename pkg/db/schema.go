package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    exchange_order_id TEXT NOT NULL DEFAULT '',
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    type TEXT NOT NULL,
    status TEXT NOT NULL,
    price REAL NOT NULL DEFAULT 0,
    open_price REAL NOT NULL DEFAULT 0,
    close_price REAL NOT NULL DEFAULT 0,
    high_price REAL NOT NULL DEFAULT 0,
    quantity REAL NOT NULL DEFAULT 0,
    quote_qty REAL NOT NULL DEFAULT 0,
    stop_price REAL NOT NULL DEFAULT 0,
    fee REAL NOT NULL DEFAULT 0,
    profit REAL NOT NULL DEFAULT 0,
    close_reason TEXT NOT NULL DEFAULT '',
    is_closed INTEGER NOT NULL DEFAULT 0,
    opened_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    closed_at DATETIME,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
CREATE INDEX IF NOT EXISTS idx_orders_open ON orders(is_closed, status);

CREATE TABLE IF NOT EXISTS candles (
    symbol TEXT NOT NULL,
    interval TEXT NOT NULL,
    open_time INTEGER NOT NULL,
    close_time INTEGER NOT NULL,
    open REAL NOT NULL,
    high REAL NOT NULL,
    low REAL NOT NULL,
    close REAL NOT NULL,
    volume REAL NOT NULL,
    PRIMARY KEY (symbol, interval, open_time)
);
`

// Migrate creates tables if they do not exist.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// ApplyMigrations runs Migrate against a wrapped Database.
func ApplyMigrations(d *Database) error {
	return Migrate(d.DB)
}
