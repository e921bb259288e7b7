// Package store holds the gateway's persistence: the SQLite order-event
// journal and the Parquet cache for historical bars.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"tradegate/internal/domain"
)

// Journal is an append-only log of order events backed by SQLite. The relay
// writes every upstream event; the journal endpoint reads them back.
type Journal struct {
	db *sql.DB
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS order_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id      TEXT NOT NULL,
	perm_id       TEXT NOT NULL DEFAULT '',
	symbol        TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	filled_qty    REAL NOT NULL DEFAULT 0,
	remaining_qty REAL NOT NULL DEFAULT 0,
	avg_price     REAL NOT NULL DEFAULT 0,
	event_time    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id);
CREATE INDEX IF NOT EXISTS idx_order_events_time ON order_events(event_time);
`

// OpenJournal opens (or creates) the journal database at dbPath and applies
// the schema.
func OpenJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records one order event.
func (j *Journal) Append(ctx context.Context, u domain.OrderUpdate) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO order_events
			(order_id, perm_id, symbol, status, filled_qty, remaining_qty, avg_price, event_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.OrderID, u.PermID, u.Symbol, string(u.Status),
		u.FilledQty, u.RemainingQty, u.AvgFillPrice, u.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("appending order event: %w", err)
	}
	return nil
}

// Recent returns the most recent events, newest first, up to limit.
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.OrderUpdate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT order_id, perm_id, symbol, status, filled_qty, remaining_qty, avg_price, event_time
		FROM order_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading order events: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderUpdate
	for rows.Next() {
		var u domain.OrderUpdate
		var status string
		var ms int64
		if err := rows.Scan(&u.OrderID, &u.PermID, &u.Symbol, &status,
			&u.FilledQty, &u.RemainingQty, &u.AvgFillPrice, &ms); err != nil {
			return nil, fmt.Errorf("scanning order event: %w", err)
		}
		u.Status = domain.OrderStatus(status)
		u.At = time.UnixMilli(ms)
		out = append(out, u)
	}
	return out, rows.Err()
}

// History returns every event for one order, oldest first.
func (j *Journal) History(ctx context.Context, orderID string) ([]domain.OrderUpdate, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT order_id, perm_id, symbol, status, filled_qty, remaining_qty, avg_price, event_time
		FROM order_events WHERE order_id = ? ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("reading order history: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderUpdate
	for rows.Next() {
		var u domain.OrderUpdate
		var status string
		var ms int64
		if err := rows.Scan(&u.OrderID, &u.PermID, &u.Symbol, &status,
			&u.FilledQty, &u.RemainingQty, &u.AvgFillPrice, &ms); err != nil {
			return nil, fmt.Errorf("scanning order event: %w", err)
		}
		u.Status = domain.OrderStatus(status)
		u.At = time.UnixMilli(ms)
		out = append(out, u)
	}
	return out, rows.Err()
}
