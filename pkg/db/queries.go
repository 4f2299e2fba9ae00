package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("record not found")

// Queries wraps order and candle persistence.
type Queries struct {
	db *sql.DB
}

// NewQueries creates a Queries instance.
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Queries returns the query helper bound to this database.
func (d *Database) Queries() *Queries {
	return NewQueries(d.DB)
}

// ----------------------------------------
// Order queries
// ----------------------------------------

// InsertOrder stores a freshly submitted order.
func (q *Queries) InsertOrder(ctx context.Context, o Order) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO orders (id, exchange_order_id, symbol, side, type, status,
		                    price, open_price, close_price, high_price,
		                    quantity, quote_qty, stop_price, fee, profit,
		                    close_reason, is_closed, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, o.ID, o.ExchangeOrderID, o.Symbol, o.Side, o.Type, o.Status,
		o.Price, o.OpenPrice, o.ClosePrice, o.HighPrice,
		o.Quantity, o.QuoteQty, o.StopPrice, o.Fee, o.Profit,
		o.CloseReason, o.IsClosed)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrderFill records fill progress reported by the exchange.
func (q *Queries) UpdateOrderFill(ctx context.Context, id, status string, openPrice, quantity, fee float64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, open_price = ?, high_price = MAX(high_price, ?),
		    quantity = ?, fee = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, openPrice, openPrice, quantity, fee, id)
	if err != nil {
		return fmt.Errorf("update order fill: %w", err)
	}
	return nil
}

// BindExchangeOrder records the exchange-assigned order id and status once
// the submit has been acknowledged.
func (q *Queries) BindExchangeOrder(ctx context.Context, id, exchangeOrderID, status string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE orders SET exchange_order_id = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, exchangeOrderID, status, id)
	if err != nil {
		return fmt.Errorf("bind exchange order: %w", err)
	}
	return nil
}

// UpdateOrderStatus updates only the exchange status.
func (q *Queries) UpdateOrderStatus(ctx context.Context, id, status string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// RaiseStopPrice lifts the stop price. The guard in SQL keeps the ratchet
// monotonic even if two ticks race.
func (q *Queries) RaiseStopPrice(ctx context.Context, id string, stop float64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE orders SET stop_price = MAX(stop_price, ?), updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_closed = 0
	`, stop, id)
	if err != nil {
		return fmt.Errorf("raise stop price: %w", err)
	}
	return nil
}

// UpdateHighPrice records a new high-water mark.
func (q *Queries) UpdateHighPrice(ctx context.Context, id string, high float64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE orders SET high_price = MAX(high_price, ?), updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_closed = 0
	`, high, id)
	if err != nil {
		return fmt.Errorf("update high price: %w", err)
	}
	return nil
}

// CloseOrder finalizes a position.
func (q *Queries) CloseOrder(ctx context.Context, id string, closePrice, profit, fee float64, reason string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE orders
		SET close_price = ?, profit = ?, fee = fee + ?, close_reason = ?,
		    status = 'FILLED', is_closed = 1, closed_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, closePrice, profit, fee, reason, id)
	if err != nil {
		return fmt.Errorf("close order: %w", err)
	}
	return nil
}

// DeleteOrder removes a dead order row (never-filled cancels).
func (q *Queries) DeleteOrder(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

// GetOrder returns one order by internal id.
func (q *Queries) GetOrder(ctx context.Context, id string) (*Order, error) {
	row := q.db.QueryRowContext(ctx, selectOrder+` WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListOpenOrders returns all rows not yet closed, pending and filled alike.
func (q *Queries) ListOpenOrders(ctx context.Context) ([]Order, error) {
	rows, err := q.db.QueryContext(ctx, selectOrder+`
		WHERE is_closed = 0 ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query open orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListOrders returns the most recent orders, open and closed.
func (q *Queries) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	rows, err := q.db.QueryContext(ctx, selectOrder+`
		ORDER BY opened_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

const selectOrder = `
	SELECT id, exchange_order_id, symbol, side, type, status,
	       price, open_price, close_price, high_price,
	       quantity, quote_qty, stop_price, fee, profit,
	       close_reason, is_closed, opened_at, closed_at, updated_at
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (*Order, error) {
	var o Order
	err := r.Scan(&o.ID, &o.ExchangeOrderID, &o.Symbol, &o.Side, &o.Type, &o.Status,
		&o.Price, &o.OpenPrice, &o.ClosePrice, &o.HighPrice,
		&o.Quantity, &o.QuoteQty, &o.StopPrice, &o.Fee, &o.Profit,
		&o.CloseReason, &o.IsClosed, &o.OpenedAt, &o.ClosedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows *sql.Rows) ([]Order, error) {
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// ----------------------------------------
// Candle queries
// ----------------------------------------

// UpsertCandle stores or refreshes one candle.
func (q *Queries) UpsertCandle(ctx context.Context, c CandleRow) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO candles (symbol, interval, open_time, close_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, open_time) DO UPDATE SET
			close_time = excluded.close_time,
			open = excluded.open, high = excluded.high,
			low = excluded.low, close = excluded.close,
			volume = excluded.volume
	`, c.Symbol, c.Interval, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("upsert candle: %w", err)
	}
	return nil
}

// ListCandles returns up to limit candles, newest first.
func (q *Queries) ListCandles(ctx context.Context, symbol, interval string, limit int) ([]CandleRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT symbol, interval, open_time, close_time, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND interval = ?
		ORDER BY open_time DESC LIMIT ?
	`, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("list candles: %w", err)
	}
	defer rows.Close()

	var out []CandleRow
	for rows.Next() {
		var c CandleRow
		if err := rows.Scan(&c.Symbol, &c.Interval, &c.OpenTime, &c.CloseTime,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PruneCandles deletes history beyond keep rows per symbol and interval.
func (q *Queries) PruneCandles(ctx context.Context, symbol, interval string, keep int) error {
	_, err := q.db.ExecContext(ctx, `
		DELETE FROM candles
		WHERE symbol = ? AND interval = ? AND open_time NOT IN (
			SELECT open_time FROM candles
			WHERE symbol = ? AND interval = ?
			ORDER BY open_time DESC LIMIT ?
		)
	`, symbol, interval, symbol, interval, keep)
	if err != nil {
		return fmt.Errorf("prune candles: %w", err)
	}
	return nil
}
