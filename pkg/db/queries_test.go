package db

import (
	"context"
	"testing"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestOrderLifecycle(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	order := Order{
		ID:              "ord-1",
		ExchangeOrderID: "9001",
		Symbol:          "BTCUSDT",
		Side:            "BUY",
		Type:            "MARKET",
		Status:          "NEW",
		QuoteQty:        3000,
	}
	if err := q.InsertOrder(ctx, order); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}

	t.Run("fill updates entry", func(t *testing.T) {
		if err := q.UpdateOrderFill(ctx, "ord-1", "FILLED", 50000, 0.06, 1.5); err != nil {
			t.Fatalf("UpdateOrderFill: %v", err)
		}
		got, err := q.GetOrder(ctx, "ord-1")
		if err != nil {
			t.Fatalf("GetOrder: %v", err)
		}
		if got.Status != "FILLED" || got.OpenPrice != 50000 || got.Quantity != 0.06 {
			t.Errorf("unexpected order after fill: %+v", got)
		}
	})

	t.Run("open list contains order", func(t *testing.T) {
		open, err := q.ListOpenOrders(ctx)
		if err != nil {
			t.Fatalf("ListOpenOrders: %v", err)
		}
		if len(open) != 1 || open[0].ID != "ord-1" {
			t.Fatalf("expected 1 open order, got %+v", open)
		}
	})

	t.Run("close removes from open list", func(t *testing.T) {
		if err := q.CloseOrder(ctx, "ord-1", 50500, 30, 1.5, "take-profit"); err != nil {
			t.Fatalf("CloseOrder: %v", err)
		}
		open, err := q.ListOpenOrders(ctx)
		if err != nil {
			t.Fatalf("ListOpenOrders: %v", err)
		}
		if len(open) != 0 {
			t.Errorf("expected no open orders, got %d", len(open))
		}
		got, err := q.GetOrder(ctx, "ord-1")
		if err != nil {
			t.Fatalf("GetOrder: %v", err)
		}
		if !got.IsClosed || got.ClosePrice != 50500 || got.Profit != 30 || got.CloseReason != "take-profit" {
			t.Errorf("unexpected closed order: %+v", got)
		}
	})
}

func TestRaiseStopPriceIsMonotonic(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	order := Order{
		ID: "ord-2", Symbol: "ETHUSDT", Side: "BUY", Type: "MARKET",
		Status: "FILLED", OpenPrice: 3000, Quantity: 1, StopPrice: 2940,
	}
	if err := q.InsertOrder(ctx, order); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}

	steps := []struct {
		raiseTo float64
		want    float64
	}{
		{3000, 3000}, // break-even ratchet
		{2950, 3000}, // lowering is ignored
		{3010, 3010}, // further raise sticks
	}
	for _, s := range steps {
		if err := q.RaiseStopPrice(ctx, "ord-2", s.raiseTo); err != nil {
			t.Fatalf("RaiseStopPrice(%v): %v", s.raiseTo, err)
		}
		got, err := q.GetOrder(ctx, "ord-2")
		if err != nil {
			t.Fatalf("GetOrder: %v", err)
		}
		if got.StopPrice != s.want {
			t.Errorf("after raise to %v: stop = %v, want %v", s.raiseTo, got.StopPrice, s.want)
		}
	}
}

func TestDeleteOrder(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	if err := q.InsertOrder(ctx, Order{ID: "dead", Symbol: "BTCUSDT", Side: "BUY", Type: "LIMIT", Status: "CANCELED"}); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}
	if err := q.DeleteOrder(ctx, "dead"); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}
	if _, err := q.GetOrder(ctx, "dead"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCandlePrune(t *testing.T) {
	q := newTestDB(t).Queries()
	ctx := context.Background()

	for i := int64(0); i < 10; i++ {
		c := CandleRow{
			Symbol: "BTCUSDT", Interval: "1h",
			OpenTime: i * 3600_000, CloseTime: (i+1)*3600_000 - 1,
			Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10,
		}
		if err := q.UpsertCandle(ctx, c); err != nil {
			t.Fatalf("UpsertCandle: %v", err)
		}
	}
	if err := q.PruneCandles(ctx, "BTCUSDT", "1h", 4); err != nil {
		t.Fatalf("PruneCandles: %v", err)
	}

	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candles`).Scan(&n); err != nil {
		t.Fatalf("count candles: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 candles after prune, got %d", n)
	}
}
