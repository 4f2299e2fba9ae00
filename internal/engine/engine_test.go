package engine

import (
	"context"
	"testing"
	"time"

	"spottrader/internal/candles"
	"spottrader/internal/position"
	"spottrader/internal/signal"
	"spottrader/internal/state"
	"spottrader/pkg/config"
	"spottrader/pkg/db"
	binance "spottrader/pkg/market/binance"
)

type recordingCloser struct {
	calls []string
}

func (r *recordingCloser) CloseLong(ctx context.Context, pos db.Order, reason position.Reason) error {
	r.calls = append(r.calls, pos.Symbol+":"+string(reason))
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *state.Manager, *recordingCloser) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	policy := config.DefaultPolicy()
	queries := database.Queries()
	st := state.NewManager(queries)
	closer := &recordingCloser{}

	eng := &Engine{
		Policy:    policy,
		Store:     candles.NewStore(policy.Interval, policy.MaxCandles),
		State:     st,
		Evaluator: signal.NewEvaluator(policy),
		Positions: position.NewManager(policy, st, queries, closer),
	}
	return eng, st, closer
}

func tickKline(price float64) binance.Kline {
	return binance.Kline{
		Symbol:   "BTCUSDT",
		OpenTime: 0,
		Open:     price, High: price, Low: price, Close: price,
		CloseTime: 3_599_999,
	}
}

func TestReviewClosesBreachedStopOnOpenTick(t *testing.T) {
	eng, st, closer := newTestEngine(t)
	ctx := context.Background()

	st.Track(db.Order{
		ID: "p1", Symbol: "BTCUSDT", Status: "FILLED",
		OpenPrice: 100, StopPrice: 98, HighPrice: 100, Quantity: 1,
		OpenedAt: time.Now().Add(-time.Minute),
	})
	st.SetMonitoring(true)

	// Price drops through the stop on a non-closed tick.
	k := tickKline(97)
	eng.Store.Apply(k)
	eng.onKline(ctx, k, false)

	if len(closer.calls) != 1 || closer.calls[0] != "BTCUSDT:stop-loss" {
		t.Fatalf("closer calls = %v, want one stop-loss close", closer.calls)
	}
}

func TestMonitoringOffSuspendsReviews(t *testing.T) {
	eng, st, closer := newTestEngine(t)
	ctx := context.Background()

	st.Track(db.Order{
		ID: "p1", Symbol: "BTCUSDT", Status: "FILLED",
		OpenPrice: 100, StopPrice: 98, HighPrice: 100, Quantity: 1,
		OpenedAt: time.Now().Add(-time.Minute),
	})
	st.SetMonitoring(false)

	k := tickKline(97)
	eng.Store.Apply(k)
	eng.onKline(ctx, k, false)

	if len(closer.calls) != 0 {
		t.Fatalf("closer calls = %v, want none while monitoring is off", closer.calls)
	}
}

func TestPredictWithoutOracleIsNeutral(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	pred := eng.predict(context.Background(), "BTCUSDT", true)
	if pred.Up(0.1) || pred.Down(0.1) {
		t.Errorf("prediction without oracle should be sideways, got %+v", pred)
	}
}
