package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"spottrader/internal/position"
	"spottrader/internal/state"
	"spottrader/pkg/config"
	"spottrader/pkg/db"
	exchange "spottrader/pkg/exchanges/common"
)

// fakeExchange scripts exchange behavior per test. Status transitions for
// polling come from statusScript, consumed one entry per GetOrder call.
type fakeExchange struct {
	mu sync.Mutex

	balances     []exchange.Balance
	filters      exchange.SymbolFilters
	submitRes    exchange.OrderResult
	submitErr    error
	statusScript []exchange.OrderResult
	getOrderErr  error

	submitted []exchange.OrderRequest
	polls     int
	cancelled []string
}

func (f *fakeExchange) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return exchange.OrderResult{}, f.submitErr
	}
	res := f.submitRes
	if res.ExchangeOrderID == "" {
		res.ExchangeOrderID = fmt.Sprintf("EX-%d", len(f.submitted))
	}
	res.ClientID = req.ClientID
	return res, nil
}

func (f *fakeExchange) GetOrder(ctx context.Context, symbol, exchangeOrderID string) (exchange.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.getOrderErr != nil {
		return exchange.OrderResult{}, f.getOrderErr
	}
	if len(f.statusScript) == 0 {
		return exchange.OrderResult{ExchangeOrderID: exchangeOrderID, Status: exchange.StatusNew}, nil
	}
	res := f.statusScript[0]
	if len(f.statusScript) > 1 {
		f.statusScript = f.statusScript[1:]
	}
	res.ExchangeOrderID = exchangeOrderID
	return res, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, exchangeOrderID)
	return nil
}

func (f *fakeExchange) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	return f.balances, nil
}

func (f *fakeExchange) GetSymbolFilters(ctx context.Context, symbol string) (exchange.SymbolFilters, error) {
	filters := f.filters
	filters.Symbol = symbol
	return filters, nil
}

func newTestGateway(t *testing.T, fake *fakeExchange) (*Gateway, *state.Manager, *db.Queries) {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	queries := database.Queries()
	st := state.NewManager(queries)
	g := NewGateway(fake, queries, st, nil, config.DefaultPolicy())
	g.PollDelay = time.Millisecond
	return g, st, queries
}

func defaultFake() *fakeExchange {
	return &fakeExchange{
		balances: []exchange.Balance{{Asset: "USDT", Free: 10000}},
		filters:  exchange.SymbolFilters{TickSize: 0.01, StepSize: 0.001, MinNotional: 10},
	}
}

func TestOpenLongFillsAndTracks(t *testing.T) {
	fake := defaultFake()
	fake.submitRes = exchange.OrderResult{
		Status:          exchange.StatusFilled,
		ExecutedQty:     0.1,
		CumulativeQuote: 3000,
		Fills: []exchange.Fill{
			{Price: 29990, Qty: 0.05, Commission: 0.15, CommissionAsset: "USDT"},
			{Price: 30010, Qty: 0.05, Commission: 0.15, CommissionAsset: "USDT"},
		},
	}
	g, st, queries := newTestGateway(t, fake)
	ctx := context.Background()

	if err := g.OpenLong(ctx, "BTCUSDT", 30000); err != nil {
		t.Fatalf("OpenLong() error = %v", err)
	}

	pos, ok := st.PositionForSymbol("BTCUSDT")
	if !ok {
		t.Fatal("expected a tracked position after fill")
	}
	if pos.OpenPrice != 30000 {
		t.Errorf("open price = %v, want weighted fill average 30000", pos.OpenPrice)
	}
	wantStop := 30000 * (1 - g.Policy.StopLossPct/100)
	if pos.StopPrice != wantStop {
		t.Errorf("stop price = %v, want %v", pos.StopPrice, wantStop)
	}
	if !st.Held("BTCUSDT") {
		t.Error("symbol should stay on hold while the position is open")
	}

	row, err := queries.GetOrder(ctx, pos.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if row.Status != string(exchange.StatusFilled) {
		t.Errorf("persisted status = %s, want FILLED", row.Status)
	}
	if row.Fee != 0.3 {
		t.Errorf("persisted fee = %v, want 0.3", row.Fee)
	}
}

func TestOpenLongExpiredReleasesHold(t *testing.T) {
	fake := defaultFake()
	fake.submitRes = exchange.OrderResult{Status: exchange.StatusNew}
	fake.statusScript = []exchange.OrderResult{{Status: exchange.StatusExpired}}
	g, st, queries := newTestGateway(t, fake)
	ctx := context.Background()

	if err := g.OpenLong(ctx, "ETHUSDT", 2000); err != nil {
		t.Fatalf("OpenLong() error = %v", err)
	}
	if st.Held("ETHUSDT") {
		t.Error("hold should be released after an expired buy")
	}
	rows, err := queries.ListOpenOrders(ctx)
	if err != nil {
		t.Fatalf("ListOpenOrders() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expired buy should be deleted, found %d rows", len(rows))
	}
}

func TestOpenLongPollBudgetIsBounded(t *testing.T) {
	fake := defaultFake()
	fake.submitRes = exchange.OrderResult{Status: exchange.StatusNew}
	// No script entries: every poll reports NEW forever.
	g, st, queries := newTestGateway(t, fake)
	ctx := context.Background()

	if err := g.OpenLong(ctx, "BTCUSDT", 30000); err != nil {
		t.Fatalf("OpenLong() error = %v", err)
	}
	if fake.polls != maxStatusPolls {
		t.Errorf("polls = %d, want exactly %d", fake.polls, maxStatusPolls)
	}
	// Pending orders keep the hold and their row for the reconciler.
	if !st.Held("BTCUSDT") {
		t.Error("pending buy should keep the symbol hold")
	}
	rows, err := queries.ListOpenOrders(ctx)
	if err != nil {
		t.Fatalf("ListOpenOrders() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Status != string(exchange.StatusNew) {
		t.Fatalf("want one pending NEW row, got %+v", rows)
	}
	if rows[0].ExchangeOrderID == "" {
		t.Error("exchange order id should be persisted for the reconciler")
	}
}

func TestOpenLongInsufficientBalanceSkips(t *testing.T) {
	fake := defaultFake()
	fake.balances = []exchange.Balance{{Asset: "USDT", Free: 50}}
	g, st, _ := newTestGateway(t, fake)

	if err := g.OpenLong(context.Background(), "BTCUSDT", 30000); err != nil {
		t.Fatalf("OpenLong() error = %v", err)
	}
	if len(fake.submitted) != 0 {
		t.Error("no order should be submitted without quote balance")
	}
	if st.Held("BTCUSDT") {
		t.Error("hold should be released on the balance skip")
	}
}

func TestOpenLongHeldSymbolIsNoop(t *testing.T) {
	fake := defaultFake()
	g, st, _ := newTestGateway(t, fake)
	st.Hold("BTCUSDT")

	if err := g.OpenLong(context.Background(), "BTCUSDT", 30000); err != nil {
		t.Fatalf("OpenLong() error = %v", err)
	}
	if len(fake.submitted) != 0 {
		t.Error("a held symbol must not reach the exchange")
	}
}

func TestCloseLongRoundsQuantityDown(t *testing.T) {
	fake := defaultFake()
	fake.filters.StepSize = 0.01
	fake.submitRes = exchange.OrderResult{
		Status:          exchange.StatusFilled,
		ExecutedQty:     0.12,
		CumulativeQuote: 0.12 * 31000,
	}
	g, st, queries := newTestGateway(t, fake)
	ctx := context.Background()

	pos := db.Order{
		ID: "pos-1", Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET",
		Status: "FILLED", OpenPrice: 30000, Quantity: 0.1234,
		OpenedAt: time.Now(),
	}
	if err := queries.InsertOrder(ctx, pos); err != nil {
		t.Fatalf("InsertOrder() error = %v", err)
	}
	st.Track(pos)
	st.Hold(pos.Symbol)

	if err := g.CloseLong(ctx, pos, position.ReasonTakeProfit); err != nil {
		t.Fatalf("CloseLong() error = %v", err)
	}

	if got := fake.submitted[0].Qty; got != 0.12 {
		t.Errorf("sell qty = %v, want 0.12 after step-size rounding", got)
	}
	if _, ok := st.PositionForSymbol("BTCUSDT"); ok {
		t.Error("position should be untracked after the close")
	}
	if st.Held("BTCUSDT") {
		t.Error("hold should be released after the close")
	}

	row, err := queries.GetOrder(ctx, pos.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if !row.IsClosed {
		t.Error("row should be marked closed")
	}
	wantProfit := (31000.0 - 30000.0) * 0.12
	if diff := row.Profit - wantProfit; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("profit = %v, want %v", row.Profit, wantProfit)
	}
	if row.CloseReason != string(position.ReasonTakeProfit) {
		t.Errorf("close reason = %s, want %s", row.CloseReason, position.ReasonTakeProfit)
	}
}

func TestCloseLongUnfilledReturnsError(t *testing.T) {
	fake := defaultFake()
	fake.submitRes = exchange.OrderResult{Status: exchange.StatusNew}
	g, st, queries := newTestGateway(t, fake)
	ctx := context.Background()

	pos := db.Order{
		ID: "pos-2", Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET",
		Status: "FILLED", OpenPrice: 30000, Quantity: 0.1,
		OpenedAt: time.Now(),
	}
	if err := queries.InsertOrder(ctx, pos); err != nil {
		t.Fatalf("InsertOrder() error = %v", err)
	}
	st.Track(pos)
	st.Hold(pos.Symbol)

	if err := g.CloseLong(ctx, pos, position.ReasonStopLoss); err == nil {
		t.Fatal("expected an error for an unfilled sell")
	}
	if _, ok := st.PositionForSymbol("BTCUSDT"); !ok {
		t.Error("position must stay tracked so the close can be retried")
	}
}

func TestCloseLongSubmitError(t *testing.T) {
	fake := defaultFake()
	fake.submitErr = errors.New("binance unavailable")
	g, _, _ := newTestGateway(t, fake)

	pos := db.Order{ID: "pos-3", Symbol: "BTCUSDT", Quantity: 0.1, OpenPrice: 30000}
	if err := g.CloseLong(context.Background(), pos, position.ReasonStopLoss); err == nil {
		t.Fatal("expected the submit error to surface")
	}
}

func TestQuoteAsset(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"BTCUSDT", "USDT"},
		{"ETHBTC", "BTC"},
		{"SOLFDUSD", "FDUSD"},
		{"WEIRDPAIR", "USDT"},
	}
	for _, tt := range tests {
		if got := quoteAsset(tt.symbol); got != tt.want {
			t.Errorf("quoteAsset(%s) = %s, want %s", tt.symbol, got, tt.want)
		}
	}
}
