// Package engine composes the stream feed, the entry evaluator, the
// position lifecycle and the order gateway into one trading loop.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"spottrader/internal/candles"
	"spottrader/internal/events"
	"spottrader/internal/market"
	"spottrader/internal/oracle"
	"spottrader/internal/order"
	"spottrader/internal/position"
	"spottrader/internal/signal"
	"spottrader/internal/state"
	"spottrader/internal/watchdog"
	"spottrader/pkg/cache"
	"spottrader/pkg/config"
	binance "spottrader/pkg/market/binance"
)

// Engine drives trading off the kline stream. Position reviews run on
// every tick; entry evaluation runs only when a candle closes.
type Engine struct {
	Policy    config.Policy
	Bus       *events.Bus
	Feed      *market.Feed
	Store     *candles.Store
	Book      *market.Book
	State     *state.Manager
	Evaluator *signal.Evaluator
	Oracle    *oracle.Client
	Positions *position.Manager
	Gateway   *order.Gateway
	Watchdog  *watchdog.Watchdog

	EnableTrading bool

	// predictions caches oracle answers so per-tick position reviews do
	// not hammer the oracle between candle closes.
	predictions *cache.TTLCache[oracle.Prediction]
	restartMu   sync.Mutex
}

// Start hooks the engine into the feed and opens the stream.
func (e *Engine) Start(ctx context.Context) error {
	e.predictions = cache.NewTTLCache[oracle.Prediction](5 * time.Minute)
	e.Feed.OnTick = func() {
		if e.Watchdog != nil {
			e.Watchdog.Kick()
		}
	}
	e.Feed.OnKline = func(k binance.Kline, closed bool) {
		e.onKline(ctx, k, closed)
	}
	if e.Watchdog != nil {
		e.Watchdog.RestartFn = e.Restart
		e.Watchdog.Start(ctx)
	}
	return e.Feed.Start(ctx)
}

// Restart performs a cold feed restart: the stale stream is torn down, the
// candle history dropped, and everything rebuilt from a fresh backfill.
func (e *Engine) Restart(ctx context.Context) {
	e.restartMu.Lock()
	defer e.restartMu.Unlock()

	log.Println("engine: cold restart of the market feed")
	e.Feed.Stop()
	e.Store.Clear()
	if err := e.Feed.Start(ctx); err != nil {
		log.Printf("engine: feed restart failed: %v", err)
	}
}

func (e *Engine) onKline(ctx context.Context, k binance.Kline, closed bool) {
	if !e.State.Monitoring() {
		return
	}

	last, ok := e.Store.Last(k.Symbol)
	if !ok {
		return
	}

	// Open positions get reviewed on every price update, not just on
	// candle closes: stops and trailing exits cannot wait an hour.
	if _, held := e.State.PositionForSymbol(k.Symbol); held {
		e.Positions.Review(ctx, k.Symbol, last, e.predict(ctx, k.Symbol, closed))
		return
	}

	if closed && e.EnableTrading {
		e.tryEnter(ctx, k.Symbol, last)
	}
}

// predict returns the oracle's view of a symbol. A candle close forces a
// fresh call; in between ticks reuse the cached answer.
func (e *Engine) predict(ctx context.Context, symbol string, refresh bool) oracle.Prediction {
	if e.Oracle == nil {
		return oracle.Neutral(symbol)
	}
	if !refresh && e.predictions != nil {
		if pred, ok := e.predictions.Get(symbol); ok {
			return pred
		}
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pred := e.Oracle.Predict(cctx, symbol, e.Store.Snapshot(symbol))
	cancel()
	if e.predictions != nil {
		e.predictions.Set(symbol, pred)
	}
	return pred
}

func (e *Engine) tryEnter(ctx context.Context, symbol string, last candles.Candle) {
	stat, ok := e.Book.Get(symbol)
	if !ok {
		return
	}
	up, down := e.Book.Breadth()

	pred := e.predict(ctx, symbol, true)

	decision := e.Evaluator.ShouldEnterLong(signal.Input{
		Series:        e.Store.Snapshot(symbol),
		Stat:          stat,
		NbrUp:         up,
		NbrDown:       down,
		Prediction:    pred,
		Held:          e.State.Held(symbol),
		OpenPositions: e.State.OpenCount(),
	})
	if !decision.Enter {
		log.Printf("engine: %s entry rejected at %s check", symbol, decision.FailedCheck)
		return
	}

	if e.Bus != nil {
		e.Bus.Publish(events.EventTrading, map[string]any{
			"symbol": symbol,
			"action": "entry",
			"price":  last.Close,
		})
	}
	if err := e.Gateway.OpenLong(ctx, symbol, last.Close); err != nil {
		log.Printf("engine: open %s: %v", symbol, err)
	}
}
