package market

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"spottrader/internal/candles"
	"spottrader/internal/events"
	market "spottrader/pkg/market/binance"
)

// Feed streams market data from Binance into the candle store and the
// snapshot book. Every processed message reports liveness through OnTick
// so the watchdog can detect a stalled stream.
type Feed struct {
	Client       *market.Client
	Stream       *market.StreamClient
	Store        *candles.Store
	Book         *Book
	Bus          *events.Bus
	Symbols      []string
	Interval     string
	TickerWindow string
	Backfill     int // candles fetched per symbol on start

	// OnTick fires after any stream message is processed.
	OnTick func()
	// OnKline fires after a kline is folded into the store; closed marks
	// a finished interval.
	OnKline func(k market.Kline, closed bool)

	mu    sync.Mutex
	stops []func()
}

// Start backfills history and opens the websocket subscriptions. Safe to
// call again after Stop; the watchdog restart path relies on that.
func (f *Feed) Start(ctx context.Context) error {
	if f.Client == nil || f.Stream == nil || f.Store == nil || f.Book == nil {
		return fmt.Errorf("market feed not fully configured")
	}

	if err := f.backfill(); err != nil {
		return err
	}

	for _, sym := range f.Symbols {
		symbol := sym
		ch, stop, err := f.Stream.SubscribeKlines(ctx, symbol, f.Interval)
		if err != nil {
			f.Stop()
			return fmt.Errorf("subscribe klines %s: %w", symbol, err)
		}
		f.addStop(stop)

		go func() {
			for k := range ch {
				f.applyKline(k)
			}
			log.Printf("market feed: kline stream %s ended", symbol)
		}()
	}

	tickers, stop, err := f.Stream.SubscribeTickerArr(ctx, f.TickerWindow)
	if err != nil {
		f.Stop()
		return fmt.Errorf("subscribe ticker arr: %w", err)
	}
	f.addStop(stop)

	go func() {
		for batch := range tickers {
			f.Book.Merge(batch)
			f.tick()
		}
		log.Printf("market feed: ticker stream ended")
	}()

	if f.Bus != nil {
		f.Bus.Publish(events.EventWebSocketStatus, map[string]any{
			"status":  "running",
			"symbols": f.Symbols,
			"time":    time.Now().UnixMilli(),
		})
	}
	return nil
}

// Stop closes all active subscriptions.
func (f *Feed) Stop() {
	f.mu.Lock()
	stops := f.stops
	f.stops = nil
	f.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

func (f *Feed) addStop(stop func()) {
	f.mu.Lock()
	f.stops = append(f.stops, stop)
	f.mu.Unlock()
}

func (f *Feed) backfill() error {
	for _, sym := range f.Symbols {
		klines, err := f.Client.GetKlines(sym, f.Interval, f.Backfill, 0, 0)
		if err != nil {
			return fmt.Errorf("backfill %s: %w", sym, err)
		}
		f.Store.Seed(sym, klines)
	}
	return nil
}

func (f *Feed) applyKline(k market.Kline) {
	closed := f.Store.Apply(k)
	f.tick()

	if f.Bus != nil {
		f.Bus.Publish(events.EventCandleUpdate, k)
	}
	if closed {
		f.Book.Rank()
	}
	if f.OnKline != nil {
		f.OnKline(k, closed)
	}
}

func (f *Feed) tick() {
	if f.OnTick != nil {
		f.OnTick()
	}
}
