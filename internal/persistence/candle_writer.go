// Package persistence archives closed candles to the database in batches
// so stream processing never waits on disk.
package persistence

import (
	"context"
	"log"
	"sync"
	"time"

	"spottrader/internal/events"
	"spottrader/pkg/db"
	market "spottrader/pkg/market/binance"
)

// CandleWriter buffers closed candles from the event bus and flushes them
// on size or on a timer. Per symbol the table keeps at most Keep rows.
type CandleWriter struct {
	Queries  *db.Queries
	Bus      *events.Bus
	Interval string
	Keep     int

	// MaxBatch forces a flush once the buffer reaches this size.
	MaxBatch int
	// FlushEvery is the time-based flush period.
	FlushEvery time.Duration

	mu     sync.Mutex
	buffer []db.CandleRow
}

func NewCandleWriter(queries *db.Queries, bus *events.Bus, interval string, keep int) *CandleWriter {
	return &CandleWriter{
		Queries:    queries,
		Bus:        bus,
		Interval:   interval,
		Keep:       keep,
		MaxBatch:   50,
		FlushEvery: 500 * time.Millisecond,
	}
}

// Run consumes candle updates until the context ends, then flushes what
// is left.
func (w *CandleWriter) Run(ctx context.Context) {
	stream, unsub := w.Bus.Subscribe(events.EventCandleUpdate, 100)
	defer unsub()

	ticker := time.NewTicker(w.FlushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Flush(context.Background())
			return
		case <-ticker.C:
			w.Flush(ctx)
		case msg, ok := <-stream:
			if !ok {
				w.Flush(ctx)
				return
			}
			k, isKline := msg.(market.Kline)
			if !isKline || !k.Closed {
				continue
			}
			w.add(k)
			w.flushIfFull(ctx)
		}
	}
}

func (w *CandleWriter) add(k market.Kline) {
	w.mu.Lock()
	w.buffer = append(w.buffer, db.CandleRow{
		Symbol:    k.Symbol,
		Interval:  w.Interval,
		OpenTime:  k.OpenTime,
		CloseTime: k.CloseTime,
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
	})
	w.mu.Unlock()
}

func (w *CandleWriter) flushIfFull(ctx context.Context) {
	w.mu.Lock()
	full := len(w.buffer) >= w.MaxBatch
	w.mu.Unlock()
	if full {
		w.Flush(ctx)
	}
}

// Flush writes the buffered rows and prunes each touched symbol.
func (w *CandleWriter) Flush(ctx context.Context) {
	w.mu.Lock()
	batch := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	touched := make(map[string]struct{})
	for _, row := range batch {
		if err := w.Queries.UpsertCandle(ctx, row); err != nil {
			log.Printf("persistence: upsert %s candle: %v", row.Symbol, err)
			continue
		}
		touched[row.Symbol] = struct{}{}
	}
	if w.Keep > 0 {
		for symbol := range touched {
			if err := w.Queries.PruneCandles(ctx, symbol, w.Interval, w.Keep); err != nil {
				log.Printf("persistence: prune %s candles: %v", symbol, err)
			}
		}
	}
}
