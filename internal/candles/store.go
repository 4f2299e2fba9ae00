package candles

import (
	"sync"

	market "spottrader/pkg/market/binance"
)

// Store keeps candle series per symbol, bounded to maxCandles each.
type Store struct {
	mu         sync.RWMutex
	interval   string
	maxCandles int
	series     map[string][]Candle
}

// NewStore builds an empty store for one interval.
func NewStore(interval string, maxCandles int) *Store {
	return &Store{
		interval:   interval,
		maxCandles: maxCandles,
		series:     make(map[string][]Candle),
	}
}

// Interval returns the candle interval the store was built for.
func (s *Store) Interval() string {
	return s.interval
}

// Seed replaces a symbol's series from a REST backfill and enriches it.
func (s *Store) Seed(symbol string, klines []market.Kline) {
	cs := make([]Candle, 0, len(klines))
	for _, k := range klines {
		if k.Symbol == "" {
			k.Symbol = symbol
		}
		cs = append(cs, FromKline(k))
	}
	if len(cs) > s.maxCandles {
		cs = cs[len(cs)-s.maxCandles:]
	}
	enrich(cs)

	s.mu.Lock()
	s.series[symbol] = cs
	s.mu.Unlock()
}

// Apply folds one stream kline into the series. A non-closed tick replaces
// the open tail candle in place; a closed tick finalizes it. Returns true
// when the tick closed a candle, which is the signal to re-rank the market
// and release entry holds.
func (s *Store) Apply(k market.Kline) (closed bool) {
	c := FromKline(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	cs := s.series[k.Symbol]
	switch {
	case len(cs) == 0:
		cs = append(cs, c)
	case cs[len(cs)-1].OpenTime == c.OpenTime:
		cs[len(cs)-1] = c
	case cs[len(cs)-1].OpenTime < c.OpenTime:
		cs = append(cs, c)
		if len(cs) > s.maxCandles {
			cs = cs[1:]
		}
	default:
		// Late tick for an already-evicted interval; ignore.
		return false
	}
	enrich(cs)
	s.series[k.Symbol] = cs
	return c.Closed
}

// Snapshot returns a copy of a symbol's series.
func (s *Store) Snapshot(symbol string) []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.series[symbol]
	out := make([]Candle, len(cs))
	copy(out, cs)
	return out
}

// Last returns the most recent candle for a symbol.
func (s *Store) Last(symbol string) (Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs := s.series[symbol]
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

// Len returns the series length for a symbol.
func (s *Store) Len(symbol string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[symbol])
}

// Symbols lists symbols with at least one candle.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.series))
	for sym := range s.series {
		out = append(out, sym)
	}
	return out
}

// Clear drops every series. Used by the cold restart path before a fresh
// backfill.
func (s *Store) Clear() {
	s.mu.Lock()
	s.series = make(map[string][]Candle)
	s.mu.Unlock()
}
