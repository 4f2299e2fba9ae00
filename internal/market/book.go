package market

import (
	"sort"
	"sync"

	market "spottrader/pkg/market/binance"
)

// Book is the retained market snapshot fed by the rolling-window ticker
// array stream. Symbols absent from a batch keep their previous stats;
// the stream only carries symbols that changed.
type Book struct {
	mu      sync.RWMutex
	stats   []market.TickerStat
	index   map[string]int
	nbrUp   int
	nbrDown int
}

// NewBook builds an empty snapshot.
func NewBook() *Book {
	return &Book{index: make(map[string]int)}
}

// Merge folds one stream batch into the snapshot and recomputes the
// breadth counters. Ordering is left untouched; ranking happens on candle
// close via Rank.
func (b *Book) Merge(batch []market.TickerStat) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range batch {
		if i, ok := b.index[t.Symbol]; ok {
			b.stats[i] = t
		} else {
			b.index[t.Symbol] = len(b.stats)
			b.stats = append(b.stats, t)
		}
	}

	up, down := 0, 0
	for _, t := range b.stats {
		switch {
		case t.PriceChangePct > 0:
			up++
		case t.PriceChangePct < 0:
			down++
		}
	}
	b.nbrUp, b.nbrDown = up, down
}

// Rank re-sorts the snapshot descending by percent change. Called when a
// candle closes, not on every merge, so the ranking stays stable while a
// candle is forming.
func (b *Book) Rank() {
	b.mu.Lock()
	defer b.mu.Unlock()

	sort.SliceStable(b.stats, func(i, j int) bool {
		return b.stats[i].PriceChangePct > b.stats[j].PriceChangePct
	})
	for i, t := range b.stats {
		b.index[t.Symbol] = i
	}
}

// Breadth returns the count of rising and falling symbols.
func (b *Book) Breadth() (up, down int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nbrUp, b.nbrDown
}

// Get returns the stats for one symbol.
func (b *Book) Get(symbol string) (market.TickerStat, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.index[symbol]
	if !ok {
		return market.TickerStat{}, false
	}
	return b.stats[i], true
}

// Snapshot returns a copy of the ranked stats.
func (b *Book) Snapshot() []market.TickerStat {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]market.TickerStat, len(b.stats))
	copy(out, b.stats)
	return out
}

// Len returns the number of tracked symbols.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.stats)
}
