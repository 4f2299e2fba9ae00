package position

import (
	"context"
	"log"
	"sync"
	"time"

	"spottrader/internal/candles"
	"spottrader/internal/oracle"
	"spottrader/internal/state"
	"spottrader/pkg/config"
	"spottrader/pkg/db"
)

// Closer executes the exit order for a position.
type Closer interface {
	CloseLong(ctx context.Context, pos db.Order, reason Reason) error
}

// Manager reviews open positions on every market tick and applies the
// resulting stop updates and closes.
type Manager struct {
	Policy  config.Policy
	State   *state.Manager
	Queries *db.Queries
	Closer  Closer

	mu   sync.Mutex
	syms map[string]*sync.Mutex // per-symbol review/close section
}

func NewManager(policy config.Policy, st *state.Manager, queries *db.Queries, closer Closer) *Manager {
	return &Manager{
		Policy:  policy,
		State:   st,
		Queries: queries,
		Closer:  closer,
		syms:    make(map[string]*sync.Mutex),
	}
}

// symbolLock returns the mutex serializing the read-decide-mutate block
// for one symbol, so a ratchet or watermark write cannot interleave with
// a concurrent close of the same position.
func (m *Manager) symbolLock(symbol string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.syms[symbol]
	if !ok {
		l = &sync.Mutex{}
		m.syms[symbol] = l
	}
	return l
}

// Review assesses the open position on a symbol, if any, against the
// latest candle and prediction. The whole block runs under the symbol
// lock; the position is re-read inside it so the decision always works
// from the current state.
func (m *Manager) Review(ctx context.Context, symbol string, last candles.Candle, pred oracle.Prediction) {
	l := m.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	pos, ok := m.State.PositionForSymbol(symbol)
	if !ok {
		return
	}

	a := Assess(m.Policy, pos, last, pred, time.Now())

	if a.NewHigh > 0 {
		pos.HighPrice = a.NewHigh
		if err := m.Queries.UpdateHighPrice(ctx, pos.ID, a.NewHigh); err != nil {
			log.Printf("position %s: persist high: %v", pos.ID, err)
		}
		m.State.Update(pos)
	}

	if a.Close {
		m.close(ctx, pos, a.Reason)
		return
	}

	if a.NewStop > pos.StopPrice {
		pos.StopPrice = a.NewStop
		if err := m.Queries.RaiseStopPrice(ctx, pos.ID, a.NewStop); err != nil {
			log.Printf("position %s: raise stop: %v", pos.ID, err)
		}
		if m.State.Update(pos) {
			log.Printf("position %s %s: stop ratcheted to %.8g", pos.ID, pos.Symbol, a.NewStop)
		}
	}
}

// CloseManual force-closes the position on a symbol.
func (m *Manager) CloseManual(ctx context.Context, symbol string) bool {
	l := m.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	pos, ok := m.State.PositionForSymbol(symbol)
	if !ok {
		return false
	}
	m.close(ctx, pos, ReasonManual)
	return true
}

// close runs with the symbol lock held.
func (m *Manager) close(ctx context.Context, pos db.Order, reason Reason) {
	log.Printf("position %s %s: closing (%s)", pos.ID, pos.Symbol, reason)
	if err := m.Closer.CloseLong(ctx, pos, reason); err != nil {
		// The position stays tracked; the next tick retries.
		log.Printf("position %s: close failed: %v", pos.ID, err)
	}
}
