// Package state holds the shared runtime trading state: the on-hold guard
// and the open-position cache. Everything is injected; nothing here is a
// package-level global, so concurrent stream goroutines and the API layer
// share one instance safely.
package state

import (
	"context"
	"sync"

	"spottrader/pkg/db"
)

// Manager keeps an in-memory view of open positions while persisting to
// the DB for durability, plus the per-symbol entry hold guard.
type Manager struct {
	mu         sync.RWMutex
	open       map[string]db.Order // keyed by order id
	onHold     map[string]struct{} // symbols barred from new entries
	monitoring bool
	queries    *db.Queries
}

func NewManager(queries *db.Queries) *Manager {
	return &Manager{
		queries: queries,
		open:    make(map[string]db.Order),
		onHold:  make(map[string]struct{}),
	}
}

// Load seeds in-memory state from the DB on startup. Open positions put
// their symbol on hold so a restart cannot double-enter.
func (m *Manager) Load(ctx context.Context) error {
	if m.queries == nil {
		return nil
	}
	orders, err := m.queries.ListOpenOrders(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range orders {
		m.open[o.ID] = o
		m.onHold[o.Symbol] = struct{}{}
	}
	return nil
}

// Hold bars a symbol from new entries. Returns false when it was already
// held, which makes the check-and-set atomic for racing evaluators.
func (m *Manager) Hold(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.onHold[symbol]; held {
		return false
	}
	m.onHold[symbol] = struct{}{}
	return true
}

// Release clears the entry bar for a symbol.
func (m *Manager) Release(symbol string) {
	m.mu.Lock()
	delete(m.onHold, symbol)
	m.mu.Unlock()
}

// Held reports whether a symbol is barred from entries.
func (m *Manager) Held(symbol string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, held := m.onHold[symbol]
	return held
}

// Track caches an open position.
func (m *Manager) Track(o db.Order) {
	m.mu.Lock()
	m.open[o.ID] = o
	m.mu.Unlock()
}

// Update refreshes an already-tracked position. Ids no longer in the
// open set are ignored so a stale review snapshot cannot resurrect a
// position that closed in the meantime.
func (m *Manager) Update(o db.Order) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[o.ID]; !ok {
		return false
	}
	m.open[o.ID] = o
	return true
}

// Untrack drops a position from the cache, keeping any hold intact.
func (m *Manager) Untrack(id string) {
	m.mu.Lock()
	delete(m.open, id)
	m.mu.Unlock()
}

// Position returns the cached open position by id.
func (m *Manager) Position(id string) (db.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.open[id]
	return o, ok
}

// PositionForSymbol returns the open position on a symbol, if any.
func (m *Manager) PositionForSymbol(symbol string) (db.Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.open {
		if o.Symbol == symbol {
			return o, true
		}
	}
	return db.Order{}, false
}

// Positions returns a snapshot of all open positions.
func (m *Manager) Positions() []db.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]db.Order, 0, len(m.open))
	for _, o := range m.open {
		res = append(res, o)
	}
	return res
}

// OpenCount returns the number of tracked open positions.
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.open)
}

// SetMonitoring flips the global monitoring flag.
func (m *Manager) SetMonitoring(on bool) {
	m.mu.Lock()
	m.monitoring = on
	m.mu.Unlock()
}

// Monitoring reports whether entry evaluation is active.
func (m *Manager) Monitoring() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.monitoring
}
