// Package watchdog detects a stalled market stream and triggers a cold
// restart of the feed.
package watchdog

import (
	"context"
	"log"
	"sync"
	"time"

	"spottrader/internal/events"
)

// Watchdog arms a timer that every market tick resets. If no tick arrives
// within StaleAfter the restart callback fires once, and the timer rearms
// for the next stall.
type Watchdog struct {
	Bus        *events.Bus
	StaleAfter time.Duration

	// RestartFn performs the cold restart. Called at most once per
	// expiry, never concurrently.
	RestartFn func(ctx context.Context)

	mu      sync.Mutex
	timer   *time.Timer
	started bool
}

func New(bus *events.Bus, staleAfter time.Duration, restart func(ctx context.Context)) *Watchdog {
	return &Watchdog{
		Bus:        bus,
		StaleAfter: staleAfter,
		RestartFn:  restart,
	}
}

// Start arms the watchdog. The timer goroutine lives until ctx ends.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.timer = time.NewTimer(w.StaleAfter)

	go w.loop(ctx)
}

// Kick resets the stale timer. Call it on every market tick.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer == nil {
		return
	}
	w.timer.Stop()
	w.timer.Reset(w.StaleAfter)
}

func (w *Watchdog) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case <-w.timer.C:
			w.expire(ctx)
		}
	}
}

func (w *Watchdog) expire(ctx context.Context) {
	log.Printf("watchdog: no market data for %s, restarting stream", w.StaleAfter)
	if w.Bus != nil {
		w.Bus.Publish(events.EventStreamStopped, map[string]any{
			"staleAfter": w.StaleAfter.String(),
			"at":         time.Now().UTC(),
		})
	}
	if w.RestartFn != nil {
		w.RestartFn(ctx)
	}

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Reset(w.StaleAfter)
	}
	w.mu.Unlock()
}
