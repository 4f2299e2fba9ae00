package common

import (
	"context"
	"log"
	"sync"
	"time"
)

// TimeSync tracks the clock skew between this host and the exchange so
// signed request timestamps land inside the server's recv window.
type TimeSync struct {
	serverClock func() (int64, error)
	resyncEvery time.Duration

	mu       sync.RWMutex
	skewMs   int64 // server minus local, milliseconds
	syncedAt time.Time
}

// NewTimeSync wires a skew tracker to the exchange's server-time call.
func NewTimeSync(serverClock func() (int64, error)) *TimeSync {
	return &TimeSync{
		serverClock: serverClock,
		resyncEvery: 30 * time.Minute,
	}
}

// Start syncs once immediately, then keeps the skew fresh in the
// background until the context ends.
func (ts *TimeSync) Start(ctx context.Context) {
	if err := ts.Sync(ctx); err != nil {
		log.Printf("time sync: initial sync failed: %v", err)
	}

	go func() {
		ticker := time.NewTicker(ts.resyncEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ts.Sync(ctx); err != nil {
					log.Printf("time sync: %v", err)
				}
			}
		}
	}()
}

// Sync samples the server clock and records the skew, splitting the
// round trip evenly between the two directions.
func (ts *TimeSync) Sync(ctx context.Context) error {
	before := time.Now().UnixMilli()
	server, err := ts.serverClock()
	if err != nil {
		return err
	}
	after := time.Now().UnixMilli()

	local := before + (after-before)/2
	skew := server - local

	ts.mu.Lock()
	ts.skewMs = skew
	ts.syncedAt = time.Now()
	ts.mu.Unlock()

	log.Printf("time sync: skew %dms (rtt %dms)", skew, after-before)
	return nil
}

// Now returns the current time in exchange milliseconds.
func (ts *TimeSync) Now() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.skewMs
}

// Offset returns the recorded skew in milliseconds.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.skewMs
}
