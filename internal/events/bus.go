package events

import (
	"sync"
)

// Bus fans events out to channel subscribers. Publish never blocks: the
// stream goroutines feed it on the tick hot path, so a slow consumer
// loses messages instead of stalling the feed.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	topics map[Event]map[int]chan any
}

func NewBus() *Bus {
	return &Bus{topics: make(map[Event]map[int]chan any)}
}

// Subscribe registers a buffered listener on one topic. The returned
// cancel func detaches the listener and closes its channel; calling it
// twice is safe.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[e] == nil {
		b.topics[e] = make(map[int]chan any)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan any, buffer)
	b.topics[e][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.topics[e][id]; ok {
				delete(b.topics[e], id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Publish delivers the payload to every subscriber of the topic. A
// subscriber with a full buffer is skipped.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.topics[e] {
		select {
		case ch <- payload:
		default:
		}
	}
}
