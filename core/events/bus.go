package events

import (
	"sync"
	"sync/atomic"

	"portfolium/core/types"
)

const defaultSubscriberBuffer = 256

// Bus fans committed events out to subscribers. Slow subscribers lose events
// instead of blocking the ledger.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]chan *types.Event
	dropped atomic.Uint64
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan *types.Event)}
}

// Publish delivers the events to every subscriber without blocking.
func (b *Bus) Publish(evts ...*types.Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		for _, ch := range b.subs {
			select {
			case ch <- evt.Clone():
			default:
				b.dropped.Add(1)
			}
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function closes the
// channel and must be called once the subscriber is done.
func (b *Bus) Subscribe(buffer int) (<-chan *types.Event, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan *types.Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was
// not keeping up.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
