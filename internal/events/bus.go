package events

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the subscription buffer used when Subscribe is given zero.
const DefaultBuffer = 64

// Filter selects the events a subscriber receives.
type Filter func(Event) bool

// Any matches every event.
func Any() Filter {
	return func(Event) bool { return true }
}

// ForDevice matches events from one device.
func ForDevice(deviceID string) Filter {
	return func(e Event) bool { return e.DeviceID == deviceID }
}

// OfType matches events of any of the given types.
func OfType(types ...Type) Filter {
	set := make(map[Type]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(e Event) bool {
		_, ok := set[e.Type]
		return ok
	}
}

// All matches events accepted by every filter.
func All(filters ...Filter) Filter {
	return func(e Event) bool {
		for _, f := range filters {
			if !f(e) {
				return false
			}
		}
		return true
	}
}

// Subscription is a registered subscriber. Events arrive on C until
// Unsubscribe is called or the bus is closed, after which C is closed.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	filter  Filter
	bus     *Bus
	id      uint64
	dropped atomic.Uint64
}

// Unsubscribe removes the subscription and closes C. It is safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.id)
}

// Dropped returns how many matching events were missed because C was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Bus is the process-wide event channel.
//
// All public methods are thread-safe.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a subscriber. A nil filter matches everything.
func (b *Bus) Subscribe(filter Filter, buffer int) *Subscription {
	if filter == nil {
		filter = Any()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, filter: filter, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers e to every matching subscriber without blocking and
// returns how many received it.
func (b *Bus) Publish(e Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs {
		if !sub.filter(e) {
			continue
		}
		select {
		case sub.ch <- e:
			delivered++
		default:
			sub.dropped.Add(1)
		}
	}
	return delivered
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Later subscriptions are closed at once.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}
