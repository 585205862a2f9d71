package bus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Bus fans events out from the signal-cli reader, the outbox worker and the
// session to whoever renders them. A subscriber whose buffer is full misses
// the event and the drop is counted, unless it subscribed reliably, in which
// case the publisher waits for room.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int

	dropped atomic.Uint64
}

type subscription struct {
	namespace string
	ch        chan Event
	reliable  bool
	done      chan struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Emit publishes payload under kind, stamped with the current time.
func (b *Bus) Emit(kind string, payload any) {
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Publish delivers evt to every subscriber of a matching namespace.
// Reliable subscribers are served after the others and may block the caller
// until they take the event or unsubscribe.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	var reliable []*subscription
	for _, sub := range b.subs {
		if !matches(sub.namespace, evt.Kind) {
			continue
		}
		if sub.reliable {
			reliable = append(reliable, sub)
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
	b.mu.RUnlock()

	for _, sub := range reliable {
		select {
		case sub.ch <- evt:
		case <-sub.done:
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe returns a buffered channel of events under namespace and the
// function that cancels the subscription. The channel is never closed.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, bufSize, false)
}

// SubscribeReliable is Subscribe for events that must not be lost: when the
// buffer is full, publishers wait until the subscriber reads or cancels.
// The subscriber has to keep reading.
func (b *Bus) SubscribeReliable(namespace string, bufSize int) (<-chan Event, func()) {
	return b.subscribe(namespace, bufSize, true)
}

func (b *Bus) subscribe(namespace string, bufSize int, reliable bool) (<-chan Event, func()) {
	sub := &subscription{
		namespace: namespace,
		ch:        make(chan Event, bufSize),
		reliable:  reliable,
		done:      make(chan struct{}),
	}
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			close(sub.done)
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}
