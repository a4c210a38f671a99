package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriberBufferSize bounds each subscriber's inbox. A subscriber that
// cannot keep up drops events for itself only; the publisher never blocks.
const subscriberBufferSize = 256

// Bus is a typed, multi-subscriber broadcast channel. No pack library
// offers non-blocking, per-subscriber-drop broadcast semantics (the
// closest candidate, asaskevich/EventBus, blocks synchronous handlers),
// so this is a small bespoke implementation on stdlib channels.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[int]chan Event)}
}

// Subscription is a handle returned by Subscribe; call Unsubscribe when
// the subscriber is done listening.
type Subscription struct {
	id   int
	bus  *Bus
	Chan <-chan Event
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if ch, ok := s.bus.subscribers[s.id]; ok {
		close(ch)
		delete(s.bus.subscribers, s.id)
	}
}

// Subscribe registers a new subscriber and returns its subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBufferSize)
	b.subscribers[id] = ch

	return &Subscription{id: id, bus: b, Chan: ch}
}

// Publish fills in an ID and timestamp if unset, then broadcasts the
// event to every subscriber. A subscriber whose buffer is full is
// skipped for this event rather than blocking the publisher.
func (b *Bus) Publish(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			// Subscriber is lagging; drop for this subscriber only.
		}
	}
}

// SubscriberCount reports the number of active subscribers, mostly for tests.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
