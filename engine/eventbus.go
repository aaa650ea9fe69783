package engine

import (
	"sync"
	"time"
)

// SubscriberID identifies one EventBus subscription.
type SubscriberID uint64

// SubscriberFunc is called for each event a subscription matches.
type SubscriberFunc func(Event)

type subscription struct {
	id     SubscriberID
	fn     SubscriberFunc
	filter map[EventType]struct{}
}

// EventBus dispatches events synchronously, in registration order, on
// the emitting goroutine. Handlers that need to block must hand off to
// their own goroutine.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID SubscriberID
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a callback for every event.
func (b *EventBus) Subscribe(fn SubscriberFunc) SubscriberID {
	return b.add(fn, nil)
}

// SubscribeTypes registers a callback for the given event types only.
func (b *EventBus) SubscribeTypes(fn SubscriberFunc, types ...EventType) SubscriberID {
	filter := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}
	return b.add(fn, filter)
}

func (b *EventBus) add(fn SubscriberFunc, filter map[EventType]struct{}) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, fn: fn, filter: filter})
	return b.nextID
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (b *EventBus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers an event to all matching subscriptions. The subscriber
// list is snapshotted so handlers may subscribe or unsubscribe while
// being called.
func (b *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.filter != nil {
			if _, ok := s.filter[evt.Type]; !ok {
				continue
			}
		}
		s.fn(evt)
	}
}
