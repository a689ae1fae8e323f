package events

import (
	"sync"
	"time"
)

// Handler receives emitted events. Handlers run on the emitting goroutine and must not block.
type Handler func(event *Event)

// Subscription identifies a registered handler
type Subscription struct {
	eventType EventType
	id        uint64
}

// Bus fans events out to subscribers
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType]map[uint64]Handler
	now      func() time.Time
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType]map[uint64]Handler),
		now:      time.Now,
	}
}

// Subscribe registers handler for eventType
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]Handler)
	}
	b.handlers[eventType][b.nextID] = handler

	return Subscription{eventType: eventType, id: b.nextID}
}

// Unsubscribe removes a handler registered with Subscribe
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if hs, ok := b.handlers[sub.eventType]; ok {
		delete(hs, sub.id)
		if len(hs) == 0 {
			delete(b.handlers, sub.eventType)
		}
	}
}

// SubscriberCount returns the number of handlers registered for eventType
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Emit delivers an event to every subscriber of data's event type
func (b *Bus) Emit(module string, data EventData) {
	if data == nil {
		return
	}

	event := &Event{
		Type:      data.EventType(),
		Timestamp: b.now(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type]))
	for _, h := range b.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
