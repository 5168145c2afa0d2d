package util

import (
	"sync"
)

// EventType represents different event types in the system.
type EventType int

const (
	EvtScanComplete EventType = iota
	EvtIndexStatus
	EvtIndexProgress
	EvtIndexError
)

// Event represents an event with optional data.
type Event struct {
	Type EventType
	Data interface{}
}

// EventBox is a thread-safe event coordination mechanism (inspired by fzf).
// It keeps the latest value of every event type, wakes blocked waiters and
// calls subscribers on each Set.
type EventBox struct {
	events map[EventType]interface{}
	cond   *sync.Cond
	subs   map[EventType]map[int]func(interface{})
	nextID int

	// notify orders deliveries so a subscriber never sees an older value
	// after a newer one.
	notify sync.Mutex
}

// NewEventBox creates a new event box.
func NewEventBox() *EventBox {
	return &EventBox{
		events: make(map[EventType]interface{}),
		cond:   sync.NewCond(&sync.Mutex{}),
		subs:   make(map[EventType]map[int]func(interface{})),
	}
}

// Set sets an event with optional data and notifies subscribers.
// Subscribers run on the caller's goroutine and must not call Set.
func (b *EventBox) Set(event EventType, data interface{}) {
	b.notify.Lock()
	defer b.notify.Unlock()

	b.cond.L.Lock()
	b.events[event] = data
	fns := make([]func(interface{}), 0, len(b.subs[event]))
	for _, fn := range b.subs[event] {
		fns = append(fns, fn)
	}
	b.cond.Broadcast()
	b.cond.L.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

// Clear removes an event.
func (b *EventBox) Clear(event EventType) {
	b.cond.L.Lock()
	defer b.cond.L.Unlock()
	delete(b.events, event)
}

// Peek checks if an event is set without blocking.
func (b *EventBox) Peek(event EventType) (interface{}, bool) {
	b.cond.L.Lock()
	defer b.cond.L.Unlock()
	data, ok := b.events[event]
	return data, ok
}

// WaitFor blocks until the specific event is set and returns its data.
func (b *EventBox) WaitFor(event EventType) interface{} {
	b.cond.L.Lock()
	defer b.cond.L.Unlock()

	for {
		if data, ok := b.events[event]; ok {
			return data
		}
		b.cond.Wait()
	}
}

// Subscribe registers fn for every future Set of event. If the event is
// already set, fn is called once with the current value before Subscribe
// returns. The returned func removes the subscription.
func (b *EventBox) Subscribe(event EventType, fn func(interface{})) (unsubscribe func()) {
	b.notify.Lock()
	defer b.notify.Unlock()

	b.cond.L.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[event] == nil {
		b.subs[event] = make(map[int]func(interface{}))
	}
	b.subs[event][id] = fn
	current, ok := b.events[event]
	b.cond.L.Unlock()

	if ok {
		fn(current)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.cond.L.Lock()
			delete(b.subs[event], id)
			b.cond.L.Unlock()
		})
	}
}

// Subscribers returns the number of active subscriptions for event.
func (b *EventBox) Subscribers(event EventType) int {
	b.cond.L.Lock()
	defer b.cond.L.Unlock()
	return len(b.subs[event])
}
