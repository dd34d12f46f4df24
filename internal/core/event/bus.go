package event

import (
	"reflect"
	"sync"
)

type entry struct {
	t  reflect.Type
	ev any
}

// Bus is a double-buffered event bus. Events may be emitted from any
// goroutine into the back buffer; Flush, called by the single consumer,
// swaps buffers and delivers the front buffer on the consumer's goroutine in
// emission order. The GPU executor is that consumer, so handlers run on the
// GPU-affine thread.
type Bus struct {
	mu       sync.Mutex // guards back and handlers
	front    []entry
	back     []entry
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]entry, 0, 64),
		back:     make([]entry, 0, 64),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

// Emit queues an event; it is delivered by the next Flush.
func Emit[T any](b *Bus, event T) {
	b.publish(reflect.TypeOf((*T)(nil)).Elem(), event)
}

// Publish queues an event keyed by its dynamic type. Used by window backends
// that produce events as values of several types.
func (b *Bus) Publish(event any) {
	if event == nil {
		return
	}
	b.publish(reflect.TypeOf(event), event)
}

func (b *Bus) publish(t reflect.Type, event any) {
	b.mu.Lock()
	b.back = append(b.back, entry{t: t, ev: event})
	b.mu.Unlock()
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// Pending returns the number of events waiting for the next Flush.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.back)
}

// Flush rotates back→front and delivers every front-buffer event to its
// handlers. Events emitted by handlers land in the new back buffer and are
// delivered by the following Flush. Returns the number of events delivered.
func (b *Bus) Flush() int {
	b.mu.Lock()
	b.front, b.back = b.back, b.front[:0]
	handlers := make(map[reflect.Type][]func(any), len(b.handlers))
	for t, hs := range b.handlers {
		handlers[t] = hs
	}
	b.mu.Unlock()

	for _, e := range b.front {
		for _, h := range handlers[e.t] {
			h(e.ev)
		}
	}
	n := len(b.front)
	clear(b.front) // drop references held by the spent buffer
	b.front = b.front[:0]
	return n
}
