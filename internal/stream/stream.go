// Package stream provides the observable status and event streams exposed by
// the capture and playback components.
package stream

import (
	"log/slog"
	"sync"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Subscription receives values published after it was created.
type Subscription[T any] struct {
	C <-chan T

	c    chan T
	once sync.Once
}

func (s *Subscription[T]) close() {
	s.once.Do(func() { close(s.c) })
}

// hub fans values out to subscribers in publish order. Slow subscribers get
// values dropped rather than blocking the publisher.
type hub[T any] struct {
	name   string
	subs   map[*Subscription[T]]struct{}
	closed bool
}

func (h *hub[T]) subscribe() *Subscription[T] {
	c := make(chan T, DefaultBuffer)
	s := &Subscription[T]{C: c, c: c}
	if h.closed {
		s.close()
		return s
	}
	if h.subs == nil {
		h.subs = make(map[*Subscription[T]]struct{})
	}
	h.subs[s] = struct{}{}
	return s
}

func (h *hub[T]) unsubscribe(s *Subscription[T]) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	s.close()
}

func (h *hub[T]) publish(v T) {
	for s := range h.subs {
		select {
		case s.c <- v:
		default:
			slog.Warn("Stream subscriber is full, dropping value", "stream", h.name)
		}
	}
}

func (h *hub[T]) closeAll() {
	h.closed = true
	for s := range h.subs {
		s.close()
	}
	h.subs = nil
}

// Value is a continuous stream: it always has a current value, which is
// replayed to every new subscriber. Every Set is delivered, including
// repeats of the current value.
type Value[T any] struct {
	mu      sync.Mutex
	current T
	hub     hub[T]
}

// NewValue creates a value stream starting at initial.
func NewValue[T any](name string, initial T) *Value[T] {
	return &Value[T]{current: initial, hub: hub[T]{name: name}}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set stores x and publishes it.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.hub.closed {
		return
	}
	v.current = x
	v.hub.publish(x)
}

// Subscribe registers a subscriber; the current value is its first element.
func (v *Value[T]) Subscribe() *Subscription[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.hub.subscribe()
	if !v.hub.closed {
		s.c <- v.current
	}
	return s
}

// Unsubscribe removes s and closes its channel.
func (v *Value[T]) Unsubscribe(s *Subscription[T]) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hub.unsubscribe(s)
}

// Close closes every subscription; later Sets are ignored.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hub.closeAll()
}

// Event is a discrete stream without replay.
type Event[T any] struct {
	mu  sync.Mutex
	hub hub[T]
}

// NewEvent creates an event stream.
func NewEvent[T any](name string) *Event[T] {
	return &Event[T]{hub: hub[T]{name: name}}
}

// Send publishes x to the current subscribers.
func (e *Event[T]) Send(x T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hub.closed {
		return
	}
	e.hub.publish(x)
}

func (e *Event[T]) Subscribe() *Subscription[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hub.subscribe()
}

func (e *Event[T]) Unsubscribe(s *Subscription[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hub.unsubscribe(s)
}

func (e *Event[T]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hub.closeAll()
}
