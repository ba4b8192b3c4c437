package report

import (
	"sync"
	"time"
)

// DefaultBuffer is the event channel capacity used when none is given
const DefaultBuffer = 1024

// Dispatcher fans events out to a set of sinks from a single goroutine, so
// every sink sees the events of a job in emission order.
type Dispatcher struct {
	events chan Event
	sinks  []EventSink
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a dispatcher delivering to sinks
func NewDispatcher(buffer int, sinks ...EventSink) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	d := &Dispatcher{
		events: make(chan Event, buffer),
		sinks:  sinks,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.events {
		for _, sink := range d.sinks {
			sink.Emit(e)
		}
	}
}

// Emit queues an event. Events emitted after Close are dropped.
func (d *Dispatcher) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	d.events <- e
}

// Close stops accepting events and waits until queued ones are delivered
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	<-d.done
}

// SinkFunc adapts a function to EventSink
type SinkFunc func(Event)

// Emit implements EventSink
func (f SinkFunc) Emit(e Event) { f(e) }
