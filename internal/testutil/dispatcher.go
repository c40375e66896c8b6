package testutil

import (
	"sync"

	"github.com/roach88/hypergraph/internal/event"
)

// RecordingDispatcher records every event it handles and forwards it to an
// optional next dispatcher.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingDispatcher struct {
	mu     sync.Mutex
	next   event.Dispatcher
	events []event.Event
	err    error
}

// NewRecordingDispatcher creates a dispatcher forwarding to next, which may
// be nil.
func NewRecordingDispatcher(next event.Dispatcher) *RecordingDispatcher {
	return &RecordingDispatcher{next: next}
}

// FailWith makes every later Handle call record the event and return err
// without forwarding. A nil err restores forwarding.
func (d *RecordingDispatcher) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Handle records e, then forwards it.
func (d *RecordingDispatcher) Handle(e event.Event) error {
	d.mu.Lock()
	d.events = append(d.events, e)
	next, err := d.next, d.err
	d.mu.Unlock()

	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	return next.Handle(e)
}

// Events returns a copy of the recorded events.
func (d *RecordingDispatcher) Events() []event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]event.Event(nil), d.events...)
}

// Len returns the number of recorded events.
func (d *RecordingDispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

// IDs returns the element ids of the recorded events in order.
func (d *RecordingDispatcher) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.events))
	for i, e := range d.events {
		out[i] = e.Meta().ID
	}
	return out
}
