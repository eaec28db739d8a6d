package events

import (
	"sync"

	"portfolium/core/types"
)

// Recorder buffers events in memory. The platform hands a recorder to every
// engine for the duration of a call and only forwards the buffered events once
// the call succeeds.
type Recorder struct {
	mu     sync.Mutex
	events []*types.Event
}

// NewRecorder constructs an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	rendered := Render(evt)
	if r == nil || rendered == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, rendered)
	r.mu.Unlock()
}

// Events returns a copy of the buffered events in emission order.
func (r *Recorder) Events() []*types.Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Drain returns the buffered events and clears the buffer.
func (r *Recorder) Drain() []*types.Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Reset discards every buffered event.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Filter returns the buffered events whose type matches eventType.
func (r *Recorder) Filter(eventType string) []*types.Event {
	var out []*types.Event
	for _, evt := range r.Events() {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}
