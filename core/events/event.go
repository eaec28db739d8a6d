package events

import "portfolium/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render themselves into the
// canonical attribute map consumed by indexers and the event stream.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. API, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts an ordinary function to the Emitter interface.
type EmitterFunc func(Event)

// Emit implements the Emitter interface.
func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// Render converts any event into its attribute form. Events that do not
// implement Payload are rendered with their type only.
func Render(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if p, ok := evt.(Payload); ok {
		if rendered := p.Event(); rendered != nil {
			return rendered.Clone()
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}
