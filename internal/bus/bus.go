// Package bus carries messaging adapter events to the event handler.
package bus

import (
	"context"
	"errors"
	"sync"
	"time"
)

// EventKind tags the variant carried by an Event.
type EventKind string

// Lifecycle and message event kinds emitted by adapters.
const (
	EventPairingCode   EventKind = "pairing_code_issued"
	EventReady         EventKind = "session_ready"
	EventAuthenticated EventKind = "authenticated"
	EventAuthFailed    EventKind = "auth_failed"
	EventDisconnected  EventKind = "disconnected"
	EventMessage       EventKind = "message_received"
)

// ErrClosed is returned by Consume once the bus has been closed.
var ErrClosed = errors.New("event bus closed")

// Event is a tagged adapter notification. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind      EventKind `json:"kind"`
	Channel   string    `json:"channel,omitempty"`
	Code      string    `json:"code,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Body      string    `json:"body,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PairingCodeIssued reports a fresh pairing code.
func PairingCodeIssued(code string) *Event {
	return &Event{Kind: EventPairingCode, Code: code}
}

// SessionReady reports that the session can send and receive.
func SessionReady() *Event { return &Event{Kind: EventReady} }

// Authenticated reports successful authentication.
func Authenticated() *Event { return &Event{Kind: EventAuthenticated} }

// AuthFailed reports an authentication failure.
func AuthFailed(reason string) *Event {
	return &Event{Kind: EventAuthFailed, Reason: reason}
}

// Disconnected reports a lost connection.
func Disconnected(reason string) *Event {
	return &Event{Kind: EventDisconnected, Reason: reason}
}

// MessageReceived reports an inbound text message.
func MessageReceived(id, sender, body string) *Event {
	return &Event{Kind: EventMessage, MessageID: id, Sender: sender, Body: body}
}

// EventBus decouples adapters from the event handler. Events are delivered
// in publish order to a single consumer.
type EventBus struct {
	events    chan *Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventBus creates a bus buffering up to size events.
func NewEventBus(size int) *EventBus {
	if size <= 0 {
		size = 100
	}
	return &EventBus{
		events: make(chan *Event, size),
		done:   make(chan struct{}),
	}
}

// Publish enqueues evt, blocking while the buffer is full. It returns false
// if the bus was closed.
func (b *EventBus) Publish(evt *Event) bool {
	if evt == nil {
		return false
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case <-b.done:
		return false
	default:
	}
	select {
	case b.events <- evt:
		return true
	case <-b.done:
		return false
	}
}

// Consume blocks until an event is available, the context is cancelled or
// the bus is closed.
func (b *EventBus) Consume(ctx context.Context) (*Event, error) {
	select {
	case evt := <-b.events:
		return evt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrClosed
	}
}

// Close stops the bus. Pending events are dropped.
func (b *EventBus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Size returns the number of pending events.
func (b *EventBus) Size() int {
	return len(b.events)
}
