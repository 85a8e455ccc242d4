package channels

import (
	"context"
	"errors"
	"strings"

	"github.com/KafClaw/wagateway/internal/bus"
)

// Adapter is the capability surface of a messaging client. Lifecycle and
// inbound messages are reported on the event bus, never through return values.
type Adapter interface {
	// Name returns the adapter name (e.g. "whatsapp").
	Name() string
	// Initialize connects the client, starting pairing when no session exists.
	Initialize(ctx context.Context) error
	// SendMessage sends a text body to a destination.
	SendMessage(ctx context.Context, destination, body string) error
	// Close disconnects and releases the credential store.
	Close() error
}

// ErrNotInitialized is returned by SendMessage before Initialize succeeded.
var ErrNotInitialized = errors.New("messaging client not initialized")

// BaseChannel provides common functionality for adapters.
type BaseChannel struct {
	Bus *bus.EventBus
}

func (b BaseChannel) emit(channel string, evt *bus.Event) {
	if b.Bus == nil {
		return
	}
	evt.Channel = channel
	b.Bus.Publish(evt)
}

// LegacyUserSuffix marks an individual chat in destination strings.
const LegacyUserSuffix = "@c.us"

// NormalizeDestination appends LegacyUserSuffix unless phone already ends
// with it.
func NormalizeDestination(phone string) string {
	if strings.HasSuffix(phone, LegacyUserSuffix) {
		return phone
	}
	return phone + LegacyUserSuffix
}
