package channels

import (
	"strings"
	"time"
)

// Fixed auto-reply texts.
const (
	ReplyGreeting = "👋 Hello! How can I assist you today?"
	ReplyHelp     = "Available commands:\n- hello: Greet the bot\n- help: Show this help message\n- time: Get current time"
	ReplyUnknown  = "I didn't understand that. Type 'help' for available commands."

	timeLayout = "3:04:05 PM"
)

// Responder maps an inbound body to its keyword reply.
type Responder struct {
	now func() time.Time
}

// NewResponder returns a Responder reading the clock from now, or
// time.Now when nil.
func NewResponder(now func() time.Time) *Responder {
	if now == nil {
		now = time.Now
	}
	return &Responder{now: now}
}

// Reply lower-cases body and matches it exactly. Surrounding whitespace is
// significant.
func (r *Responder) Reply(body string) string {
	switch strings.ToLower(body) {
	case "hello", "hi":
		return ReplyGreeting
	case "help":
		return ReplyHelp
	case "time":
		return "The current time is: " + r.now().Format(timeLayout)
	default:
		return ReplyUnknown
	}
}
