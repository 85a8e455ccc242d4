package timeline

import (
	"time"
)

// Event is a single entry in the gateway's audit log.
type Event struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"event_id"`  // Unique ID (WhatsApp message ID or generated)
	Timestamp time.Time `json:"timestamp"` // When it happened
	Direction string    `json:"direction"` // inbound, outbound, system
	Peer      string    `json:"peer"`      // Chat or destination, empty for system events
	Kind      string    `json:"kind"`      // message, status, send
	Content   string    `json:"content"`   // Message body or status value
	Status    string    `json:"status"`    // Delivery outcome for sends, new status for status events
	Metadata  string    `json:"metadata,omitempty"`
}

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
	DirectionSystem   = "system"

	KindMessage = "message"
	KindStatus  = "status"
	KindSend    = "send"

	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

const Schema = `
CREATE TABLE IF NOT EXISTS timeline (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT UNIQUE,
	timestamp DATETIME NOT NULL,
	direction TEXT NOT NULL,
	peer TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	metadata TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_timeline_timestamp ON timeline(timestamp);
CREATE INDEX IF NOT EXISTS idx_timeline_peer ON timeline(peer);
CREATE INDEX IF NOT EXISTS idx_timeline_kind ON timeline(kind);
`
