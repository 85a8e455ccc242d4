// Package session tracks the lifecycle state of the messaging session.
package session

import (
	"sync"
	"time"
)

// Status is the current lifecycle phase of the adapter's connection.
type Status string

const (
	StatusInitializing  Status = "initializing"
	StatusQRReady       Status = "qr_ready"
	StatusAuthenticated Status = "authenticated"
	StatusReady         Status = "ready"
	StatusAuthFailure   Status = "auth_failure"
	StatusDisconnected  Status = "disconnected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInitializing, StatusQRReady, StatusAuthenticated,
		StatusReady, StatusAuthFailure, StatusDisconnected:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Snapshot is a point-in-time copy of the tracker state.
type Snapshot struct {
	Status      Status    `json:"status"`
	PairingCode string    `json:"qrCode,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Tracker owns the session status and the latest pairing code.
// The pairing code is only ever non-empty while the status is qr_ready.
type Tracker struct {
	mu        sync.RWMutex
	status    Status
	code      string
	updatedAt time.Time
	subs      map[int]chan Snapshot
	nextSub   int
}

// NewTracker creates a tracker in the initializing state.
func NewTracker() *Tracker {
	return &Tracker{
		status:    StatusInitializing,
		updatedAt: time.Now(),
		subs:      make(map[int]chan Snapshot),
	}
}

// Status returns the current status.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Set moves the tracker to status. Any status other than qr_ready clears
// the pairing code.
func (t *Tracker) Set(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	code := t.code
	if status != StatusQRReady {
		code = ""
	}
	t.apply(status, code)
}

// SetPairingCode stores code, or clears it when code is empty. A non-empty
// code is only accepted while the status is qr_ready.
func (t *Tracker) SetPairingCode(code string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if code != "" && t.status != StatusQRReady {
		return false
	}
	t.apply(t.status, code)
	return true
}

// IssuePairingCode moves to qr_ready and stores code in one step.
func (t *Tracker) IssuePairingCode(code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if code == "" {
		t.apply(StatusQRReady, t.code)
		return
	}
	t.apply(StatusQRReady, code)
}

// PairingCode returns the current pairing code, if any.
func (t *Tracker) PairingCode() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.code, t.code != ""
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// Subscribe returns a channel that receives the latest snapshot after every
// change. Slow readers only ever see the most recent state. The returned
// func unsubscribes and closes the channel.
func (t *Tracker) Subscribe() (<-chan Snapshot, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	ch := make(chan Snapshot, 1)
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
			close(ch)
		})
	}
}

func (t *Tracker) apply(status Status, code string) {
	if status == t.status && code == t.code {
		return
	}
	t.status = status
	t.code = code
	t.updatedAt = time.Now()

	snap := t.snapshotLocked()
	for _, ch := range t.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{
		Status:      t.status,
		PairingCode: t.code,
		UpdatedAt:   t.updatedAt,
	}
}
