package channels

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backoff is a capped exponential delay schedule.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Delay returns Initial doubled attempt times, capped at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt; i++ {
		if d >= b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Reconnector re-runs an init function after disconnects. At most one
// attempt is pending at a time and at most MaxAttempts are scheduled between
// two calls to Reset. A Schedule that lands while an attempt is running is
// remembered and re-arms once that attempt returns.
type Reconnector struct {
	backoff Backoff
	initFn  func(ctx context.Context) error
	ctx     context.Context
	log     *zap.Logger

	mu       sync.Mutex
	attempts int
	pending  bool
	rearm    bool
	warned   bool
	stopped  bool
	timer    *time.Timer
	wg       sync.WaitGroup
}

// NewReconnector returns a Reconnector calling initFn with ctx.
func NewReconnector(ctx context.Context, b Backoff, initFn func(ctx context.Context) error, log *zap.Logger) *Reconnector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconnector{
		backoff: b,
		initFn:  initFn,
		ctx:     ctx,
		log:     log.Named("reconnect"),
	}
}

// Schedule arms the next attempt. It reports false when an attempt is
// already pending, the budget is spent or the reconnector was stopped.
func (r *Reconnector) Schedule() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.ctx.Err() != nil {
		return false
	}
	if r.pending {
		r.rearm = true
		return false
	}
	if r.attempts >= r.backoff.MaxAttempts {
		if !r.warned {
			r.warned = true
			r.log.Warn("reconnect attempts exhausted, waiting for next ready event",
				zap.Int("attempts", r.attempts))
		}
		return false
	}
	delay := r.backoff.Delay(r.attempts)
	r.attempts++
	r.pending = true
	r.wg.Add(1)
	r.timer = time.AfterFunc(delay, r.fire)
	r.log.Info("reconnect scheduled", zap.Int("attempt", r.attempts), zap.Duration("delay", delay))
	return true
}

func (r *Reconnector) fire() {
	defer r.wg.Done()

	r.mu.Lock()
	if r.stopped {
		r.pending = false
		r.mu.Unlock()
		return
	}
	// Disconnects seen before this attempt starts are covered by it.
	r.rearm = false
	r.mu.Unlock()

	err := r.initFn(r.ctx)

	r.mu.Lock()
	r.pending = false
	r.timer = nil
	rearm := r.rearm
	r.rearm = false
	r.mu.Unlock()

	switch {
	case err != nil:
		r.log.Warn("reconnect attempt failed", zap.Error(err))
		r.Schedule()
	case rearm:
		r.log.Info("disconnected while reconnecting, re-arming")
		r.Schedule()
	}
}

// Reset restores the attempt budget and cancels a pending attempt.
func (r *Reconnector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = 0
	r.warned = false
	r.rearm = false
	r.cancelLocked()
}

// Attempts returns the number of attempts scheduled since the last Reset.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Pending reports whether an attempt is armed or running.
func (r *Reconnector) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Stop cancels any pending attempt and waits for a running one to return.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.cancelLocked()
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Reconnector) cancelLocked() {
	if r.timer != nil && r.timer.Stop() {
		r.pending = false
		r.wg.Done()
	}
	r.timer = nil
}
