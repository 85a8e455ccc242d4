package channels

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KafClaw/wagateway/internal/bus"
	"github.com/KafClaw/wagateway/internal/session"
	"github.com/KafClaw/wagateway/internal/sink"
	"github.com/KafClaw/wagateway/internal/timeline"
)

// HandlerOptions wires a Handler. Bus, Tracker and Adapter are required.
type HandlerOptions struct {
	Bus         *bus.EventBus
	Tracker     *session.Tracker
	Adapter     Adapter
	Responder   *Responder
	Reconnector *Reconnector
	Timeline    *timeline.Service
	Sink        sink.Sink
	QR          *QRPresenter
	Log         *zap.Logger
	SendTimeout time.Duration
}

// Handler is the single consumer of the event bus and the only writer of
// the session tracker.
type Handler struct {
	bus         *bus.EventBus
	tracker     *session.Tracker
	adapter     Adapter
	responder   *Responder
	reconnector *Reconnector
	timeline    *timeline.Service
	sink        sink.Sink
	qr          *QRPresenter
	log         *zap.Logger
	sendTimeout time.Duration
}

func NewHandler(opts HandlerOptions) *Handler {
	h := &Handler{
		bus:         opts.Bus,
		tracker:     opts.Tracker,
		adapter:     opts.Adapter,
		responder:   opts.Responder,
		reconnector: opts.Reconnector,
		timeline:    opts.Timeline,
		sink:        opts.Sink,
		qr:          opts.QR,
		log:         opts.Log,
		sendTimeout: opts.SendTimeout,
	}
	if h.responder == nil {
		h.responder = NewResponder(nil)
	}
	if h.sink == nil {
		h.sink = sink.Nop{}
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	h.log = h.log.Named("handler")
	if h.sendTimeout <= 0 {
		h.sendTimeout = 30 * time.Second
	}
	return h
}

// Run consumes events until ctx is cancelled or the bus is closed.
func (h *Handler) Run(ctx context.Context) error {
	for {
		evt, err := h.bus.Consume(ctx)
		if err != nil {
			if errors.Is(err, bus.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		h.Handle(ctx, evt)
	}
}

// Handle applies a single event.
func (h *Handler) Handle(ctx context.Context, evt *bus.Event) {
	switch evt.Kind {
	case bus.EventPairingCode:
		if h.transition(ctx, evt, func() { h.tracker.IssuePairingCode(evt.Code) }) {
			h.log.Info("pairing code issued")
			if err := h.qr.Present(evt.Code); err != nil {
				h.log.Warn("failed to present QR code", zap.Error(err))
			}
		}
	case bus.EventReady:
		h.transition(ctx, evt, func() { h.tracker.Set(session.StatusReady) })
		if h.reconnector != nil {
			h.reconnector.Reset()
		}
	case bus.EventAuthenticated:
		h.transition(ctx, evt, func() { h.tracker.Set(session.StatusAuthenticated) })
	case bus.EventAuthFailed:
		h.log.Warn("authentication failed", zap.String("reason", evt.Reason))
		h.transition(ctx, evt, func() { h.tracker.Set(session.StatusAuthFailure) })
	case bus.EventDisconnected:
		h.log.Warn("client disconnected", zap.String("reason", evt.Reason))
		h.transition(ctx, evt, func() { h.tracker.Set(session.StatusDisconnected) })
		if h.reconnector != nil {
			h.reconnector.Schedule()
		}
	case bus.EventMessage:
		h.handleMessage(ctx, evt)
	default:
		h.log.Debug("ignoring event", zap.String("kind", string(evt.Kind)))
	}
}

// transition applies mutate and records the new status when it changed.
func (h *Handler) transition(ctx context.Context, evt *bus.Event, mutate func()) bool {
	before := h.tracker.Snapshot()
	mutate()
	after := h.tracker.Snapshot()
	if before.Status == after.Status && before.PairingCode == after.PairingCode {
		return false
	}
	h.log.Info("status changed",
		zap.String("from", before.Status.String()),
		zap.String("to", after.Status.String()))
	h.record(ctx, &timeline.Event{
		Timestamp: evt.Timestamp,
		Direction: timeline.DirectionSystem,
		Kind:      timeline.KindStatus,
		Content:   after.Status.String(),
		Status:    after.Status.String(),
		Metadata:  evt.Reason,
	}, evt.Reason)
	return true
}

func (h *Handler) handleMessage(ctx context.Context, evt *bus.Event) {
	h.log.Info("message received", zap.String("from", evt.Sender), zap.String("id", evt.MessageID))
	h.record(ctx, &timeline.Event{
		EventID:   evt.MessageID,
		Timestamp: evt.Timestamp,
		Direction: timeline.DirectionInbound,
		Peer:      evt.Sender,
		Kind:      timeline.KindMessage,
		Content:   evt.Body,
	}, "")

	reply := h.responder.Reply(evt.Body)
	sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()

	status := timeline.DeliverySent
	var reason string
	if err := h.adapter.SendMessage(sendCtx, evt.Sender, reply); err != nil {
		h.log.Error("failed to send reply", zap.String("to", evt.Sender), zap.Error(err))
		status = timeline.DeliveryFailed
		reason = err.Error()
	}
	h.record(ctx, &timeline.Event{
		Direction: timeline.DirectionOutbound,
		Peer:      evt.Sender,
		Kind:      timeline.KindSend,
		Content:   reply,
		Status:    status,
		Metadata:  reason,
	}, reason)
}

// RecordSend logs an API-initiated send to the timeline and sink.
func (h *Handler) RecordSend(ctx context.Context, destination, body string, sendErr error) {
	status := timeline.DeliverySent
	var reason string
	if sendErr != nil {
		status = timeline.DeliveryFailed
		reason = sendErr.Error()
	}
	h.record(ctx, &timeline.Event{
		Direction: timeline.DirectionOutbound,
		Peer:      destination,
		Kind:      timeline.KindSend,
		Content:   body,
		Status:    status,
		Metadata:  reason,
	}, reason)
}

func (h *Handler) record(ctx context.Context, evt *timeline.Event, reason string) {
	if h.timeline != nil {
		if err := h.timeline.AddEvent(evt); err != nil {
			h.log.Warn("failed to record timeline event", zap.Error(err))
		}
	}
	// Without a timeline the sink still needs an id and a time.
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := h.sink.Publish(pubCtx, sink.Record{
		EventID:   evt.EventID,
		Kind:      evt.Kind,
		Status:    evt.Status,
		Peer:      evt.Peer,
		Content:   evt.Content,
		Reason:    reason,
		Timestamp: evt.Timestamp,
	})
	if err != nil {
		h.log.Warn("failed to publish event", zap.Error(err))
	}
}
