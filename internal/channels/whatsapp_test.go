package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/KafClaw/wagateway/internal/bus"
	"github.com/KafClaw/wagateway/internal/config"
)

func newTestAdapter(t *testing.T) (*WhatsAppAdapter, *bus.EventBus) {
	t.Helper()
	b := bus.NewEventBus(16)
	t.Cleanup(b.Close)
	a := NewWhatsAppAdapter(config.WhatsAppConfig{DataDir: t.TempDir()}, b, nil)
	return a, b
}

func nextEvent(t *testing.T, b *bus.EventBus) *bus.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	evt, err := b.Consume(ctx)
	require.NoError(t, err)
	return evt
}

func TestWhatsAppHandleEventMapping(t *testing.T) {
	a, b := newTestAdapter(t)

	cases := []struct {
		in   interface{}
		kind bus.EventKind
	}{
		{&events.PairSuccess{ID: types.NewJID("1", types.DefaultUserServer)}, bus.EventAuthenticated},
		{&events.Connected{}, bus.EventReady},
		{&events.LoggedOut{Reason: events.ConnectFailureLoggedOut}, bus.EventDisconnected},
		{&events.LoggedOut{Reason: events.ConnectFailureUnknownLogout}, bus.EventAuthFailed},
		{&events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable}, bus.EventDisconnected},
		{&events.ConnectFailure{Reason: events.ConnectFailureInternalServerError, Message: "nope"}, bus.EventDisconnected},
		{&events.ConnectFailure{Reason: events.ConnectFailureMainDeviceGone}, bus.EventDisconnected},
		{&events.ConnectFailure{Reason: events.ConnectFailureTempBanned}, bus.EventAuthFailed},
		{&events.ConnectFailure{Reason: events.ConnectFailureClientOutdated}, bus.EventAuthFailed},
		{&events.ClientOutdated{}, bus.EventAuthFailed},
		{&events.StreamReplaced{}, bus.EventDisconnected},
		{&events.Disconnected{}, bus.EventDisconnected},
	}
	for _, tc := range cases {
		a.handleEvent(tc.in)
		evt := nextEvent(t, b)
		assert.Equal(t, tc.kind, evt.Kind, "%T", tc.in)
		assert.Equal(t, "whatsapp", evt.Channel)
	}
}

func TestWhatsAppHandleInboundMessage(t *testing.T) {
	a, b := newTestAdapter(t)
	chat := types.NewJID("12025550165", types.DefaultUserServer)

	msg := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: chat},
			ID:            "3EB0ABC",
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	}
	a.handleEvent(msg)

	evt := nextEvent(t, b)
	assert.Equal(t, bus.EventMessage, evt.Kind)
	assert.Equal(t, "3EB0ABC", evt.MessageID)
	assert.Equal(t, "12025550165@s.whatsapp.net", evt.Sender)
	assert.Equal(t, "hello", evt.Body)
}

func TestWhatsAppIgnoresOwnAndEmptyMessages(t *testing.T) {
	a, b := newTestAdapter(t)
	chat := types.NewJID("12025550165", types.DefaultUserServer)

	a.handleEvent(&events.Message{
		Info:    types.MessageInfo{MessageSource: types.MessageSource{Chat: chat, IsFromMe: true}},
		Message: &waE2E.Message{Conversation: proto.String("echo")},
	})
	a.handleEvent(&events.Message{
		Info:    types.MessageInfo{MessageSource: types.MessageSource{Chat: chat}},
		Message: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}},
	})
	a.handleEvent(&events.Message{
		Info:    types.MessageInfo{MessageSource: types.MessageSource{Chat: types.StatusBroadcastJID, Sender: chat}},
		Message: &waE2E.Message{Conversation: proto.String("new status")},
	})
	a.handleEvent(&events.Message{
		Info:    types.MessageInfo{MessageSource: types.MessageSource{Chat: types.NewJID("1700000000", types.BroadcastServer), Sender: chat}},
		Message: &waE2E.Message{Conversation: proto.String("list message")},
	})
	assert.Equal(t, 0, b.Size())
}

func TestWhatsAppLogoutDropsClient(t *testing.T) {
	a, b := newTestAdapter(t)
	a.client = &whatsmeow.Client{}

	a.handleEvent(&events.LoggedOut{Reason: events.ConnectFailureLoggedOut})

	evt := nextEvent(t, b)
	assert.Equal(t, bus.EventDisconnected, evt.Kind)
	assert.Contains(t, evt.Reason, "logged out")
	assert.Nil(t, a.client)
}

func TestWhatsAppWatchQR(t *testing.T) {
	a, b := newTestAdapter(t)
	qrChan := make(chan whatsmeow.QRChannelItem, 4)
	qrChan <- whatsmeow.QRChannelItem{Event: "code", Code: "2@first"}
	qrChan <- whatsmeow.QRChannelItem{Event: "success"}
	qrChan <- whatsmeow.QRChannelItem{Event: "timeout"}
	qrChan <- whatsmeow.QRChannelItem{Event: "error", Error: errors.New("bad pairing")}
	close(qrChan)

	a.watchQR(qrChan)

	evt := nextEvent(t, b)
	assert.Equal(t, bus.EventPairingCode, evt.Kind)
	assert.Equal(t, "2@first", evt.Code)

	evt = nextEvent(t, b)
	assert.Equal(t, bus.EventDisconnected, evt.Kind)

	evt = nextEvent(t, b)
	assert.Equal(t, bus.EventAuthFailed, evt.Kind)
	assert.Equal(t, "bad pairing", evt.Reason)
}

func TestWhatsAppSendMessageUsesLegacyDestination(t *testing.T) {
	a, _ := newTestAdapter(t)

	var gotJID types.JID
	var gotText string
	a.sendFn = func(ctx context.Context, to types.JID, msg *waE2E.Message) error {
		gotJID = to
		gotText = msg.GetConversation()
		return nil
	}

	require.NoError(t, a.SendMessage(context.Background(), "12025550165@c.us", "Hi"))
	assert.Equal(t, types.NewJID("12025550165", types.DefaultUserServer), gotJID)
	assert.Equal(t, "Hi", gotText)
}

func TestWhatsAppSendMessageBeforeInitialize(t *testing.T) {
	a, _ := newTestAdapter(t)
	err := a.SendMessage(context.Background(), "12025550165@c.us", "Hi")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestWhatsAppSendMessageInvalidDestination(t *testing.T) {
	a, _ := newTestAdapter(t)
	err := a.SendMessage(context.Background(), "@c.us", "Hi")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotInitialized))
}

func TestWhatsAppCloseWithoutInitialize(t *testing.T) {
	a, _ := newTestAdapter(t)
	assert.NoError(t, a.Close())
	assert.Equal(t, "whatsapp", a.Name())
}
