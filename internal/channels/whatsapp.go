package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"

	"github.com/KafClaw/wagateway/internal/bus"
	"github.com/KafClaw/wagateway/internal/config"
	"github.com/KafClaw/wagateway/internal/logging"
)

// WhatsAppAdapter drives a whatsmeow client and reports its lifecycle on the
// event bus.
type WhatsAppAdapter struct {
	BaseChannel
	config config.WhatsAppConfig
	log    *zap.Logger
	waLog  waLog.Logger

	mu        sync.Mutex
	client    *whatsmeow.Client
	container *sqlstore.Container
	sendFn    func(ctx context.Context, to types.JID, msg *waE2E.Message) error
}

// NewWhatsAppAdapter creates an adapter storing its session under
// cfg.DataDir.
func NewWhatsAppAdapter(cfg config.WhatsAppConfig, eventBus *bus.EventBus, log *zap.Logger) *WhatsAppAdapter {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("whatsapp")
	return &WhatsAppAdapter{
		BaseChannel: BaseChannel{Bus: eventBus},
		config:      cfg,
		log:         log,
		waLog:       logging.WhatsApp(log, zapcore.WarnLevel),
	}
}

func (a *WhatsAppAdapter) Name() string { return "whatsapp" }

// Initialize opens the credential store on first use and connects. Without a
// stored session a pairing flow is started and its codes are published as
// they rotate. Calling it while connected is a no-op.
func (a *WhatsAppAdapter) Initialize(ctx context.Context) error {
	client, err := a.ensureClient(ctx)
	if err != nil {
		return err
	}
	if client.IsConnected() {
		return nil
	}

	if client.Store.ID == nil {
		// No session, need to pair
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to start pairing: %w", err)
		}
		if err := client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		go a.watchQR(qrChan)
		return nil
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (a *WhatsAppAdapter) ensureClient(ctx context.Context) (*whatsmeow.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}

	if a.container == nil {
		if err := config.EnsureDir(a.config.DataDir); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		dbPath := a.config.SessionDBPath()
		container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", a.waLog.Sub("Database"))
		if err != nil {
			return nil, fmt.Errorf("failed to init whatsapp db: %w", err)
		}
		a.container = container
	}

	deviceStore, err := a.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, a.waLog.Sub("Client"))
	// Reconnects are driven by the gateway's bounded policy.
	client.EnableAutoReconnect = false
	client.AddEventHandler(a.handleEvent)
	a.client = client
	return client, nil
}

func (a *WhatsAppAdapter) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			a.emit(a.Name(), bus.PairingCodeIssued(item.Code))
		case "success":
			// PairSuccess arrives through the event handler.
		case "timeout":
			a.emit(a.Name(), bus.Disconnected("pairing timed out"))
		default:
			reason := item.Event
			if item.Error != nil {
				reason = item.Error.Error()
			}
			a.emit(a.Name(), bus.AuthFailed(reason))
		}
	}
}

func (a *WhatsAppAdapter) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		a.log.Info("paired", zap.String("jid", v.ID.String()))
		a.emit(a.Name(), bus.Authenticated())
	case *events.Connected:
		a.emit(a.Name(), bus.SessionReady())
	case *events.LoggedOut:
		// The device store is wiped, so the next Initialize pairs a fresh device.
		a.dropClient()
		if terminalFailure(v.Reason) {
			a.emit(a.Name(), bus.AuthFailed(fmt.Sprintf("logged out: %v", v.Reason)))
			return
		}
		a.emit(a.Name(), bus.Disconnected(fmt.Sprintf("logged out: %v", v.Reason)))
	case *events.ConnectFailure:
		reason := fmt.Sprintf("connect failure: %v %s", v.Reason, v.Message)
		if terminalFailure(v.Reason) {
			a.emit(a.Name(), bus.AuthFailed(reason))
			return
		}
		if v.Reason.IsLoggedOut() {
			a.dropClient()
		}
		a.emit(a.Name(), bus.Disconnected(reason))
	case *events.TemporaryBan:
		a.emit(a.Name(), bus.AuthFailed(fmt.Sprintf("temporary ban: %v", v)))
	case *events.ClientOutdated:
		a.emit(a.Name(), bus.AuthFailed("client outdated"))
	case *events.StreamReplaced:
		a.emit(a.Name(), bus.Disconnected("stream replaced"))
	case *events.Disconnected:
		a.emit(a.Name(), bus.Disconnected("connection lost"))
	case *events.Message:
		// Status updates and broadcast lists are not conversations; a reply
		// there would be posted as the account's own status.
		if v.Info.IsFromMe || v.Info.Chat.Server == types.BroadcastServer || v.Info.IsIncomingBroadcast() {
			return
		}
		body := messageText(v.Message)
		if body == "" {
			return
		}
		a.emit(a.Name(), bus.MessageReceived(string(v.Info.ID), v.Info.Chat.String(), body))
	}
}

// terminalFailure reports connect failures that re-initializing cannot fix.
func terminalFailure(reason events.ConnectFailureReason) bool {
	switch reason {
	case events.ConnectFailureTempBanned,
		events.ConnectFailureUnknownLogout,
		events.ConnectFailureClientOutdated,
		events.ConnectFailureBadUserAgent:
		return true
	}
	return false
}

// dropClient forgets the current client so the next Initialize builds one on
// the store's current device.
func (a *WhatsAppAdapter) dropClient() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client = nil
}

// messageText extracts the text of plain and extended text messages.
func messageText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	return msg.GetExtendedTextMessage().GetText()
}

// SendMessage sends body as a plain text message.
func (a *WhatsAppAdapter) SendMessage(ctx context.Context, destination, body string) error {
	jid, err := ParseDestination(destination)
	if err != nil {
		return err
	}
	msg := &waE2E.Message{
		Conversation: proto.String(body),
	}
	if a.sendFn != nil {
		return a.sendFn(ctx, jid, msg)
	}

	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return ErrNotInitialized
	}
	if _, err := client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send to %s: %w", jid, err)
	}
	return nil
}

// ParseDestination maps a destination string to a JID. "<user>@c.us" and bare
// numbers address an individual chat; anything else must be a full JID.
func ParseDestination(dest string) (types.JID, error) {
	dest = strings.TrimSpace(dest)
	user, isLegacy := strings.CutSuffix(dest, LegacyUserSuffix)
	if isLegacy || !strings.Contains(dest, "@") {
		user = strings.TrimPrefix(user, "+")
		if user == "" {
			return types.EmptyJID, fmt.Errorf("invalid destination %q", dest)
		}
		return types.NewJID(user, types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(dest)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("invalid JID: %w", err)
	}
	if jid.User == "" {
		return types.EmptyJID, fmt.Errorf("invalid destination %q", dest)
	}
	return jid, nil
}

// Close disconnects the client and closes the credential store.
func (a *WhatsAppAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		a.client.Disconnect()
		a.client = nil
	}
	if a.container != nil {
		err := a.container.Close()
		a.container = nil
		return err
	}
	return nil
}
