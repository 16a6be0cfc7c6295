package transport

import (
	"context"
	"fmt"
	"log"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"gowa-dispatch/internal/model"
)

// WhatsmeowClient adapts a whatsmeow client to the transport interface.
// Whatsmeow's sqlstore persists key rotations on its own, which covers the
// credential-update requirement without any work here.
type WhatsmeowClient struct {
	client *whatsmeow.Client
	events chan Event
}

// NewWhatsmeowClient wraps the given device store. The event channel is
// buffered; if the supervisor ever falls that far behind, events are dropped
// with a log line rather than blocking whatsmeow's dispatcher.
func NewWhatsmeowClient(device *store.Device, label string) *WhatsmeowClient {
	clientLog := waLog.Stdout("Client-"+label, "INFO", true)
	w := &WhatsmeowClient{
		client: whatsmeow.NewClient(device, clientLog),
		events: make(chan Event, 16),
	}
	w.client.AddEventHandler(w.handleEvent(label))
	return w
}

func (w *WhatsmeowClient) handleEvent(label string) func(interface{}) {
	return func(evt interface{}) {
		switch e := evt.(type) {
		case *events.Connected:
			// Presence makes the linked phone show the session as online.
			if err := w.client.SendPresence(context.Background(), types.PresenceAvailable); err != nil {
				log.Println("⚠ Failed to send presence for:", label, err)
			}
			w.emit(Event{Kind: EventOpen})

		case *events.PairSuccess:
			log.Println("✓ Pair success:", label, e.ID.String())

		case *events.LoggedOut:
			w.emit(Event{Kind: EventClosed, Reason: ReasonLoggedOut})

		case *events.StreamReplaced:
			w.emit(Event{Kind: EventClosed, Reason: ReasonReplaced})

		case *events.ClientOutdated:
			w.emit(Event{Kind: EventClosed, Reason: ReasonBadSession})

		case *events.ConnectFailure:
			w.emit(Event{Kind: EventClosed, Reason: ReasonConnectionLost})

		case *events.Disconnected:
			w.emit(Event{Kind: EventClosed, Reason: ReasonConnectionClosed})

		case *events.KeepAliveTimeout:
			w.emit(Event{Kind: EventClosed, Reason: ReasonTimedOut})
		}
	}
}

func (w *WhatsmeowClient) emit(evt Event) {
	select {
	case w.events <- evt:
	default:
		log.Printf("⚠ Dropping transport event %d (supervisor not consuming)", evt.Kind)
	}
}

func (w *WhatsmeowClient) Connect() error {
	return w.client.Connect()
}

func (w *WhatsmeowClient) Disconnect() {
	w.client.Disconnect()
}

func (w *WhatsmeowClient) IsRegistered() bool {
	return w.client.Store.ID != nil
}

func (w *WhatsmeowClient) RequestPairingCode(ctx context.Context, phoneID string) (string, error) {
	code, err := w.client.PairPhone(ctx, phoneID, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		return "", fmt.Errorf("pair phone: %w", err)
	}
	return code, nil
}

func (w *WhatsmeowClient) SendText(ctx context.Context, target, text string) error {
	jid, err := types.ParseJID(target)
	if err != nil {
		return fmt.Errorf("parse target jid %q: %w", target, err)
	}

	msg := &waE2E.Message{
		Conversation: proto.String(text),
	}
	if _, err := w.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (w *WhatsmeowClient) FetchGroups(ctx context.Context) ([]model.GroupInfo, error) {
	groups, err := w.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}

	out := make([]model.GroupInfo, 0, len(groups))
	for _, g := range groups {
		out = append(out, model.GroupInfo{
			Name: g.Name,
			ID:   g.JID.String(),
		})
	}
	return out, nil
}

func (w *WhatsmeowClient) Logout(ctx context.Context) error {
	return w.client.Logout(ctx)
}

func (w *WhatsmeowClient) DeleteCredentials(ctx context.Context) error {
	if w.client.Store.ID == nil {
		return nil
	}
	return w.client.Store.Delete(ctx)
}

func (w *WhatsmeowClient) JID() string {
	if w.client.Store.ID == nil {
		return ""
	}
	return w.client.Store.ID.String()
}

func (w *WhatsmeowClient) Events() <-chan Event {
	return w.events
}
