// Package transport abstracts the messaging endpoint. The supervisor only
// ever sees this interface; the whatsmeow adapter lives next to it.
package transport

import (
	"context"

	"gowa-dispatch/internal/model"
)

// ReasonCode classifies why a connection closed. The supervisor decides
// terminal vs transient; the transport only reports what happened.
type ReasonCode int

const (
	ReasonUnknown ReasonCode = iota
	ReasonLoggedOut
	ReasonReplaced
	ReasonBadSession
	ReasonConnectionLost
	ReasonConnectionClosed
	ReasonRestartRequired
	ReasonTimedOut
)

func (r ReasonCode) String() string {
	switch r {
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonReplaced:
		return "replaced"
	case ReasonBadSession:
		return "bad_session"
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonConnectionClosed:
		return "connection_closed"
	case ReasonRestartRequired:
		return "restart_required"
	case ReasonTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventOpen EventKind = iota
	EventClosed
)

// Event is one item on the connection's event stream: the socket opened, or
// it closed with a reason.
type Event struct {
	Kind   EventKind
	Reason ReasonCode
}

// Client is the connect/send/event primitive the supervisor drives.
// Credential rotation is persisted by the implementation itself, independent
// of the session registry snapshot.
type Client interface {
	Connect() error
	Disconnect()

	// IsRegistered reports whether stored credentials exist for this device,
	// i.e. whether a connect can resume silently or pairing is required.
	IsRegistered() bool

	RequestPairingCode(ctx context.Context, phoneID string) (string, error)
	SendText(ctx context.Context, target, text string) error
	FetchGroups(ctx context.Context) ([]model.GroupInfo, error)

	// Logout unlinks the device on the remote end, best-effort.
	Logout(ctx context.Context) error
	// DeleteCredentials erases local credential material.
	DeleteCredentials(ctx context.Context) error

	// JID returns the device identity once logged in, "" before that.
	JID() string

	Events() <-chan Event
}
