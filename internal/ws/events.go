package ws

import "time"

const (
	EventSessionStatusChanged = "session.status_changed"
	EventPairingCode          = "session.pairing_code"
	EventSessionError         = "session.error"
)

// WsEvent is the envelope every broadcast shares.
type WsEvent struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type SessionStatusChangedData struct {
	SessionKey string `json:"sessionKey"`
	Status     string `json:"status"`
}

type PairingCodeData struct {
	SessionKey  string `json:"sessionKey"`
	PairingCode string `json:"pairingCode"`
}

type SessionErrorData struct {
	SessionKey string `json:"sessionKey"`
	Error      string `json:"error"`
}

// RealtimePublisher is what services hold so they do not depend on the Hub
// directly.
type RealtimePublisher interface {
	Publish(event WsEvent)
}
