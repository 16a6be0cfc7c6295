package model

import "time"

// Session is one tenant's persistent WhatsApp identity plus its dispatch
// configuration. Owned by the registry; supervisor and dispatch loop refer
// to it only through Key.
type Session struct {
	Key             string    `json:"key"`
	PhoneID         string    `json:"phoneId"`
	JID             string    `json:"jid,omitempty"` // set after first successful login, used to find the device store on restart
	IsConnected     bool      `json:"isConnected"`
	Target          string    `json:"target,omitempty"`
	SenderLabel     string    `json:"senderLabel,omitempty"`
	Messages        []string  `json:"messages,omitempty"`
	IntervalSeconds int       `json:"intervalSeconds,omitempty"`
	MessagingActive bool      `json:"messagingActive"`
	LastUpdate      time.Time `json:"lastUpdate"`
}

// HasDispatch reports whether a dispatch configuration has been attached.
func (s *Session) HasDispatch() bool {
	return s.MessagingActive && len(s.Messages) > 0 && s.IntervalSeconds > 0
}

// Clone returns a deep copy so registry callers never share the Messages
// slice with registry-owned state.
func (s *Session) Clone() *Session {
	cp := *s
	if s.Messages != nil {
		cp.Messages = append([]string(nil), s.Messages...)
	}
	return &cp
}
