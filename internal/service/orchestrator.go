package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"gowa-dispatch/internal/model"
	"gowa-dispatch/internal/registry"
	"gowa-dispatch/internal/transport"
	"gowa-dispatch/internal/ws"
)

var (
	ErrUnknownSession = errors.New("unknown session key")
	ErrNotConnected   = errors.New("session is not connected")
	ErrEmptyMessages  = errors.New("message list is empty")
	ErrBadInterval    = errors.New("interval must be at least 1 second")
)

// ClientFactory builds a transport client for a session. Production wires
// whatsmeow devices; tests inject fakes.
type ClientFactory func(sess *model.Session) (transport.Client, error)

type sessionRuntime struct {
	sup    *Supervisor
	client transport.Client
}

// Orchestrator is the façade the request layer talks to. It owns the
// supervisor table; the registry owns the session records.
type Orchestrator struct {
	reg      *registry.Registry
	factory  ClientFactory
	base     time.Duration
	max      time.Duration
	realtime ws.RealtimePublisher // may be nil

	mu       sync.Mutex
	runtimes map[string]*sessionRuntime
}

func NewOrchestrator(reg *registry.Registry, factory ClientFactory, base, max time.Duration, realtime ws.RealtimePublisher) *Orchestrator {
	return &Orchestrator{
		reg:      reg,
		factory:  factory,
		base:     base,
		max:      max,
		realtime: realtime,
		runtimes: make(map[string]*sessionRuntime),
	}
}

// StartSession creates the registry entry and launches a supervisor. The
// returned channel resolves exactly once: pairing code, already-connected,
// or error.
func (o *Orchestrator) StartSession(phoneID string) (string, <-chan model.PairingResult, error) {
	sess := o.reg.Create(phoneID)

	client, err := o.factory(sess)
	if err != nil {
		_ = o.reg.Delete(sess.Key)
		return "", nil, err
	}

	sup := o.launch(sess.Key, sess.PhoneID, client)
	log.Println("✓ Session created:", sess.Key, "phone:", phoneID)
	return sess.Key, sup.PairingResults(), nil
}

func (o *Orchestrator) launch(key, phoneID string, client transport.Client) *Supervisor {
	hooks := Hooks{
		OnStatus: func(key string, state State) {
			o.publishStatus(key, state)
		},
		OnTerminated: func(key string) {
			o.mu.Lock()
			delete(o.runtimes, key)
			o.mu.Unlock()
			if err := o.reg.Delete(key); err != nil && !errors.Is(err, registry.ErrSessionNotFound) {
				log.Printf("⚠ Failed to remove terminated session %s: %v", key, err)
			}
		},
	}

	sup := NewSupervisor(key, phoneID, client, o.reg, o.base, o.max, hooks)

	o.mu.Lock()
	o.runtimes[key] = &sessionRuntime{sup: sup, client: client}
	o.mu.Unlock()

	sup.Start()
	return sup
}

// AttachDispatch stores the dispatch configuration and (re)starts the loop.
// The session must be connected; an empty message list is rejected before
// anything is persisted.
func (o *Orchestrator) AttachDispatch(key, target, senderLabel string, messages []string, intervalSeconds int) error {
	if len(messages) == 0 {
		return ErrEmptyMessages
	}
	if intervalSeconds <= 0 {
		return ErrBadInterval
	}

	rt := o.runtime(key)
	if rt == nil {
		return ErrUnknownSession
	}
	if !rt.sup.IsConnected() {
		return ErrNotConnected
	}

	err := o.reg.Update(key, func(sess *model.Session) {
		sess.Target = target
		sess.SenderLabel = senderLabel
		sess.Messages = append([]string(nil), messages...)
		sess.IntervalSeconds = intervalSeconds
		sess.MessagingActive = true
	})
	if err != nil {
		return ErrUnknownSession
	}

	rt.sup.RestartDispatch()
	return nil
}

// StopSession is idempotent: once it returns, no tick or reconnect fires for
// the key again. Known-but-supervisorless records (restore skips) are still
// removed.
func (o *Orchestrator) StopSession(key string) error {
	o.mu.Lock()
	rt, ok := o.runtimes[key]
	delete(o.runtimes, key)
	o.mu.Unlock()

	if !ok {
		// No live supervisor; the record may still exist from a skipped
		// restore.
		if err := o.reg.Delete(key); err != nil {
			return ErrUnknownSession
		}
		return nil
	}

	rt.sup.Stop()
	if err := o.reg.Delete(key); err != nil && !errors.Is(err, registry.ErrSessionNotFound) {
		log.Printf("⚠ Failed to remove stopped session %s: %v", key, err)
	}
	log.Println("✓ Session stopped:", key)
	return nil
}

// QueryGroups lists the groups the session's identity participates in.
func (o *Orchestrator) QueryGroups(ctx context.Context, key string) ([]model.GroupInfo, error) {
	rt := o.runtime(key)
	if rt == nil {
		return nil, ErrUnknownSession
	}
	if !rt.sup.IsConnected() {
		return nil, ErrNotConnected
	}
	return rt.client.FetchGroups(ctx)
}

// SessionState exposes the supervisor state for status endpoints.
func (o *Orchestrator) SessionState(key string) (State, bool) {
	rt := o.runtime(key)
	if rt == nil {
		return StateIdle, false
	}
	return rt.sup.State(), true
}

// SessionInfo is the status view exposed to the request layer.
type SessionInfo struct {
	Key             string    `json:"sessionKey"`
	PhoneID         string    `json:"phoneId"`
	JID             string    `json:"jid,omitempty"`
	State           string    `json:"state"`
	MessagingActive bool      `json:"messagingActive"`
	MessageCount    int       `json:"messageCount"`
	IntervalSeconds int       `json:"intervalSeconds,omitempty"`
	LastUpdate      time.Time `json:"lastUpdate"`
}

func (o *Orchestrator) SessionInfo(key string) (*SessionInfo, error) {
	sess, err := o.reg.Get(key)
	if err != nil {
		return nil, ErrUnknownSession
	}

	state := StateIdle
	if rt := o.runtime(key); rt != nil {
		state = rt.sup.State()
	}

	return &SessionInfo{
		Key:             sess.Key,
		PhoneID:         sess.PhoneID,
		JID:             sess.JID,
		State:           state.String(),
		MessagingActive: sess.MessagingActive,
		MessageCount:    len(sess.Messages),
		IntervalSeconds: sess.IntervalSeconds,
		LastUpdate:      sess.LastUpdate,
	}, nil
}

func (o *Orchestrator) Sessions() []*SessionInfo {
	all := o.reg.All()
	out := make([]*SessionInfo, 0, len(all))
	for _, sess := range all {
		if info, err := o.SessionInfo(sess.Key); err == nil {
			out = append(out, info)
		}
	}
	return out
}

// RestoreSessions reloads the registry snapshot and reconnects every session
// whose credential material survived. Sessions without credentials are
// logged and skipped; no pairing code is re-delivered for restored sessions.
func (o *Orchestrator) RestoreSessions() {
	count, err := o.reg.Restore()
	if err != nil {
		log.Printf("⚠ Failed to restore session snapshot, starting empty: %v", err)
		return
	}
	log.Printf("Found %d saved sessions in snapshot", count)

	for _, sess := range o.reg.All() {
		if sess.JID == "" {
			log.Printf("⚠ Session %s has no device identity, skipping reconnect", sess.Key)
			continue
		}

		client, err := o.factory(sess)
		if err != nil {
			log.Printf("⚠ No credential material for session %s (jid %s), skipping: %v", sess.Key, sess.JID, err)
			continue
		}

		o.launch(sess.Key, sess.PhoneID, client)
		log.Printf("✓ Restoring session %s (jid %s)", sess.Key, sess.JID)
	}
}

// Shutdown disconnects every live session without logging the devices out,
// so credentials survive for the next boot.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	rts := make([]*sessionRuntime, 0, len(o.runtimes))
	for _, rt := range o.runtimes {
		rts = append(rts, rt)
	}
	o.runtimes = make(map[string]*sessionRuntime)
	o.mu.Unlock()

	for _, rt := range rts {
		rt.client.Disconnect()
	}
}

func (o *Orchestrator) runtime(key string) *sessionRuntime {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runtimes[key]
}

func (o *Orchestrator) publishStatus(key string, state State) {
	if o.realtime == nil {
		return
	}
	o.realtime.Publish(ws.WsEvent{
		Event:     ws.EventSessionStatusChanged,
		Timestamp: time.Now().UTC(),
		Data: ws.SessionStatusChangedData{
			SessionKey: key,
			Status:     state.String(),
		},
	})
}
