package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gowa-dispatch/internal/model"
	"gowa-dispatch/internal/registry"
	"gowa-dispatch/internal/transport"
	"gowa-dispatch/internal/worker"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingPairing
	StateConnected
	StateDisconnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

var (
	ErrSessionStopped    = errors.New("session stopped")
	ErrSessionTerminated = errors.New("session terminated by transport")
)

// Hooks let the orchestrator observe supervisor lifecycle without the
// supervisor knowing about the hub or the supervisor table.
type Hooks struct {
	// OnStatus fires on every externally visible state change.
	OnStatus func(key string, state State)
	// OnTerminated fires once when a terminal disconnect tears the session
	// down on its own (not on explicit Stop).
	OnTerminated func(key string)
}

// Supervisor owns one session's connection lifecycle. All state transitions
// run on its single event goroutine, so transitions for a session are
// totally ordered; Stop is the only external entry and only flips the
// stopped flag before joining that goroutine's teardown.
type Supervisor struct {
	key     string
	phoneID string
	client  transport.Client
	reg     *registry.Registry
	hooks   Hooks

	baseDelay time.Duration
	maxDelay  time.Duration

	pairing         chan model.PairingResult
	pairingOnce     sync.Once
	pairingResolved atomic.Bool
	pairingSent     bool // reset per connection attempt, event goroutine only

	mu       sync.Mutex
	state    State
	attempts int
	timer    *time.Timer

	loop *worker.DispatchLoop

	retryCh  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewSupervisor(key, phoneID string, client transport.Client, reg *registry.Registry, base, max time.Duration, hooks Hooks) *Supervisor {
	return &Supervisor{
		key:       key,
		phoneID:   phoneID,
		client:    client,
		reg:       reg,
		hooks:     hooks,
		baseDelay: base,
		maxDelay:  max,
		pairing:   make(chan model.PairingResult, 1),
		retryCh:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// PairingResults is the one-shot result channel for the original caller.
func (s *Supervisor) PairingResults() <-chan model.PairingResult {
	return s.pairing
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) IsConnected() bool {
	return s.State() == StateConnected
}

// Attempts returns the reconnect counter, 0 right after any connect.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Start launches the event goroutine and the first connection attempt.
func (s *Supervisor) Start() {
	go s.run()
}

func (s *Supervisor) run() {
	defer close(s.done)

	s.connect()

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.retryCh:
			s.connect()
		case evt, ok := <-s.client.Events():
			if !ok {
				return
			}
			switch evt.Kind {
			case transport.EventOpen:
				s.onOpen()
			case transport.EventClosed:
				s.onClosed(evt.Reason)
			}
		}
	}
}

// connect runs one connection attempt: Idle/Disconnected -> Connecting, and
// on an unregistered identity -> AwaitingPairing with a single code request.
func (s *Supervisor) connect() {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateConnected {
		// A stale retry can race a successful open; connected wins.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.setState(StateConnecting)
	s.pairingSent = false

	if err := s.client.Connect(); err != nil {
		// ConnectError: transient by definition, retried, never surfaced.
		log.Printf("⚠ Connect failed for %s: %v", s.key, err)
		s.scheduleReconnect()
		return
	}

	if !s.client.IsRegistered() && s.pairingResolved.Load() {
		// One code per session start. An unlinked session whose code
		// expired stays here until it is stopped and recreated.
		log.Printf("⚠ Session %s is unlinked but its pairing code was already issued; stop and recreate it to pair again", s.key)
		return
	}

	if !s.client.IsRegistered() && !s.pairingSent {
		s.pairingSent = true
		s.setState(StateAwaitingPairing)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		code, err := s.client.RequestPairingCode(ctx, s.phoneID)
		cancel()
		if err != nil {
			// Surfaced once; the connection retry still applies, the pairing
			// request itself is not retried.
			log.Printf("✗ Pairing request failed for %s: %v", s.key, err)
			s.resolvePairing(model.PairingResult{Err: err})
			return
		}

		code = FormatPairingCode(code)
		log.Printf("🔑 Pairing code for %s: %s", s.key, code)
		s.resolvePairing(model.PairingResult{Code: code})
	}
}

func (s *Supervisor) onOpen() {
	if s.stoppedAlready() {
		return
	}

	s.mu.Lock()
	s.state = StateConnected
	s.attempts = 0
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	jid := s.client.JID()
	if err := s.reg.Update(s.key, func(sess *model.Session) {
		sess.IsConnected = true
		if jid != "" {
			sess.JID = jid
		}
	}); err != nil {
		log.Printf("⚠ Failed to mark %s connected: %v", s.key, err)
	}

	log.Printf("✓ Connected! Session %s (jid %s)", s.key, jid)

	// Silent resume from stored credentials: the caller still gets exactly
	// one result.
	s.resolvePairing(model.PairingResult{AlreadyConnected: true})
	s.notify(StateConnected)

	// A surviving loop keeps its cursor; it was only waiting out the
	// disconnect. Otherwise arm a fresh one from index 0.
	s.mu.Lock()
	needLoop := s.loop == nil
	s.mu.Unlock()
	if needLoop {
		s.armDispatch()
	}
}

func (s *Supervisor) onClosed(reason transport.ReasonCode) {
	if s.stoppedAlready() {
		return
	}

	if isTerminal(reason) {
		log.Printf("✗ Terminal disconnect for %s: %s", s.key, reason)
		s.terminate(reason)
		return
	}

	log.Printf("⚠ Disconnected (%s), session %s", reason, s.key)

	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()

	if err := s.reg.Update(s.key, func(sess *model.Session) {
		sess.IsConnected = false
	}); err != nil {
		log.Printf("⚠ Failed to mark %s disconnected: %v", s.key, err)
	}
	s.notify(StateDisconnected)

	// Dispatch loop stays armed: it is level-triggered on connectivity and
	// keeps its cursor through the outage.
	s.scheduleReconnect()
}

// isTerminal decides whether a close reason kills the session for good.
func isTerminal(reason transport.ReasonCode) bool {
	switch reason {
	case transport.ReasonLoggedOut, transport.ReasonReplaced, transport.ReasonBadSession:
		return true
	default:
		return false
	}
}

// scheduleReconnect arms a bounded, attempt-scaled retry timer:
// delay = min(base * attempts, max).
func (s *Supervisor) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return
	}

	s.attempts++
	delay := ReconnectDelay(s.baseDelay, s.maxDelay, s.attempts)

	log.Printf("↻ Reconnecting %s in %s (attempt %d)", s.key, delay, s.attempts)

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() {
		select {
		case s.retryCh <- struct{}{}:
		default:
		}
	})
}

// ReconnectDelay is the backoff rule: linear in attempts, capped.
func ReconnectDelay(base, max time.Duration, attempts int) time.Duration {
	delay := base * time.Duration(attempts)
	if delay > max {
		delay = max
	}
	return delay
}

// terminate handles a terminal disconnect reason: credentials erased,
// dispatch gone, no reconnection ever.
func (s *Supervisor) terminate(reason transport.ReasonCode) {
	s.mu.Lock()
	s.state = StateStopped
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	loop := s.loop
	s.loop = nil
	s.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}

	s.resolvePairing(model.PairingResult{Err: ErrSessionTerminated})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := s.client.DeleteCredentials(ctx); err != nil {
		log.Printf("⚠ Failed to delete credentials for %s: %v", s.key, err)
	}
	cancel()
	s.client.Disconnect()

	s.notify(StateStopped)
	if s.hooks.OnTerminated != nil {
		s.hooks.OnTerminated(s.key)
	}

	s.stopOnce.Do(func() { close(s.stopCh) })
	log.Printf("✓ Session %s torn down (%s)", s.key, reason)
}

// Stop is the explicit stop request: idempotent, and when it returns no
// further tick or reconnect fires for this key.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.state = StateStopped
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		loop := s.loop
		s.loop = nil
		s.mu.Unlock()

		close(s.stopCh)

		if loop != nil {
			loop.Stop()
		}

		s.resolvePairing(model.PairingResult{Err: ErrSessionStopped})

		// Best-effort logout unlinks the device; force-close either way.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.client.Logout(ctx); err != nil {
			log.Printf("⚠ Logout failed for %s, force closing: %v", s.key, err)
		}
		if err := s.client.DeleteCredentials(ctx); err != nil {
			log.Printf("⚠ Failed to delete credentials for %s: %v", s.key, err)
		}
		cancel()
		s.client.Disconnect()

		s.notify(StateStopped)
	})
	<-s.done
}

func (s *Supervisor) stoppedAlready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStopped
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.notify(st)
}

func (s *Supervisor) notify(st State) {
	if s.hooks.OnStatus != nil {
		s.hooks.OnStatus(s.key, st)
	}
}

// resolvePairing delivers the one-shot pairing result. A second call is
// swallowed: the channel resolves exactly once per session start.
func (s *Supervisor) resolvePairing(res model.PairingResult) {
	s.pairingOnce.Do(func() {
		s.pairingResolved.Store(true)
		s.pairing <- res
	})
}

// armDispatch starts a fresh loop (cursor 0) if the session has a dispatch
// configuration attached. Surviving loops are never re-armed, which is what
// preserves the cursor across reconnects.
func (s *Supervisor) armDispatch() {
	sess, err := s.reg.Get(s.key)
	if err != nil || !sess.HasDispatch() {
		return
	}

	loop, err := worker.New(worker.Config{
		Key:         s.key,
		Target:      sess.Target,
		SenderLabel: sess.SenderLabel,
		Messages:    sess.Messages,
		Interval:    time.Duration(sess.IntervalSeconds) * time.Second,
		Connected:   s.IsConnected,
		Send:        s.client.SendText,
	})
	if err != nil {
		log.Printf("⚠ Could not arm dispatch for %s: %v", s.key, err)
		return
	}
	s.mu.Lock()
	if s.state != StateConnected || s.loop != nil {
		s.mu.Unlock()
		return
	}
	s.loop = loop
	s.mu.Unlock()

	loop.Start()
}

// RestartDispatch replaces any running loop with one built from the current
// registry record, cursor back at 0. Used when a new dispatch configuration
// is attached.
func (s *Supervisor) RestartDispatch() {
	s.mu.Lock()
	loop := s.loop
	s.loop = nil
	s.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	s.armDispatch()
}

// FormatPairingCode renders a raw linking code as groups of four characters
// joined by dashes, e.g. "ABCD1234" -> "ABCD-1234".
func FormatPairingCode(code string) string {
	raw := strings.ReplaceAll(code, "-", "")
	raw = strings.ReplaceAll(raw, " ", "")
	if raw == "" {
		return code
	}

	var groups []string
	for i := 0; i < len(raw); i += 4 {
		end := i + 4
		if end > len(raw) {
			end = len(raw)
		}
		groups = append(groups, raw[i:end])
	}
	return strings.Join(groups, "-")
}
