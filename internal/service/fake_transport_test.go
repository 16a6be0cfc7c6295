package service

import (
	"context"
	"sync"
	"sync/atomic"

	"gowa-dispatch/internal/model"
	"gowa-dispatch/internal/transport"
)

// fakeClient is a scriptable transport for supervisor and orchestrator
// tests. Events are pushed by the test through open/closed.
type fakeClient struct {
	events chan transport.Event

	mu         sync.Mutex
	registered bool
	jid        string
	connectErr error
	pairCode   string
	pairErr    error
	groups     []model.GroupInfo
	logoutErr  error
	sent       []string

	connectCalls atomic.Int64
	pairCalls    atomic.Int64
	logoutCalls  atomic.Int64
	disconnects  atomic.Int64
	credsDeleted atomic.Bool

	// autoOpen makes Connect push an open event, mimicking a client with
	// valid stored credentials.
	autoOpen bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		events:   make(chan transport.Event, 32),
		pairCode: "ABCD1234",
	}
}

func (f *fakeClient) open() {
	f.events <- transport.Event{Kind: transport.EventOpen}
}

func (f *fakeClient) closed(reason transport.ReasonCode) {
	f.events <- transport.Event{Kind: transport.EventClosed, Reason: reason}
}

func (f *fakeClient) Connect() error {
	f.connectCalls.Add(1)
	f.mu.Lock()
	err := f.connectErr
	auto := f.autoOpen
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if auto {
		f.open()
	}
	return nil
}

func (f *fakeClient) Disconnect() {
	f.disconnects.Add(1)
}

func (f *fakeClient) IsRegistered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}

func (f *fakeClient) RequestPairingCode(ctx context.Context, phoneID string) (string, error) {
	f.pairCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pairErr != nil {
		return "", f.pairErr
	}
	return f.pairCode, nil
}

func (f *fakeClient) SendText(ctx context.Context, target, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeClient) FetchGroups(ctx context.Context) ([]model.GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups, nil
}

func (f *fakeClient) Logout(ctx context.Context) error {
	f.logoutCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logoutErr
}

func (f *fakeClient) DeleteCredentials(ctx context.Context) error {
	f.credsDeleted.Store(true)
	return nil
}

func (f *fakeClient) JID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jid
}

func (f *fakeClient) Events() <-chan transport.Event {
	return f.events
}
