package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHub_RegisterCompletesAndReceivesBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil)
	done := make(chan struct{})
	go func() {
		hub.Register(client)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Register did not complete; hub is not draining its channels")
	}

	hub.Publish(WsEvent{
		Event: EventPairingCode,
		Data:  PairingCodeData{SessionKey: "k", PairingCode: "ABCD-1234"},
	})

	select {
	case evt := <-client.send:
		assert.Equal(t, EventPairingCode, evt.Event)
		assert.False(t, evt.Timestamp.IsZero(), "Publish stamps missing timestamps")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("broadcast not delivered to registered client")
	}
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := NewClient(hub, nil)
	hub.Register(client)
	hub.Unregister(client)

	select {
	case _, open := <-client.send:
		assert.False(t, open, "send channel must be closed on unregister")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("send channel not closed after unregister")
	}
}
