package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendRecorder struct {
	mu    sync.Mutex
	sent  []string
	fail  atomic.Bool
	calls atomic.Int64
}

func (r *sendRecorder) send(ctx context.Context, target, text string) error {
	r.calls.Add(1)
	if r.fail.Load() {
		return errors.New("transport unavailable")
	}
	r.mu.Lock()
	r.sent = append(r.sent, text)
	r.mu.Unlock()
	return nil
}

func (r *sendRecorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func alwaysConnected() bool { return true }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestNew_Validation(t *testing.T) {
	base := Config{
		Key:       "k",
		Target:    "1@s.whatsapp.net",
		Messages:  []string{"a"},
		Interval:  time.Second,
		Connected: alwaysConnected,
		Send:      (&sendRecorder{}).send,
	}

	t.Run("interval must be positive", func(t *testing.T) {
		cfg := base
		cfg.Interval = 0
		_, err := New(cfg)
		assert.Error(t, err)
	})

	t.Run("messages must not be empty", func(t *testing.T) {
		cfg := base
		cfg.Messages = nil
		_, err := New(cfg)
		assert.Error(t, err)
	})

	t.Run("valid config", func(t *testing.T) {
		_, err := New(base)
		assert.NoError(t, err)
	})
}

func TestDispatchLoop_CyclesThroughMessages(t *testing.T) {
	rec := &sendRecorder{}
	loop, err := New(Config{
		Key:       "k",
		Target:    "1@s.whatsapp.net",
		Messages:  []string{"a", "b", "c"},
		Interval:  10 * time.Millisecond,
		Connected: alwaysConnected,
		Send:      rec.send,
	})
	require.NoError(t, err)

	require.True(t, loop.Start())
	defer loop.Stop()

	waitFor(t, time.Second, func() bool { return len(rec.messages()) >= 4 })

	got := rec.messages()[:4]
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestDispatchLoop_FirstSendIsImmediate(t *testing.T) {
	rec := &sendRecorder{}
	loop, err := New(Config{
		Key:       "k",
		Target:    "1@s.whatsapp.net",
		Messages:  []string{"a"},
		Interval:  time.Hour, // only the immediate tick can fire
		Connected: alwaysConnected,
		Send:      rec.send,
	})
	require.NoError(t, err)

	require.True(t, loop.Start())
	defer loop.Stop()

	waitFor(t, time.Second, func() bool { return len(rec.messages()) == 1 })
}

func TestDispatchLoop_SenderLabelPrefix(t *testing.T) {
	rec := &sendRecorder{}
	loop, err := New(Config{
		Key:         "k",
		Target:      "1@s.whatsapp.net",
		SenderLabel: "Promo Bot",
		Messages:    []string{"hello"},
		Interval:    10 * time.Millisecond,
		Connected:   alwaysConnected,
		Send:        rec.send,
	})
	require.NoError(t, err)

	require.True(t, loop.Start())
	defer loop.Stop()

	waitFor(t, time.Second, func() bool { return len(rec.messages()) >= 1 })
	assert.Equal(t, "Promo Bot: hello", rec.messages()[0])
}

func TestDispatchLoop_FailureRetriesSameMessage(t *testing.T) {
	rec := &sendRecorder{}
	rec.fail.Store(true)

	loop, err := New(Config{
		Key:       "k",
		Target:    "1@s.whatsapp.net",
		Messages:  []string{"a", "b"},
		Interval:  10 * time.Millisecond,
		Connected: alwaysConnected,
		Send:      rec.send,
	})
	require.NoError(t, err)

	require.True(t, loop.Start())
	defer loop.Stop()

	// Several failed attempts: cursor must not move.
	waitFor(t, time.Second, func() bool { return rec.calls.Load() >= 3 })
	assert.Equal(t, 0, loop.Cursor())
	assert.Empty(t, rec.messages())

	// Recovery: the same message goes out first, then the next.
	rec.fail.Store(false)
	waitFor(t, time.Second, func() bool { return len(rec.messages()) >= 2 })
	assert.Equal(t, []string{"a", "b"}, rec.messages()[:2])
}

func TestDispatchLoop_SkipsTicksWhileDisconnected(t *testing.T) {
	var connected atomic.Bool
	rec := &sendRecorder{}

	loop, err := New(Config{
		Key:       "k",
		Target:    "1@s.whatsapp.net",
		Messages:  []string{"a", "b"},
		Interval:  10 * time.Millisecond,
		Connected: connected.Load,
		Send:      rec.send,
	})
	require.NoError(t, err)

	require.True(t, loop.Start())
	defer loop.Stop()

	// Disconnected: ticks pass, nothing sent, cursor stays put.
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.messages())
	assert.Equal(t, 0, loop.Cursor())

	// Reconnect: dispatch resumes from the same cursor.
	connected.Store(true)
	waitFor(t, time.Second, func() bool { return len(rec.messages()) >= 1 })
	assert.Equal(t, "a", rec.messages()[0])
}

func TestDispatchLoop_NoOverlappingSends(t *testing.T) {
	var inFlight atomic.Int64
	var overlapped atomic.Bool

	slowSend := func(ctx context.Context, target, text string) error {
		if inFlight.Add(1) > 1 {
			overlapped.Store(true)
		}
		defer inFlight.Add(-1)
		time.Sleep(30 * time.Millisecond)
		return nil
	}

	loop, err := New(Config{
		Key:       "k",
		Target:    "1@s.whatsapp.net",
		Messages:  []string{"a"},
		Interval:  5 * time.Millisecond, // much shorter than the send
		Connected: alwaysConnected,
		Send:      slowSend,
	})
	require.NoError(t, err)

	require.True(t, loop.Start())
	time.Sleep(100 * time.Millisecond)
	loop.Stop()

	assert.False(t, overlapped.Load(), "two sends were in flight for the same session")
}

func TestDispatchLoop_StopGuaranteesNoFurtherSends(t *testing.T) {
	rec := &sendRecorder{}
	loop, err := New(Config{
		Key:       "k",
		Target:    "1@s.whatsapp.net",
		Messages:  []string{"a"},
		Interval:  5 * time.Millisecond,
		Connected: alwaysConnected,
		Send:      rec.send,
	})
	require.NoError(t, err)

	require.True(t, loop.Start())
	waitFor(t, time.Second, func() bool { return rec.calls.Load() >= 2 })

	loop.Stop()
	after := rec.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, rec.calls.Load(), "send fired after Stop returned")

	// Stop is idempotent.
	loop.Stop()
}

func TestDispatchLoop_ConcurrentStopAndTicks(t *testing.T) {
	rec := &sendRecorder{}
	loop, err := New(Config{
		Key:       "k",
		Target:    "1@s.whatsapp.net",
		Messages:  []string{"a", "b", "c"},
		Interval:  time.Millisecond,
		Connected: alwaysConnected,
		Send:      rec.send,
	})
	require.NoError(t, err)

	require.True(t, loop.Start())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Stop()
		}()
	}
	wg.Wait()

	after := rec.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, rec.calls.Load())
}

func TestDispatchLoop_StartTwice(t *testing.T) {
	loop, err := New(Config{
		Key:       "k",
		Target:    "1@s.whatsapp.net",
		Messages:  []string{"a"},
		Interval:  time.Hour,
		Connected: alwaysConnected,
		Send:      (&sendRecorder{}).send,
	})
	require.NoError(t, err)

	require.True(t, loop.Start())
	assert.False(t, loop.Start())
	loop.Stop()
}
