// Package worker runs the per-session dispatch loop: a ticker that walks the
// session's message list forever, one send at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// SendFunc delivers one message to the target. Implemented by the transport
// client; swapped for a fake in tests.
type SendFunc func(ctx context.Context, target, text string) error

type Config struct {
	Key         string
	Target      string
	SenderLabel string
	Messages    []string
	Interval    time.Duration

	// Connected is the level-triggered connectivity probe. While it reports
	// false, ticks pass without advancing the cursor or dropping anything.
	Connected func() bool
	Send      SendFunc
}

type DispatchLoop struct {
	cfg Config

	busy    atomic.Bool
	running atomic.Bool

	mu     sync.Mutex
	cursor int

	cancel   context.CancelFunc
	done     chan struct{}
	inFlight sync.WaitGroup
}

func New(cfg Config) (*DispatchLoop, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if len(cfg.Messages) == 0 {
		return nil, errors.New("message list must not be empty")
	}
	if cfg.Connected == nil || cfg.Send == nil {
		return nil, errors.New("connected probe and send func are required")
	}
	return &DispatchLoop{cfg: cfg}, nil
}

// Start arms the loop. The first send happens immediately, not after a full
// interval. Returns false if the loop is already running.
func (d *DispatchLoop) Start() bool {
	if !d.running.CompareAndSwap(false, true) {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)

		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()

		log.Printf("▶ Dispatch loop started for %s (interval %s, %d messages)",
			d.cfg.Key, d.cfg.Interval, len(d.cfg.Messages))

		d.tick(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Println("⏹ Dispatch loop stopped for:", d.cfg.Key)
				return
			case <-ticker.C:
				d.tick(ctx)
			}
		}
	}()

	return true
}

// Stop tears the loop down and waits out any in-flight send. Idempotent;
// after it returns no further send will be issued for this session.
func (d *DispatchLoop) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.cancel()
	<-d.done
	d.inFlight.Wait()
}

// Cursor returns the current position in the message list.
func (d *DispatchLoop) Cursor() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

func (d *DispatchLoop) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	// Disconnected: wait out the flap. No cursor advance, nothing dropped.
	if !d.cfg.Connected() {
		return
	}

	// Previous send still going: never two sends in flight for one session.
	if !d.busy.CompareAndSwap(false, true) {
		return
	}

	d.mu.Lock()
	idx := d.cursor
	text := d.cfg.Messages[idx]
	d.mu.Unlock()

	if d.cfg.SenderLabel != "" {
		text = fmt.Sprintf("%s: %s", d.cfg.SenderLabel, text)
	}

	d.inFlight.Add(1)
	go func() {
		defer d.inFlight.Done()
		defer d.busy.Store(false)

		if err := d.cfg.Send(ctx, d.cfg.Target, text); err != nil {
			// At-least-once: leave the cursor where it is, the same message
			// goes out again next tick.
			log.Printf("✗ Send failed for %s (message %d, will retry): %v", d.cfg.Key, idx, err)
			return
		}

		d.mu.Lock()
		d.cursor = (idx + 1) % len(d.cfg.Messages)
		d.mu.Unlock()
	}()
}
