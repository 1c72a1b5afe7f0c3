package app

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Ticker is the tick source driving a Timer.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every interval.
type TickerFactory func(interval time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewStdTicker wraps time.NewTicker.
func NewStdTicker(interval time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(interval)}
}

var errTimerStarted = errors.New("timer already started")

// Timer counts remaining seconds down on a fixed tick and fires its expiry
// callback at most once. Once Stop returns no expiry callback will begin.
type Timer struct {
	interval  time.Duration
	newTicker TickerFactory

	mu        sync.Mutex
	remaining int
	started   bool
	stopped   bool
	fired     bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewTimer builds a timer ticking every interval; a nil factory uses time.Ticker.
func NewTimer(interval time.Duration, factory TickerFactory) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	if factory == nil {
		factory = NewStdTicker
	}
	return &Timer{interval: interval, newTicker: factory, done: make(chan struct{})}
}

// Start begins the countdown. onTick receives the remaining seconds after each
// tick; onExpire runs on the timer goroutine when the count reaches zero.
func (t *Timer) Start(ctx context.Context, seconds int, onTick func(remaining int), onExpire func()) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errTimerStarted
	}
	t.started = true
	t.remaining = seconds
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	ticker := t.newTicker(t.interval)
	go t.run(ctx, ticker, onTick, onExpire)
	return nil
}

func (t *Timer) run(ctx context.Context, ticker Ticker, onTick func(int), onExpire func()) {
	defer close(t.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			t.mu.Lock()
			if t.stopped {
				t.mu.Unlock()
				return
			}
			if t.remaining > 0 {
				t.remaining--
			}
			remaining := t.remaining
			t.mu.Unlock()

			if onTick != nil {
				onTick(remaining)
			}
			if remaining == 0 {
				t.expire(onExpire)
				return
			}
		}
	}
}

func (t *Timer) expire(onExpire func()) {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	if onExpire != nil {
		onExpire()
	}
}

// Stop cancels the countdown. Safe to call more than once, and from inside
// the expiry callback.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.stopped = true
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Remaining returns the seconds left on the clock.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Fired reports whether the expiry callback has been invoked.
func (t *Timer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Done is closed when the countdown goroutine exits. It never closes for a
// timer that was not started.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}
