package wizard

import (
	"sync"
	"time"
)

// ResendCountdown is the number of seconds before "resend OTP" becomes
// available again.
const ResendCountdown = 30

// ResendTimer is the resend-OTP countdown: it starts at
// ResendCountdown, decrements every tick, and unlocks resend at zero.
// Resetting restarts the countdown from the top.
type ResendTimer struct {
	interval time.Duration
	onTick   func(remaining int)

	mu        sync.Mutex
	remaining int
	stop      chan struct{}
}

// NewResendTimer creates a countdown ticking at the given interval
// (one second in production; tests pass something shorter).
func NewResendTimer(interval time.Duration, onTick func(remaining int)) *ResendTimer {
	return &ResendTimer{
		interval:  interval,
		onTick:    onTick,
		remaining: ResendCountdown,
	}
}

// Start begins the countdown. Starting an already running timer is a
// no-op.
func (t *ResendTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}

	t.stop = make(chan struct{})
	go t.run(t.stop)
}

func (t *ResendTimer) run(stop chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			// A Reset between the tick firing and this lock swapped in a
			// fresh countdown; this run is stale and must not touch it.
			if t.stop != stop {
				t.mu.Unlock()
				return
			}
			if t.remaining > 0 {
				t.remaining--
			}
			remaining := t.remaining
			done := remaining == 0
			if done {
				t.stop = nil
			}
			onTick := t.onTick
			t.mu.Unlock()

			if onTick != nil {
				onTick(remaining)
			}
			if done {
				return
			}
		case <-stop:
			return
		}
	}
}

// Reset restarts the countdown from ResendCountdown and resumes
// ticking. Called when the user triggers a resend.
func (t *ResendTimer) Reset() {
	t.mu.Lock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.remaining = ResendCountdown
	t.mu.Unlock()

	t.Start()
}

// Stop halts the countdown. Used on step teardown.
func (t *ResendTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

// Remaining returns the seconds left.
func (t *ResendTimer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// CanResend reports whether the countdown has reached zero.
func (t *ResendTimer) CanResend() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining == 0
}
