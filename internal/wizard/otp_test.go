package wizard

import (
	"testing"
	"time"
)

func TestResendTimerCountsDown(t *testing.T) {
	ticks := make(chan int, ResendCountdown+1)
	timer := NewResendTimer(time.Millisecond, func(remaining int) {
		ticks <- remaining
	})
	defer timer.Stop()

	timer.Start()

	deadline := time.After(2 * time.Second)
	var last int
	for {
		select {
		case last = <-ticks:
			if last == 0 {
				if !timer.CanResend() {
					t.Error("CanResend false after countdown expired")
				}
				return
			}
		case <-deadline:
			t.Fatalf("countdown stalled at %d", last)
		}
	}
}

func TestResendTimerReset(t *testing.T) {
	timer := NewResendTimer(time.Hour, nil)
	defer timer.Stop()

	timer.Start()
	if timer.CanResend() {
		t.Error("resend available while counting down")
	}
	if timer.Remaining() != ResendCountdown {
		t.Errorf("Remaining = %d", timer.Remaining())
	}

	timer.Reset()
	if timer.Remaining() != ResendCountdown {
		t.Errorf("Remaining after reset = %d", timer.Remaining())
	}
}

func TestResendTimerStopSilencesStaleRuns(t *testing.T) {
	timer := NewResendTimer(time.Millisecond, nil)
	defer timer.Stop()

	// Hammer Reset while ticks are firing so stale run goroutines race
	// the fresh countdown.
	timer.Start()
	for i := 0; i < 20; i++ {
		time.Sleep(2 * time.Millisecond)
		timer.Reset()
	}

	timer.Stop()
	snapshot := timer.Remaining()
	time.Sleep(20 * time.Millisecond)
	if got := timer.Remaining(); got != snapshot {
		t.Errorf("countdown kept ticking after Stop: %d -> %d", snapshot, got)
	}
}

func TestResendTimerStartIsIdempotent(t *testing.T) {
	timer := NewResendTimer(time.Hour, nil)
	defer timer.Stop()

	timer.Start()
	timer.Start()
	if timer.Remaining() != ResendCountdown {
		t.Errorf("Remaining = %d", timer.Remaining())
	}
}
