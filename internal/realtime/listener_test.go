package realtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
	"github.com/Jitendersingh2001/Wealthyfy/internal/pubsub"
)

func newTestManager(t *testing.T) (*Manager, *pubsub.Memory) {
	t.Helper()
	bus := pubsub.NewMemory()
	t.Cleanup(func() { bus.Close() })
	return NewManagerWithPubSub(bus, logging.Nop()), bus
}

func publishEvent(t *testing.T, bus *pubsub.Memory, userID, event string) {
	t.Helper()
	if err := bus.Publish(UserChannel(userID), pubsub.EncodeEvent(event, map[string]any{"status": "COMPLETED"})); err != nil {
		t.Fatal(err)
	}
}

func waitForCount(t *testing.T, counter *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if counter.Load() >= want {
			if got := counter.Load(); got != want {
				t.Fatalf("count = %d, want %d", got, want)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("count = %d after timeout, want %d", counter.Load(), want)
}

func TestListenerOnceDropsDuplicates(t *testing.T) {
	m, bus := newTestManager(t)
	if _, err := m.Subscribe("user-1"); err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	var count atomic.Int32
	l := NewListener(m, EventSessionCompleted, Options{Once: true, Enabled: true}, logging.Nop())
	l.SetHandler(func(Event) { count.Add(1) })
	l.Arm()

	publishEvent(t, bus, "user-1", EventSessionCompleted)
	publishEvent(t, bus, "user-1", EventSessionCompleted)
	publishEvent(t, bus, "user-1", EventSessionCompleted)

	waitForCount(t, &count, 1)

	// Give any stray deliveries time to land.
	time.Sleep(50 * time.Millisecond)
	if count.Load() != 1 {
		t.Errorf("handler ran %d times", count.Load())
	}
}

func TestListenerRearmOnArmIsNoOp(t *testing.T) {
	m, bus := newTestManager(t)
	if _, err := m.Subscribe("user-1"); err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	var count atomic.Int32
	l := NewListener(m, EventSessionCompleted, Options{Enabled: true}, logging.Nop())
	l.SetHandler(func(Event) { count.Add(1) })

	// Repeated mounts arm repeatedly; bindings must not stack.
	l.Arm()
	l.Arm()
	l.Arm()

	publishEvent(t, bus, "user-1", EventSessionCompleted)
	waitForCount(t, &count, 1)
}

func TestListenerDisabledHoldsNoBinding(t *testing.T) {
	m, bus := newTestManager(t)
	if _, err := m.Subscribe("user-1"); err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	var count atomic.Int32
	l := NewListener(m, EventSessionCompleted, Options{Enabled: false}, logging.Nop())
	l.SetHandler(func(Event) { count.Add(1) })
	l.Arm()

	publishEvent(t, bus, "user-1", EventSessionCompleted)
	time.Sleep(50 * time.Millisecond)
	if count.Load() != 0 {
		t.Fatalf("disabled listener ran %d times", count.Load())
	}

	// Enabling arms exactly one fresh binding.
	l.SetEnabled(true)
	publishEvent(t, bus, "user-1", EventSessionCompleted)
	waitForCount(t, &count, 1)
}

func TestListenerHandlerSwapRunsLatest(t *testing.T) {
	m, bus := newTestManager(t)
	if _, err := m.Subscribe("user-1"); err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	var first, second atomic.Int32
	l := NewListener(m, EventSessionCompleted, Options{Enabled: true}, logging.Nop())
	l.SetHandler(func(Event) { first.Add(1) })
	l.Arm()

	l.SetHandler(func(Event) { second.Add(1) })

	publishEvent(t, bus, "user-1", EventSessionCompleted)
	waitForCount(t, &second, 1)
	if first.Load() != 0 {
		t.Errorf("stale handler ran %d times", first.Load())
	}
}

func TestManagerResubscribeReplacesChannel(t *testing.T) {
	m, bus := newTestManager(t)
	defer m.Close()

	if _, err := m.Subscribe("user-1"); err != nil {
		t.Fatal(err)
	}
	ch, err := m.Subscribe("user-2")
	if err != nil {
		t.Fatal(err)
	}

	if got := m.Channel(); got != ch {
		t.Fatal("current channel is not the latest subscription")
	}
	if got := ch.Name(); got != UserChannel("user-2") {
		t.Errorf("channel name = %q", got)
	}

	var count atomic.Int32
	ch.Bind(EventSessionCompleted, func(Event) { count.Add(1) })

	// Events for the replaced channel must not arrive.
	publishEvent(t, bus, "user-1", EventSessionCompleted)
	publishEvent(t, bus, "user-2", EventSessionCompleted)
	waitForCount(t, &count, 1)
}
