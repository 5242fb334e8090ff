package pubsub

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemory_PublishDelivers(t *testing.T) {
	ps := NewMemory()
	defer ps.Close()

	received := make(chan []byte, 1)
	sub, err := ps.Subscribe("private-user-42", func(msg []byte) {
		received <- msg
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Unsubscribe()

	if err := ps.Publish("private-user-42", []byte("hello")); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg) != "hello" {
			t.Errorf("got %q, want %q", msg, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestMemory_UnsubscribeStopsDelivery(t *testing.T) {
	ps := NewMemory()
	defer ps.Close()

	var count atomic.Int32
	sub, err := ps.Subscribe("private-user-42", func(msg []byte) {
		count.Add(1)
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe error: %v", err)
	}

	ps.Publish("private-user-42", []byte("late"))
	time.Sleep(50 * time.Millisecond)

	if count.Load() != 0 {
		t.Errorf("received %d messages after unsubscribe", count.Load())
	}
}

func TestMemory_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	ps := NewMemory()
	defer ps.Close()

	const (
		numGoroutines = 50
		numIterations = 50
	)

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("goroutine %d panicked: %v", id, r)
				}
			}()

			for j := 0; j < numIterations; j++ {
				sub, err := ps.Subscribe("private-user-1", func(msg []byte) {})
				if err != nil {
					if err == ErrClosed {
						return
					}
					t.Errorf("Subscribe error: %v", err)
					continue
				}
				ps.Publish("private-user-1", []byte("m"))
				if err := sub.Unsubscribe(); err != nil {
					t.Errorf("Unsubscribe error: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	if n := ps.SubscriberCount("private-user-1"); n != 0 {
		t.Errorf("expected no subscribers, got %d", n)
	}
}

func TestEventRoundTrip(t *testing.T) {
	data := EncodeEvent("session-completed", map[string]any{
		"session_id": "s1",
		"status":     "COMPLETED",
	})

	name, payload := DecodeEvent(data)
	if name != "session-completed" {
		t.Errorf("name = %q", name)
	}
	if payload["status"] != "COMPLETED" {
		t.Errorf("payload = %v", payload)
	}
}

func TestMemory_ClosedRejectsSubscribe(t *testing.T) {
	ps := NewMemory()
	ps.Close()

	if _, err := ps.Subscribe("topic", func([]byte) {}); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
