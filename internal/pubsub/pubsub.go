// Package pubsub carries completion events from the backend bridge to
// per-user realtime channels.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Common pubsub errors.
var (
	ErrClosed = errors.New("pubsub is closed")
)

// PubSub is the interface for pub/sub implementations.
type PubSub interface {
	// Subscribe adds a handler for a topic.
	Subscribe(topic string, handler func(msg []byte)) (Subscription, error)

	// Publish sends a message to all subscribers of a topic.
	Publish(topic string, msg []byte) error

	// Close shuts down the pubsub system.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe removes this subscription.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// Event is the wire form of a realtime event on a topic.
type Event struct {
	Name    string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

// EncodeEvent serializes an event for publishing.
func EncodeEvent(name string, payload map[string]any) []byte {
	data, _ := json.Marshal(Event{Name: name, Payload: payload})
	return data
}

// DecodeEvent deserializes an event received from a topic.
func DecodeEvent(data []byte) (string, map[string]any) {
	var ev Event
	json.Unmarshal(data, &ev)
	return ev.Name, ev.Payload
}

type subChannel struct {
	ch        chan []byte
	closeOnce sync.Once
}

func (sc *subChannel) close() {
	sc.closeOnce.Do(func() {
		close(sc.ch)
	})
}

// Memory is an in-memory pub/sub implementation. Suitable for
// single-node deployments and tests.
type Memory struct {
	topics map[string]map[string]*subChannel
	subs   map[string]*memorySubscription
	closed bool
	mu     sync.RWMutex
}

// NewMemory creates a new in-memory pub/sub.
func NewMemory() *Memory {
	return &Memory{
		topics: make(map[string]map[string]*subChannel),
		subs:   make(map[string]*memorySubscription),
	}
}

// Subscribe adds a handler for a topic. The handler runs on its own
// goroutine; a full subscriber buffer drops messages rather than
// blocking publishers.
func (ps *Memory) Subscribe(topic string, handler func(msg []byte)) (Subscription, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil, ErrClosed
	}

	if ps.topics[topic] == nil {
		ps.topics[topic] = make(map[string]*subChannel)
	}

	subID := uuid.NewString()
	sc := &subChannel{ch: make(chan []byte, 256)}
	ps.topics[topic][subID] = sc

	ctx, cancel := context.WithCancel(context.Background())
	sub := &memorySubscription{
		id:     subID,
		topic:  topic,
		ps:     ps,
		sc:     sc,
		ctx:    ctx,
		cancel: cancel,
	}
	ps.subs[subID] = sub

	go func() {
		defer func() {
			recover() // a panicking handler must not take down the fanout
		}()

		for {
			select {
			case msg, ok := <-sc.ch:
				if !ok || sub.closed.Load() {
					return
				}
				handler(msg)
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}

// Publish sends a message to all subscribers of a topic.
func (ps *Memory) Publish(topic string, msg []byte) error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if ps.closed {
		return ErrClosed
	}

	subscribers := ps.topics[topic]
	if subscribers == nil {
		return nil
	}

	msgCopy := make([]byte, len(msg))
	copy(msgCopy, msg)

	for subID, sc := range subscribers {
		sub := ps.subs[subID]
		if sub != nil && sub.closed.Load() {
			continue
		}

		select {
		case sc.ch <- msgCopy:
		default:
			// Subscriber buffer full, drop.
		}
	}

	return nil
}

// Close shuts down the pubsub system.
func (ps *Memory) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil
	}
	ps.closed = true

	for _, subscribers := range ps.topics {
		for _, sc := range subscribers {
			sc.close()
		}
	}

	ps.topics = make(map[string]map[string]*subChannel)
	ps.subs = make(map[string]*memorySubscription)

	return nil
}

// SubscriberCount returns the number of subscribers for a topic.
func (ps *Memory) SubscriberCount(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.topics[topic])
}

type memorySubscription struct {
	id     string
	topic  string
	ps     *Memory
	sc     *subChannel
	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

// Unsubscribe removes this subscription. Safe to call concurrently
// with Publish and Close; repeated calls are no-ops.
func (s *memorySubscription) Unsubscribe() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.cancel()

	s.ps.mu.Lock()
	defer s.ps.mu.Unlock()

	if subscribers := s.ps.topics[s.topic]; subscribers != nil {
		delete(subscribers, s.id)
		if len(subscribers) == 0 {
			delete(s.ps.topics, s.topic)
		}
	}
	delete(s.ps.subs, s.id)

	s.sc.close()

	return nil
}

func (s *memorySubscription) Topic() string {
	return s.topic
}
