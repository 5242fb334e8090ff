package realtime

import (
	"errors"
	"sync"

	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
	"github.com/Jitendersingh2001/Wealthyfy/internal/pubsub"
)

// Common channel errors.
var (
	ErrNotSubscribed = errors.New("no active channel subscription")
	ErrManagerClosed = errors.New("channel manager is closed")
)

// Manager owns the connection to the event fabric and the single live
// per-user channel. Subscribing while a channel exists tears down the
// old one first; there is never concurrent multi-channel state.
type Manager struct {
	connect func() (pubsub.PubSub, error)
	logger  logging.Logger

	mu      sync.Mutex
	ps      pubsub.PubSub
	pending chan struct{} // non-nil while an init is in flight
	channel *Channel
	closed  bool
}

// NewManager creates a manager. The connect factory is invoked lazily
// on first subscribe; concurrent first subscribes share one in-flight
// initialization rather than racing to create duplicate connections.
func NewManager(connect func() (pubsub.PubSub, error), logger logging.Logger) *Manager {
	return &Manager{connect: connect, logger: logger}
}

// NewManagerWithPubSub creates a manager over an existing connection.
func NewManagerWithPubSub(ps pubsub.PubSub, logger logging.Logger) *Manager {
	return &Manager{
		connect: func() (pubsub.PubSub, error) { return ps, nil },
		logger:  logger,
	}
}

func (m *Manager) init() (pubsub.PubSub, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrManagerClosed
		}
		if m.ps != nil {
			ps := m.ps
			m.mu.Unlock()
			return ps, nil
		}
		if m.pending != nil {
			wait := m.pending
			m.mu.Unlock()
			<-wait
			continue
		}

		m.pending = make(chan struct{})
		pending := m.pending
		m.mu.Unlock()

		ps, err := m.connect()

		m.mu.Lock()
		m.pending = nil
		if err == nil {
			m.ps = ps
		}
		m.mu.Unlock()
		close(pending)

		if err != nil {
			return nil, err
		}
		return ps, nil
	}
}

// Subscribe establishes the private channel for a user. Any existing
// channel subscription is torn down first.
func (m *Manager) Subscribe(userID string) (*Channel, error) {
	ps, err := m.init()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	old := m.channel
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	ch := newChannel(UserChannel(userID), ps, m.logger)
	if err := ch.subscribe(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		ch.Close()
		return nil, ErrManagerClosed
	}
	m.channel = ch
	m.mu.Unlock()

	m.logger.Info("subscribed to channel", logging.String("channel", ch.Name()))
	return ch, nil
}

// Unsubscribe tears down the live channel, if any.
func (m *Manager) Unsubscribe() {
	m.mu.Lock()
	ch := m.channel
	m.channel = nil
	m.mu.Unlock()

	if ch != nil {
		ch.Close()
		m.logger.Info("unsubscribed from channel", logging.String("channel", ch.Name()))
	}
}

// Channel returns the live channel, or nil when not subscribed.
func (m *Manager) Channel() *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channel
}

// Close tears down the channel and the connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ch := m.channel
	m.channel = nil
	ps := m.ps
	m.ps = nil
	m.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if ps != nil {
		return ps.Close()
	}
	return nil
}

// Channel is a single per-user private channel. Handlers bind to named
// events; everything else on the topic is ignored.
type Channel struct {
	name   string
	ps     pubsub.PubSub
	logger logging.Logger

	mu       sync.Mutex
	sub      pubsub.Subscription
	bindings map[string][]*Binding
	closed   bool
}

func newChannel(name string, ps pubsub.PubSub, logger logging.Logger) *Channel {
	return &Channel{
		name:     name,
		ps:       ps,
		logger:   logger,
		bindings: make(map[string][]*Binding),
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) subscribe() error {
	sub, err := c.ps.Subscribe(c.name, c.dispatch)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	return nil
}

func (c *Channel) dispatch(msg []byte) {
	name, payload := pubsub.DecodeEvent(msg)
	if name == "" {
		return
	}

	c.mu.Lock()
	bound := make([]*Binding, len(c.bindings[name]))
	copy(bound, c.bindings[name])
	c.mu.Unlock()

	ev := Event{Name: name, Payload: payload}
	for _, b := range bound {
		b.deliver(ev)
	}
}

// Bind attaches a handler to a named event. The returned binding must
// be unbound on teardown to avoid leaking duplicate handlers across
// remounts.
func (c *Channel) Bind(event string, handler func(Event)) *Binding {
	b := &Binding{channel: c, event: event}
	b.handler.Store(&handler)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		b.unbound.Store(true)
		return b
	}
	c.bindings[event] = append(c.bindings[event], b)
	return b
}

func (c *Channel) unbind(b *Binding) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bound := c.bindings[b.event]
	for i, cur := range bound {
		if cur == b {
			c.bindings[b.event] = append(bound[:i], bound[i+1:]...)
			break
		}
	}
	if len(c.bindings[b.event]) == 0 {
		delete(c.bindings, b.event)
	}
}

// Close unbinds all handlers and unsubscribes from the topic.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.sub
	c.sub = nil
	c.bindings = make(map[string][]*Binding)
	c.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}
