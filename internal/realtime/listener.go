package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
)

// Options configures a Listener.
type Options struct {
	// Once suppresses every invocation after the first, even if the
	// underlying channel delivers the event again.
	Once bool

	// Enabled gates the binding entirely. Disabled listeners hold no
	// binding on the channel.
	Enabled bool
}

// Binding is one bound handler on a channel. The handler pointer is
// swappable so callers always run the latest closure without the
// binding itself being re-created.
type Binding struct {
	channel *Channel
	event   string

	handler atomic.Pointer[func(Event)]
	unbound atomic.Bool

	// once semantics, managed by the owning Listener
	once      atomic.Bool
	triggered atomic.Bool
}

func (b *Binding) deliver(ev Event) {
	if b.unbound.Load() {
		return
	}
	if b.once.Load() && !b.triggered.CompareAndSwap(false, true) {
		// Duplicate delivery dropped.
		return
	}
	if fn := b.handler.Load(); fn != nil {
		(*fn)(ev)
	}
}

// Unbind removes the handler from the channel. Idempotent.
func (b *Binding) Unbind() {
	if !b.unbound.CompareAndSwap(false, true) {
		return
	}
	b.channel.unbind(b)
}

// Listener is the reusable arm-once primitive: one named event, an
// enabled gate, and an already-triggered flag, used uniformly by every
// waiting step instead of per-step ad hoc guards.
type Listener struct {
	manager *Manager
	event   string
	logger  logging.Logger

	mu      sync.Mutex
	opts    Options
	binding *Binding
	handler func(Event)
}

// NewListener creates a listener for a named event. No binding happens
// until Arm is called with Enabled set.
func NewListener(manager *Manager, event string, opts Options, logger logging.Logger) *Listener {
	return &Listener{
		manager: manager,
		event:   event,
		logger:  logger,
		opts:    opts,
	}
}

// SetHandler swaps in the latest callback. When the listener is Once,
// replacing the handler re-arms it: a handler change means the owning
// step's dependencies changed and the next delivery is relevant again.
func (l *Listener) SetHandler(fn func(Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.handler = fn
	if l.binding != nil {
		l.binding.handler.Store(&fn)
		if l.opts.Once {
			l.binding.triggered.Store(false)
		}
	}
}

// Arm binds the handler to the channel if enabled. Arming an already
// armed listener is a no-op, so repeated mounts never stack bindings.
// A missing channel is logged and ignored; the caller stays in the
// waiting state.
func (l *Listener) Arm() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.armLocked()
}

func (l *Listener) armLocked() {
	if !l.opts.Enabled || l.binding != nil {
		return
	}

	ch := l.manager.Channel()
	if ch == nil {
		l.logger.Warn("channel not available for event", logging.String("event", l.event))
		return
	}

	handler := l.handler
	if handler == nil {
		handler = func(Event) {}
	}

	b := ch.Bind(l.event, handler)
	b.once.Store(l.opts.Once)
	l.binding = b
}

// SetEnabled toggles the enabled gate. Disabling tears down the
// binding; enabling establishes exactly one fresh binding, not a
// duplicate of an earlier armed-then-disabled attempt.
func (l *Listener) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.opts.Enabled == enabled {
		return
	}
	l.opts.Enabled = enabled

	if !enabled {
		l.disarmLocked()
		return
	}
	l.armLocked()
}

// Disarm unbinds the handler. Mandatory on step teardown.
func (l *Listener) Disarm() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disarmLocked()
}

func (l *Listener) disarmLocked() {
	if l.binding == nil {
		return
	}
	l.binding.Unbind()
	l.binding = nil
}

// Armed reports whether a binding currently exists.
func (l *Listener) Armed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.binding != nil
}
