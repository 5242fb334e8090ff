// Package transport carries protocol messages between the browser and
// the server over WebSocket.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/Jitendersingh2001/Wealthyfy/internal/protocol"
)

// Common transport errors.
var (
	ErrNotConnected     = errors.New("transport not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendTimeout      = errors.New("send timeout")
)

// Config holds transport tuning.
type Config struct {
	// ReadTimeout is the maximum time to wait for a read
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for a write
	WriteTimeout time.Duration

	// PingInterval is how often to send heartbeats
	PingInterval time.Duration

	// MaxMessageSize is the maximum message size in bytes
	MaxMessageSize int64

	// SendBufferSize is the size of the send channel buffer
	SendBufferSize int

	// ReceiveBufferSize is the size of the receive channel buffer
	ReceiveBufferSize int

	// AllowedOrigins lists origins accepted on upgrade. Empty means
	// same-origin only.
	AllowedOrigins []string

	// InsecureDevMode disables origin validation (development only).
	InsecureDevMode bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    512 * 1024,
		SendBufferSize:    256,
		ReceiveBufferSize: 256,
	}
}

// base provides the shared channel plumbing for sockets.
type base struct {
	config    *Config
	connected bool
	sendCh    chan *protocol.Message
	recvCh    chan *protocol.Message
	closeCh   chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
}

func newBase(config *Config) *base {
	if config == nil {
		config = DefaultConfig()
	}
	return &base{
		config:  config,
		sendCh:  make(chan *protocol.Message, config.SendBufferSize),
		recvCh:  make(chan *protocol.Message, config.ReceiveBufferSize),
		closeCh: make(chan struct{}),
	}
}

// IsConnected returns the connection status.
func (b *base) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *base) setConnected(connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = connected
}

// Receive returns the receive channel.
func (b *base) Receive() <-chan *protocol.Message {
	return b.recvCh
}

func (b *base) closeBase() {
	b.closeOnce.Do(func() {
		b.setConnected(false)
		close(b.closeCh)
	})
}

// Registry tracks live sockets by user id. One socket per user; a new
// connection replaces and closes the previous one.
type Registry struct {
	sockets map[string]*Socket
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sockets: make(map[string]*Socket)}
}

// Add registers a socket for a user, closing any previous one.
func (r *Registry) Add(userID string, s *Socket) {
	r.mu.Lock()
	prev := r.sockets[userID]
	r.sockets[userID] = s
	r.mu.Unlock()

	if prev != nil && prev != s {
		prev.Close()
	}
}

// Remove drops the socket for a user if it is still the current one.
func (r *Registry) Remove(userID string, s *Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sockets[userID] == s {
		delete(r.sockets, userID)
	}
}

// Get retrieves the socket for a user.
func (r *Registry) Get(userID string) (*Socket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sockets[userID]
	return s, ok
}

// Count returns the number of live sockets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sockets)
}

// CloseAll closes every socket.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sockets := make([]*Socket, 0, len(r.sockets))
	for id, s := range r.sockets {
		sockets = append(sockets, s)
		delete(r.sockets, id)
	}
	r.mu.Unlock()

	for _, s := range sockets {
		s.Close()
	}
}
