package pubsub

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// NATS-specific errors.
var (
	ErrServerStart = errors.New("nats server failed to start within timeout")
)

// StartEmbedded starts an in-process NATS server with JetStream enabled,
// using dataDir for file-based storage. The server does not listen on
// any network port.
func StartEmbedded(dataDir string) (*server.Server, error) {
	opts := &server.Options{
		JetStream:  true,
		StoreDir:   dataDir,
		DontListen: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go ns.Start()

	if !ns.ReadyForConnections(4 * time.Second) {
		return nil, ErrServerStart
	}

	return ns, nil
}

// ConnectInProcess creates an in-process connection to the embedded server.
func ConnectInProcess(ns *server.Server) (*nats.Conn, error) {
	return nats.Connect("", nats.InProcessServer(ns))
}

// NATSPubSub implements PubSub over a NATS connection. Topics map
// directly to NATS subjects, so the bridge and the channel manager can
// run in separate processes sharing one server.
type NATSPubSub struct {
	conn   *nats.Conn
	closed atomic.Bool
}

// NewNATSPubSub wraps an existing NATS connection.
func NewNATSPubSub(conn *nats.Conn) *NATSPubSub {
	return &NATSPubSub{conn: conn}
}

// Subscribe adds a handler for a subject.
func (ps *NATSPubSub) Subscribe(topic string, handler func(msg []byte)) (Subscription, error) {
	if ps.closed.Load() {
		return nil, ErrClosed
	}

	sub, err := ps.conn.Subscribe(topic, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return nil, err
	}

	return &natsSubscription{topic: topic, sub: sub}, nil
}

// Publish sends a message to a subject.
func (ps *NATSPubSub) Publish(topic string, msg []byte) error {
	if ps.closed.Load() {
		return ErrClosed
	}
	return ps.conn.Publish(topic, msg)
}

// Close drains the connection. The embedded server, if any, is owned by
// the caller and shut down separately.
func (ps *NATSPubSub) Close() error {
	if !ps.closed.CompareAndSwap(false, true) {
		return nil
	}

	drained := make(chan error, 1)
	go func() {
		drained <- ps.conn.Drain()
	}()

	select {
	case err := <-drained:
		if err != nil {
			ps.conn.Close()
		}
	case <-time.After(2 * time.Second):
		ps.conn.Close()
	}

	return nil
}

type natsSubscription struct {
	topic  string
	sub    *nats.Subscription
	closed atomic.Bool
}

func (s *natsSubscription) Unsubscribe() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}
