package server

import (
	"context"
	"sync"

	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
	"github.com/Jitendersingh2001/Wealthyfy/internal/protocol"
	"github.com/Jitendersingh2001/Wealthyfy/internal/pubsub"
	"github.com/Jitendersingh2001/Wealthyfy/internal/realtime"
	"github.com/Jitendersingh2001/Wealthyfy/internal/transport"
	"github.com/Jitendersingh2001/Wealthyfy/internal/wizard"
)

// session is one user's live state: their wizard, their realtime
// channel manager, and the socket currently mirroring events to the
// browser.
type session struct {
	userID  string
	wizard  *wizard.Wizard
	manager *realtime.Manager

	socket   *transport.Socket
	forwards []*realtime.Binding
	mu       sync.Mutex
}

// setSocket swaps the browser socket and rebinds event forwarding. A
// reconnect replaces the previous socket's bindings.
func (s *session) setSocket(sock *transport.Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.forwards {
		b.Unbind()
	}
	s.forwards = nil
	s.socket = sock

	if sock == nil {
		return
	}

	ch := s.manager.Channel()
	if ch == nil {
		return
	}
	for _, event := range []string{realtime.EventSessionCompleted, realtime.EventDataFetchingCompleted} {
		b := ch.Bind(event, func(ev realtime.Event) {
			s.push(ev.Name, ev.Payload)
		})
		if b != nil {
			s.forwards = append(s.forwards, b)
		}
	}
}

// push sends an event frame to the current socket, if any.
func (s *session) push(event string, payload map[string]any) {
	s.mu.Lock()
	sock := s.socket
	s.mu.Unlock()

	if sock == nil {
		return
	}
	sock.Send(protocol.EventMessage(realtime.UserChannel(s.userID), event, payload))
}

func (s *session) close() {
	s.mu.Lock()
	sock := s.socket
	s.socket = nil
	for _, b := range s.forwards {
		b.Unbind()
	}
	s.forwards = nil
	s.mu.Unlock()

	if sock != nil {
		sock.Close()
	}
	s.wizard.Close()
}

// sessionManager owns the per-user sessions.
type sessionManager struct {
	sessions map[string]*session
	build    func(userID string, manager *realtime.Manager, notify wizard.Notifier) *wizard.Wizard
	bus      pubsub.PubSub
	logger   logging.Logger
	mu       sync.Mutex
}

func newSessionManager(bus pubsub.PubSub, build func(string, *realtime.Manager, wizard.Notifier) *wizard.Wizard, logger logging.Logger) *sessionManager {
	return &sessionManager{
		sessions: make(map[string]*session),
		build:    build,
		bus:      bus,
		logger:   logger,
	}
}

// get returns the user's session, creating and starting it on first
// use.
func (m *sessionManager) get(ctx context.Context, userID string) (*session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	manager := realtime.NewManagerWithPubSub(m.bus, m.logger)
	s := &session{userID: userID, manager: manager}
	s.wizard = m.build(userID, manager, s.push)

	if err := s.wizard.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[userID]; ok {
		// Lost the race; discard ours.
		s.wizard.Close()
		return existing, nil
	}
	m.sessions[userID] = s
	return s, nil
}

// drop removes and closes a user's session.
func (m *sessionManager) drop(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if ok {
		s.close()
	}
}

// closeAll tears down every session.
func (m *sessionManager) closeAll() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// count returns the number of live sessions.
func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
