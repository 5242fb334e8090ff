package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
	"github.com/Jitendersingh2001/Wealthyfy/internal/protocol"
)

// WebSocket security errors.
var (
	ErrOriginNotAllowed = errors.New("origin not allowed")
)

// Socket is one accepted browser connection.
type Socket struct {
	*base
	id     string
	conn   *websocket.Conn
	codec  protocol.Codec
	logger logging.Logger
}

// Accept upgrades an HTTP request to a socket. The codec is chosen by
// the ?codec= query parameter; unknown or absent falls back to the
// registry default. Origin is validated before the upgrade to prevent
// cross-site WebSocket hijacking.
func Accept(w http.ResponseWriter, r *http.Request, config *Config, codecs *protocol.CodecRegistry, logger logging.Logger) (*Socket, error) {
	if config == nil {
		config = DefaultConfig()
	}

	origin := r.Header.Get("Origin")
	if !originAllowed(config, origin, r.Host) {
		http.Error(w, "Forbidden: Origin not allowed", http.StatusForbidden)
		return nil, ErrOriginNotAllowed
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: config.InsecureDevMode,
	})
	if err != nil {
		return nil, fmt.Errorf("accept websocket: %w", err)
	}

	codec, ok := codecs.Get(r.URL.Query().Get("codec"))
	if !ok {
		codec = codecs.Default()
	}

	id := uuid.NewString()
	s := &Socket{
		base:   newBase(config),
		id:     id,
		conn:   conn,
		codec:  codec,
		logger: logger.With(logging.String("socket_id", id)),
	}
	s.setConnected(true)

	conn.SetReadLimit(config.MaxMessageSize)

	go s.readLoop()
	go s.writeLoop()
	go s.pingLoop()

	return s, nil
}

func originAllowed(config *Config, origin, requestHost string) bool {
	if config.InsecureDevMode {
		return true
	}

	// Empty origin = same-origin request.
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Host == requestHost {
		return true
	}

	for _, allowed := range config.AllowedOrigins {
		if allowed == origin {
			return true
		}
		if allowedURL, err := url.Parse(allowed); err == nil && allowedURL.Host == originURL.Host {
			return true
		}
	}

	return false
}

// ID returns the socket's unique id, used as the channel auth
// signature input.
func (s *Socket) ID() string {
	return s.id
}

// Send queues a message for delivery.
func (s *Socket) Send(msg *protocol.Message) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}

	select {
	case s.sendCh <- msg:
		return nil
	case <-s.closeCh:
		return ErrConnectionClosed
	case <-time.After(s.config.WriteTimeout):
		return ErrSendTimeout
	}
}

// Close closes the socket.
func (s *Socket) Close() error {
	s.closeBase()
	return s.conn.Close(websocket.StatusNormalClosure, "closing")
}

// readLoop is the sole sender on recvCh and closes it on exit, so a
// consumer ranging over Receive() ends when the connection does.
func (s *Socket) readLoop() {
	defer func() {
		s.Close()
		close(s.recvCh)
	}()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ReadTimeout)
		_, data, err := s.conn.Read(ctx)
		cancel()

		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.logger.Debug("socket read ended", logging.Err(err))
			}
			return
		}

		msg, err := s.codec.Decode(data)
		if err != nil {
			s.logger.Debug("dropping undecodable frame", logging.Err(err))
			continue
		}

		if msg.IsHeartbeat() {
			s.sendHeartbeatReply(msg.Ref)
			continue
		}

		select {
		case s.recvCh <- msg:
		case <-s.closeCh:
			return
		default:
			s.logger.Warn("receive buffer full, dropping frame",
				logging.String("event", msg.Event))
		}
	}
}

func (s *Socket) writeLoop() {
	for {
		select {
		case msg := <-s.sendCh:
			data, err := s.codec.Encode(msg)
			if err != nil {
				s.logger.Warn("encode failed", logging.Err(err))
				continue
			}

			kind := websocket.MessageText
			if s.codec.Name() == "msgpack" {
				kind = websocket.MessageBinary
			}

			ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
			err = s.conn.Write(ctx, kind, data)
			cancel()

			if err != nil {
				return
			}

		case <-s.closeCh:
			return
		}
	}
}

func (s *Socket) pingLoop() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
			s.conn.Ping(ctx)
			cancel()
		case <-s.closeCh:
			return
		}
	}
}

func (s *Socket) sendHeartbeatReply(ref string) {
	msg := protocol.OkReply(ref, "", nil)
	select {
	case s.sendCh <- msg:
	default:
	}
}
