// Package protocol defines the wire format between the browser and
// the realtime push endpoint.
package protocol

import "time"

// MessageType identifies the type of protocol message.
type MessageType uint8

const (
	// MsgSubscribe is sent by a client to join its private channel.
	MsgSubscribe MessageType = iota
	// MsgUnsubscribe is sent by a client leaving a channel.
	MsgUnsubscribe
	// MsgEvent carries a domain event on a channel.
	MsgEvent
	// MsgAction carries a wizard action from the client.
	MsgAction
	// MsgReply answers a subscribe or action by ref.
	MsgReply
	// MsgError reports a failure.
	MsgError
	// MsgHeartbeat is connection keepalive.
	MsgHeartbeat
)

// String returns a string representation of the message type.
func (mt MessageType) String() string {
	switch mt {
	case MsgSubscribe:
		return "subscribe"
	case MsgUnsubscribe:
		return "unsubscribe"
	case MsgEvent:
		return "event"
	case MsgAction:
		return "action"
	case MsgReply:
		return "reply"
	case MsgError:
		return "error"
	case MsgHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Message is one frame on the push socket.
type Message struct {
	// Type identifies what kind of message this is
	Type MessageType `json:"t" msgpack:"t"`

	// Ref is a correlation ID for request/response matching
	Ref string `json:"ref,omitempty" msgpack:"ref,omitempty"`

	// Channel the message belongs to (e.g. "private-user-42")
	Channel string `json:"channel,omitempty" msgpack:"channel,omitempty"`

	// Event is the event name (e.g. "session-completed")
	Event string `json:"event,omitempty" msgpack:"event,omitempty"`

	// Payload contains the message data
	Payload map[string]any `json:"payload,omitempty" msgpack:"payload,omitempty"`

	// Auth is the channel authorization signature on subscribe frames
	Auth string `json:"auth,omitempty" msgpack:"auth,omitempty"`

	// Timestamp when the message was created
	Timestamp int64 `json:"ts,omitempty" msgpack:"ts,omitempty"`
}

// NewMessage creates a message with the given parameters.
func NewMessage(msgType MessageType, channel, event string) *Message {
	return &Message{
		Type:      msgType,
		Channel:   channel,
		Event:     event,
		Payload:   make(map[string]any),
		Timestamp: time.Now().UnixMilli(),
	}
}

// WithRef adds a reference ID to the message.
func (m *Message) WithRef(ref string) *Message {
	m.Ref = ref
	return m
}

// WithPayload sets the message payload.
func (m *Message) WithPayload(payload map[string]any) *Message {
	m.Payload = payload
	return m
}

// GetPayloadString retrieves a string value from the payload.
func (m *Message) GetPayloadString(key string) string {
	if m.Payload == nil {
		return ""
	}
	if v, ok := m.Payload[key].(string); ok {
		return v
	}
	return ""
}

// GetPayloadBool retrieves a bool value from the payload.
func (m *Message) GetPayloadBool(key string) bool {
	if m.Payload == nil {
		return false
	}
	if v, ok := m.Payload[key].(bool); ok {
		return v
	}
	return false
}

// IsHeartbeat returns true if this is a heartbeat message.
func (m *Message) IsHeartbeat() bool {
	return m.Type == MsgHeartbeat
}

// SubscribeMessage creates a channel subscribe frame.
func SubscribeMessage(channel, auth string) *Message {
	m := NewMessage(MsgSubscribe, channel, "subscribe")
	m.Auth = auth
	return m
}

// EventMessage creates a channel event frame.
func EventMessage(channel, event string, payload map[string]any) *Message {
	return NewMessage(MsgEvent, channel, event).WithPayload(payload)
}

// ReplyMessage answers a ref-carrying frame.
func ReplyMessage(ref, channel, status string, response map[string]any) *Message {
	return NewMessage(MsgReply, channel, "reply").
		WithRef(ref).
		WithPayload(map[string]any{
			"status":   status,
			"response": response,
		})
}

// OkReply creates a successful reply.
func OkReply(ref, channel string, response map[string]any) *Message {
	return ReplyMessage(ref, channel, "ok", response)
}

// ErrorReply creates an error reply.
func ErrorReply(ref, channel, reason string) *Message {
	return ReplyMessage(ref, channel, "error", map[string]any{"reason": reason})
}

// HeartbeatMessage creates a keepalive frame.
func HeartbeatMessage() *Message {
	return NewMessage(MsgHeartbeat, "", "heartbeat")
}
