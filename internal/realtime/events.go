// Package realtime delivers backend completion events to the step
// currently waiting on them, over per-user private channels.
package realtime

// Event names published on the per-user channel.
const (
	EventSessionCompleted      = "session-completed"
	EventDataFetchingCompleted = "data-fetching-completed"
)

// ChannelPrefix is the naming prefix for private per-user channels.
const ChannelPrefix = "private-user-"

// UserChannel returns the private channel name for a user.
func UserChannel(userID string) string {
	return ChannelPrefix + userID
}

// Event is a named realtime event with its payload.
type Event struct {
	Name    string
	Payload map[string]any
}

// SessionCompletedPayload is the payload of EventSessionCompleted.
type SessionCompletedPayload struct {
	SessionID string `json:"session_id"`
	ConsentID string `json:"consent_id"`
	Status    string `json:"status"`
}

// DataFetchingCompletedPayload is the payload of EventDataFetchingCompleted.
type DataFetchingCompletedPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
