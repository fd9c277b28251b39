// Package hub fans fixes out to observer websockets using the channel-based
// register/unregister/broadcast pattern.
package hub

// Message is a pre-encoded JSON message to be broadcast to clients.
type Message struct {
	// SessionID tags the message so clients subscribed to one session only
	// receive its fixes. Empty reaches every client.
	SessionID string
	Data      []byte
}

// NewMessage creates a message for a session.
func NewMessage(sessionID string, data []byte) Message {
	return Message{SessionID: sessionID, Data: data}
}

// wants reports whether a client subscribed to filter should receive m.
func (m Message) wants(filter string) bool {
	return filter == "" || m.SessionID == "" || filter == m.SessionID
}
