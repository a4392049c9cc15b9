package sockets

import (
	"encoding/json"
	"time"
)

// MessageType classifies a history entry.
type MessageType string

const (
	MessageSent     MessageType = "sent"
	MessageReceived MessageType = "received"
	MessageInfo     MessageType = "info"
	MessageError    MessageType = "error"
)

// Lifecycle event names recorded as info messages.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Message is one history entry of a namespace. Data holds the variadic
// event arguments in order. Messages are never modified once appended.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Event     string      `json:"event"`
	Data      []any       `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// MarshalJSON encodes error arguments as {"message": ...} objects, since
// error values carry no exported fields.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message

	data := make([]any, len(m.Data))
	for i, v := range m.Data {
		if err, ok := v.(error); ok {
			data[i] = map[string]string{"message": err.Error()}
			continue
		}
		data[i] = v
	}

	out := alias(m)
	out.Data = data

	return json.Marshal(out)
}
