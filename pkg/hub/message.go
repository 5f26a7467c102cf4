// Package hub fans live session traffic out to dashboard websocket
// clients using a channel-based broadcast loop. Clients subscribe to one
// session or to every session.
package hub

// AllSessions subscribes a client to every session
const AllSessions = "*"

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data, e.g. JPEG frames
	BinaryMessage
)

// Message is one broadcast addressed to a session topic
type Message struct {
	Topic string
	Type  MessageType
	Data  []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Type: BinaryMessage, Data: data}
}

func (m Message) matches(topic string) bool {
	return topic == AllSessions || topic == m.Topic
}
