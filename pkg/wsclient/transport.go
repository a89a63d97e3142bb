package wsclient

import "context"

// MessageType represents a WebSocket message type.
// Values match RFC 6455 opcodes where applicable.
type MessageType uint8

const (
	// MessageText is a text data frame.
	MessageText MessageType = 1
	// MessageBinary is a binary data frame.
	MessageBinary MessageType = 2
	// MessageClose is a close control frame.
	MessageClose MessageType = 8
	// MessagePing is a ping control frame.
	MessagePing MessageType = 9
	// MessagePong is a pong control frame.
	MessagePong MessageType = 10
)

// CloseCode is a WebSocket close code.
type CloseCode uint16

const (
	// CloseNormal indicates a normal closure.
	CloseNormal CloseCode = 1000
	// CloseAbnormal indicates the peer vanished without a close frame.
	CloseAbnormal CloseCode = 1006
)

// Conn is one physical duplex message connection.
type Conn interface {
	// ReadMessage blocks until a complete data message arrives. Control
	// frames are handled internally and never surface here.
	ReadMessage(ctx context.Context) ([]byte, MessageType, error)
	// WriteMessage writes one complete message.
	WriteMessage(ctx context.Context, msgType MessageType, payload []byte) error
	// Close sends a close frame and tears the connection down.
	Close(code CloseCode, reason string) error
}

// Dialer establishes new physical connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}
