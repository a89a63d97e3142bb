package wsclient

import "errors"

var (
	ErrEmptyURL     = errors.New("wsclient: empty url")
	ErrNilSendFunc  = errors.New("wsclient: nil send func")
	ErrNotConnected = errors.New("wsclient: not connected")
	ErrClientClosed = errors.New("wsclient: client closed")
	ErrBadScheme    = errors.New("wsclient: url scheme must be ws or wss")
)

// ConnectionState is the lifecycle state of the logical connection.
type ConnectionState uint8

const (
	// StateIdle means Connect has never been called.
	StateIdle ConnectionState = iota
	// StateConnecting means a physical open is in flight.
	StateConnecting
	// StateOpen means the transport is established.
	StateOpen
	// StateClosing means an intentional close is in progress.
	StateClosing
	// StateClosed means the transport is gone.
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport-level ready state integers reported by ReadyState.
const (
	ReadyStateNone       = -1
	ReadyStateConnecting = 0
	ReadyStateOpen       = 1
	ReadyStateClosing    = 2
	ReadyStateClosed     = 3
)

// Priority is the outbound routing class of a message. High bypasses
// batching entirely; medium and low ride independent batch queues.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Reserved event names emitted by the client itself. Application message
// types share the same table and must not collide with these.
const (
	EventConnected       = "connected"
	EventDisconnected    = "disconnected"
	EventReconnecting    = "reconnecting"
	EventReconnectFailed = "reconnect_failed"
	EventError           = "error"
	// EventMessage fires for every successfully parsed inbound frame,
	// regardless of its type.
	EventMessage = "message"
)

// Event is delivered to registered handlers.
type Event struct {
	// Name is the event the handler was registered under.
	Name string
	// Message is the parsed inbound frame, set for message-carrying events.
	Message Message
	// Err is set for error events.
	Err error
	// Attempt is set for reconnecting and reconnect_failed events.
	Attempt int
}
