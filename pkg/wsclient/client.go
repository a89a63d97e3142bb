package wsclient

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	// DefaultReconnectInterval is the fixed delay between reconnect attempts.
	DefaultReconnectInterval = 5 * time.Second
	// DefaultMaxReconnectAttempts bounds consecutive automatic reconnects.
	DefaultMaxReconnectAttempts = 5
)

// Option configures a Client.
type Option struct {
	// ReconnectInterval is the fixed delay before an automatic reconnect.
	// The delay does not grow between attempts. Optional; default 5s.
	ReconnectInterval time.Duration
	// MaxReconnectAttempts bounds consecutive automatic reconnects.
	// Optional; default 5.
	MaxReconnectAttempts int
	// AutoConnect launches the first Connect from New on a goroutine; a dial
	// failure there surfaces as an error event. Optional; default true.
	AutoConnect *bool
	// Debug enables per-frame diagnostic logging.
	Debug bool
	// EnableBatching routes medium/low priority sends through a Batcher.
	// Optional; default false.
	EnableBatching bool
	// Batcher configures the batcher when batching is enabled.
	Batcher BatcherOption
	// Dialer establishes physical connections. Optional; default is the
	// RFC 6455 dialer for the client url.
	Dialer Dialer
}

func (opt *Option) init(url string) error {
	if opt.ReconnectInterval <= 0 {
		opt.ReconnectInterval = DefaultReconnectInterval
	}
	if opt.MaxReconnectAttempts <= 0 {
		opt.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opt.AutoConnect == nil {
		auto := true
		opt.AutoConnect = &auto
	}
	if opt.Dialer == nil {
		d, err := NewDialer(url)
		if err != nil {
			return err
		}
		opt.Dialer = d
	}
	return nil
}

// Client owns one logical connection: the physical transport lifecycle, the
// bounded fixed-delay reconnection state machine, and event dispatch. The
// value is long-lived across reconnects; state resets, the Client does not.
//
// Transport failures surface as events rather than returned errors, because
// the contract is a long-lived self-healing connection: callers observe
// connected/disconnected/reconnecting/reconnect_failed/error instead of
// catching per-operation failures. Connect is the one exception, since it
// represents a single bounded attempt the caller explicitly waited on.
type Client struct {
	url     string
	opt     Option
	batcher *Batcher
	events  *registry
	stats   Stats

	mu             sync.Mutex
	state          ConnectionState
	conn           Conn
	attempts       int
	reconnectTimer *time.Timer
	manualClose    bool
	readCancel     context.CancelFunc
}

// New builds a Client for url. Unless AutoConnect is disabled, the first
// Connect starts immediately on a goroutine.
func New(url string, option ...Option) (*Client, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	if err := opt.init(url); err != nil {
		return nil, err
	}

	c := &Client{
		url:    url,
		opt:    opt,
		events: newRegistry(),
		state:  StateIdle,
	}
	if opt.EnableBatching {
		batcher, err := NewBatcher(c.rawSend, opt.Batcher)
		if err != nil {
			return nil, err
		}
		c.batcher = batcher
	}

	if *opt.AutoConnect {
		go func() {
			if err := c.Connect(context.Background()); err != nil {
				logs.Warnf("wsclient: auto connect: %+v", err)
			}
		}()
	}
	return c, nil
}

// Connect dials the server and blocks until the transport opens or the dial
// fails. Calling Connect while connecting or open is a no-op, so a second
// physical connection is never opened concurrently. A failed Connect is not
// retried automatically; automatic reconnection only follows an abnormal
// close of an established connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.manualClose = false
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.emit(Event{Name: EventError, Err: err})
		return errors.Wrap(err, "dial")
	}
	return nil
}

// Disconnect closes the transport and suppresses automatic reconnection,
// cancelling any pending reconnect timer. Calling it with no live transport
// is a no-op, not an error.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	if conn != nil {
		c.state = StateClosing
	} else if c.state != StateIdle {
		c.state = StateClosed
	}
	c.mu.Unlock()

	if c.batcher != nil {
		c.batcher.Stop()
	}
	if conn != nil {
		// The read loop observes the close and finishes the transition.
		_ = conn.Close(CloseNormal, "client_disconnect")
	}
}

// Send serializes a typed message to the wire. Default priority is high.
// Medium and low priority sends ride the batcher when batching is enabled;
// everything else goes out as one direct frame immediately, so a high
// priority message can overtake previously queued lower-priority ones.
//
// Send never panics. When disconnected the message is dropped: the drop is
// counted, logged, and reported as ErrNotConnected so callers and tests can
// still observe the outcome.
func (c *Client) Send(msgType string, data any, priority ...Priority) error {
	p := PriorityHigh
	if len(priority) != 0 {
		p = priority[0]
	}

	if !c.IsConnected() {
		c.stats.addDroppedSend()
		logs.Warnf("wsclient: dropped %q send: not connected", msgType)
		return ErrNotConnected
	}

	if c.batcher != nil && p != PriorityHigh {
		if err := c.batcher.Send(msgType, data, p); err != nil {
			return errors.Wrap(err, "queue message")
		}
		c.stats.addBatchedSend()
		return nil
	}

	payload, err := encodeDirect(msgType, data)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	if c.opt.Debug {
		logs.Debugf("wsclient: send type=%q priority=%s size=%d", msgType, p, len(payload))
	}
	c.stats.addDirectSend()
	return c.rawSend(payload)
}

// Flush drains the batcher queues synchronously. No-op without batching.
func (c *Client) Flush() error {
	if c.batcher == nil {
		return nil
	}
	return c.batcher.Flush()
}

// On registers a handler for a reserved lifecycle event or an application
// message type. Handlers for one name run in registration order.
func (c *Client) On(name string, h *Handler) *Client {
	c.events.add(name, h)
	return c
}

// Off removes a previously registered handler. Removing an unknown handler
// is a no-op.
func (c *Client) Off(name string, h *Handler) *Client {
	c.events.remove(name, h)
	return c
}

// State reports the connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the transport is open.
func (c *Client) IsConnected() bool { return c.State() == StateOpen }

// IsConnecting reports whether a physical open is in flight.
func (c *Client) IsConnecting() bool { return c.State() == StateConnecting }

// ReadyState reports the transport-level ready state integer, or
// ReadyStateNone before the first Connect.
func (c *Client) ReadyState() int {
	switch c.State() {
	case StateConnecting:
		return ReadyStateConnecting
	case StateOpen:
		return ReadyStateOpen
	case StateClosing:
		return ReadyStateClosing
	case StateClosed:
		return ReadyStateClosed
	default:
		return ReadyStateNone
	}
}

// Stats captures the current client counters.
func (c *Client) Stats() StatsSnapshot { return c.stats.Snapshot() }

// dial opens the transport and installs it on success. The caller must have
// already moved the state to StateConnecting.
func (c *Client) dial(ctx context.Context) error {
	conn, err := c.opt.Dialer.Dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.manualClose {
		// Disconnected while the dial was in flight.
		c.state = StateClosed
		c.mu.Unlock()
		cancel()
		_ = conn.Close(CloseNormal, "superseded")
		return ErrClientClosed
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.readCancel = cancel
	c.mu.Unlock()

	if c.batcher != nil {
		c.batcher.Start()
	}
	c.emit(Event{Name: EventConnected})
	go c.readLoop(readCtx, conn)
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		raw, msgType, err := conn.ReadMessage(ctx)
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		if msgType != MessageText && msgType != MessageBinary {
			continue
		}
		c.handleFrame(raw)
	}
}

// handleFrame parses one inbound frame and dispatches it. Malformed frames
// surface as error events only; they never stop the read loop.
func (c *Client) handleFrame(raw []byte) {
	msg, err := decodeMessage(raw)
	if err != nil {
		c.stats.addParseError()
		c.emit(Event{Name: EventError, Err: errors.Wrap(err, "parse frame")})
		return
	}
	if c.opt.Debug {
		logs.Debugf("wsclient: recv type=%q size=%d", msg.Type, len(raw))
	}
	if msg.Type != "" {
		c.emit(Event{Name: msg.Type, Message: msg})
	}
	c.emit(Event{Name: EventMessage, Message: msg})
}

// handleClose finishes a connection teardown observed by its read loop and,
// for abnormal closes, enters the reconnection state machine.
func (c *Client) handleClose(conn Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// Stale read loop from a superseded connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	manual := c.manualClose || c.state == StateClosing
	c.state = StateClosed
	if c.readCancel != nil {
		c.readCancel()
		c.readCancel = nil
	}
	c.mu.Unlock()

	if c.batcher != nil {
		c.batcher.Stop()
	}
	_ = conn.Close(CloseNormal, "session_end")

	if c.opt.Debug && cause != nil {
		logs.Debugf("wsclient: connection closed: %+v", cause)
	}
	c.emit(Event{Name: EventDisconnected})
	if manual {
		return
	}
	c.scheduleReconnect()
}

// scheduleReconnect arms a single fixed-delay reconnect timer, or emits
// reconnect_failed once the attempt budget is spent. At most one timer is
// pending at a time; Disconnect cancels it.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.manualClose {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.opt.MaxReconnectAttempts {
		attempts := c.attempts
		c.mu.Unlock()
		logs.Warnf("wsclient: giving up after %d reconnect attempts", attempts)
		c.emit(Event{Name: EventReconnectFailed, Attempt: attempts})
		return
	}
	c.attempts++
	attempt := c.attempts
	c.reconnectTimer = time.AfterFunc(c.opt.ReconnectInterval, c.reconnect)
	c.mu.Unlock()

	c.stats.addReconnect()
	if c.opt.Debug {
		logs.Debugf("wsclient: reconnect attempt %d/%d in %s", attempt, c.opt.MaxReconnectAttempts, c.opt.ReconnectInterval)
	}
	c.emit(Event{Name: EventReconnecting, Attempt: attempt})
}

// reconnect is the timer callback: one attempt, identical to a manual
// Connect except that a dial failure re-enters the close path so consecutive
// failures keep burning attempts until exhaustion.
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.manualClose || c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(context.Background()); err != nil {
		c.emit(Event{Name: EventError, Err: errors.Wrap(err, "reconnect dial")})
		c.scheduleReconnect()
	}
}

// rawSend writes one already-serialized text frame. It is also the batcher's
// send callback.
func (c *Client) rawSend(payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.stats.addDroppedSend()
		return ErrNotConnected
	}
	if err := conn.WriteMessage(context.Background(), MessageText, payload); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

func (c *Client) emit(event Event) {
	c.events.dispatch(event, c.stats.addHandlerPanic)
}
