package wsclient

import (
	"sync"
	"time"

	"github.com/yanun0323/logs"
)

const (
	// DefaultMaxBatchSize is the advisory batch size cap in bytes.
	DefaultMaxBatchSize = 1 << 20
	// DefaultLowPriorityInterval is the low queue flush period.
	DefaultLowPriorityInterval = time.Second
	// DefaultMediumPriorityInterval is the medium queue flush period.
	DefaultMediumPriorityInterval = 500 * time.Millisecond
)

// SendFunc delivers one serialized frame to the wire.
type SendFunc func(payload []byte) error

// BatcherOption configures a Batcher. Zero values fall back to defaults.
type BatcherOption struct {
	// MaxBatchSize caps the serialized batch in bytes. Advisory: oversized
	// batches are logged and sent whole, never split. Optional; default 1 MiB.
	MaxBatchSize int
	// LowPriorityInterval is the low queue flush period. Optional; default 1s.
	LowPriorityInterval time.Duration
	// MediumPriorityInterval is the medium queue flush period. Optional; default 500ms.
	MediumPriorityInterval time.Duration
	// EnableCompression is a hook for a future compressed wire format.
	// No codec is wired to it yet.
	EnableCompression bool
	// Debug enables per-flush diagnostic logging.
	Debug bool
}

func (opt *BatcherOption) init() {
	if opt.MaxBatchSize <= 0 {
		opt.MaxBatchSize = DefaultMaxBatchSize
	}
	if opt.LowPriorityInterval <= 0 {
		opt.LowPriorityInterval = DefaultLowPriorityInterval
	}
	if opt.MediumPriorityInterval <= 0 {
		opt.MediumPriorityInterval = DefaultMediumPriorityInterval
	}
}

// Batcher accumulates outgoing messages by priority class and flushes each
// class on its own timer, trading bounded latency for fewer physical frames.
// It knows nothing about the transport; flushed frames go to the
// caller-supplied SendFunc. High priority sends bypass the queues entirely,
// so they can overtake previously queued medium/low messages. That ordering
// trade-off is deliberate.
type Batcher struct {
	opt  BatcherOption
	send SendFunc

	mu     sync.Mutex
	medium []queuedMessage
	low    []queuedMessage

	// One flush mutex per queue, held across snapshot and send so a later
	// flush of a class can never put its batch on the wire before an
	// in-flight earlier one. b.mu stays cheap for the append path.
	mediumFlushMu sync.Mutex
	lowFlushMu    sync.Mutex

	timerMu sync.Mutex
	stopCh  chan struct{}
}

// NewBatcher builds a Batcher delivering flushed frames to send.
func NewBatcher(send SendFunc, option ...BatcherOption) (*Batcher, error) {
	if send == nil {
		return nil, ErrNilSendFunc
	}
	var opt BatcherOption
	if len(option) != 0 {
		opt = option[0]
	}
	opt.init()
	return &Batcher{opt: opt, send: send}, nil
}

// Start arms one repeating flush timer per non-high priority class. Calling
// Start while running re-arms fresh timers.
func (b *Batcher) Start() {
	b.timerMu.Lock()
	if b.stopCh != nil {
		close(b.stopCh)
	}
	stopCh := make(chan struct{})
	b.stopCh = stopCh
	b.timerMu.Unlock()

	go b.flushLoop(stopCh, b.opt.MediumPriorityInterval, b.flushMedium)
	go b.flushLoop(stopCh, b.opt.LowPriorityInterval, b.flushLow)
}

// Stop cancels both flush timers. Queued messages stay queued until the next
// Start or an explicit Flush.
func (b *Batcher) Stop() {
	b.timerMu.Lock()
	if b.stopCh != nil {
		close(b.stopCh)
		b.stopCh = nil
	}
	b.timerMu.Unlock()
}

// Send routes one message by priority. High priority serializes and delivers
// immediately; medium and low append to their queues for the next flush.
// Default priority is high. Serialization and delivery errors propagate to
// the caller; the Batcher does not retry.
func (b *Batcher) Send(msgType string, data any, priority ...Priority) error {
	p := PriorityHigh
	if len(priority) != 0 {
		p = priority[0]
	}

	switch p {
	case PriorityMedium:
		b.mu.Lock()
		b.medium = append(b.medium, queuedMessage{Type: msgType, Data: data})
		b.mu.Unlock()
		return nil
	case PriorityLow:
		b.mu.Lock()
		b.low = append(b.low, queuedMessage{Type: msgType, Data: data})
		b.mu.Unlock()
		return nil
	default:
		payload, err := encodeImmediate(msgType, data)
		if err != nil {
			return err
		}
		if b.opt.Debug {
			logs.Debugf("wsclient: immediate send type=%q size=%d", msgType, len(payload))
		}
		return b.send(payload)
	}
}

// Flush drains both queues synchronously, regardless of timer state.
func (b *Batcher) Flush() error {
	if err := b.flushMedium(); err != nil {
		return err
	}
	return b.flushLow()
}

// Pending reports the queued message counts per class.
func (b *Batcher) Pending() (medium, low int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.medium), len(b.low)
}

func (b *Batcher) flushMedium() error { return b.flushQueue(&b.mediumFlushMu, &b.medium) }
func (b *Batcher) flushLow() error    { return b.flushQueue(&b.lowFlushMu, &b.low) }

// flushQueue drains one queue into a single batch frame. An empty queue
// produces no frame. flushMu serializes concurrent flushes of the same
// queue, preserving FIFO order within the priority class even when a timer
// flush races an explicit Flush.
func (b *Batcher) flushQueue(flushMu *sync.Mutex, queue *[]queuedMessage) error {
	flushMu.Lock()
	defer flushMu.Unlock()

	b.mu.Lock()
	if len(*queue) == 0 {
		b.mu.Unlock()
		return nil
	}
	pending := *queue
	*queue = nil
	b.mu.Unlock()

	payload, err := encodeBatch(pending)
	if err != nil {
		return err
	}
	if len(payload) > b.opt.MaxBatchSize {
		logs.Warnf("wsclient: batch size %d exceeds advisory max %d", len(payload), b.opt.MaxBatchSize)
	}
	if b.opt.Debug {
		logs.Debugf("wsclient: flushing batch of %d messages, %d bytes", len(pending), len(payload))
	}
	return b.send(payload)
}

func (b *Batcher) flushLoop(stop <-chan struct{}, interval time.Duration, flush func() error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := flush(); err != nil {
				logs.Warnf("wsclient: timed flush failed: %+v", err)
			}
		}
	}
}
