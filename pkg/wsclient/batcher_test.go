package wsclient

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameSink struct {
	mu     sync.Mutex
	frames []string
	err    error
}

func (s *frameSink) send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, string(payload))
	return nil
}

func (s *frameSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *frameSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

func (s *frameSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func TestBatcherNilSendFunc(t *testing.T) {
	_, err := NewBatcher(nil)
	require.ErrorIs(t, err, ErrNilSendFunc)
}

func TestBatcherHighBypassesQueues(t *testing.T) {
	sink := &frameSink{}
	b, err := NewBatcher(sink.send)
	require.NoError(t, err)

	require.NoError(t, b.Send("x", map[string]any{}))

	require.Equal(t, 1, sink.count())
	assert.Equal(t, `{"type":"x","data":{}}`, sink.all()[0])

	medium, low := b.Pending()
	assert.Zero(t, medium)
	assert.Zero(t, low)
}

func TestBatcherMediumFlushOnTimer(t *testing.T) {
	sink := &frameSink{}
	b, err := NewBatcher(sink.send, BatcherOption{
		MediumPriorityInterval: 30 * time.Millisecond,
		LowPriorityInterval:    10 * time.Second,
	})
	require.NoError(t, err)

	b.Start()
	defer b.Stop()

	require.NoError(t, b.Send("a", map[string]any{}, PriorityMedium))
	require.NoError(t, b.Send("b", map[string]any{}, PriorityMedium))

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t,
		`{"type":"batch","messages":[{"type":"a","data":{}},{"type":"b","data":{}}]}`,
		sink.all()[0],
	)

	// Later timer fires with nothing queued must not emit empty batches.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, sink.count())
}

func TestBatcherFlushDrainsBothQueues(t *testing.T) {
	sink := &frameSink{}
	b, err := NewBatcher(sink.send)
	require.NoError(t, err)

	require.NoError(t, b.Send("m", 1, PriorityMedium))
	require.NoError(t, b.Send("l", 2, PriorityLow))
	require.NoError(t, b.Flush())

	frames := sink.all()
	require.Len(t, frames, 2)
	assert.Equal(t, `{"type":"batch","messages":[{"type":"m","data":1}]}`, frames[0])
	assert.Equal(t, `{"type":"batch","messages":[{"type":"l","data":2}]}`, frames[1])

	medium, low := b.Pending()
	assert.Zero(t, medium)
	assert.Zero(t, low)

	// Drained queues flush to nothing.
	require.NoError(t, b.Flush())
	assert.Equal(t, 2, sink.count())
}

func TestBatcherEmptyFlushSendsNothing(t *testing.T) {
	sink := &frameSink{}
	b, err := NewBatcher(sink.send)
	require.NoError(t, err)

	require.NoError(t, b.Flush())
	assert.Zero(t, sink.count())
}

func TestBatcherPreservesOrderWithinClass(t *testing.T) {
	sink := &frameSink{}
	b, err := NewBatcher(sink.send)
	require.NoError(t, err)

	require.NoError(t, b.Send("first", "1", PriorityLow))
	require.NoError(t, b.Send("second", "2", PriorityLow))
	require.NoError(t, b.Send("third", "3", PriorityLow))
	require.NoError(t, b.Flush())

	frames := sink.all()
	require.Len(t, frames, 1)
	assert.Equal(t,
		`{"type":"batch","messages":[{"type":"first","data":"1"},{"type":"second","data":"2"},{"type":"third","data":"3"}]}`,
		frames[0],
	)
}

func TestBatcherStopKeepsQueuedMessages(t *testing.T) {
	sink := &frameSink{}
	b, err := NewBatcher(sink.send, BatcherOption{
		MediumPriorityInterval: time.Hour,
		LowPriorityInterval:    time.Hour,
	})
	require.NoError(t, err)

	b.Start()
	require.NoError(t, b.Send("m", nil, PriorityMedium))
	b.Stop()

	medium, _ := b.Pending()
	assert.Equal(t, 1, medium)
	assert.Zero(t, sink.count())

	require.NoError(t, b.Flush())
	assert.Equal(t, 1, sink.count())
}

func TestBatcherRestartDoesNotDuplicateFlushes(t *testing.T) {
	sink := &frameSink{}
	b, err := NewBatcher(sink.send, BatcherOption{
		MediumPriorityInterval: 20 * time.Millisecond,
		LowPriorityInterval:    10 * time.Second,
	})
	require.NoError(t, err)

	b.Start()
	b.Start()
	defer b.Stop()

	require.NoError(t, b.Send("m", nil, PriorityMedium))
	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, sink.count())
}

// gatedSink blocks inside send until released, so a test can hold one flush
// in flight while racing another against it.
type gatedSink struct {
	mu      sync.Mutex
	frames  []string
	entered chan struct{}
	release chan struct{}
}

func newGatedSink() *gatedSink {
	return &gatedSink{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *gatedSink) send(payload []byte) error {
	s.entered <- struct{}{}
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, string(payload))
	return nil
}

func (s *gatedSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

func TestBatcherFlushCannotOvertakeInFlightFlush(t *testing.T) {
	sink := newGatedSink()
	b, err := NewBatcher(sink.send, BatcherOption{
		MediumPriorityInterval: 20 * time.Millisecond,
		LowPriorityInterval:    10 * time.Second,
	})
	require.NoError(t, err)

	b.Start()
	defer b.Stop()

	require.NoError(t, b.Send("first", nil, PriorityMedium))

	// The timer flush snapshots "first" and parks inside the send.
	<-sink.entered

	require.NoError(t, b.Send("second", nil, PriorityMedium))

	flushed := make(chan error, 1)
	go func() { flushed <- b.Flush() }()

	// Flush must wait for the in-flight timer flush; releasing it lets the
	// "first" batch land, then Flush drains "second".
	sink.release <- struct{}{}
	<-sink.entered
	sink.release <- struct{}{}
	require.NoError(t, <-flushed)

	frames := sink.all()
	require.Len(t, frames, 2)
	assert.Equal(t, `{"type":"batch","messages":[{"type":"first","data":null}]}`, frames[0])
	assert.Equal(t, `{"type":"batch","messages":[{"type":"second","data":null}]}`, frames[1])
}

func TestBatcherSendErrorPropagates(t *testing.T) {
	errBoom := errors.New("boom")
	sink := &frameSink{}
	sink.setErr(errBoom)
	b, err := NewBatcher(sink.send)
	require.NoError(t, err)

	require.ErrorIs(t, b.Send("x", nil), errBoom)

	// A failed flush still drains the queue; the batcher does not retry.
	require.NoError(t, b.Send("m", nil, PriorityMedium))
	require.ErrorIs(t, b.Flush(), errBoom)
	medium, _ := b.Pending()
	assert.Zero(t, medium)

	sink.setErr(nil)
	require.NoError(t, b.Flush())
	assert.Zero(t, sink.count())
}
