package wsclient

import "sync/atomic"

// Stats collects lightweight client counters. The zero value is ready to use.
type Stats struct {
	directSends   uint64
	batchedSends  uint64
	droppedSends  uint64
	parseErrors   uint64
	handlerPanics uint64
	reconnects    uint64
}

// StatsSnapshot is a point-in-time view of the counters.
type StatsSnapshot struct {
	DirectSends   uint64
	BatchedSends  uint64
	DroppedSends  uint64
	ParseErrors   uint64
	HandlerPanics uint64
	Reconnects    uint64
}

func (s *Stats) addDirectSend()   { atomic.AddUint64(&s.directSends, 1) }
func (s *Stats) addBatchedSend()  { atomic.AddUint64(&s.batchedSends, 1) }
func (s *Stats) addDroppedSend()  { atomic.AddUint64(&s.droppedSends, 1) }
func (s *Stats) addParseError()   { atomic.AddUint64(&s.parseErrors, 1) }
func (s *Stats) addHandlerPanic() { atomic.AddUint64(&s.handlerPanics, 1) }
func (s *Stats) addReconnect()    { atomic.AddUint64(&s.reconnects, 1) }

// Snapshot captures the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		DirectSends:   atomic.LoadUint64(&s.directSends),
		BatchedSends:  atomic.LoadUint64(&s.batchedSends),
		DroppedSends:  atomic.LoadUint64(&s.droppedSends),
		ParseErrors:   atomic.LoadUint64(&s.parseErrors),
		HandlerPanics: atomic.LoadUint64(&s.handlerPanics),
		Reconnects:    atomic.LoadUint64(&s.reconnects),
	}
}
