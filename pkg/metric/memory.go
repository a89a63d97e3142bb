package metric

import (
	"context"
	"log"
	"runtime"
	"strconv"
	"time"
)

// MemoryReporter periodically prints runtime memory and goroutine stats.
// The report line is built into a fixed buffer to avoid allocating on the
// reporting path.
type MemoryReporter struct {
	buf        [1024]byte
	prev, curr runtime.MemStats
	prevAt     time.Time
	currAt     time.Time
}

func (m *MemoryReporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Snapshot()
			m.Print()
		}
	}
}

func (m *MemoryReporter) Snapshot() {
	m.prev, m.curr = m.curr, m.prev
	m.prevAt = m.currAt
	m.currAt = time.Now()

	runtime.ReadMemStats(&m.curr)

	if m.prevAt.IsZero() {
		m.prevAt = m.currAt
	}
}

func (m *MemoryReporter) Print() {
	line := m.buf[:0]

	dt := m.currAt.Sub(m.prevAt).Seconds()
	if dt <= 0 {
		dt = 1
	}

	{
		line = append(line, "[HEAP] alc="...)
		b, unit := bytesCarry(m.curr.HeapAlloc)
		line = strconv.AppendUint(line, b, 10)
		line = append(line, unit...)

		line = append(line, "\tinuse="...)
		b, unit = bytesCarry(m.curr.HeapInuse)
		line = strconv.AppendUint(line, b, 10)
		line = append(line, unit...)

		line = append(line, "\talc_rate="...)
		rate := float64(m.curr.TotalAlloc-m.prev.TotalAlloc) / dt
		rb, runit := bytesCarryFloat(rate)
		line = strconv.AppendFloat(line, rb, 'f', 2, 64)
		line = append(line, runit...)
		line = append(line, "/s"...)
	}

	{
		line = append(line, "\t[GC] times="...)
		line = strconv.AppendUint(line, uint64(m.curr.NumGC-m.prev.NumGC), 10)

		line = append(line, "\tstw="...)
		stwMs := float64(m.curr.PauseTotalNs-m.prev.PauseTotalNs) / 1_000_000.0
		line = strconv.AppendFloat(line, stwMs, 'f', 4, 64)
		line = append(line, "ms"...)

		line = append(line, "\tgc_cpu="...)
		line = strconv.AppendFloat(line, m.curr.GCCPUFraction, 'f', 6, 64)
	}

	{
		line = append(line, "\t[GO] routines="...)
		line = strconv.AppendInt(line, int64(runtime.NumGoroutine()), 10)
	}

	line = append(line, '\n')
	_, _ = log.Writer().Write(line)
}

const carryThreshold = 1 << 15

func bytesCarry(value uint64) (uint64, string) {
	if value < carryThreshold {
		return value, " B"
	}
	value >>= 10
	if value < carryThreshold {
		return value, " KB"
	}
	value >>= 10
	if value < carryThreshold {
		return value, " MB"
	}
	return value >> 10, " GB"
}

func bytesCarryFloat(value float64) (float64, string) {
	if value < float64(carryThreshold) {
		return value, " B"
	}
	value /= 1024
	if value < float64(carryThreshold) {
		return value, " KB"
	}
	value /= 1024
	if value < float64(carryThreshold) {
		return value, " MB"
	}
	return value / 1024, " GB"
}
