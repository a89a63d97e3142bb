package feed

import "github.com/yanun0323/decimal"

// Trade is a single executed trade from the gateway stream.
type Trade struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Qty    decimal.Decimal `json:"qty"`
	Side   string          `json:"side"`
	Time   int64           `json:"time"`
}

// tradeRing keeps the most recent trades in arrival order, dropping
// the oldest once full.
type tradeRing struct {
	buf  []Trade
	next int
	full bool
}

func newTradeRing(size int) *tradeRing {
	return &tradeRing{buf: make([]Trade, size)}
}

func (r *tradeRing) push(trade Trade) {
	r.buf[r.next] = trade
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *tradeRing) recent() []Trade {
	if !r.full {
		return append([]Trade(nil), r.buf[:r.next]...)
	}

	out := make([]Trade, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

func (r *tradeRing) len() int {
	if r.full {
		return len(r.buf)
	}

	return r.next
}
