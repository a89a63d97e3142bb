package feed

import (
	"sort"
	"strconv"
	"sync"

	"github.com/yanun0323/decimal"
)

// Level is a resting quantity at a single price.
type Level struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// BookUpdate is an incremental order book delta. Each entry is a
// [price, qty] pair; a zero qty removes the level.
type BookUpdate struct {
	Symbol string              `json:"symbol"`
	Bids   [][]decimal.Decimal `json:"bids"`
	Asks   [][]decimal.Decimal `json:"asks"`
}

type bookSides struct {
	bids map[string]Level
	asks map[string]Level
}

// Book tracks the latest order book levels per symbol.
type Book struct {
	mu    sync.RWMutex
	books map[string]*bookSides
}

// NewBook creates an empty book cache.
func NewBook() *Book {
	return &Book{books: make(map[string]*bookSides)}
}

// Apply merges an incremental update into the cached book.
func (b *Book) Apply(update BookUpdate) {
	if len(update.Symbol) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sides, ok := b.books[update.Symbol]
	if !ok {
		sides = &bookSides{
			bids: make(map[string]Level),
			asks: make(map[string]Level),
		}
		b.books[update.Symbol] = sides
	}

	applySide(sides.bids, update.Bids)
	applySide(sides.asks, update.Asks)
}

func applySide(side map[string]Level, entries [][]decimal.Decimal) {
	for _, entry := range entries {
		if len(entry) < 2 {
			continue
		}

		price, qty := entry[0], entry[1]
		key := price.String()
		if isZeroQty(qty) {
			delete(side, key)
			continue
		}

		side[key] = Level{Price: price, Qty: qty}
	}
}

func isZeroQty(qty decimal.Decimal) bool {
	value, err := strconv.ParseFloat(qty.String(), 64)
	if err != nil {
		return true
	}

	return value == 0
}

// Snapshot returns the book for a symbol, bids descending and asks
// ascending by price. Both slices are copies.
func (b *Book) Snapshot(symbol string) (bids, asks []Level) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sides, ok := b.books[symbol]
	if !ok {
		return nil, nil
	}

	bids = sortedLevels(sides.bids, true)
	asks = sortedLevels(sides.asks, false)
	return bids, asks
}

// Top returns the best bid and ask for a symbol.
func (b *Book) Top(symbol string) (bid, ask Level, ok bool) {
	bids, asks := b.Snapshot(symbol)
	if len(bids) == 0 || len(asks) == 0 {
		return Level{}, Level{}, false
	}

	return bids[0], asks[0], true
}

// Symbols returns the symbols with at least one cached level.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	symbols := make([]string, 0, len(b.books))
	for symbol := range b.books {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)
	return symbols
}

func sortedLevels(side map[string]Level, descending bool) []Level {
	if len(side) == 0 {
		return nil
	}

	levels := make([]Level, 0, len(side))
	for _, level := range side {
		levels = append(levels, level)
	}

	sort.Slice(levels, func(i, j int) bool {
		pi, _ := strconv.ParseFloat(levels[i].Price.String(), 64)
		pj, _ := strconv.ParseFloat(levels[j].Price.String(), 64)
		if descending {
			return pi > pj
		}
		return pi < pj
	})

	return levels
}
