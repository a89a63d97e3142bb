package feed

import (
	"sync"

	"main/pkg/wsclient"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"
)

const DefaultTradeHistory = 256

// WalletUpdate is a full replacement of account balances.
type WalletUpdate struct {
	Balances map[string]decimal.Decimal `json:"balances"`
}

// Option configures a Feed.
type Option struct {
	// Symbols to subscribe on every (re)connect.
	Symbols []string

	// TradeHistory is the number of recent trades kept per feed.
	TradeHistory int
}

func (opt *Option) init() {
	if opt.TradeHistory <= 0 {
		opt.TradeHistory = DefaultTradeHistory
	}
}

type registration struct {
	name    string
	handler *wsclient.Handler
}

// Feed subscribes to gateway market data channels and caches the
// latest order book, trades and wallet balances.
type Feed struct {
	client  *wsclient.Client
	symbols []string
	book    *Book

	mu       sync.RWMutex
	trades   *tradeRing
	balances map[string]decimal.Decimal

	registrations []registration
}

// New wires a feed onto the client. Subscriptions are sent on every
// connected event, so a reconnect re-subscribes automatically.
func New(client *wsclient.Client, option ...Option) *Feed {
	opt := Option{}
	if len(option) != 0 {
		opt = option[0]
	}
	opt.init()

	f := &Feed{
		client:   client,
		symbols:  append([]string(nil), opt.Symbols...),
		book:     NewBook(),
		trades:   newTradeRing(opt.TradeHistory),
		balances: make(map[string]decimal.Decimal),
	}

	f.register(wsclient.EventConnected, func(wsclient.Event) { f.subscribe() })
	f.register("orderbook", f.onBook)
	f.register("trade", f.onTrade)
	f.register("wallet", f.onWallet)

	return f
}

func (f *Feed) register(name string, fn func(wsclient.Event)) {
	h := wsclient.NewHandler(fn)
	f.client.On(name, h)
	f.registrations = append(f.registrations, registration{name: name, handler: h})
}

// Close detaches the feed from the client. Cached data stays readable.
func (f *Feed) Close() {
	for _, reg := range f.registrations {
		f.client.Off(reg.name, reg.handler)
	}
	f.registrations = nil
}

func (f *Feed) subscribe() {
	for _, symbol := range f.symbols {
		for _, channel := range []string{"orderbook", "trade", "wallet"} {
			if err := f.client.Send("subscribe", map[string]any{
				"channel": channel,
				"symbol":  symbol,
			}, wsclient.PriorityMedium); err != nil {
				logs.Warnf("subscribe %s %s, err: %+v", channel, symbol, err)
			}
		}
	}
}

func (f *Feed) onBook(e wsclient.Event) {
	var update BookUpdate
	if err := e.Message.Unmarshal(&update); err != nil {
		logs.Errorf("unmarshal orderbook update, err: %+v", err)
		return
	}

	f.book.Apply(update)
}

func (f *Feed) onTrade(e wsclient.Event) {
	var trade Trade
	if err := e.Message.Unmarshal(&trade); err != nil {
		logs.Errorf("unmarshal trade, err: %+v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades.push(trade)
}

func (f *Feed) onWallet(e wsclient.Event) {
	var update WalletUpdate
	if err := e.Message.Unmarshal(&update); err != nil {
		logs.Errorf("unmarshal wallet update, err: %+v", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for asset, qty := range update.Balances {
		f.balances[asset] = qty
	}
}

// Book returns the live order book cache.
func (f *Feed) Book() *Book {
	return f.book
}

// Trades returns the recent trades, oldest first.
func (f *Feed) Trades() []Trade {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.trades.recent()
}

// Balance returns the cached balance for an asset.
func (f *Feed) Balance(asset string) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	qty, ok := f.balances[asset]
	return qty, ok
}

// Balances returns a copy of all cached balances.
func (f *Feed) Balances() map[string]decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]decimal.Decimal, len(f.balances))
	for asset, qty := range f.balances {
		out[asset] = qty
	}
	return out
}
