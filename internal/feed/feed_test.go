package feed

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"main/pkg/wsclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeConn struct {
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	sent []string
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:   make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

func (c *pipeConn) ReadMessage(ctx context.Context) ([]byte, wsclient.MessageType, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-c.done:
		return nil, 0, io.EOF
	case payload := <-c.in:
		return payload, wsclient.MessageText, nil
	}
}

func (c *pipeConn) WriteMessage(_ context.Context, _ wsclient.MessageType, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, string(payload))
	return nil
}

func (c *pipeConn) Close(wsclient.CloseCode, string) error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *pipeConn) push(payload string) {
	c.in <- []byte(payload)
}

func (c *pipeConn) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type pipeDialer struct {
	conn *pipeConn
}

func (d *pipeDialer) Dial(context.Context) (wsclient.Conn, error) {
	return d.conn, nil
}

type subscribeFrame struct {
	Type    string `json:"type"`
	Payload struct {
		Channel string `json:"channel"`
		Symbol  string `json:"symbol"`
	} `json:"payload"`
}

func boolPtr(v bool) *bool { return &v }

func newFeedClient(t *testing.T) (*wsclient.Client, *pipeConn) {
	t.Helper()

	conn := newPipeConn()
	client, err := wsclient.New("ws://gateway.local/ws", wsclient.Option{
		AutoConnect: boolPtr(false),
		Dialer:      &pipeDialer{conn: conn},
	})
	require.NoError(t, err)

	return client, conn
}

func TestFeedSubscribesOnConnect(t *testing.T) {
	client, conn := newFeedClient(t)
	feed := New(client, Option{Symbols: []string{"BTCUSDT", "ETHUSDT"}})
	defer feed.Close()

	require.NoError(t, client.Connect(t.Context()))
	defer client.Disconnect()

	frames := conn.frames()
	require.Len(t, frames, 6)

	seen := make(map[string]int)
	for _, frame := range frames {
		var sub subscribeFrame
		require.NoError(t, json.Unmarshal([]byte(frame), &sub))
		assert.Equal(t, "subscribe", sub.Type)
		seen[sub.Payload.Channel+"/"+sub.Payload.Symbol]++
	}

	for _, symbol := range []string{"BTCUSDT", "ETHUSDT"} {
		for _, channel := range []string{"orderbook", "trade", "wallet"} {
			assert.Equal(t, 1, seen[channel+"/"+symbol])
		}
	}
}

func TestFeedCachesStreamData(t *testing.T) {
	client, conn := newFeedClient(t)
	feed := New(client, Option{Symbols: []string{"BTCUSDT"}})
	defer feed.Close()

	require.NoError(t, client.Connect(t.Context()))
	defer client.Disconnect()

	conn.push(`{"type":"orderbook","payload":{"symbol":"BTCUSDT","bids":[["100","2"]],"asks":[["101","1"]]}}`)
	conn.push(`{"type":"trade","payload":{"symbol":"BTCUSDT","price":"100.5","qty":"0.25","side":"buy","time":1700000000}}`)
	conn.push(`{"type":"wallet","payload":{"balances":{"USDT":"1250.5"}}}`)

	require.Eventually(t, func() bool {
		_, ok := feed.Balance("USDT")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	bid, ask, ok := feed.Book().Top("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "100", bid.Price.String())
	assert.Equal(t, "101", ask.Price.String())

	trades := feed.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "buy", trades[0].Side)
	assert.Equal(t, "100.5", trades[0].Price.String())

	qty, ok := feed.Balance("USDT")
	require.True(t, ok)
	assert.Equal(t, "1250.5", qty.String())
}

func TestFeedCloseDetachesHandlers(t *testing.T) {
	client, conn := newFeedClient(t)
	feed := New(client, Option{Symbols: []string{"BTCUSDT"}})

	require.NoError(t, client.Connect(t.Context()))
	defer client.Disconnect()

	conn.push(`{"type":"trade","payload":{"symbol":"BTCUSDT","price":"1","qty":"1","side":"buy","time":1}}`)
	require.Eventually(t, func() bool { return len(feed.Trades()) == 1 }, 2*time.Second, 5*time.Millisecond)

	feed.Close()

	conn.push(`{"type":"trade","payload":{"symbol":"BTCUSDT","price":"2","qty":"1","side":"sell","time":2}}`)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, feed.Trades(), 1)
}

func TestFeedIgnoresMalformedPayloads(t *testing.T) {
	client, conn := newFeedClient(t)
	feed := New(client, Option{Symbols: []string{"BTCUSDT"}})
	defer feed.Close()

	require.NoError(t, client.Connect(t.Context()))
	defer client.Disconnect()

	conn.push(`{"type":"orderbook","payload":{"symbol":"BTCUSDT","bids":"nope"}}`)
	conn.push(`{"type":"wallet","payload":{"balances":{"USDT":"10"}}}`)

	require.Eventually(t, func() bool {
		_, ok := feed.Balance("USDT")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	bids, asks := feed.Book().Snapshot("BTCUSDT")
	assert.Empty(t, bids)
	assert.Empty(t, asks)
}
