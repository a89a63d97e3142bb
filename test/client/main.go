// A smoke client for the synthetic gateway in test/server. It connects,
// subscribes through the batcher at every priority and prints whatever
// comes back.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"main/pkg/wsclient"
)

func main() {
	url := "ws://127.0.0.1:8080/ws"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	autoConnect := false
	client, err := wsclient.New(url, wsclient.Option{
		AutoConnect:       &autoConnect,
		ReconnectInterval: time.Second,
		EnableBatching:    true,
		Batcher: wsclient.BatcherOption{
			MediumPriorityInterval: 200 * time.Millisecond,
			LowPriorityInterval:    time.Second,
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	client.
		On(wsclient.EventConnected, wsclient.NewHandler(func(wsclient.Event) {
			log.Println("connected")
		})).
		On(wsclient.EventDisconnected, wsclient.NewHandler(func(wsclient.Event) {
			log.Println("disconnected")
		})).
		On(wsclient.EventReconnecting, wsclient.NewHandler(func(e wsclient.Event) {
			log.Println("reconnecting, attempt", e.Attempt)
		})).
		On(wsclient.EventMessage, wsclient.NewHandler(func(e wsclient.Event) {
			log.Printf("recv type=%q payload=%s", e.Message.Type, e.Message.Payload)
		}))

	if err := client.Connect(ctx); err != nil {
		log.Fatal(err)
	}

	_ = client.Send("ping", map[string]any{"seq": 1})
	_ = client.Send("subscribe", map[string]any{"channel": "orderbook", "symbol": "BTCUSDT"}, wsclient.PriorityMedium)
	_ = client.Send("telemetry", map[string]any{"fps": 60}, wsclient.PriorityLow)

	<-ctx.Done()
	_ = client.Flush()
	client.Disconnect()

	stats := client.Stats()
	log.Printf("direct=%d batched=%d dropped=%d reconnects=%d",
		stats.DirectSends, stats.BatchedSends, stats.DroppedSends, stats.Reconnects)
}
