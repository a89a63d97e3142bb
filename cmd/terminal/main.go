package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"main/internal/feed"
	"main/internal/ops"
	"main/pkg/metric"
	"main/pkg/wsclient"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	urlOverride := flag.String("url", "", "Gateway WebSocket URL (overrides config)")
	symbolList := flag.String("symbols", "", "Comma separated symbols (overrides config)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disable)")
	statsInterval := flag.Duration("stats-interval", 15*time.Second, "Stats report interval")
	debug := flag.Bool("debug", false, "Enable per-frame debug logging")
	flag.Parse()

	if err := run(*configPath, *urlOverride, *symbolList, *pyroscopeAddr, *statsInterval, *debug); err != nil {
		logs.Errorf("terminal stopped, err: %+v", err)
		os.Exit(1)
	}
}

func run(configPath, urlOverride, symbolList, pyroscopeAddr string, statsInterval time.Duration, debug bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loaded, err := loadConfig(configPath, urlOverride, symbolList)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if debug {
		loaded.Option.Debug = true
	}

	if pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trading/terminal",
			ServerAddress:   pyroscopeAddr,
			Tags: map[string]string{
				"env": "local",
			},
			Logger: emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return errors.Wrap(err, "start pyroscope")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	client, err := wsclient.New(loaded.URL, loaded.Option)
	if err != nil {
		return errors.Wrap(err, "create client")
	}

	client.
		On(wsclient.EventConnected, wsclient.NewHandler(func(wsclient.Event) {
			logs.Infof("connected to %s", loaded.URL)
		})).
		On(wsclient.EventDisconnected, wsclient.NewHandler(func(wsclient.Event) {
			logs.Warnf("disconnected from %s", loaded.URL)
		})).
		On(wsclient.EventReconnecting, wsclient.NewHandler(func(e wsclient.Event) {
			logs.Infof("reconnecting, attempt %d", e.Attempt)
		})).
		On(wsclient.EventReconnectFailed, wsclient.NewHandler(func(e wsclient.Event) {
			logs.Errorf("gave up reconnecting after %d attempts", e.Attempt)
		})).
		On(wsclient.EventError, wsclient.NewHandler(func(e wsclient.Event) {
			logs.Errorf("client error: %+v", e.Err)
		}))

	marketFeed := feed.New(client, feed.Option{
		Symbols:      loaded.Symbols,
		TradeHistory: loaded.TradeHistory,
	})
	defer marketFeed.Close()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	go memoryReporter.Run(ctx, statsInterval)

	logs.Infof("terminal started, symbols: %v", loaded.Symbols)
	for {
		select {
		case <-ctx.Done():
			logs.Info("shutting down")
			if err := client.Flush(); err != nil {
				logs.Warnf("flush pending messages, err: %+v", err)
			}
			client.Disconnect()
			return nil
		case <-sys.Shutdown():
			client.Disconnect()
			return nil
		case <-ticker.C:
			report(client, marketFeed)
		}
	}
}

func report(client *wsclient.Client, marketFeed *feed.Feed) {
	stats := client.Stats()
	logs.Infof("state=%s direct=%d batched=%d dropped=%d parse_errors=%d panics=%d reconnects=%d",
		client.State(), stats.DirectSends, stats.BatchedSends, stats.DroppedSends,
		stats.ParseErrors, stats.HandlerPanics, stats.Reconnects)

	for _, symbol := range marketFeed.Book().Symbols() {
		bid, ask, ok := marketFeed.Book().Top(symbol)
		if !ok {
			continue
		}
		logs.Infof("%s bid=%s(%s) ask=%s(%s) trades=%d",
			symbol, bid.Price, bid.Qty, ask.Price, ask.Qty, len(marketFeed.Trades()))
	}
}

func loadConfig(path, urlOverride, symbolList string) (ops.Loaded, error) {
	loaded := defaultLoaded()
	if path != "" {
		var err error
		loaded, err = ops.Load(path)
		if err != nil {
			return ops.Loaded{}, err
		}
	}
	if urlOverride != "" {
		loaded.URL = urlOverride
	}
	if symbolList != "" {
		loaded.Symbols = strings.Split(symbolList, ",")
	}
	if loaded.URL == "" {
		return ops.Loaded{}, errors.New("gateway url is required (-config or -url)")
	}
	return loaded, nil
}

func defaultLoaded() ops.Loaded {
	return ops.Loaded{
		Option: wsclient.Option{
			EnableBatching: true,
		},
		Symbols: []string{"BTCUSDT"},
	}
}

var memoryReporter = metric.MemoryReporter{}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
