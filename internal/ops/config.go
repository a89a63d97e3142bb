package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/pkg/wsclient"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Client ClientConfig `json:"client"`
	Feed   FeedConfig   `json:"feed"`
}

// ClientConfig describes the gateway connection.
type ClientConfig struct {
	URL                  string        `json:"url"`
	ReconnectIntervalMS  int           `json:"reconnectIntervalMs"`
	MaxReconnectAttempts int           `json:"maxReconnectAttempts"`
	AutoConnect          *bool         `json:"autoConnect"`
	Debug                bool          `json:"debug"`
	EnableBatching       bool          `json:"enableBatching"`
	Batcher              BatcherConfig `json:"batcher"`
}

// BatcherConfig describes outbound batching.
type BatcherConfig struct {
	MaxBatchSize             int  `json:"maxBatchSize"`
	LowPriorityIntervalMS    int  `json:"lowPriorityIntervalMs"`
	MediumPriorityIntervalMS int  `json:"mediumPriorityIntervalMs"`
	EnableCompression        bool `json:"enableCompression"`
}

// FeedConfig describes market data subscriptions.
type FeedConfig struct {
	Symbols      []string `json:"symbols"`
	TradeHistory int      `json:"tradeHistory"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	URL          string
	Option       wsclient.Option
	Symbols      []string
	TradeHistory int
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and converts it into client options.
// Zero durations and counts fall through to the client defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Client.URL == "" {
		return Loaded{}, fmt.Errorf("config: client.url is required")
	}

	opt := wsclient.Option{
		ReconnectInterval:    time.Duration(cfg.Client.ReconnectIntervalMS) * time.Millisecond,
		MaxReconnectAttempts: cfg.Client.MaxReconnectAttempts,
		AutoConnect:          cfg.Client.AutoConnect,
		Debug:                cfg.Client.Debug,
		EnableBatching:       cfg.Client.EnableBatching,
		Batcher: wsclient.BatcherOption{
			MaxBatchSize:           cfg.Client.Batcher.MaxBatchSize,
			LowPriorityInterval:    time.Duration(cfg.Client.Batcher.LowPriorityIntervalMS) * time.Millisecond,
			MediumPriorityInterval: time.Duration(cfg.Client.Batcher.MediumPriorityIntervalMS) * time.Millisecond,
			EnableCompression:      cfg.Client.Batcher.EnableCompression,
			Debug:                  cfg.Client.Debug,
		},
	}

	return Loaded{
		URL:          cfg.Client.URL,
		Option:       opt,
		Symbols:      append([]string(nil), cfg.Feed.Symbols...),
		TradeHistory: cfg.Feed.TradeHistory,
	}, nil
}
