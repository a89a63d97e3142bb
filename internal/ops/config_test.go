package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, payload string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"client": {
			"url": "wss://gateway.example.com/ws",
			"reconnectIntervalMs": 2500,
			"maxReconnectAttempts": 3,
			"autoConnect": false,
			"enableBatching": true,
			"batcher": {
				"maxBatchSize": 65536,
				"lowPriorityIntervalMs": 2000,
				"mediumPriorityIntervalMs": 750
			}
		},
		"feed": {
			"symbols": ["BTCUSDT", "ETHUSDT"],
			"tradeHistory": 512
		}
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://gateway.example.com/ws", loaded.URL)
	assert.Equal(t, 2500*time.Millisecond, loaded.Option.ReconnectInterval)
	assert.Equal(t, 3, loaded.Option.MaxReconnectAttempts)
	require.NotNil(t, loaded.Option.AutoConnect)
	assert.False(t, *loaded.Option.AutoConnect)
	assert.True(t, loaded.Option.EnableBatching)
	assert.Equal(t, 65536, loaded.Option.Batcher.MaxBatchSize)
	assert.Equal(t, 2*time.Second, loaded.Option.Batcher.LowPriorityInterval)
	assert.Equal(t, 750*time.Millisecond, loaded.Option.Batcher.MediumPriorityInterval)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, loaded.Symbols)
	assert.Equal(t, 512, loaded.TradeHistory)
}

func TestLoadMinimalConfigFallsThroughToDefaults(t *testing.T) {
	path := writeConfig(t, `{"client": {"url": "ws://localhost:8080/ws"}}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/ws", loaded.URL)
	assert.Zero(t, loaded.Option.ReconnectInterval)
	assert.Zero(t, loaded.Option.MaxReconnectAttempts)
	assert.Nil(t, loaded.Option.AutoConnect)
	assert.False(t, loaded.Option.EnableBatching)
	assert.Empty(t, loaded.Symbols)
}

func TestLoadRequiresURL(t *testing.T) {
	path := writeConfig(t, `{"client": {}}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{broken`)

	_, err := Load(path)
	require.Error(t, err)
}
