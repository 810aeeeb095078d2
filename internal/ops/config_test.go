package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bolt", cfg.Store.Backend)
	assert.Equal(t, defaultBoltPath, cfg.Store.Path)
	assert.Equal(t, defaultAPIAddr, cfg.API.Addr)
	assert.Equal(t, defaultWorkers, cfg.Dispatch.Workers)
	assert.Equal(t, defaultQueueCap, cfg.Dispatch.QueueCap)
	assert.Equal(t, defaultLoopInterval, cfg.Loop.IntervalSeconds)
	assert.Equal(t, defaultBrokerTimeout, cfg.Broker.TimeoutSeconds)
	assert.Nil(t, cfg.MarketOpen, "no market hours means always open")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"store": {"backend": "bolt", "path": "/tmp/x.db"},
		"broker": {"baseUrl": "https://paper-api.example.com", "timeoutSeconds": 5},
		"dispatch": {"workers": 4, "queueCap": 512},
		"api": {"addr": ":9090"},
		"loop": {"intervalSeconds": 2, "marketOpenUtc": "13:30", "marketCloseUtc": "20:00"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, "https://paper-api.example.com", cfg.Broker.BaseURL)
	assert.Equal(t, 5, cfg.Broker.TimeoutSeconds)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, ":9090", cfg.API.Addr)
	assert.Equal(t, 2, cfg.Loop.IntervalSeconds)
	require.NotNil(t, cfg.MarketOpen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestResolveUnknownBackend(t *testing.T) {
	_, err := resolve(FileConfig{Store: StoreConfig{Backend: "sqlite"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}

func TestResolvePostgresRequiresDatabase(t *testing.T) {
	_, err := resolve(FileConfig{Store: StoreConfig{Backend: "postgres"}})
	require.Error(t, err)

	cfg, err := resolve(FileConfig{Store: StoreConfig{Backend: "postgres", Database: "trader"}})
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Backend)
}

func TestEnvOverridesBrokerCredentials(t *testing.T) {
	t.Setenv("BROKER_API_KEY", "env-key")
	t.Setenv("BROKER_API_SECRET", "env-secret")

	cfg, err := resolve(FileConfig{Broker: BrokerConfig{APIKey: "file-key"}})
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Broker.APIKey)
	assert.Equal(t, "env-secret", cfg.Broker.APISecret)
}

func TestMarketHours(t *testing.T) {
	open, err := resolveMarketHours(LoopConfig{MarketOpenUTC: "13:30", MarketCloseUTC: "20:00"})
	require.NoError(t, err)
	require.NotNil(t, open)

	day := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	assert.False(t, open(day.Add(13*time.Hour+29*time.Minute)))
	assert.True(t, open(day.Add(13*time.Hour+30*time.Minute)))
	assert.True(t, open(day.Add(19*time.Hour+59*time.Minute)))
	assert.False(t, open(day.Add(20*time.Hour)))
}

func TestMarketHoursValidation(t *testing.T) {
	_, err := resolveMarketHours(LoopConfig{MarketOpenUTC: "bad", MarketCloseUTC: "20:00"})
	assert.Error(t, err)

	_, err = resolveMarketHours(LoopConfig{MarketOpenUTC: "20:00", MarketCloseUTC: "13:30"})
	assert.Error(t, err)
}
