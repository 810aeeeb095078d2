// Package ops loads and resolves the runtime configuration.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Store    StoreConfig    `json:"store"`
	Broker   BrokerConfig   `json:"broker"`
	Dispatch DispatchConfig `json:"dispatch"`
	Pacing   PacingConfig   `json:"pacing"`
	API      APIConfig      `json:"api"`
	Loop     LoopConfig     `json:"loop"`
}

// StoreConfig selects and parameterizes the order store backend.
type StoreConfig struct {
	Backend  string `json:"backend"` // "bolt" or "postgres"
	Path     string `json:"path"`    // bolt file path
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// BrokerConfig points at the external broker.
type BrokerConfig struct {
	BaseURL        string `json:"baseUrl"`
	StreamURL      string `json:"streamUrl"`
	APIKey         string `json:"apiKey"`
	APISecret      string `json:"apiSecret"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// DispatchConfig sizes the rate-limited worker pool.
type DispatchConfig struct {
	Workers  int `json:"workers"`
	QueueCap int `json:"queueCap"`
}

// PacingConfig controls the telemetry snapshot.
type PacingConfig struct {
	MaxRPM                 int    `json:"maxRpm"`
	WindowSeconds          int    `json:"windowSeconds"`
	SnapshotPath           string `json:"snapshotPath"`
	PublishIntervalSeconds int    `json:"publishIntervalSeconds"`
}

// APIConfig configures the control-plane HTTP server.
type APIConfig struct {
	Addr string `json:"addr"`
}

// LoopConfig paces the trading loop and defines market hours in UTC.
// Empty open/close means the market is treated as always open.
type LoopConfig struct {
	IntervalSeconds int    `json:"intervalSeconds"`
	MarketOpenUTC   string `json:"marketOpenUtc"`  // "13:30"
	MarketCloseUTC  string `json:"marketCloseUtc"` // "20:00"
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Store      StoreConfig
	Broker     BrokerConfig
	Dispatch   DispatchConfig
	Pacing     PacingConfig
	API        APIConfig
	Loop       LoopConfig
	MarketOpen func(now time.Time) bool
}

const (
	defaultBoltPath      = "data/orders.db"
	defaultAPIAddr       = ":8085"
	defaultWorkers       = 2
	defaultQueueCap      = 256
	defaultLoopInterval  = 1
	defaultBrokerTimeout = 15
)

// Load reads a JSON config file, applies environment overrides for the
// broker credentials and resolves defaults. An empty path yields a
// default embedded-store configuration.
func Load(path string) (Loaded, error) {
	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, err
		}
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "bolt"
	}
	switch cfg.Store.Backend {
	case "bolt":
		if cfg.Store.Path == "" {
			cfg.Store.Path = defaultBoltPath
		}
	case "postgres":
		if cfg.Store.Database == "" {
			return Loaded{}, fmt.Errorf("postgres backend requires a database name")
		}
	default:
		return Loaded{}, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}

	// Credentials come from the environment when the file leaves them out.
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("BROKER_API_SECRET"); v != "" {
		cfg.Broker.APISecret = v
	}
	if cfg.Broker.TimeoutSeconds <= 0 {
		cfg.Broker.TimeoutSeconds = defaultBrokerTimeout
	}

	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = defaultWorkers
	}
	if cfg.Dispatch.QueueCap <= 0 {
		cfg.Dispatch.QueueCap = defaultQueueCap
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = defaultAPIAddr
	}
	if cfg.Loop.IntervalSeconds <= 0 {
		cfg.Loop.IntervalSeconds = defaultLoopInterval
	}

	marketOpen, err := resolveMarketHours(cfg.Loop)
	if err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Store:      cfg.Store,
		Broker:     cfg.Broker,
		Dispatch:   cfg.Dispatch,
		Pacing:     cfg.Pacing,
		API:        cfg.API,
		Loop:       cfg.Loop,
		MarketOpen: marketOpen,
	}, nil
}

func resolveMarketHours(cfg LoopConfig) (func(now time.Time) bool, error) {
	if cfg.MarketOpenUTC == "" || cfg.MarketCloseUTC == "" {
		return nil, nil
	}
	open, err := time.Parse("15:04", cfg.MarketOpenUTC)
	if err != nil {
		return nil, fmt.Errorf("invalid marketOpenUtc %q: %w", cfg.MarketOpenUTC, err)
	}
	closeAt, err := time.Parse("15:04", cfg.MarketCloseUTC)
	if err != nil {
		return nil, fmt.Errorf("invalid marketCloseUtc %q: %w", cfg.MarketCloseUTC, err)
	}
	openMin := open.Hour()*60 + open.Minute()
	closeMin := closeAt.Hour()*60 + closeAt.Minute()
	if openMin >= closeMin {
		return nil, fmt.Errorf("marketOpenUtc must precede marketCloseUtc")
	}
	return func(now time.Time) bool {
		utc := now.UTC()
		minute := utc.Hour()*60 + utc.Minute()
		return minute >= openMin && minute < closeMin
	}, nil
}
