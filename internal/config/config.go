// Package config defines the top-level configuration for the acquisition
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYACQ_* environment
// variables.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Collector CollectorConfig `toml:"collector"`
	Venue     VenueConfig     `toml:"venue"`
	Logging   LoggingConfig   `toml:"logging"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	HTTP      HTTPConfig      `toml:"http"`
}

// HTTPConfig holds the liveness endpoint's own settings.
type HTTPConfig struct {
	Port int `toml:"port"`
}

// DatabaseConfig holds PostgreSQL/TimescaleDB connection parameters.
type DatabaseConfig struct {
	DSN                        string `toml:"dsn"`
	MinPoolSize                int    `toml:"min_pool_size"`
	MaxPoolSize                int    `toml:"max_pool_size"`
	CommandTimeoutSeconds      int    `toml:"command_timeout_seconds"`
	MaxInactiveLifetimeSeconds int    `toml:"max_inactive_lifetime_seconds"`
}

// CollectorConfig holds cadence and sizing parameters for every collector.
type CollectorConfig struct {
	MarketRefreshIntervalSeconds     int  `toml:"market_refresh_interval_seconds"`
	PriceSnapshotIntervalSeconds     int  `toml:"price_snapshot_interval_seconds"`
	OrderbookSnapshotIntervalSeconds int  `toml:"orderbook_snapshot_interval_seconds"`
	ResolutionCheckIntervalSeconds   int  `toml:"resolution_check_interval_seconds"`
	OrderbookDepthLevels             int  `toml:"orderbook_depth_levels"`
	WSPingIntervalSeconds            int  `toml:"ws_ping_interval_seconds"`
	WSMaxInstrumentsPerConn          int  `toml:"ws_max_instruments_per_conn"`
	TradeBatchSize                   int  `toml:"trade_batch_size"`
	TradeBatchDrainTimeoutSeconds    int  `toml:"trade_batch_drain_timeout_seconds"`
	TradeQueueCapacity               int  `toml:"trade_queue_capacity"`
	EnableWebsocketTrades            bool `toml:"enable_websocket_trades"`
	ArchiveAfterDays                 int  `toml:"archive_after_days"`
}

// VenueConfig holds Polymarket endpoint and identity parameters. Most of
// these exist purely because the venue's request signing conventions expect
// them to be present; a passive observer never signs anything with them.
type VenueConfig struct {
	HTTPHost      string `toml:"http_host"`
	WsHost        string `toml:"ws_host"`
	APIKey        string `toml:"-"`
	FunderAddress string `toml:"funder_address"`
	SignatureType int    `toml:"signature_type"`
	PaperTrading  bool   `toml:"paper_trading"`
}

// LoggingConfig holds structured-logging parameters.
type LoggingConfig struct {
	Level         string `toml:"level"`
	RotationBytes int64  `toml:"rotation_bytes"`
	BackupCount   int    `toml:"backup_count"`
}

// RedisConfig holds Redis connection parameters for the optional
// market-dedup cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"-"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the optional
// cold-storage exporter.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"-"`
	SecretKey      string `toml:"-"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// Defaults returns a Config populated with the daemon's built-in default
// values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			MinPoolSize:                2,
			MaxPoolSize:                10,
			CommandTimeoutSeconds:      60,
			MaxInactiveLifetimeSeconds: 300,
		},
		Collector: CollectorConfig{
			MarketRefreshIntervalSeconds:     300,
			PriceSnapshotIntervalSeconds:     60,
			OrderbookSnapshotIntervalSeconds: 300,
			ResolutionCheckIntervalSeconds:   600,
			OrderbookDepthLevels:             5,
			WSPingIntervalSeconds:            10,
			WSMaxInstrumentsPerConn:          500,
			TradeBatchSize:                   500,
			TradeBatchDrainTimeoutSeconds:    2,
			TradeQueueCapacity:               10_000,
			EnableWebsocketTrades:            true,
			ArchiveAfterDays:                 90,
		},
		Venue: VenueConfig{
			HTTPHost:      "https://gamma-api.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			SignatureType: 2,
			PaperTrading:  true,
		},
		Logging: LoggingConfig{
			Level:       "info",
			BackupCount: 3,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "acquired-archive",
			ForcePathStyle: true,
		},
		HTTP: HTTPConfig{
			Port: 8080,
		},
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging: unknown level %q (valid: debug, info, warn, error)", c.Logging.Level))
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, "database: dsn must not be empty")
	}
	if c.Database.MinPoolSize < 0 {
		errs = append(errs, "database: min_pool_size must be >= 0")
	}
	if c.Database.MaxPoolSize < 1 {
		errs = append(errs, "database: max_pool_size must be >= 1")
	}
	if c.Database.MinPoolSize > c.Database.MaxPoolSize {
		errs = append(errs, "database: min_pool_size must not exceed max_pool_size")
	}

	if c.Collector.MarketRefreshIntervalSeconds <= 0 {
		errs = append(errs, "collector: market_refresh_interval_seconds must be > 0")
	}
	if c.Collector.PriceSnapshotIntervalSeconds <= 0 {
		errs = append(errs, "collector: price_snapshot_interval_seconds must be > 0")
	}
	if c.Collector.OrderbookSnapshotIntervalSeconds <= 0 {
		errs = append(errs, "collector: orderbook_snapshot_interval_seconds must be > 0")
	}
	if c.Collector.ResolutionCheckIntervalSeconds <= 0 {
		errs = append(errs, "collector: resolution_check_interval_seconds must be > 0")
	}
	if c.Collector.OrderbookDepthLevels <= 0 {
		errs = append(errs, "collector: orderbook_depth_levels must be > 0")
	}
	if c.Collector.WSMaxInstrumentsPerConn <= 0 || c.Collector.WSMaxInstrumentsPerConn > 500 {
		errs = append(errs, "collector: ws_max_instruments_per_conn must be 1-500")
	}
	if c.Collector.TradeQueueCapacity <= 0 {
		errs = append(errs, "collector: trade_queue_capacity must be > 0")
	}

	if c.Venue.HTTPHost == "" {
		errs = append(errs, "venue: http_host must not be empty")
	}
	if c.Venue.WsHost == "" {
		errs = append(errs, "venue: ws_host must not be empty")
	}
	if c.Venue.SignatureType != 0 && c.Venue.SignatureType != 1 && c.Venue.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("venue: signature_type must be 0, 1, or 2, got %d", c.Venue.SignatureType))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, "http: port must be 1-65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
