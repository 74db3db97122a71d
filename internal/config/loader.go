package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYACQ_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYACQ_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "POLYACQ_DATABASE_DSN")
	setInt(&cfg.Database.MinPoolSize, "POLYACQ_DATABASE_MIN_POOL_SIZE")
	setInt(&cfg.Database.MaxPoolSize, "POLYACQ_DATABASE_MAX_POOL_SIZE")
	setInt(&cfg.Database.CommandTimeoutSeconds, "POLYACQ_DATABASE_COMMAND_TIMEOUT_SECONDS")
	setInt(&cfg.Database.MaxInactiveLifetimeSeconds, "POLYACQ_DATABASE_MAX_INACTIVE_LIFETIME_SECONDS")

	// ── Collector ──
	setInt(&cfg.Collector.MarketRefreshIntervalSeconds, "POLYACQ_COLLECTOR_MARKET_REFRESH_INTERVAL_SECONDS")
	setInt(&cfg.Collector.PriceSnapshotIntervalSeconds, "POLYACQ_COLLECTOR_PRICE_SNAPSHOT_INTERVAL_SECONDS")
	setInt(&cfg.Collector.OrderbookSnapshotIntervalSeconds, "POLYACQ_COLLECTOR_ORDERBOOK_SNAPSHOT_INTERVAL_SECONDS")
	setInt(&cfg.Collector.ResolutionCheckIntervalSeconds, "POLYACQ_COLLECTOR_RESOLUTION_CHECK_INTERVAL_SECONDS")
	setInt(&cfg.Collector.OrderbookDepthLevels, "POLYACQ_COLLECTOR_ORDERBOOK_DEPTH_LEVELS")
	setInt(&cfg.Collector.WSPingIntervalSeconds, "POLYACQ_COLLECTOR_WS_PING_INTERVAL_SECONDS")
	setInt(&cfg.Collector.WSMaxInstrumentsPerConn, "POLYACQ_COLLECTOR_WS_MAX_INSTRUMENTS_PER_CONN")
	setInt(&cfg.Collector.TradeBatchSize, "POLYACQ_COLLECTOR_TRADE_BATCH_SIZE")
	setInt(&cfg.Collector.TradeBatchDrainTimeoutSeconds, "POLYACQ_COLLECTOR_TRADE_BATCH_DRAIN_TIMEOUT_SECONDS")
	setInt(&cfg.Collector.TradeQueueCapacity, "POLYACQ_COLLECTOR_TRADE_QUEUE_CAPACITY")
	setBool(&cfg.Collector.EnableWebsocketTrades, "POLYACQ_COLLECTOR_ENABLE_WEBSOCKET_TRADES")
	setInt(&cfg.Collector.ArchiveAfterDays, "POLYACQ_COLLECTOR_ARCHIVE_AFTER_DAYS")

	// ── Venue ──
	setStr(&cfg.Venue.HTTPHost, "POLYACQ_VENUE_HTTP_HOST")
	setStr(&cfg.Venue.WsHost, "POLYACQ_VENUE_WS_HOST")
	setStr(&cfg.Venue.APIKey, "POLYACQ_VENUE_API_KEY")
	setStr(&cfg.Venue.FunderAddress, "POLYACQ_VENUE_FUNDER_ADDRESS")
	setInt(&cfg.Venue.SignatureType, "POLYACQ_VENUE_SIGNATURE_TYPE")
	setBool(&cfg.Venue.PaperTrading, "POLYACQ_VENUE_PAPER_TRADING")

	// ── Logging ──
	setStr(&cfg.Logging.Level, "POLYACQ_LOGGING_LEVEL")
	setInt64(&cfg.Logging.RotationBytes, "POLYACQ_LOGGING_ROTATION_BYTES")
	setInt(&cfg.Logging.BackupCount, "POLYACQ_LOGGING_BACKUP_COUNT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYACQ_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYACQ_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYACQ_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYACQ_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYACQ_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYACQ_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYACQ_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYACQ_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYACQ_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYACQ_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYACQ_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYACQ_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYACQ_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYACQ_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYACQ_S3_FORCE_PATH_STYLE")

	// ── HTTP ──
	setInt(&cfg.HTTP.Port, "POLYACQ_HTTP_PORT")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
