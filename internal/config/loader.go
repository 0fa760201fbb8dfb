package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SPREAD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known SPREAD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── App ──
	setStr(&cfg.App.Name, "SPREAD_APP_NAME")
	setStr(&cfg.App.Env, "SPREAD_APP_ENV")
	setStr(&cfg.App.Mode, "SPREAD_APP_MODE")
	setStr(&cfg.App.LogLevel, "SPREAD_APP_LOG_LEVEL")
	setStr(&cfg.App.LogFormat, "SPREAD_APP_LOG_FORMAT")

	// ── Markets ──
	setStringSlice(&cfg.Markets.Allowed, "SPREAD_MARKETS_ALLOWED")
	setStringSlice(&cfg.Markets.Granularities, "SPREAD_MARKETS_GRANULARITIES")
	setStr(&cfg.Markets.IDPattern, "SPREAD_MARKETS_ID_PATTERN")
	setDuration(&cfg.Markets.RefreshInterval, "SPREAD_MARKETS_REFRESH_INTERVAL")

	// ── Analyzer ──
	setInt(&cfg.Analyzer.Precision, "SPREAD_ANALYZER_PRECISION")
	setFloat64(&cfg.Analyzer.BarLevel, "SPREAD_ANALYZER_BAR_LEVEL")

	// ── Scraper ──
	setBool(&cfg.Scraper.Enabled, "SPREAD_SCRAPER_ENABLED")
	setDuration(&cfg.Scraper.Interval, "SPREAD_SCRAPER_INTERVAL")
	setDuration(&cfg.Scraper.MarketTimeout, "SPREAD_SCRAPER_MARKET_TIMEOUT")

	// ── Rollup ──
	setBool(&cfg.Rollup.Enabled, "SPREAD_ROLLUP_ENABLED")
	setStr(&cfg.Rollup.HourlyCron, "SPREAD_ROLLUP_HOURLY_CRON")
	setStr(&cfg.Rollup.DailyCron, "SPREAD_ROLLUP_DAILY_CRON")

	// ── Exchange ──
	setStr(&cfg.Exchange.BTCMarkets.BaseURL, "SPREAD_BTCMARKETS_BASE_URL")
	setStr(&cfg.Exchange.BTCMarkets.ApiKey, "SPREAD_BTCMARKETS_API_KEY")
	setStr(&cfg.Exchange.BTCMarkets.ApiSecret, "SPREAD_BTCMARKETS_API_SECRET")
	setFloat64(&cfg.Exchange.BTCMarkets.RateLimit, "SPREAD_BTCMARKETS_RATE_LIMIT")
	setInt(&cfg.Exchange.BTCMarkets.Burst, "SPREAD_BTCMARKETS_BURST")
	setDuration(&cfg.Exchange.BTCMarkets.Timeout, "SPREAD_BTCMARKETS_TIMEOUT")
	setBool(&cfg.Exchange.Binance.Enabled, "SPREAD_BINANCE_ENABLED")
	setStr(&cfg.Exchange.Binance.BaseURL, "SPREAD_BINANCE_BASE_URL")
	setDuration(&cfg.Exchange.Binance.Timeout, "SPREAD_BINANCE_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SPREAD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "SPREAD_POSTGRES_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SPREAD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SPREAD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SPREAD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SPREAD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SPREAD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SPREAD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SPREAD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SPREAD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SPREAD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SPREAD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SPREAD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SPREAD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SPREAD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SPREAD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SPREAD_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SpreadTTL, "SPREAD_REDIS_SPREAD_TTL")
	setDuration(&cfg.Redis.MarketTTL, "SPREAD_REDIS_MARKET_TTL")
	setDuration(&cfg.Redis.ReferenceTTL, "SPREAD_REDIS_REFERENCE_TTL")

	// ── Blob ──
	setBool(&cfg.Blob.Enabled, "SPREAD_BLOB_ENABLED")
	setStr(&cfg.Blob.Endpoint, "SPREAD_BLOB_ENDPOINT")
	setStr(&cfg.Blob.Region, "SPREAD_BLOB_REGION")
	setStr(&cfg.Blob.Bucket, "SPREAD_BLOB_BUCKET")
	setStr(&cfg.Blob.AccessKey, "SPREAD_BLOB_ACCESS_KEY")
	setStr(&cfg.Blob.SecretKey, "SPREAD_BLOB_SECRET_KEY")
	setBool(&cfg.Blob.UseSSL, "SPREAD_BLOB_USE_SSL")
	setBool(&cfg.Blob.ForcePathStyle, "SPREAD_BLOB_FORCE_PATH_STYLE")
	setInt(&cfg.Blob.RetentionDays, "SPREAD_BLOB_RETENTION_DAYS")
	setStr(&cfg.Blob.ArchiveCron, "SPREAD_BLOB_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SPREAD_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "SPREAD_SERVER_ADDR")
	setDuration(&cfg.Server.ReadTimeout, "SPREAD_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "SPREAD_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "SPREAD_SERVER_IDLE_TIMEOUT")
	setStringSlice(&cfg.Server.CORSOrigins, "SPREAD_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "SPREAD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SPREAD_SERVER_RATE_WINDOW")

	// ── Alerts ──
	setBool(&cfg.Alerts.Enabled, "SPREAD_ALERTS_ENABLED")
	setFloat64(&cfg.Alerts.SpreadThresholdPct, "SPREAD_ALERTS_SPREAD_THRESHOLD_PCT")
	setDuration(&cfg.Alerts.Cooldown, "SPREAD_ALERTS_COOLDOWN")
	setStr(&cfg.Alerts.DiscordWebhookURL, "SPREAD_ALERTS_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Alerts.TelegramToken, "SPREAD_ALERTS_TELEGRAM_TOKEN")
	setStr(&cfg.Alerts.TelegramChatID, "SPREAD_ALERTS_TELEGRAM_CHAT_ID")

	// ── Secrets ──
	setStr(&cfg.Secrets.CredentialsPath, "SPREAD_SECRETS_CREDENTIALS_PATH")
	setStr(&cfg.Secrets.PassphraseEnv, "SPREAD_SECRETS_PASSPHRASE_ENV")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
