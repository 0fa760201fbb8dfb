// Package config defines the top-level configuration for the spread scraper
// and provides validation helpers.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SPREAD_* environment variables.
type Config struct {
	App      AppConfig      `toml:"app"`
	Markets  MarketsConfig  `toml:"markets"`
	Analyzer AnalyzerConfig `toml:"analyzer"`
	Scraper  ScraperConfig  `toml:"scraper"`
	Rollup   RollupConfig   `toml:"rollup"`
	Exchange ExchangeConfig `toml:"exchange"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Blob     BlobConfig     `toml:"blob"`
	Server   ServerConfig   `toml:"server"`
	Alerts   AlertsConfig   `toml:"alerts"`
	Secrets  SecretsConfig  `toml:"secrets"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Name      string `toml:"name"`
	Env       string `toml:"env"`
	Mode      string `toml:"mode"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// MarketsConfig holds the allowlist of market ids the scraper and API accept.
type MarketsConfig struct {
	Allowed         []string `toml:"allowed"`
	Granularities   []string `toml:"granularities"`
	IDPattern       string   `toml:"id_pattern"`
	RefreshInterval duration `toml:"refresh_interval"`
}

// AnalyzerConfig holds the depth-analysis parameters: the notional levels to
// quote, the rounding precision of fill results, and the level whose quotes
// seed the one-minute bars.
type AnalyzerConfig struct {
	Levels    []float64 `toml:"levels"`
	Precision int       `toml:"precision"`
	BarLevel  float64   `toml:"bar_level"`
}

// ScraperConfig holds the orderbook polling parameters.
type ScraperConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	MarketTimeout duration `toml:"market_timeout"`
}

// RollupConfig holds the cron schedules for bar aggregation jobs.
type RollupConfig struct {
	Enabled    bool   `toml:"enabled"`
	HourlyCron string `toml:"hourly_cron"`
	DailyCron  string `toml:"daily_cron"`
}

// ExchangeConfig groups the per-exchange client settings.
type ExchangeConfig struct {
	BTCMarkets BTCMarketsConfig `toml:"btcmarkets"`
	Binance    BinanceConfig    `toml:"binance"`
}

// BTCMarketsConfig holds BTC Markets API parameters. ApiKey and ApiSecret are
// optional: without them the client stays on public endpoints.
type BTCMarketsConfig struct {
	BaseURL   string   `toml:"base_url"`
	ApiKey    string   `toml:"api_key"`
	ApiSecret string   `toml:"api_secret"`
	RateLimit float64  `toml:"rate_limit"`
	Burst     int      `toml:"burst"`
	Timeout   duration `toml:"timeout"`
}

// BinanceConfig holds the reference-pricing client parameters. SymbolMap
// translates local market ids to Binance symbols (e.g. "BTC-AUD" -> "BTCUSDT").
type BinanceConfig struct {
	Enabled   bool              `toml:"enabled"`
	BaseURL   string            `toml:"base_url"`
	SymbolMap map[string]string `toml:"symbol_map"`
	Timeout   duration          `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters and cache TTLs.
type RedisConfig struct {
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	SpreadTTL    duration `toml:"spread_ttl"`
	MarketTTL    duration `toml:"market_ttl"`
	ReferenceTTL duration `toml:"reference_ttl"`
}

// BlobConfig holds S3-compatible object storage parameters for raw snapshot
// archival and cold storage of aged bars.
type BlobConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
	ArchiveCron    string `toml:"archive_cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
	IdleTimeout  duration `toml:"idle_timeout"`
	CORSOrigins  []string `toml:"cors_origins"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
}

// AlertsConfig holds wide-spread alerting parameters. An alert fires when the
// relative spread at the bar level exceeds SpreadThresholdPct.
type AlertsConfig struct {
	Enabled            bool     `toml:"enabled"`
	SpreadThresholdPct float64  `toml:"spread_threshold_pct"`
	Cooldown           duration `toml:"cooldown"`
	DiscordWebhookURL  string   `toml:"discord_webhook_url"`
	TelegramToken      string   `toml:"telegram_token"`
	TelegramChatID     string   `toml:"telegram_chat_id"`
}

// SecretsConfig points at the encrypted exchange-credentials file. When
// CredentialsPath is empty the scraper runs against public endpoints only.
type SecretsConfig struct {
	CredentialsPath string `toml:"credentials_path"`
	PassphraseEnv   string `toml:"passphrase_env"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		App: AppConfig{
			Name:      "spreadscraper",
			Env:       "dev",
			Mode:      "all",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Markets: MarketsConfig{
			Allowed:         []string{"BTC-AUD", "ETH-AUD", "XRP-AUD", "LTC-AUD"},
			Granularities:   []string{"1m", "1h", "1d"},
			IDPattern:       `^[A-Z]{3,5}-[A-Z]{3}(_1[mhd])?$`,
			RefreshInterval: duration{1 * time.Hour},
		},
		Analyzer: AnalyzerConfig{
			Levels:    []float64{100, 1_000, 10_000, 100_000},
			Precision: 8,
			BarLevel:  10_000,
		},
		Scraper: ScraperConfig{
			Enabled:       true,
			Interval:      duration{1 * time.Minute},
			MarketTimeout: duration{10 * time.Second},
		},
		Rollup: RollupConfig{
			Enabled:    true,
			HourlyCron: "1 * * * *",
			DailyCron:  "2 0 * * *",
		},
		Exchange: ExchangeConfig{
			BTCMarkets: BTCMarketsConfig{
				BaseURL:   "https://api.btcmarkets.net",
				RateLimit: 3.0,
				Burst:     3,
				Timeout:   duration{10 * time.Second},
			},
			Binance: BinanceConfig{
				Enabled:   false,
				BaseURL:   "https://api.binance.com",
				SymbolMap: map[string]string{},
				Timeout:   duration{5 * time.Second},
			},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "spreadscraper",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			SpreadTTL:    duration{5 * time.Minute},
			MarketTTL:    duration{1 * time.Hour},
			ReferenceTTL: duration{30 * time.Second},
		},
		Blob: BlobConfig{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "spreadscraper-data",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
			ArchiveCron:    "30 2 * * *",
		},
		Server: ServerConfig{
			Enabled:      true,
			Addr:         ":8000",
			ReadTimeout:  duration{10 * time.Second},
			WriteTimeout: duration{15 * time.Second},
			IdleTimeout:  duration{60 * time.Second},
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:    120,
			RateWindow:   duration{1 * time.Minute},
		},
		Alerts: AlertsConfig{
			Enabled:            false,
			SpreadThresholdPct: 1.0,
			Cooldown:           duration{15 * time.Minute},
		},
		Secrets: SecretsConfig{
			CredentialsPath: "",
			PassphraseEnv:   "SPREAD_CREDENTIALS_PASSPHRASE",
		},
	}
}

// validModes enumerates the accepted values for AppConfig.Mode.
var validModes = map[string]bool{
	"scrape": true,
	"rollup": true,
	"api":    true,
	"all":    true,
}

// validLogLevels enumerates the accepted values for AppConfig.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats enumerates the accepted values for AppConfig.LogFormat.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// validGranularities enumerates the bar granularities the store understands.
var validGranularities = map[string]bool{
	"1m": true,
	"1h": true,
	"1d": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// App
	if !validModes[strings.ToLower(c.App.Mode)] {
		errs = append(errs, fmt.Sprintf("app: unknown mode %q (valid: scrape, rollup, api, all)", c.App.Mode))
	}
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, fmt.Sprintf("app: unknown log_level %q (valid: debug, info, warn, error)", c.App.LogLevel))
	}
	if !validLogFormats[strings.ToLower(c.App.LogFormat)] {
		errs = append(errs, fmt.Sprintf("app: unknown log_format %q (valid: json, text)", c.App.LogFormat))
	}

	// Markets
	if len(c.Markets.Allowed) == 0 {
		errs = append(errs, "markets: allowed must list at least one market id")
	}
	if _, err := regexp.Compile(c.Markets.IDPattern); err != nil {
		errs = append(errs, fmt.Sprintf("markets: id_pattern does not compile: %v", err))
	}
	for _, g := range c.Markets.Granularities {
		if !validGranularities[g] {
			errs = append(errs, fmt.Sprintf("markets: unknown granularity %q (valid: 1m, 1h, 1d)", g))
		}
	}
	if c.Markets.RefreshInterval.Duration <= 0 {
		errs = append(errs, "markets: refresh_interval must be > 0")
	}

	// Analyzer
	if len(c.Analyzer.Levels) == 0 {
		errs = append(errs, "analyzer: levels must not be empty")
	}
	barLevelQuoted := false
	for _, lvl := range c.Analyzer.Levels {
		if lvl <= 0 {
			errs = append(errs, fmt.Sprintf("analyzer: levels must be > 0, got %v", lvl))
		}
		if lvl == c.Analyzer.BarLevel {
			barLevelQuoted = true
		}
	}
	if c.Analyzer.Precision < 0 || c.Analyzer.Precision > 28 {
		errs = append(errs, fmt.Sprintf("analyzer: precision must be 0-28, got %d", c.Analyzer.Precision))
	}
	if !barLevelQuoted {
		errs = append(errs, fmt.Sprintf("analyzer: bar_level %v must be one of levels", c.Analyzer.BarLevel))
	}

	// Scraper
	if c.Scraper.Enabled {
		if c.Scraper.Interval.Duration <= 0 {
			errs = append(errs, "scraper: interval must be > 0")
		}
		if c.Scraper.MarketTimeout.Duration <= 0 {
			errs = append(errs, "scraper: market_timeout must be > 0")
		}
	}

	// Rollup
	if c.Rollup.Enabled {
		if strings.TrimSpace(c.Rollup.HourlyCron) == "" {
			errs = append(errs, "rollup: hourly_cron must not be empty")
		}
		if strings.TrimSpace(c.Rollup.DailyCron) == "" {
			errs = append(errs, "rollup: daily_cron must not be empty")
		}
	}

	// Exchange — API key and secret must be set together, or both empty.
	if c.Exchange.BTCMarkets.BaseURL == "" {
		errs = append(errs, "exchange.btcmarkets: base_url must not be empty")
	}
	if c.Exchange.BTCMarkets.RateLimit <= 0 {
		errs = append(errs, "exchange.btcmarkets: rate_limit must be > 0")
	}
	ek := c.Exchange.BTCMarkets.ApiKey != ""
	es := c.Exchange.BTCMarkets.ApiSecret != ""
	if ek != es {
		errs = append(errs, "exchange.btcmarkets: api_key and api_secret must be set together")
	}
	if c.Exchange.Binance.Enabled && c.Exchange.Binance.BaseURL == "" {
		errs = append(errs, "exchange.binance: base_url must not be empty when enabled")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.SpreadTTL.Duration <= 0 {
		errs = append(errs, "redis: spread_ttl must be > 0")
	}
	if c.Redis.MarketTTL.Duration <= 0 {
		errs = append(errs, "redis: market_ttl must be > 0")
	}
	if c.Redis.ReferenceTTL.Duration <= 0 {
		errs = append(errs, "redis: reference_ttl must be > 0")
	}

	// Blob
	if c.Blob.Enabled {
		if c.Blob.Endpoint == "" {
			errs = append(errs, "blob: endpoint must not be empty when enabled")
		}
		if c.Blob.Bucket == "" {
			errs = append(errs, "blob: bucket must not be empty when enabled")
		}
		if c.Blob.RetentionDays < 1 {
			errs = append(errs, "blob: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Addr == "" {
			errs = append(errs, "server: addr must not be empty")
		}
		if c.Server.RateLimit < 1 {
			errs = append(errs, "server: rate_limit must be >= 1")
		}
		if c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0")
		}
	}

	// Alerts
	if c.Alerts.Enabled {
		if c.Alerts.SpreadThresholdPct <= 0 {
			errs = append(errs, "alerts: spread_threshold_pct must be > 0 when enabled")
		}
		if c.Alerts.DiscordWebhookURL == "" && (c.Alerts.TelegramToken == "" || c.Alerts.TelegramChatID == "") {
			errs = append(errs, "alerts: a discord webhook or telegram token+chat_id is required when enabled")
		}
	}

	// Secrets
	if c.Secrets.CredentialsPath != "" && c.Secrets.PassphraseEnv == "" {
		errs = append(errs, "secrets: passphrase_env is required when credentials_path is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
