package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	s3blob "github.com/quollview/spreadscraper/internal/blob/s3"
	"github.com/quollview/spreadscraper/internal/cache/redis"
	"github.com/quollview/spreadscraper/internal/config"
	"github.com/quollview/spreadscraper/internal/crypto"
	"github.com/quollview/spreadscraper/internal/domain"
	"github.com/quollview/spreadscraper/internal/exchange/binance"
	"github.com/quollview/spreadscraper/internal/exchange/btcmarkets"
	"github.com/quollview/spreadscraper/internal/notify"
	"github.com/quollview/spreadscraper/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	BarStore    domain.BarStore
	SpreadStore domain.SpreadStore

	// Caches
	SpreadCache    domain.SpreadCache
	MarketCache    domain.MarketCache
	ReferenceCache domain.ReferenceCache
	RateLimiter    domain.RateLimiter
	LockManager    domain.LockManager
	SummaryBus     domain.SummaryBus

	// Blob storage; nil unless the config enables it for this mode.
	SnapshotArchiver domain.SnapshotArchiver
	ColdStorage      domain.ColdStorage

	// Exchange clients. Reference is nil unless reference pricing is
	// enabled.
	Exchange  *btcmarkets.Client
	Reference *binance.Client

	// Notifications; nil unless alerting is enabled.
	Notifier *notify.Notifier

	// HealthChecks holds a probe per wired backend, keyed by component name.
	HealthChecks map[string]func(context.Context) error
}

// needsS3 returns true for modes that archive to object storage. The API
// never touches blobs, and rollups stay inside Postgres.
func needsS3(mode string) bool {
	switch mode {
	case "scrape", "all":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		HealthChecks: make(map[string]func(context.Context) error),
	}

	// --- PostgreSQL --- every mode reads or writes bars and spreads.
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	barStore := postgres.NewBarStore(pool)
	spreadStore := postgres.NewSpreadStore(pool)
	deps.BarStore = barStore
	deps.SpreadStore = spreadStore
	deps.HealthChecks["postgres"] = pgClient.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SpreadCache = redis.NewSpreadCache(redisClient, cfg.Redis.SpreadTTL.Duration)
	deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.MarketTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SummaryBus = redis.NewSummaryBus(redisClient)
	deps.HealthChecks["redis"] = redisClient.Ping

	if cfg.Exchange.Binance.Enabled {
		deps.ReferenceCache = redis.NewReferenceCache(redisClient, cfg.Redis.ReferenceTTL.Duration)
	}

	// --- S3 blob storage (raw snapshot archival + cold storage) ---
	if cfg.Blob.Enabled && needsS3(cfg.App.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Blob.Endpoint,
			Region:         cfg.Blob.Region,
			Bucket:         cfg.Blob.Bucket,
			AccessKey:      cfg.Blob.AccessKey,
			SecretKey:      cfg.Blob.SecretKey,
			UseSSL:         cfg.Blob.UseSSL,
			ForcePathStyle: cfg.Blob.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		archive := s3blob.NewArchive(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			barStore,
			spreadStore,
		)
		deps.SnapshotArchiver = archive
		deps.ColdStorage = archive
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Exchange clients ---
	exchange := btcmarkets.NewClient(
		cfg.Exchange.BTCMarkets.BaseURL,
		cfg.Exchange.BTCMarkets.RateLimit,
		cfg.Exchange.BTCMarkets.Burst,
	)
	if cfg.Exchange.BTCMarkets.Timeout.Duration > 0 {
		exchange.SetTimeout(cfg.Exchange.BTCMarkets.Timeout.Duration)
	}

	creds, err := crypto.LoadCredentials(crypto.CredentialSource{
		Key:        cfg.Exchange.BTCMarkets.ApiKey,
		Secret:     cfg.Exchange.BTCMarkets.ApiSecret,
		Path:       cfg.Secrets.CredentialsPath,
		Passphrase: os.Getenv(cfg.Secrets.PassphraseEnv),
	})
	switch {
	case errors.Is(err, domain.ErrNoCredentials):
		logger.WarnContext(ctx, "wire: credentials locked, staying on public endpoints",
			slog.String("path", cfg.Secrets.CredentialsPath),
		)
	case err != nil:
		cleanup()
		return nil, nil, fmt.Errorf("wire: credentials: %w", err)
	case creds.HasBTCMarkets():
		exchange.SetAuth(&crypto.HMACAuth{
			Key:    creds.BTCMarketsKey,
			Secret: creds.BTCMarketsSecret,
		})
		logger.InfoContext(ctx, "wire: BTC Markets client authenticated")
	}
	deps.Exchange = exchange

	if cfg.Exchange.Binance.Enabled {
		ref := binance.NewClient(cfg.Exchange.Binance.BaseURL)
		if cfg.Exchange.Binance.Timeout.Duration > 0 {
			ref.SetTimeout(cfg.Exchange.Binance.Timeout.Duration)
		}
		deps.Reference = ref
	}

	// --- Notifications ---
	if cfg.Alerts.Enabled {
		var senders []notify.Sender
		if cfg.Alerts.DiscordWebhookURL != "" {
			senders = append(senders, notify.NewDiscordSender(cfg.Alerts.DiscordWebhookURL))
		}
		if cfg.Alerts.TelegramToken != "" && cfg.Alerts.TelegramChatID != "" {
			senders = append(senders, notify.NewTelegramSender(
				cfg.Alerts.TelegramToken,
				cfg.Alerts.TelegramChatID,
			))
		}
		deps.Notifier = notify.NewNotifier(senders, logger)
	}

	return deps, cleanup, nil
}
