package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"github.com/quollview/spreadscraper/internal/domain"
)

// MarketLister is the slice of the exchange client the market service needs.
type MarketLister interface {
	ListMarkets(ctx context.Context) ([]domain.Market, error)
}

// MarketServiceConfig carries the allowlist settings.
type MarketServiceConfig struct {
	// Allowed are the base market ids this deployment watches.
	Allowed []string
	// Granularities are the bar series advertised per market.
	Granularities []string
	// IDPattern is the regular expression a series id must match before the
	// allowlist is even consulted.
	IDPattern string
}

// MarketService owns the market allowlist: it validates series ids for the
// API, lists the advertised series, and keeps cached exchange metadata
// fresh.
type MarketService struct {
	exchange MarketLister
	cache    domain.MarketCache
	logger   *slog.Logger

	allowed   map[string]bool
	bases     []string
	grans     []domain.Granularity
	idPattern *regexp.Regexp
}

// NewMarketService creates a MarketService. The configured pattern and
// granularities are validated here so every later call can assume them.
func NewMarketService(cfg MarketServiceConfig, exchange MarketLister, cache domain.MarketCache, logger *slog.Logger) (*MarketService, error) {
	pattern, err := regexp.Compile(cfg.IDPattern)
	if err != nil {
		return nil, fmt.Errorf("market_service: compile id pattern: %w", err)
	}

	grans := make([]domain.Granularity, 0, len(cfg.Granularities))
	for _, s := range cfg.Granularities {
		g, err := domain.ParseGranularity(s)
		if err != nil {
			return nil, fmt.Errorf("market_service: %w", err)
		}
		grans = append(grans, g)
	}

	allowed := make(map[string]bool, len(cfg.Allowed))
	bases := make([]string, 0, len(cfg.Allowed))
	for _, id := range cfg.Allowed {
		if allowed[id] {
			continue
		}
		allowed[id] = true
		bases = append(bases, id)
	}
	sort.Strings(bases)

	return &MarketService{
		exchange:  exchange,
		cache:     cache,
		logger:    logger,
		allowed:   allowed,
		bases:     bases,
		grans:     grans,
		idPattern: pattern,
	}, nil
}

// Bases returns the allowlisted base market ids, sorted.
func (s *MarketService) Bases() []string {
	out := make([]string, len(s.bases))
	copy(out, s.bases)
	return out
}

// SeriesIDs returns every advertised series id (markets x granularities),
// sorted.
func (s *MarketService) SeriesIDs() []string {
	out := make([]string, 0, len(s.bases)*len(s.grans))
	for _, base := range s.bases {
		for _, g := range s.grans {
			out = append(out, domain.SeriesID(base, g))
		}
	}
	sort.Strings(out)
	return out
}

// ResolveSeriesID validates a request id and resolves it to a base market
// and granularity. An id without a granularity suffix defaults to the
// one-minute series. Rejections wrap domain.ErrInvalidMarket.
func (s *MarketService) ResolveSeriesID(id string) (string, domain.Granularity, error) {
	if !s.idPattern.MatchString(id) {
		return "", "", fmt.Errorf("%w: %q", domain.ErrInvalidMarket, id)
	}

	base, g, ok := domain.SplitSeriesID(id)
	if !ok {
		g = domain.Gran1m
	}
	if !s.allowed[base] {
		return "", "", fmt.Errorf("%w: %q not in allowlist", domain.ErrInvalidMarket, id)
	}
	return base, g, nil
}

// ValidateMarketID checks a base market id (no granularity suffix) against
// the pattern and allowlist.
func (s *MarketService) ValidateMarketID(id string) error {
	if !s.idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidMarket, id)
	}
	if _, _, hasSuffix := domain.SplitSeriesID(id); hasSuffix {
		return fmt.Errorf("%w: %q carries a granularity suffix", domain.ErrInvalidMarket, id)
	}
	if !s.allowed[id] {
		return fmt.Errorf("%w: %q not in allowlist", domain.ErrInvalidMarket, id)
	}
	return nil
}

// Refresh pulls the market list from the exchange, keeps the allowlisted
// entries, and replaces the cached copy.
func (s *MarketService) Refresh(ctx context.Context) ([]domain.Market, error) {
	listed, err := s.exchange.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: refresh: %w", err)
	}

	kept := make([]domain.Market, 0, len(s.bases))
	for _, m := range listed {
		if s.allowed[m.MarketID] {
			kept = append(kept, m)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].MarketID < kept[j].MarketID })

	if err := s.cache.SetMarkets(ctx, kept); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache markets failed",
			slog.String("error", err.Error()),
		)
		// Non-fatal: the next refresh retries, reads fall back to the exchange.
	}

	s.logger.InfoContext(ctx, "market_service: refreshed markets",
		slog.Int("listed", len(listed)),
		slog.Int("kept", len(kept)),
	)
	return kept, nil
}

// ActiveMarkets returns the allowlisted markets currently tradeable on the
// exchange, serving from the cache and refreshing on a miss.
func (s *MarketService) ActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	markets, err := s.cache.GetMarkets(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market_service: cache read failed",
				slog.String("error", err.Error()),
			)
		}
		markets, err = s.Refresh(ctx)
		if err != nil {
			return nil, err
		}
	}

	active := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if m.Active() {
			active = append(active, m)
		}
	}
	return active, nil
}
