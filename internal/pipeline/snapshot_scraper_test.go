package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quollview/spreadscraper/internal/depth"
	"github.com/quollview/spreadscraper/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

type fakeMarketSource struct {
	markets []domain.Market
	err     error
}

func (f *fakeMarketSource) ActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	return f.markets, f.err
}

type fakeBookFetcher struct {
	books map[string]domain.Orderbook
	errs  map[string]error
}

func (f *fakeBookFetcher) GetOrderbook(ctx context.Context, marketID string) (domain.Orderbook, error) {
	if err := f.errs[marketID]; err != nil {
		return domain.Orderbook{}, err
	}
	book, ok := f.books[marketID]
	if !ok {
		return domain.Orderbook{}, domain.ErrNotFound
	}
	return book, nil
}

type fakeSpreadRecorder struct {
	snaps []domain.SpreadSnapshot
	err   error
}

func (f *fakeSpreadRecorder) Record(ctx context.Context, snap domain.SpreadSnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.snaps = append(f.snaps, snap)
	return nil
}

type fakeBarUpserter struct {
	recs []domain.BarRecord
	err  error
}

func (f *fakeBarUpserter) Upsert(ctx context.Context, rec domain.BarRecord) error {
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	return nil
}

type fakeSnapshotArchiver struct {
	books []domain.Orderbook
	err   error
}

func (f *fakeSnapshotArchiver) ArchiveSnapshot(ctx context.Context, book domain.Orderbook, raw []byte) error {
	f.books = append(f.books, book)
	return f.err
}

type fakeAlerts struct {
	snaps []domain.SpreadSnapshot
}

func (f *fakeAlerts) Evaluate(ctx context.Context, snap domain.SpreadSnapshot) {
	f.snaps = append(f.snaps, snap)
}

func onlineMarket(id string) domain.Market {
	return domain.Market{MarketID: id, Status: domain.MarketStatusOnline}
}

func testBook(t *testing.T, marketID string, at time.Time) domain.Orderbook {
	t.Helper()
	return domain.Orderbook{
		MarketID: marketID,
		Asks: []domain.PriceLevel{
			{Price: dec(t, "7039.31"), Quantity: dec(t, "2")},
		},
		Bids: []domain.PriceLevel{
			{Price: dec(t, "7024.21"), Quantity: dec(t, "2")},
		},
		Time: at,
	}
}

func newTestScraper(
	markets *fakeMarketSource,
	books *fakeBookFetcher,
	spreads *fakeSpreadRecorder,
	bars *fakeBarUpserter,
	archiver *fakeSnapshotArchiver,
	alerts *fakeAlerts,
) *SnapshotScraper {
	cfg := ScraperConfig{
		Levels:   []decimal.Decimal{decimal.NewFromInt(10000)},
		BarLevel: decimal.NewFromInt(10000),
	}
	analyzer := depth.NewAnalyzer(depth.NewCalculator(2))

	var arch domain.SnapshotArchiver
	if archiver != nil {
		arch = archiver
	}
	var eval AlertEvaluator
	if alerts != nil {
		eval = alerts
	}
	return NewSnapshotScraper(markets, books, analyzer, spreads, bars, arch, eval, cfg, testLogger())
}

func TestRunScrapesEveryActiveMarket(t *testing.T) {
	at := mustTime(t, "2026-05-10T10:30:45Z")
	markets := &fakeMarketSource{markets: []domain.Market{
		onlineMarket("ETH-AUD"),
		onlineMarket("BTC-AUD"),
	}}
	books := &fakeBookFetcher{books: map[string]domain.Orderbook{
		"ETH-AUD": testBook(t, "ETH-AUD", at),
		"BTC-AUD": testBook(t, "BTC-AUD", at),
	}}
	spreads := &fakeSpreadRecorder{}
	bars := &fakeBarUpserter{}
	archiver := &fakeSnapshotArchiver{}
	alerts := &fakeAlerts{}

	s := newTestScraper(markets, books, spreads, bars, archiver, alerts)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, spreads.snaps, 2)
	snap := spreads.snaps[0]
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "ETH-AUD", snap.MarketID)
	assert.Equal(t, at, snap.Time)
	assert.Equal(t, "7024.21", snap.Analysis.Summary.BestBid.String())
	assert.Equal(t, "7039.31", snap.Analysis.Summary.BestAsk.String())

	require.Len(t, bars.recs, 2)
	rec := bars.recs[0]
	assert.Equal(t, "ETH-AUD_1m", rec.MarketID)
	assert.Equal(t, mustTime(t, "2026-05-10T10:30:00Z"), rec.Time)
	require.Len(t, rec.Data, 9)
	assert.Equal(t, "7031.76", rec.Data[0].String())
	assert.Equal(t, "15.1", rec.Data[4].String())

	assert.Len(t, archiver.books, 2)
	assert.Len(t, alerts.snaps, 2)
}

func TestRunContinuesPastFailingMarket(t *testing.T) {
	at := mustTime(t, "2026-05-10T10:30:45Z")
	markets := &fakeMarketSource{markets: []domain.Market{
		onlineMarket("XRP-AUD"),
		onlineMarket("ETH-AUD"),
	}}
	books := &fakeBookFetcher{
		books: map[string]domain.Orderbook{"ETH-AUD": testBook(t, "ETH-AUD", at)},
		errs:  map[string]error{"XRP-AUD": errors.New("exchange timeout")},
	}
	spreads := &fakeSpreadRecorder{}
	bars := &fakeBarUpserter{}

	s := newTestScraper(markets, books, spreads, bars, nil, nil)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, spreads.snaps, 1)
	assert.Equal(t, "ETH-AUD", spreads.snaps[0].MarketID)
	assert.Len(t, bars.recs, 1)
}

func TestRunRecordFailureSkipsBarAndAlerts(t *testing.T) {
	at := mustTime(t, "2026-05-10T10:30:45Z")
	markets := &fakeMarketSource{markets: []domain.Market{onlineMarket("ETH-AUD")}}
	books := &fakeBookFetcher{books: map[string]domain.Orderbook{
		"ETH-AUD": testBook(t, "ETH-AUD", at),
	}}
	spreads := &fakeSpreadRecorder{err: errors.New("insert failed")}
	bars := &fakeBarUpserter{}
	alerts := &fakeAlerts{}

	s := newTestScraper(markets, books, spreads, bars, nil, alerts)
	require.NoError(t, s.Run(context.Background()))

	assert.Empty(t, bars.recs)
	assert.Empty(t, alerts.snaps)
}

func TestRunArchiveFailureIsNonFatal(t *testing.T) {
	at := mustTime(t, "2026-05-10T10:30:45Z")
	markets := &fakeMarketSource{markets: []domain.Market{onlineMarket("ETH-AUD")}}
	books := &fakeBookFetcher{books: map[string]domain.Orderbook{
		"ETH-AUD": testBook(t, "ETH-AUD", at),
	}}
	spreads := &fakeSpreadRecorder{}
	bars := &fakeBarUpserter{}
	archiver := &fakeSnapshotArchiver{err: errors.New("bucket unreachable")}
	alerts := &fakeAlerts{}

	s := newTestScraper(markets, books, spreads, bars, archiver, alerts)
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, spreads.snaps, 1)
	require.Len(t, bars.recs, 1)
	assert.Len(t, alerts.snaps, 1)
}

func TestRunFailsWhenMarketListingFails(t *testing.T) {
	markets := &fakeMarketSource{err: errors.New("redis down")}
	s := newTestScraper(markets, &fakeBookFetcher{}, &fakeSpreadRecorder{}, &fakeBarUpserter{}, nil, nil)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing active markets")
}
