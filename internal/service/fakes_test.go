package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quollview/spreadscraper/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMarketLister struct {
	markets []domain.Market
	err     error
	calls   int
}

func (f *fakeMarketLister) ListMarkets(context.Context) ([]domain.Market, error) {
	f.calls++
	return f.markets, f.err
}

type fakeMarketCache struct {
	markets     []domain.Market
	setCalls    int
	getErr      error
	invalidated bool
}

func (f *fakeMarketCache) SetMarkets(_ context.Context, markets []domain.Market) error {
	f.setCalls++
	f.markets = markets
	return nil
}

func (f *fakeMarketCache) GetMarkets(context.Context) ([]domain.Market, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.markets == nil {
		return nil, domain.ErrNotFound
	}
	return f.markets, nil
}

func (f *fakeMarketCache) Invalidate(context.Context) error {
	f.invalidated = true
	f.markets = nil
	return nil
}

type fakeSpreadStore struct {
	latest    map[string]domain.SpreadSnapshot
	inserted  []domain.SpreadSnapshot
	insertErr error
	latestErr error
}

func (f *fakeSpreadStore) Insert(_ context.Context, snap domain.SpreadSnapshot) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, snap)
	return nil
}

func (f *fakeSpreadStore) LatestByMarket(_ context.Context, marketID string) (domain.SpreadSnapshot, error) {
	if f.latestErr != nil {
		return domain.SpreadSnapshot{}, f.latestErr
	}
	snap, ok := f.latest[marketID]
	if !ok {
		return domain.SpreadSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (f *fakeSpreadStore) ListOlderThan(context.Context, time.Time, int) ([]domain.SpreadSnapshot, error) {
	return nil, nil
}

func (f *fakeSpreadStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeSpreadCache struct {
	snaps    map[string]domain.SpreadSnapshot
	setCalls int
	setErr   error
	getErr   error
}

func (f *fakeSpreadCache) SetAnalysis(_ context.Context, marketID string, snap domain.SpreadSnapshot) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	if f.snaps == nil {
		f.snaps = map[string]domain.SpreadSnapshot{}
	}
	f.snaps[marketID] = snap
	return nil
}

func (f *fakeSpreadCache) GetAnalysis(_ context.Context, marketID string) (domain.SpreadSnapshot, error) {
	if f.getErr != nil {
		return domain.SpreadSnapshot{}, f.getErr
	}
	snap, ok := f.snaps[marketID]
	if !ok {
		return domain.SpreadSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

type publishedSummary struct {
	marketID string
	payload  []byte
}

type fakeSummaryBus struct {
	published []publishedSummary
	err       error
}

func (f *fakeSummaryBus) Publish(_ context.Context, marketID string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedSummary{marketID: marketID, payload: payload})
	return nil
}

func (f *fakeSummaryBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("fake: not implemented")
}

type fakeRefPricer struct {
	prices map[string]decimal.Decimal
	err    error
	calls  int
}

func (f *fakeRefPricer) AvgPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return decimal.Decimal{}, f.err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Decimal{}, domain.ErrNotFound
	}
	return price, nil
}

type fakeReferenceCache struct {
	prices   map[string]decimal.Decimal
	setCalls int
	getErr   error
}

func (f *fakeReferenceCache) SetPrice(_ context.Context, symbol string, price decimal.Decimal) error {
	f.setCalls++
	if f.prices == nil {
		f.prices = map[string]decimal.Decimal{}
	}
	f.prices[symbol] = price
	return nil
}

func (f *fakeReferenceCache) GetPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	if f.getErr != nil {
		return decimal.Decimal{}, f.getErr
	}
	price, ok := f.prices[symbol]
	if !ok {
		return decimal.Decimal{}, domain.ErrNotFound
	}
	return price, nil
}

type fakeBarStore struct {
	recs       map[string][]domain.BarRecord
	upserts    []domain.BarRecord
	lastLimit  int
	listErr    error
	upsertErr  error
	seriesErrs error
}

func (f *fakeBarStore) Upsert(_ context.Context, rec domain.BarRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, rec)
	return nil
}

func (f *fakeBarStore) UpsertBatch(ctx context.Context, recs []domain.BarRecord) error {
	for _, rec := range recs {
		if err := f.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBarStore) ListRange(_ context.Context, marketID string, from, to time.Time) ([]domain.BarRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.BarRecord
	for _, r := range f.recs[marketID] {
		if !r.Time.Before(from) && r.Time.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBarStore) Latest(_ context.Context, marketID string, limit int) ([]domain.BarRecord, error) {
	f.lastLimit = limit
	recs := f.recs[marketID]
	out := make([]domain.BarRecord, len(recs))
	copy(out, recs)
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBarStore) DeleteBefore(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeBarStore) SeriesIDs(context.Context) ([]string, error) {
	if f.seriesErrs != nil {
		return nil, f.seriesErrs
	}
	var ids []string
	for id := range f.recs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
