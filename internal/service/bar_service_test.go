package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quollview/spreadscraper/internal/domain"
)

func flatBar(seriesID, ts, value string) domain.BarRecord {
	when, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	data := make([]decimal.Decimal, 9)
	for i := range data {
		data[i] = decimal.RequireFromString(value)
	}
	return domain.BarRecord{MarketID: seriesID, Time: when, Data: data}
}

func TestLatestBarsClampsLimit(t *testing.T) {
	store := &fakeBarStore{recs: map[string][]domain.BarRecord{
		"BTC-AUD_1m": {flatBar("BTC-AUD_1m", "2026-05-01T10:00:00Z", "10")},
	}}
	svc := NewBarService(store, testLogger())

	_, err := svc.LatestBars(context.Background(), "BTC-AUD_1m", 0)
	require.NoError(t, err)
	assert.Equal(t, 100, store.lastLimit)

	_, err = svc.LatestBars(context.Background(), "BTC-AUD_1m", 500)
	require.NoError(t, err)
	assert.Equal(t, 100, store.lastLimit)

	_, err = svc.LatestBars(context.Background(), "BTC-AUD_1m", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, store.lastLimit)
}

func TestRollupHourly(t *testing.T) {
	store := &fakeBarStore{recs: map[string][]domain.BarRecord{
		"BTC-AUD_1m": {
			flatBar("BTC-AUD_1m", "2026-05-01T10:05:00Z", "10"),
			flatBar("BTC-AUD_1m", "2026-05-01T10:45:00Z", "10"),
			// outside the window, must not be pooled
			flatBar("BTC-AUD_1m", "2026-05-01T11:00:00Z", "99"),
		},
		// existing coarse series is never used as a rollup source for 1h
		"BTC-AUD_1h": {flatBar("BTC-AUD_1h", "2026-05-01T09:00:00Z", "50")},
	}}
	svc := NewBarService(store, testLogger())

	at := time.Date(2026, 5, 1, 11, 1, 30, 0, time.UTC)
	rolled, err := svc.Rollup(context.Background(), domain.Gran1h, at)
	require.NoError(t, err)
	assert.Equal(t, 1, rolled)

	require.Len(t, store.upserts, 1)
	rec := store.upserts[0]
	assert.Equal(t, "BTC-AUD_1h", rec.MarketID)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), rec.Time)

	require.Len(t, rec.Data, 9)
	for i, v := range rec.Data {
		assert.Equal(t, "10", v.String(), "field %d", i)
	}
}

func TestRollupDailyWindow(t *testing.T) {
	store := &fakeBarStore{recs: map[string][]domain.BarRecord{
		"ETH-AUD_1h": {
			flatBar("ETH-AUD_1h", "2026-05-01T00:00:00Z", "7"),
			flatBar("ETH-AUD_1h", "2026-05-01T23:00:00Z", "7"),
			flatBar("ETH-AUD_1h", "2026-05-02T00:00:00Z", "99"),
		},
	}}
	svc := NewBarService(store, testLogger())

	at := time.Date(2026, 5, 2, 0, 2, 0, 0, time.UTC)
	rolled, err := svc.Rollup(context.Background(), domain.Gran1d, at)
	require.NoError(t, err)
	assert.Equal(t, 1, rolled)

	require.Len(t, store.upserts, 1)
	rec := store.upserts[0]
	assert.Equal(t, "ETH-AUD_1d", rec.MarketID)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), rec.Time)
	assert.Equal(t, "7", rec.Data[0].String())
}

func TestRollupEmptyWindowWritesNothing(t *testing.T) {
	store := &fakeBarStore{recs: map[string][]domain.BarRecord{
		"BTC-AUD_1m": {flatBar("BTC-AUD_1m", "2026-05-01T08:00:00Z", "10")},
	}}
	svc := NewBarService(store, testLogger())

	rolled, err := svc.Rollup(context.Background(), domain.Gran1h, time.Date(2026, 5, 1, 11, 0, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, rolled)
	assert.Empty(t, store.upserts)
}

func TestRollupRejectsFinestGranularity(t *testing.T) {
	svc := NewBarService(&fakeBarStore{}, testLogger())

	_, err := svc.Rollup(context.Background(), domain.Gran1m, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rollup source")
}
