package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quollview/spreadscraper/internal/domain"
	"github.com/quollview/spreadscraper/internal/service"
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

// serve routes the request through a real ServeMux so Go 1.22 path values
// resolve the way they do in production.
func serve(pattern string, h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}

type fakeCatalog struct {
	ids []string
}

func (f *fakeCatalog) SeriesIDs() []string { return f.ids }

type fakeResolver struct {
	allowed map[string]domain.Granularity // id -> resolved granularity
	bases   map[string]string             // id -> resolved base
}

func (f *fakeResolver) ResolveSeriesID(id string) (string, domain.Granularity, error) {
	g, ok := f.allowed[id]
	if !ok {
		return "", "", fmt.Errorf("resolver: %w: %q", domain.ErrInvalidMarket, id)
	}
	return f.bases[id], g, nil
}

type fakeBarReader struct {
	recs      []domain.BarRecord
	err       error
	lastID    string
	lastLimit int
}

func (f *fakeBarReader) LatestBars(ctx context.Context, seriesID string, limit int) ([]domain.BarRecord, error) {
	f.lastID = seriesID
	f.lastLimit = limit
	return f.recs, f.err
}

type fakeValidator struct {
	valid map[string]bool
}

func (f *fakeValidator) ValidateMarketID(id string) error {
	if !f.valid[id] {
		return fmt.Errorf("validator: %w: %q", domain.ErrInvalidMarket, id)
	}
	return nil
}

type fakeSpreadReader struct {
	views map[string]service.SpreadView
	err   error
}

func (f *fakeSpreadReader) LatestView(ctx context.Context, marketID string) (service.SpreadView, error) {
	if f.err != nil {
		return service.SpreadView{}, f.err
	}
	view, ok := f.views[marketID]
	if !ok {
		return service.SpreadView{}, domain.ErrNotFound
	}
	return view, nil
}

func TestListMarkets(t *testing.T) {
	h := NewMarketHandler(&fakeCatalog{ids: []string{"BTC-AUD_1m", "ETH-AUD_1m"}}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets", nil)
	rec := serve("GET /api/v1/markets", h.ListMarkets, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var resp struct {
		Markets []string `json:"markets"`
		Count   int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"BTC-AUD_1m", "ETH-AUD_1m"}, resp.Markets)
	assert.Equal(t, 2, resp.Count)
}

func newBarsFixture() (*fakeResolver, *fakeBarReader, *BarsHandler) {
	resolver := &fakeResolver{
		allowed: map[string]domain.Granularity{
			"ETH-AUD_1h": domain.Gran1h,
			"ETH-AUD":    domain.Gran1m,
		},
		bases: map[string]string{
			"ETH-AUD_1h": "ETH-AUD",
			"ETH-AUD":    "ETH-AUD",
		},
	}
	reader := &fakeBarReader{}
	return resolver, reader, NewBarsHandler(resolver, reader, testLogger())
}

func TestGetBars(t *testing.T) {
	_, reader, h := newBarsFixture()
	ts := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)
	flat := dec(t, "7031.76")
	data := make([]decimal.Decimal, 9)
	for i := range data {
		data[i] = flat
	}
	reader.recs = []domain.BarRecord{{MarketID: "ETH-AUD_1h", Time: ts, Data: data}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets/ETH-AUD_1h/bars?limit=10", nil)
	rec := serve("GET /api/v1/markets/{id}/bars", h.GetBars, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ETH-AUD_1h", reader.lastID)
	assert.Equal(t, 10, reader.lastLimit)

	var resp struct {
		Items []struct {
			MarketID string   `json:"marketid"`
			Data     []string `json:"data"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "ETH-AUD_1h", resp.Items[0].MarketID)
	require.Len(t, resp.Items[0].Data, 9)
	assert.Equal(t, "7031.76", resp.Items[0].Data[0])
}

func TestGetBarsDefaultsGranularityAndClampsLimit(t *testing.T) {
	_, reader, h := newBarsFixture()
	reader.recs = []domain.BarRecord{{MarketID: "ETH-AUD_1m"}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets/ETH-AUD/bars?limit=5000", nil)
	rec := serve("GET /api/v1/markets/{id}/bars", h.GetBars, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ETH-AUD_1m", reader.lastID)
	assert.Equal(t, 100, reader.lastLimit)
}

func TestGetBarsRejectsUnknownMarket(t *testing.T) {
	_, _, h := newBarsFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets/DOGE-AUD_1m/bars", nil)
	rec := serve("GET /api/v1/markets/{id}/bars", h.GetBars, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid market id")
}

func TestGetBarsEmptySeriesIs404(t *testing.T) {
	_, _, h := newBarsFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets/ETH-AUD_1h/bars", nil)
	rec := serve("GET /api/v1/markets/{id}/bars", h.GetBars, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBarsStoreFailureIs500(t *testing.T) {
	_, reader, h := newBarsFixture()
	reader.err = errors.New("pool exhausted")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets/ETH-AUD_1h/bars", nil)
	rec := serve("GET /api/v1/markets/{id}/bars", h.GetBars, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to list bars")
}

func testView(t *testing.T, marketID string, ref string) service.SpreadView {
	t.Helper()
	view := service.SpreadView{
		SpreadSnapshot: domain.SpreadSnapshot{
			ID:       "b5e96468-2b39-4a6c-9f6e-7f8d3f0a1c22",
			MarketID: marketID,
			Time:     time.Date(2026, 5, 10, 10, 30, 0, 0, time.UTC),
			Analysis: domain.SpreadAnalysis{
				Levels: map[string]domain.SpreadMetrics{
					"10000_QUOTE": {
						LevelQuote: dec(t, "10000"),
						BuyPrice:   dec(t, "7039.31"),
						SellPrice:  dec(t, "7024.21"),
					},
				},
				Summary: domain.MarketSummary{
					BestBid:  dec(t, "7024.21"),
					BestAsk:  dec(t, "7039.31"),
					MarketID: marketID,
				},
			},
		},
	}
	if ref != "" {
		d := dec(t, ref)
		view.ReferencePrice = &d
	}
	return view
}

func newSpreadFixture(views map[string]service.SpreadView) *SpreadHandler {
	validator := &fakeValidator{valid: map[string]bool{"ETH-AUD": true, "BTC-AUD": true}}
	return NewSpreadHandler(validator, &fakeSpreadReader{views: views}, testLogger())
}

func TestGetSpread(t *testing.T) {
	h := newSpreadFixture(map[string]service.SpreadView{
		"ETH-AUD": testView(t, "ETH-AUD", "2810.55"),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets/ETH-AUD/spread", nil)
	rec := serve("GET /api/v1/markets/{id}/spread", h.GetSpread, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "analysis")
	assert.JSONEq(t, `"ETH-AUD"`, string(resp["market_id"]))
	assert.JSONEq(t, `"2810.55"`, string(resp["reference_price"]))

	var analysis map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(resp["analysis"], &analysis))
	assert.Contains(t, analysis, "10000_QUOTE")
	assert.Contains(t, analysis, "market_summary")
}

func TestGetSpreadOmitsMissingReferencePrice(t *testing.T) {
	h := newSpreadFixture(map[string]service.SpreadView{
		"ETH-AUD": testView(t, "ETH-AUD", ""),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets/ETH-AUD/spread", nil)
	rec := serve("GET /api/v1/markets/{id}/spread", h.GetSpread, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "reference_price")
}

func TestGetSpreadRejectsUnknownMarket(t *testing.T) {
	h := newSpreadFixture(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets/DOGE-AUD/spread", nil)
	rec := serve("GET /api/v1/markets/{id}/spread", h.GetSpread, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSpreadNotRecordedIs404(t *testing.T) {
	h := newSpreadFixture(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/markets/BTC-AUD/spread", nil)
	rec := serve("GET /api/v1/markets/{id}/spread", h.GetSpread, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no spread recorded")
}

func TestHealthCheckAllComponentsUp(t *testing.T) {
	h := NewHealthHandler(testLogger())
	h.AddCheck("postgres", func(ctx context.Context) error { return nil })
	h.AddCheck("redis", func(ctx context.Context) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
	rec := serve("GET /api/v1/healthz", h.HealthCheck, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Components["postgres"])
	assert.Equal(t, "ok", resp.Components["redis"])
}

func TestHealthCheckDegraded(t *testing.T) {
	h := NewHealthHandler(testLogger())
	h.AddCheck("postgres", func(ctx context.Context) error { return nil })
	h.AddCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
	rec := serve("GET /api/v1/healthz", h.HealthCheck, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Components["postgres"])
	assert.Contains(t, resp.Components["redis"], "connection refused")
}
