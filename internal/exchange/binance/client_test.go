package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quollview/spreadscraper/internal/domain"
)

func TestAvgPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/avgPrice", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"mins":5,"price":"4523.10000000"}`))
	}))
	defer srv.Close()

	price, err := NewClient(srv.URL).AvgPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "4523.1", price.String())
}

func TestAvgPriceInvalidSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).AvgPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAvgPriceRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests."}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).AvgPrice(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestExchangeInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"timezone": "UTC",
			"serverTime": 1700000000000,
			"symbols": [
				{"symbol": "BTCUSDT", "status": "TRADING", "baseAsset": "BTC", "quoteAsset": "USDT"},
				{"symbol": "ETHUSDT", "status": "TRADING", "baseAsset": "ETH", "quoteAsset": "USDT"}
			]
		}`))
	}))
	defer srv.Close()

	info, err := NewClient(srv.URL).ExchangeInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "UTC", info.Timezone)
	require.Len(t, info.Symbols, 2)
	assert.True(t, info.HasSymbol("BTCUSDT"))
	assert.False(t, info.HasSymbol("DOGEUSDT"))
}
