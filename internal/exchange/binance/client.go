// Package binance implements the small slice of the Binance public REST API
// used for reference pricing: average price and exchange symbol metadata.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quollview/spreadscraper/internal/domain"
)

// Client is the REST client for the Binance public API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Binance REST client.
//
// baseURL is the API root, e.g. "https://api.binance.com".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetTimeout overrides the default HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// AvgPrice returns the current average price for a symbol (a rolling window
// the exchange keeps, typically five minutes).
func (c *Client) AvgPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doGet(ctx, "/api/v3/avgPrice?"+params.Encode())
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: avg price %s: %w", symbol, err)
	}

	var resp struct {
		Mins  int    `json:"mins"`
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("binance: decode avg price: %w", err)
	}

	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: avg price %s: bad price %q", symbol, resp.Price)
	}
	return price, nil
}

// ExchangeInfo returns the exchange trading rules and symbol list.
func (c *Client) ExchangeInfo(ctx context.Context) (ExchangeInfo, error) {
	body, err := c.doGet(ctx, "/api/v3/exchangeInfo")
	if err != nil {
		return ExchangeInfo{}, fmt.Errorf("binance: exchange info: %w", err)
	}

	var resp ExchangeInfo
	if err := json.Unmarshal(body, &resp); err != nil {
		return ExchangeInfo{}, fmt.Errorf("binance: decode exchange info: %w", err)
	}
	return resp, nil
}

// ExchangeInfo is the trading rule summary of GET /api/v3/exchangeInfo.
type ExchangeInfo struct {
	Timezone   string   `json:"timezone"`
	ServerTime int64    `json:"serverTime"`
	Symbols    []Symbol `json:"symbols"`
}

// Symbol is one tradable symbol entry.
type Symbol struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// HasSymbol reports whether the exchange lists the given symbol.
func (i ExchangeInfo) HasSymbol(symbol string) bool {
	for _, s := range i.Symbols {
		if s.Symbol == symbol {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors. Binance
// signals both throttling (429) and bans (418) for rate abuse.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr struct {
		Code int64  `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot:
		return fmt.Errorf("%w: %s (%d)", domain.ErrRateLimited, apiErr.Msg, apiErr.Code)
	case apiErr.Code == -1121: // invalid symbol
		return fmt.Errorf("%w: %s", domain.ErrNotFound, apiErr.Msg)
	default:
		return fmt.Errorf("HTTP %d: %s (%d)", statusCode, apiErr.Msg, apiErr.Code)
	}
}
