// Package btcmarkets implements the REST client for the BTC Markets v3 API.
package btcmarkets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/quollview/spreadscraper/internal/crypto"
	"github.com/quollview/spreadscraper/internal/domain"
)

// Client is the REST client for the BTC Markets exchange API.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a new BTC Markets REST client.
//
// baseURL is the API root, e.g. "https://api.btcmarkets.net". rps and burst
// bound the request rate against the exchange's published limits; every call
// waits on the limiter before going out.
func NewClient(baseURL string, rps float64, burst int) *Client {
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetAuth configures HMAC authentication headers for subsequent requests.
// Without it the client stays on public endpoints, which is all the scraper
// needs.
func (c *Client) SetAuth(auth *crypto.HMACAuth) {
	c.auth = auth
}

// SetTimeout overrides the default HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// ListMarkets returns every market the exchange advertises, including
// configuration such as price decimals and lifecycle status.
func (c *Client) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	body, err := c.doGet(ctx, "/v3/markets")
	if err != nil {
		return nil, fmt.Errorf("btcmarkets: list markets: %w", err)
	}

	var resp []marketJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("btcmarkets: decode markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(resp))
	for _, m := range resp {
		markets = append(markets, m.toDomain())
	}
	return markets, nil
}

// GetOrderbook returns the current orderbook snapshot for the given market.
// Asks stay ascending and bids descending exactly as delivered; snapshotId is
// carried through for downstream cache keys.
func (c *Client) GetOrderbook(ctx context.Context, marketID string) (domain.Orderbook, error) {
	path := fmt.Sprintf("/v3/markets/%s/orderbook", url.PathEscape(marketID))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("btcmarkets: get orderbook %s: %w", marketID, err)
	}

	var resp orderbookJSON
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Orderbook{}, fmt.Errorf("btcmarkets: decode orderbook: %w", err)
	}

	asks, err := domain.ParseLevels(resp.Asks)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("btcmarkets: orderbook %s asks: %w", marketID, err)
	}
	bids, err := domain.ParseLevels(resp.Bids)
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("btcmarkets: orderbook %s bids: %w", marketID, err)
	}

	return domain.Orderbook{
		MarketID:   resp.MarketID,
		SnapshotID: resp.SnapshotID,
		Asks:       asks,
		Bids:       bids,
		Time:       time.Now().UTC(),
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet waits on the rate limiter, sends a GET against the API, and reads the
// response. Authentication headers are attached when configured.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Charset", "UTF-8")
	req.Header.Set("Content-Type", "application/json")

	if c.auth != nil {
		for k, v := range c.auth.Headers(path, "") {
			req.Header.Set(k, v)
		}
	}

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

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorJSON
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (%s)", domain.ErrRateLimited, apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s (%s)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
