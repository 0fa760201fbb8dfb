package btcmarkets

import (
	"encoding/json"

	"github.com/quollview/spreadscraper/internal/domain"
)

// --------------------------------------------------------------------------
// BTC Markets API DTOs
// --------------------------------------------------------------------------

// marketJSON is a market entry as returned by GET /v3/markets. The decimals
// fields arrive as quoted numbers, so they are typed json.Number to accept
// either form.
type marketJSON struct {
	MarketID       string      `json:"marketId"`
	BaseAssetName  string      `json:"baseAssetName"`
	QuoteAssetName string      `json:"quoteAssetName"`
	MinOrderAmount string      `json:"minOrderAmount"`
	MaxOrderAmount string      `json:"maxOrderAmount"`
	AmountDecimals json.Number `json:"amountDecimals"`
	PriceDecimals  json.Number `json:"priceDecimals"`
	Status         string      `json:"status"`
}

// toDomain converts the wire market into the domain representation.
func (m marketJSON) toDomain() domain.Market {
	amountDec, _ := m.AmountDecimals.Int64()
	priceDec, _ := m.PriceDecimals.Int64()
	return domain.Market{
		MarketID:       m.MarketID,
		BaseAssetName:  m.BaseAssetName,
		QuoteAssetName: m.QuoteAssetName,
		MinOrderAmount: m.MinOrderAmount,
		MaxOrderAmount: m.MaxOrderAmount,
		AmountDecimals: int(amountDec),
		PriceDecimals:  int(priceDec),
		Status:         domain.MarketStatus(m.Status),
	}
}

// orderbookJSON is the response of GET /v3/markets/{id}/orderbook. Price
// levels are [price, quantity] string pairs.
type orderbookJSON struct {
	MarketID   string     `json:"marketId"`
	SnapshotID int64      `json:"snapshotId"`
	Asks       [][]string `json:"asks"`
	Bids       [][]string `json:"bids"`
}

// errorJSON is the error envelope the API returns on non-2xx statuses.
type errorJSON struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
