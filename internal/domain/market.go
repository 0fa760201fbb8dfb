package domain

// MarketStatus is the exchange lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOnline    MarketStatus = "Online"
	MarketStatusOffline   MarketStatus = "Offline"
	MarketStatusPostOnly  MarketStatus = "Post Only"
	MarketStatusLimitOnly MarketStatus = "Limit Only"
	MarketStatusSuspended MarketStatus = "Suspended"
)

// Market is one tradable pair as advertised by the exchange.
type Market struct {
	MarketID       string
	BaseAssetName  string
	QuoteAssetName string
	MinOrderAmount string
	MaxOrderAmount string
	AmountDecimals int
	PriceDecimals  int
	Status         MarketStatus
}

// Active reports whether the market currently accepts orders.
func (m Market) Active() bool {
	return m.Status == MarketStatusOnline || m.Status == MarketStatusPostOnly || m.Status == MarketStatusLimitOnly
}
