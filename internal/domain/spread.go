package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownMarketID is the market id recorded when a snapshot arrives without
// one.
const UnknownMarketID = "Unknown"

// SummaryKey is the reserved key in a spread analysis holding the
// MarketSummary; all other keys are per-level metric entries.
const SummaryKey = "market_summary"

// WeightedFill is the outcome of consuming orderbook liquidity until a
// target notional is satisfied or depth runs out. WeightedPrice equals
// AmountFilled/VolumeTraded whenever VolumeTraded is positive, else zero.
// AmountFilled short of the requested target signals insufficient depth,
// not an error.
type WeightedFill struct {
	WeightedPrice decimal.Decimal `json:"weighted_price"`
	AmountFilled  decimal.Decimal `json:"amount_filled"`
	VolumeTraded  decimal.Decimal `json:"volume_traded"`
}

// SpreadMetrics are the derived spread and market-impact figures for one
// requested notional depth.
type SpreadMetrics struct {
	LevelQuote          decimal.Decimal `json:"level_quote"`
	BuyPrice            decimal.Decimal `json:"buy_price"`
	SellPrice           decimal.Decimal `json:"sell_price"`
	BuyFilledQuote      decimal.Decimal `json:"buy_filled_quote"`
	SellFilledQuote     decimal.Decimal `json:"sell_filled_quote"`
	AbsoluteSpread      decimal.Decimal `json:"absolute_spread"`
	RelativeSpreadPct   decimal.Decimal `json:"relative_spread_pct"`
	MarketImpactBuyPct  decimal.Decimal `json:"market_impact_buy_pct"`
	MarketImpactSellPct decimal.Decimal `json:"market_impact_sell_pct"`
}

// MarketSummary is the top-of-book view, independent of the requested
// depths.
type MarketSummary struct {
	BestBid       decimal.Decimal `json:"best_bid"`
	BestAsk       decimal.Decimal `json:"best_ask"`
	BestSpread    decimal.Decimal `json:"best_spread"`
	BestSpreadPct decimal.Decimal `json:"best_spread_pct"`
	MarketID      string          `json:"market_id"`
}

// SpreadAnalysis is the full result of analyzing one orderbook snapshot:
// one SpreadMetrics entry per requested level plus the market summary.
type SpreadAnalysis struct {
	Levels  map[string]SpreadMetrics
	Summary MarketSummary
}

// LevelKey formats a requested notional as its analysis map key, with no
// fractional digits: 10000 -> "10000_QUOTE".
func LevelKey(level decimal.Decimal) string {
	return level.StringFixed(0) + "_QUOTE"
}

// Metrics returns the entry for the given notional level.
func (a SpreadAnalysis) Metrics(level decimal.Decimal) (SpreadMetrics, bool) {
	m, ok := a.Levels[LevelKey(level)]
	return m, ok
}

// MarshalJSON flattens the analysis into a single object keyed by
// "<level>_QUOTE" entries plus "market_summary", the shape stored, cached,
// and served.
func (a SpreadAnalysis) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(a.Levels)+1)
	for key, metrics := range a.Levels {
		flat[key] = metrics
	}
	flat[SummaryKey] = a.Summary
	return json.Marshal(flat)
}

// UnmarshalJSON rebuilds an analysis from its flattened object form.
func (a *SpreadAnalysis) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	a.Levels = make(map[string]SpreadMetrics, len(flat))
	for key, raw := range flat {
		if key == SummaryKey {
			if err := json.Unmarshal(raw, &a.Summary); err != nil {
				return err
			}
			continue
		}
		var metrics SpreadMetrics
		if err := json.Unmarshal(raw, &metrics); err != nil {
			return err
		}
		a.Levels[key] = metrics
	}
	return nil
}

// SpreadSnapshot is one persisted spread analysis for a market at a point
// in time.
type SpreadSnapshot struct {
	ID       string         `json:"id"`
	MarketID string         `json:"market_id"`
	Time     time.Time      `json:"timestamp"`
	Analysis SpreadAnalysis `json:"analysis"`
}
