package depth

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quollview/spreadscraper/internal/domain"
)

// Rounding targets: price-like and notional-echo fields get two fractional
// digits, percentage fields four.
const (
	pricePlaces int32 = 2
	pctPlaces   int32 = 4
)

var (
	two     = decimal.NewFromInt(2)
	hundred = decimal.NewFromInt(100)
)

// Analyzer derives spread and market-impact metrics by running the fill
// calculator against both sides of a book at several notional depths.
type Analyzer struct {
	calc *Calculator
}

// NewAnalyzer creates an Analyzer on top of the given fill calculator.
func NewAnalyzer(calc *Calculator) *Analyzer {
	return &Analyzer{calc: calc}
}

// Analyze computes per-level spread metrics plus a top-of-book summary for
// one snapshot. levels are the requested quote-currency depths; each entry
// in the result is keyed per domain.LevelKey, with the summary under
// domain.SummaryKey when serialized.
//
// A book with an empty side wraps domain.ErrInvalidOrderbook.
func (a *Analyzer) Analyze(book domain.Orderbook, levels []decimal.Decimal) (domain.SpreadAnalysis, error) {
	if len(book.Asks) == 0 || len(book.Bids) == 0 {
		return domain.SpreadAnalysis{}, fmt.Errorf("%w: %d asks, %d bids", domain.ErrInvalidOrderbook, len(book.Asks), len(book.Bids))
	}

	bestAsk := book.BestAsk()
	bestBid := book.BestBid()

	out := domain.SpreadAnalysis{
		Levels: make(map[string]domain.SpreadMetrics, len(levels)),
	}

	for _, level := range levels {
		// Buying consumes asks, selling consumes bids.
		buy, err := a.calc.Fill(book.Asks, level)
		if err != nil {
			return domain.SpreadAnalysis{}, fmt.Errorf("buy fill at %s: %w", level, err)
		}
		sell, err := a.calc.Fill(book.Bids, level)
		if err != nil {
			return domain.SpreadAnalysis{}, fmt.Errorf("sell fill at %s: %w", level, err)
		}
		out.Levels[domain.LevelKey(level)] = levelMetrics(buy, sell, bestAsk, bestBid, level)
	}

	out.Summary = summarize(book.MarketID, bestBid, bestAsk)
	return out, nil
}

// levelMetrics derives the metric set for one depth. Every division is
// guarded: a zero denominator yields a zero metric, not a failure.
func levelMetrics(buy, sell domain.WeightedFill, bestAsk, bestBid, level decimal.Decimal) domain.SpreadMetrics {
	buyPrice := buy.WeightedPrice
	sellPrice := sell.WeightedPrice

	absSpread := decimal.Zero
	if buyPrice.IsPositive() && sellPrice.IsPositive() {
		absSpread = buyPrice.Sub(sellPrice)
	}

	mid := buyPrice.Add(sellPrice).Div(two)
	relSpread := decimal.Zero
	if mid.IsPositive() {
		relSpread = absSpread.Div(mid).Mul(hundred)
	}

	impactBuy := decimal.Zero
	if bestAsk.IsPositive() {
		impactBuy = buyPrice.Sub(bestAsk).Div(bestAsk).Mul(hundred)
	}
	impactSell := decimal.Zero
	if bestBid.IsPositive() {
		impactSell = bestBid.Sub(sellPrice).Div(bestBid).Mul(hundred)
	}

	return domain.SpreadMetrics{
		LevelQuote:          level.Round(pricePlaces),
		BuyPrice:            buyPrice.Round(pricePlaces),
		SellPrice:           sellPrice.Round(pricePlaces),
		BuyFilledQuote:      buy.AmountFilled.Round(pricePlaces),
		SellFilledQuote:     sell.AmountFilled.Round(pricePlaces),
		AbsoluteSpread:      absSpread.Round(pricePlaces),
		RelativeSpreadPct:   relSpread.Round(pctPlaces),
		MarketImpactBuyPct:  impactBuy.Round(pctPlaces),
		MarketImpactSellPct: impactSell.Round(pctPlaces),
	}
}

// summarize builds the top-of-book summary from the unrounded best levels.
func summarize(marketID string, bestBid, bestAsk decimal.Decimal) domain.MarketSummary {
	bestSpread := bestAsk.Sub(bestBid)

	mid := bestAsk.Add(bestBid).Div(two)
	pct := decimal.Zero
	if mid.IsPositive() {
		pct = bestSpread.Div(mid).Mul(hundred)
	}

	if marketID == "" {
		marketID = domain.UnknownMarketID
	}

	return domain.MarketSummary{
		BestBid:       bestBid.Round(pricePlaces),
		BestAsk:       bestAsk.Round(pricePlaces),
		BestSpread:    bestSpread.Round(pricePlaces),
		BestSpreadPct: pct.Round(pctPlaces),
		MarketID:      marketID,
	}
}
