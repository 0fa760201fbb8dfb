// Package depth implements the orderbook consumption math: weighted fills
// at a target notional, and spread/impact analysis at multiple depths. All
// functions here are pure; persistence and scheduling live with the callers.
package depth

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quollview/spreadscraper/internal/domain"
)

// DefaultPrecision is the fractional-digit precision fill results are
// rounded to unless configured otherwise.
const DefaultPrecision = 8

// Calculator simulates consuming orderbook liquidity level by level.
type Calculator struct {
	precision int32
}

// NewCalculator creates a Calculator rounding results to the given number
// of fractional digits. Negative precision falls back to DefaultPrecision.
func NewCalculator(precision int32) *Calculator {
	if precision < 0 {
		precision = DefaultPrecision
	}
	return &Calculator{precision: precision}
}

// Fill walks levels in the order given, spending up to target quote
// currency, and returns the weighted average price realized.
//
// Levels must already be in the economically correct walk order (asks
// ascending when buying, bids descending when selling); Fill never sorts.
// Levels with non-positive price or quantity are skipped without consuming
// anything. Running out of depth is not an error: the result then reflects
// only the notional actually filled.
func (c *Calculator) Fill(levels []domain.PriceLevel, target decimal.Decimal) (domain.WeightedFill, error) {
	if !target.IsPositive() {
		return domain.WeightedFill{}, fmt.Errorf("%w: got %s", domain.ErrInvalidTarget, target)
	}

	remaining := target
	totalBase := decimal.Zero
	totalQuote := decimal.Zero

	for _, level := range levels {
		if !remaining.IsPositive() {
			break
		}
		if !level.Valid() {
			continue
		}

		capacity := level.Notional()

		var baseTraded, quoteSpent decimal.Decimal
		if remaining.GreaterThanOrEqual(capacity) {
			baseTraded = level.Quantity
			quoteSpent = capacity
			remaining = remaining.Sub(quoteSpent)
		} else {
			baseTraded = remaining.Div(level.Price)
			quoteSpent = remaining
			remaining = decimal.Zero
		}

		totalBase = totalBase.Add(baseTraded)
		totalQuote = totalQuote.Add(quoteSpent)
	}

	weighted := decimal.Zero
	if totalBase.IsPositive() {
		weighted = totalQuote.Div(totalBase)
	}

	return domain.WeightedFill{
		WeightedPrice: weighted.Round(c.precision),
		AmountFilled:  totalQuote.Round(c.precision),
		VolumeTraded:  totalBase.Round(c.precision),
	}, nil
}
