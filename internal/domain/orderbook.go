package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+quantity entry in an orderbook. Prices and
// quantities are exact decimals end to end; binary floats never enter the
// calculation path.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Valid reports whether the level can be consumed. Levels failing this are
// tolerated in input and skipped, never rejected.
func (l PriceLevel) Valid() bool {
	return l.Price.IsPositive() && l.Quantity.IsPositive()
}

// Notional returns price*quantity, the maximum quote amount obtainable at
// this level.
func (l PriceLevel) Notional() decimal.Decimal {
	return l.Price.Mul(l.Quantity)
}

// ParseLevel converts one raw [price, quantity] string pair into a
// PriceLevel. A pair of the wrong shape or a field that is not an exact
// decimal wraps ErrLevelParse; malformed book data is a hard failure for the
// whole calculation, not a skip case.
func ParseLevel(raw []string) (PriceLevel, error) {
	if len(raw) < 2 {
		return PriceLevel{}, fmt.Errorf("%w: want [price, quantity], got %d fields", ErrLevelParse, len(raw))
	}
	price, err := decimal.NewFromString(raw[0])
	if err != nil {
		return PriceLevel{}, fmt.Errorf("%w: price %q", ErrLevelParse, raw[0])
	}
	qty, err := decimal.NewFromString(raw[1])
	if err != nil {
		return PriceLevel{}, fmt.Errorf("%w: quantity %q", ErrLevelParse, raw[1])
	}
	return PriceLevel{Price: price, Quantity: qty}, nil
}

// ParseLevels converts a raw side of the book, preserving order. The first
// malformed pair aborts the parse.
func ParseLevels(raw [][]string) ([]PriceLevel, error) {
	levels := make([]PriceLevel, 0, len(raw))
	for i, pair := range raw {
		level, err := ParseLevel(pair)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// Orderbook is one full snapshot of both sides of a market. Asks are
// ascending and bids descending by price, exactly as the exchange delivers
// them; nothing downstream re-sorts.
type Orderbook struct {
	MarketID   string
	SnapshotID int64
	Asks       []PriceLevel
	Bids       []PriceLevel
	Time       time.Time
}

// BestAsk returns the price of the first ask level, or zero when the side
// is empty.
func (b Orderbook) BestAsk() decimal.Decimal {
	if len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.Asks[0].Price
}

// BestBid returns the price of the first bid level, or zero when the side
// is empty.
func (b Orderbook) BestBid() decimal.Decimal {
	if len(b.Bids) == 0 {
		return decimal.Zero
	}
	return b.Bids[0].Price
}
