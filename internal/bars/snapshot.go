package bars

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quollview/spreadscraper/internal/domain"
)

// SnapshotBar builds the fine-granularity bar recorded for one scraped
// snapshot. With a single observation per sampling interval the interval's
// distributions collapse to a point: all four OHLC fields carry the mid
// price at barLevel and all five spread fields carry its absolute spread.
func SnapshotBar(analysis domain.SpreadAnalysis, barLevel decimal.Decimal) (domain.Bar, error) {
	metrics, ok := analysis.Metrics(barLevel)
	if !ok {
		return domain.Bar{}, fmt.Errorf("analysis has no %s entry", domain.LevelKey(barLevel))
	}

	mid := metrics.BuyPrice.Add(metrics.SellPrice).Div(two).Round(roundPlaces)
	spread := metrics.AbsoluteSpread

	return domain.Bar{
		Open:         mid,
		High:         mid,
		Low:          mid,
		Close:        mid,
		SpreadMin:    spread,
		SpreadQ1:     spread,
		SpreadMedian: spread,
		SpreadQ3:     spread,
		SpreadMax:    spread,
	}, nil
}
