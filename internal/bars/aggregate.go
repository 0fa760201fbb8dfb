// Package bars builds fine-granularity bars from spread analyses and
// reduces chronologically ordered bar runs into coarser buckets.
package bars

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/quollview/spreadscraper/internal/domain"
)

// roundPlaces is the fractional-digit precision aggregated fields are
// rounded to before storage, matching the analyzer's price convention.
const roundPlaces int32 = 2

var (
	two  = decimal.NewFromInt(2)
	four = decimal.NewFromInt(4)
)

// Aggregate reduces a run of bar records into a single coarser bar.
//
// Records must be in chronological order: open is taken from the first
// record and close from the last, and Aggregate never sorts them. Records
// with short payloads are skipped. Returns nil when the input is empty or
// nothing usable remains, which means "no data for this window" rather
// than a failure.
//
// The five spread-summary values of every usable record are pooled into
// one multiset and a fresh five-number summary is computed over the pool.
// Reducing quartiles of quartiles this way is a known lossy approximation;
// exact rollups would need the raw per-sample spreads, which are not
// retained.
func Aggregate(recs []domain.BarRecord) *domain.Bar {
	var (
		bars    []domain.Bar
		spreads []decimal.Decimal
	)
	for _, rec := range recs {
		if !rec.Complete() {
			continue
		}
		bar, err := rec.Bar()
		if err != nil {
			continue
		}
		bars = append(bars, bar)
		spreads = append(spreads, bar.SpreadMin, bar.SpreadQ1, bar.SpreadMedian, bar.SpreadQ3, bar.SpreadMax)
	}
	if len(bars) == 0 {
		return nil
	}

	high := bars[0].High
	low := bars[0].Low
	for _, b := range bars[1:] {
		if b.High.GreaterThan(high) {
			high = b.High
		}
		if b.Low.LessThan(low) {
			low = b.Low
		}
	}

	sort.Slice(spreads, func(i, j int) bool { return spreads[i].LessThan(spreads[j]) })

	out := domain.Bar{
		Open:         bars[0].Open.Round(roundPlaces),
		High:         high.Round(roundPlaces),
		Low:          low.Round(roundPlaces),
		Close:        bars[len(bars)-1].Close.Round(roundPlaces),
		SpreadMin:    spreads[0].Round(roundPlaces),
		SpreadQ1:     quartile(spreads, 1).Round(roundPlaces),
		SpreadMedian: median(spreads).Round(roundPlaces),
		SpreadQ3:     quartile(spreads, 3).Round(roundPlaces),
		SpreadMax:    spreads[len(spreads)-1].Round(roundPlaces),
	}
	return &out
}

// quartile returns the k-th quartile (k = 1 or 3) of sorted data using
// exclusive interpolation: the cut point is m = k(n+1)/4, clamped to the
// ends, with linear interpolation between the neighbouring observations.
// A single observation is its own quartile.
func quartile(sorted []decimal.Decimal, k int64) decimal.Decimal {
	n := int64(len(sorted))
	if n == 1 {
		return sorted[0]
	}
	m := decimal.NewFromInt(k * (n + 1)).Div(four)
	j := m.IntPart()
	if j < 1 {
		return sorted[0]
	}
	if j >= n {
		return sorted[n-1]
	}
	frac := m.Sub(decimal.NewFromInt(j))
	lower := sorted[j-1]
	upper := sorted[j]
	return lower.Add(frac.Mul(upper.Sub(lower)))
}

// median returns the middle observation of sorted data, or the mean of the
// two middle observations for an even count.
func median(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(two)
}
