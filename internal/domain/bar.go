package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Granularity is the sampling interval of a bar series. Coarser series are
// produced by reducing finer ones, never sampled directly.
type Granularity string

const (
	Gran1m Granularity = "1m"
	Gran1h Granularity = "1h"
	Gran1d Granularity = "1d"
)

// Granularities lists the supported series, coarsest first, matching the
// order the read API advertises.
var Granularities = []Granularity{Gran1d, Gran1h, Gran1m}

// Suffix returns the series suffix appended to a market id, e.g. "_1m".
func (g Granularity) Suffix() string {
	return "_" + string(g)
}

// Window returns the length of one bucket at this granularity.
func (g Granularity) Window() time.Duration {
	switch g {
	case Gran1m:
		return time.Minute
	case Gran1h:
		return time.Hour
	case Gran1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// SeriesID joins a market id and granularity into the storage key prefix,
// e.g. ("BTC-AUD", Gran1m) -> "BTC-AUD_1m".
func SeriesID(marketID string, g Granularity) string {
	return marketID + g.Suffix()
}

// ParseGranularity validates a granularity string.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case Gran1m, Gran1h, Gran1d:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// SplitSeriesID splits a series id into its market id and granularity:
// "BTC-AUD_1m" -> ("BTC-AUD", Gran1m, true). Ids without a recognised
// suffix return ok=false with the input unchanged.
func SplitSeriesID(id string) (marketID string, g Granularity, ok bool) {
	for _, g := range Granularities {
		suffix := g.Suffix()
		if len(id) > len(suffix) && id[len(id)-len(suffix):] == suffix {
			return id[:len(id)-len(suffix)], g, true
		}
	}
	return id, "", false
}

// barFields is the fixed payload width: OHLC plus the five-number spread
// summary.
const barFields = 9

// Bar is one sampling interval's summary: a price OHLC over the interval
// and a five-number summary (min, q1, median, q3, max) of the spread
// observations within it.
type Bar struct {
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
	SpreadMin    decimal.Decimal
	SpreadQ1     decimal.Decimal
	SpreadMedian decimal.Decimal
	SpreadQ3     decimal.Decimal
	SpreadMax    decimal.Decimal
}

// Values returns the bar's payload in storage order:
// [open, high, low, close, spread_min, q1, median, q3, max].
func (b Bar) Values() []decimal.Decimal {
	return []decimal.Decimal{
		b.Open, b.High, b.Low, b.Close,
		b.SpreadMin, b.SpreadQ1, b.SpreadMedian, b.SpreadQ3, b.SpreadMax,
	}
}

// BarFromValues rebuilds a Bar from a stored payload. Payloads shorter than
// nine fields are incomplete; extra trailing fields are ignored.
func BarFromValues(data []decimal.Decimal) (Bar, error) {
	if len(data) < barFields {
		return Bar{}, fmt.Errorf("incomplete bar payload: %d of %d fields", len(data), barFields)
	}
	return Bar{
		Open:         data[0],
		High:         data[1],
		Low:          data[2],
		Close:        data[3],
		SpreadMin:    data[4],
		SpreadQ1:     data[5],
		SpreadMedian: data[6],
		SpreadQ3:     data[7],
		SpreadMax:    data[8],
	}, nil
}

// BarRecord is a bar as persisted: the series id (market id with
// granularity suffix), the UTC bucket timestamp, and the raw payload.
// Records read back from storage may carry short payloads; consumers skip
// those rather than fail.
type BarRecord struct {
	MarketID string            `json:"marketid"`
	Time     time.Time         `json:"timestamp"`
	Data     []decimal.Decimal `json:"data"`
}

// Complete reports whether the record carries a full bar payload.
func (r BarRecord) Complete() bool {
	return len(r.Data) >= barFields
}

// Bar converts a complete record's payload into a Bar.
func (r BarRecord) Bar() (Bar, error) {
	return BarFromValues(r.Data)
}
