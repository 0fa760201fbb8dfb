package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quollview/spreadscraper/internal/domain"
)

// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these implicitly; the archiver never needs their write paths.

// BarArchiveStore provides the read/delete surface for exporting aged bars.
type BarArchiveStore interface {
	SeriesIDs(ctx context.Context) ([]string, error)
	ListRange(ctx context.Context, marketID string, from, to time.Time) ([]domain.BarRecord, error)
	DeleteBefore(ctx context.Context, marketID string, cutoff time.Time) (int64, error)
}

// SpreadArchiveStore provides the read/delete surface for exporting aged
// spread snapshots.
type SpreadArchiveStore interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.SpreadSnapshot, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// spreadArchiveLimit caps how many spread rows one ArchiveSpreads run pulls
// into memory. At one snapshot per market per minute this covers well over a
// hundred markets' worth of a full day.
const spreadArchiveLimit = 250_000

// multipartThreshold is the payload size above which exports switch to the
// multipart upload manager.
const multipartThreshold = 8 * 1024 * 1024

// Archive implements domain.SnapshotArchiver and domain.ColdStorage: raw
// orderbook snapshots go straight to object storage as they are scraped, and
// aged bar/spread rows are exported as JSONL date files and then deleted
// from Postgres. Deletion only happens after every uploaded object has been
// verified to exist.
//
// Cutoffs are truncated to UTC midnight so only complete days are exported;
// each date file is therefore written exactly once.
type Archive struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	bars    BarArchiveStore
	spreads SpreadArchiveStore
}

// NewArchive creates an Archive. reader may be nil to skip post-upload
// verification; bars and spreads may be nil when the corresponding export is
// not wired (the snapshot path only needs the writer).
func NewArchive(writer domain.BlobWriter, reader domain.BlobReader, bars BarArchiveStore, spreads SpreadArchiveStore) *Archive {
	return &Archive{
		writer:  writer,
		reader:  reader,
		bars:    bars,
		spreads: spreads,
	}
}

// rawSnapshotJSON mirrors the exchange orderbook wire shape, plus the scrape
// timestamp. Prices and quantities round-trip as strings, so the archived
// object is digit-for-digit what the calculation consumed.
type rawSnapshotJSON struct {
	MarketID   string     `json:"marketId"`
	SnapshotID int64      `json:"snapshotId"`
	Asks       [][]string `json:"asks"`
	Bids       [][]string `json:"bids"`
	Timestamp  time.Time  `json:"timestamp"`
}

func encodeLevels(levels []domain.PriceLevel) [][]string {
	out := make([][]string, len(levels))
	for i, l := range levels {
		out[i] = []string{l.Price.String(), l.Quantity.String()}
	}
	return out
}

// ArchiveSnapshot stores one scraped orderbook under
// raw/{market}/{unixMilli}.json. When the caller has the original response
// body it is written verbatim; otherwise the book is re-encoded in the wire
// shape.
func (a *Archive) ArchiveSnapshot(ctx context.Context, book domain.Orderbook, raw []byte) error {
	if len(raw) == 0 {
		encoded, err := json.Marshal(rawSnapshotJSON{
			MarketID:   book.MarketID,
			SnapshotID: book.SnapshotID,
			Asks:       encodeLevels(book.Asks),
			Bids:       encodeLevels(book.Bids),
			Timestamp:  book.Time.UTC(),
		})
		if err != nil {
			return fmt.Errorf("s3blob: archive snapshot %s marshal: %w", book.MarketID, err)
		}
		raw = encoded
	}

	path := fmt.Sprintf("raw/%s/%d.json", book.MarketID, book.Time.UTC().UnixMilli())
	if err := a.writer.Put(ctx, path, bytes.NewReader(raw), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive snapshot %s: %w", book.MarketID, err)
	}
	return nil
}

// ArchiveBars exports every bar older than the cutoff day to
// bars/{series}/{date}.jsonl, one series and one day per object, then
// deletes the exported rows. Returns the number of rows deleted.
func (a *Archive) ArchiveBars(ctx context.Context, before time.Time) (int64, error) {
	cutoff := dayStart(before)

	series, err := a.bars.SeriesIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bars series: %w", err)
	}

	var total int64
	for _, id := range series {
		recs, err := a.bars.ListRange(ctx, id, time.Time{}, cutoff)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive bars list %s: %w", id, err)
		}
		if len(recs) == 0 {
			continue
		}

		var paths []string
		for _, g := range splitDays(recs, func(r domain.BarRecord) time.Time { return r.Time }) {
			path := fmt.Sprintf("bars/%s/%s.jsonl", id, g.day)
			if err := putJSONL(ctx, a.writer, path, g.recs); err != nil {
				return total, err
			}
			paths = append(paths, path)
		}
		if err := a.verify(ctx, paths); err != nil {
			return total, err
		}

		n, err := a.bars.DeleteBefore(ctx, id, cutoff)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive bars delete %s: %w", id, err)
		}
		total += n
	}
	return total, nil
}

// ArchiveSpreads exports spread snapshots older than the cutoff day to
// spreads/{market}/{date}.jsonl and deletes the exported rows. One run is
// capped at spreadArchiveLimit rows; when the cap truncates the listing the
// trailing partial day is held back for the next run, so date files are
// still written exactly once. Returns the number of snapshots deleted.
func (a *Archive) ArchiveSpreads(ctx context.Context, before time.Time) (int64, error) {
	cutoff := dayStart(before)

	snaps, err := a.spreads.ListOlderThan(ctx, cutoff, spreadArchiveLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive spreads list: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	deleteBefore := cutoff
	if len(snaps) == spreadArchiveLimit {
		boundary := dayStart(snaps[len(snaps)-1].Time)
		i := len(snaps)
		for i > 0 && !snaps[i-1].Time.Before(boundary) {
			i--
		}
		if i == 0 {
			return 0, fmt.Errorf("s3blob: archive spreads: one day holds %d+ rows, above the per-run cap", spreadArchiveLimit)
		}
		snaps = snaps[:i]
		deleteBefore = boundary
	}

	byMarket := make(map[string][]domain.SpreadSnapshot)
	var markets []string
	for _, s := range snaps {
		if _, ok := byMarket[s.MarketID]; !ok {
			markets = append(markets, s.MarketID)
		}
		byMarket[s.MarketID] = append(byMarket[s.MarketID], s)
	}

	var paths []string
	for _, m := range markets {
		for _, g := range splitDays(byMarket[m], func(s domain.SpreadSnapshot) time.Time { return s.Time }) {
			path := fmt.Sprintf("spreads/%s/%s.jsonl", m, g.day)
			if err := putJSONL(ctx, a.writer, path, g.recs); err != nil {
				return 0, err
			}
			paths = append(paths, path)
		}
	}
	if err := a.verify(ctx, paths); err != nil {
		return 0, err
	}

	n, err := a.spreads.DeleteBefore(ctx, deleteBefore)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive spreads delete: %w", err)
	}
	return n, nil
}

// verify confirms every uploaded object is retrievable before its source
// rows are deleted. A nil reader skips the check.
func (a *Archive) verify(ctx context.Context, paths []string) error {
	if a.reader == nil {
		return nil
	}
	for _, p := range paths {
		ok, err := a.reader.Exists(ctx, p)
		if err != nil {
			return fmt.Errorf("s3blob: verify %s: %w", p, err)
		}
		if !ok {
			return fmt.Errorf("s3blob: verify %s: object missing after upload", p)
		}
	}
	return nil
}

func putJSONL[T any](ctx context.Context, w domain.BlobWriter, path string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: marshal %s: %w", path, err)
	}

	if int64(len(buf)) >= multipartThreshold {
		err = w.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = w.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return nil
}

// dayStart truncates t to UTC midnight.
func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// dayGroup is one UTC date's worth of chronologically ordered records.
type dayGroup[T any] struct {
	day  string
	recs []T
}

// splitDays cuts a chronologically ordered slice into per-UTC-date groups.
func splitDays[T any](recs []T, at func(T) time.Time) []dayGroup[T] {
	var groups []dayGroup[T]
	for _, rec := range recs {
		day := at(rec).UTC().Format("2006-01-02")
		if len(groups) == 0 || groups[len(groups)-1].day != day {
			groups = append(groups, dayGroup[T]{day: day})
		}
		groups[len(groups)-1].recs = append(groups[len(groups)-1].recs, rec)
	}
	return groups
}

// marshalJSONL serialises a slice as newline-delimited JSON, one compact
// line per element.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface checks.
var (
	_ domain.SnapshotArchiver = (*Archive)(nil)
	_ domain.ColdStorage      = (*Archive)(nil)
)
