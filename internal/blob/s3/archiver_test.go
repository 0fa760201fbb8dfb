package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quollview/spreadscraper/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func barRecord(seriesID, ts string) domain.BarRecord {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	data := make([]decimal.Decimal, 9)
	for i := range data {
		data[i] = dec("7000.25")
	}
	return domain.BarRecord{MarketID: seriesID, Time: t, Data: data}
}

func spreadSnap(id, marketID, ts string) domain.SpreadSnapshot {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return domain.SpreadSnapshot{
		ID:       id,
		MarketID: marketID,
		Time:     t,
		Analysis: domain.SpreadAnalysis{
			Levels: map[string]domain.SpreadMetrics{
				"10000_QUOTE": {LevelQuote: dec("10000")},
			},
			Summary: domain.MarketSummary{MarketID: marketID, BestBid: dec("7024.21"), BestAsk: dec("7039.31")},
		},
	}
}

func TestArchiveBarsExportsDayFilesThenDeletes(t *testing.T) {
	blob := newFakeBlob()
	bars := &fakeBarArchive{
		series: []string{"BTC-AUD_1m"},
		recs: map[string][]domain.BarRecord{
			"BTC-AUD_1m": {
				barRecord("BTC-AUD_1m", "2026-05-01T10:00:00Z"),
				barRecord("BTC-AUD_1m", "2026-05-01T11:00:00Z"),
				barRecord("BTC-AUD_1m", "2026-05-02T00:00:00Z"),
			},
		},
	}
	arch := NewArchive(blob, blob, bars, nil)

	n, err := arch.ArchiveBars(context.Background(), mustTime(t, "2026-05-10T13:45:00Z"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.Equal(t, 2, lineCount(blob.objects["bars/BTC-AUD_1m/2026-05-01.jsonl"]))
	assert.Equal(t, 1, lineCount(blob.objects["bars/BTC-AUD_1m/2026-05-02.jsonl"]))

	// delete cutoff is the day boundary, not the raw retention instant
	require.Len(t, bars.deletes, 1)
	assert.Equal(t, mustTime(t, "2026-05-10T00:00:00Z"), bars.deletes["BTC-AUD_1m"])
}

func TestArchiveBarsMissingUploadBlocksDelete(t *testing.T) {
	blob := newFakeBlob()
	blob.missing["bars/BTC-AUD_1m/2026-05-01.jsonl"] = true
	bars := &fakeBarArchive{
		series: []string{"BTC-AUD_1m"},
		recs: map[string][]domain.BarRecord{
			"BTC-AUD_1m": {barRecord("BTC-AUD_1m", "2026-05-01T10:00:00Z")},
		},
	}
	arch := NewArchive(blob, blob, bars, nil)

	_, err := arch.ArchiveBars(context.Background(), mustTime(t, "2026-05-10T00:00:00Z"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing after upload")
	assert.Empty(t, bars.deletes)
}

func TestArchiveSpreadsGroupsByMarketAndDay(t *testing.T) {
	blob := newFakeBlob()
	spreads := &fakeSpreadArchive{
		snaps: []domain.SpreadSnapshot{
			spreadSnap("a1", "BTC-AUD", "2026-05-01T10:00:00Z"),
			spreadSnap("a2", "ETH-AUD", "2026-05-01T10:00:00Z"),
			spreadSnap("a3", "BTC-AUD", "2026-05-02T09:30:00Z"),
		},
	}
	arch := NewArchive(blob, blob, nil, spreads)

	n, err := arch.ArchiveSpreads(context.Background(), mustTime(t, "2026-05-10T04:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.Equal(t, 1, lineCount(blob.objects["spreads/BTC-AUD/2026-05-01.jsonl"]))
	assert.Equal(t, 1, lineCount(blob.objects["spreads/BTC-AUD/2026-05-02.jsonl"]))
	assert.Equal(t, 1, lineCount(blob.objects["spreads/ETH-AUD/2026-05-01.jsonl"]))

	// exported lines round-trip to full snapshots
	var snap domain.SpreadSnapshot
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(blob.objects["spreads/ETH-AUD/2026-05-01.jsonl"]), &snap))
	assert.Equal(t, "a2", snap.ID)
	assert.Equal(t, "7039.31", snap.Analysis.Summary.BestAsk.String())

	assert.Equal(t, mustTime(t, "2026-05-10T00:00:00Z"), spreads.deletedBefore)
}

func TestArchiveSpreadsNothingToExport(t *testing.T) {
	blob := newFakeBlob()
	spreads := &fakeSpreadArchive{}
	arch := NewArchive(blob, blob, nil, spreads)

	n, err := arch.ArchiveSpreads(context.Background(), mustTime(t, "2026-05-10T00:00:00Z"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blob.objects)
	assert.True(t, spreads.deletedBefore.IsZero())
}

func TestArchiveSnapshotEncodesWireShape(t *testing.T) {
	blob := newFakeBlob()
	arch := NewArchive(blob, nil, nil, nil)

	book := domain.Orderbook{
		MarketID:   "ETH-AUD",
		SnapshotID: 1757819116258000,
		Asks:       []domain.PriceLevel{{Price: dec("7039.31"), Quantity: dec("0.5")}},
		Bids:       []domain.PriceLevel{{Price: dec("7024.21"), Quantity: dec("1.25")}},
		Time:       time.UnixMilli(1_700_000_000_000).UTC(),
	}

	require.NoError(t, arch.ArchiveSnapshot(context.Background(), book, nil))

	stored, ok := blob.objects["raw/ETH-AUD/1700000000000.json"]
	require.True(t, ok)

	var wire rawSnapshotJSON
	require.NoError(t, json.Unmarshal(stored, &wire))
	assert.Equal(t, "ETH-AUD", wire.MarketID)
	assert.Equal(t, int64(1757819116258000), wire.SnapshotID)
	assert.Equal(t, [][]string{{"7039.31", "0.5"}}, wire.Asks)
	assert.Equal(t, [][]string{{"7024.21", "1.25"}}, wire.Bids)
}

func TestArchiveSnapshotKeepsVerbatimBody(t *testing.T) {
	blob := newFakeBlob()
	arch := NewArchive(blob, nil, nil, nil)

	book := domain.Orderbook{MarketID: "BTC-AUD", Time: time.UnixMilli(1_700_000_000_000).UTC()}
	raw := []byte(`{"marketId":"BTC-AUD","asks":[],"bids":[]}`)

	require.NoError(t, arch.ArchiveSnapshot(context.Background(), book, raw))
	assert.Equal(t, raw, blob.objects["raw/BTC-AUD/1700000000000.json"])
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func lineCount(data []byte) int {
	return bytes.Count(data, []byte("\n"))
}

// fakeBlob implements domain.BlobWriter and domain.BlobReader in memory.
type fakeBlob struct {
	objects map[string][]byte
	missing map[string]bool
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{
		objects: map[string][]byte{},
		missing: map[string]bool{},
	}
}

func (f *fakeBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[path] = buf
	return nil
}

func (f *fakeBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(ctx, path, data, "")
}

func (f *fakeBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("fake: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, data := range f.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	return infos, nil
}

func (f *fakeBlob) Exists(_ context.Context, path string) (bool, error) {
	if f.missing[path] {
		return false, nil
	}
	_, ok := f.objects[path]
	return ok, nil
}

type fakeBarArchive struct {
	series  []string
	recs    map[string][]domain.BarRecord
	deletes map[string]time.Time
}

func (f *fakeBarArchive) SeriesIDs(context.Context) ([]string, error) {
	return f.series, nil
}

func (f *fakeBarArchive) ListRange(_ context.Context, marketID string, from, to time.Time) ([]domain.BarRecord, error) {
	var out []domain.BarRecord
	for _, r := range f.recs[marketID] {
		if !r.Time.Before(from) && r.Time.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBarArchive) DeleteBefore(_ context.Context, marketID string, cutoff time.Time) (int64, error) {
	if f.deletes == nil {
		f.deletes = map[string]time.Time{}
	}
	f.deletes[marketID] = cutoff
	var n int64
	for _, r := range f.recs[marketID] {
		if r.Time.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

type fakeSpreadArchive struct {
	snaps         []domain.SpreadSnapshot
	deletedBefore time.Time
}

func (f *fakeSpreadArchive) ListOlderThan(_ context.Context, cutoff time.Time, limit int) ([]domain.SpreadSnapshot, error) {
	var out []domain.SpreadSnapshot
	for _, s := range f.snaps {
		if s.Time.Before(cutoff) {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSpreadArchive) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.deletedBefore = cutoff
	var n int64
	for _, s := range f.snaps {
		if s.Time.Before(cutoff) {
			n++
		}
	}
	return n, nil
}
