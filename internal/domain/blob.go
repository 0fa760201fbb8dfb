package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SnapshotArchiver writes raw orderbook snapshots to object storage as they
// are scraped.
type SnapshotArchiver interface {
	ArchiveSnapshot(ctx context.Context, book Orderbook, raw []byte) error
}

// ColdStorage moves aged rows from the database to object storage.
type ColdStorage interface {
	ArchiveBars(ctx context.Context, before time.Time) (int64, error)
	ArchiveSpreads(ctx context.Context, before time.Time) (int64, error)
}
