// Package storage talks to the media host that keeps the image bytes.
package storage

import (
	"context"
	"io"
	"time"
)

// Blob is one payload to store. ContentType and Extension come from content
// sniffing, not from what the client declared.
type Blob struct {
	Reader      io.Reader
	Size        int64
	ContentType string
	Extension   string
}

// StoredObject is what the media host hands back after an upload: the durable
// public URL and the key required to delete the object later.
type StoredObject struct {
	Key  string
	URL  string
	Size int64
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type BlobStore interface {
	Upload(ctx context.Context, blob Blob) (StoredObject, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]ObjectInfo, error)
}
