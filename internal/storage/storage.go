// Package storage defines the object store that table snapshots are
// written to.
package storage

import (
	"context"
	"io"
)

type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

type PutOptions struct {
	ContentType string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
}
