// Package blob provides storage for uploaded datasets and produced artifacts,
// keyed by names derived from job ids.
package blob

import (
	"context"
	"io"
)

// Store persists binary blobs by name.
type Store interface {
	// Put writes a blob, replacing any existing one with the same name.
	Put(ctx context.Context, name string, r io.Reader) error

	// Open returns a reader for a blob and its size in bytes.
	// Returns a not-found error if the blob does not exist.
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)

	// Ping verifies the store is usable.
	Ping(ctx context.Context) error
}
