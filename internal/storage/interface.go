package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Download when no object exists under the key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage is the object store that receives corpus snapshots.
type ObjectStorage interface {
	// Upload stores an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens the object stored under key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string
}
