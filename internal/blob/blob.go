// Package blob abstracts the object storage that export artifacts and
// scanned receipt images live in.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Download when no object exists at the path.
var ErrNotFound = errors.New("object not found")

// Store uploads objects and hands out time-limited read links to them.
// This interface enables mocking and testing of storage functionality.
type Store interface {
	// Upload writes data to path, replacing any existing object.
	Upload(ctx context.Context, path, contentType string, data []byte) error

	// Download reads the object stored at path.
	Download(ctx context.Context, path string) ([]byte, error)

	// SignedURL returns a read-only URL for path that stops working at expires.
	SignedURL(ctx context.Context, path string, expires time.Time) (string, error)
}
