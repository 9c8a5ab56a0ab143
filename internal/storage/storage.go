// Package storage keeps finished videos on local disk and optionally
// publishes them to S3-compatible object storage.
package storage

import (
	"context"
	"io"
)

// Storage stores artifact files.
type Storage interface {
	// Save writes data to a file called name inside the storage directory and
	// returns its path. Readers never observe a partially written file.
	Save(ctx context.Context, name string, data io.Reader) (path string, err error)

	// Open returns a reader for a saved file.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Remove deletes the given files. Missing files are ignored.
	Remove(ctx context.Context, paths ...string) error

	// Publish uploads data under key and returns its public URL.
	// Returns ErrS3NotConfigured if no object store is configured.
	Publish(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)
}
