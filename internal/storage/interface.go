package storage

import (
	"context"
	"fmt"
	"io"
	"os"
)

// ObjectStorage is a content-addressed bucket: objects are addressed by
// generated keys, never by local paths.
type ObjectStorage interface {
	// Upload stores size bytes from reader under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens the object stored under key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL clients use to fetch key.
	GetURL(key string) string

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// EnsureBucket creates the bucket when the backend allows it.
	EnsureBucket(ctx context.Context) error
}

// UploadFile streams the file at path to key.
func UploadFile(ctx context.Context, store ObjectStorage, key, path, contentType string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	if err := store.Upload(ctx, key, f, info.Size(), contentType); err != nil {
		return 0, err
	}
	return info.Size(), nil
}
