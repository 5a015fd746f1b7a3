package storage

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Storage stores identity photos attached to registrations.
type Storage interface {
	// Store saves a file and returns its storage key plus a URL the photo can
	// be served from. The key is what Delete expects.
	Store(ctx context.Context, userID uuid.UUID, filename string, content io.Reader, contentType string) (StoredObject, error)

	// Delete removes a file by storage key
	Delete(ctx context.Context, key string) error

	// GetURL returns a signed URL for accessing the file (for S3) or local path
	GetURL(ctx context.Context, key string, expiration time.Duration) (string, error)

	// Exists checks if a file exists
	Exists(ctx context.Context, key string) (bool, error)
}

type StoredObject struct {
	Key string
	URL string
}
