// Package storage provides the private object store holding client documents.
// Objects are never publicly readable; callers hand out short-lived signed
// URLs instead.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/d9705996/clientportal/internal/config"
)

// ErrInvalidKey is returned for keys that are empty, absolute or escape the
// store root.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectStore is the narrow contract the document service depends on.
type ObjectStore interface {
	// Put writes size bytes from body under key.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Delete removes key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// SignedURL returns a URL granting read access to key until ttl elapses.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// New builds the store selected by cfg.Driver. signingKey and siteOrigin are
// only used by the disk driver, which serves its own signed URLs.
func New(ctx context.Context, cfg config.StorageConfig, siteOrigin, signingKey string) (ObjectStore, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3(ctx, cfg)
	case "disk", "":
		return NewDisk(cfg.Dir, siteOrigin+DiskRoutePrefix, signingKey)
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Driver)
	}
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
