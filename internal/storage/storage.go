package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

type ObjectInfo struct {
	Size        int64
	ContentType string
}

// Storage persists uploaded files under slash-separated logical keys
// (documents/mother/..., documents/user/..., profile/...). Both backends
// serve the same key space so the request path of the file gateway maps
// straight onto stored objects.
type Storage interface {
	Save(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ValidKey reports whether a logical key stays inside the storage root: a
// relative, slash-separated path with no empty or dot segments. Keys built
// from request paths MUST pass through this before touching a backend.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}
