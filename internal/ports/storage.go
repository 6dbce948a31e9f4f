package ports

import (
	"context"
	"io"

	"renderhub/internal/pkg/errors"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	ObjectKey string
	Size      int64
}

// ErrObjectNotFound matches (by code) the error GetObject returns for a
// missing key.
var ErrObjectNotFound = errors.New(errors.CodeNotFound, "object not found")

// StorageProvider is the asset store shared with the renderer. Keys are
// slash-separated paths such as thumbnails/{uuid}.png; every adapter
// addresses objects by that key.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	Exists(ctx context.Context, objectKey string) (bool, error)
	// DeleteObject succeeds when the object is already gone.
	DeleteObject(ctx context.Context, objectKey string) error
}

// NotFound builds a GetObject error for key.
func NotFound(provider, key string) error {
	return errors.New(errors.CodeNotFound, "object not found").
		WithField("provider", provider).
		WithField("key", key)
}
