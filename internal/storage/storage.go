// Package storage writes export artifacts to an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/perfect-api/apiserver/config"
)

// Object describes an uploaded object.
type Object struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// ObjectStorage defines the object operations the exporter relies on.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)
	Bucket() string
	Close() error
}

// ErrDisabled is returned by NewBackend when no object store is configured.
var ErrDisabled = errors.New("storage: no backend configured")

// NewBackend builds the object store selected by cfg.Backend.
func NewBackend(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, ErrDisabled
	case "minio":
		return NewMinioClient(cfg.Minio)
	case "gcs":
		return NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
