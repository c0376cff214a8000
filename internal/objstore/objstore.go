// Package objstore abstracts the object store that holds the job
// configuration file and the raw response archives.
package objstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cyderes/activity-ingestion-service/internal/config"
)

var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrPreconditionFailed is returned when a conditional write lost against
	// a concurrent writer.
	ErrPreconditionFailed = errors.New("object precondition failed")
)

// Object is an object's content together with the version it was read at.
// Versions are opaque: a GCS generation number or an S3 ETag.
type Object struct {
	Key     string
	Data    []byte
	Version string
}

// WriteOptions controls a single write.
type WriteOptions struct {
	ContentType     string
	ContentEncoding string
	// IfVersion makes the write conditional on the object still being at this version.
	IfVersion string
	// IfNotExists makes the write fail when the object already exists.
	IfNotExists bool
}

// Store defines the contract for object storage
type Store interface {
	Read(ctx context.Context, key string) (*Object, error)
	Write(ctx context.Context, key string, data []byte, opts WriteOptions) (version string, err error)
	Close() error
}

// New creates an object store based on configuration
func New(ctx context.Context, cfg config.ObjectStoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "gcs":
		return NewGCSStore(ctx, cfg)
	case "s3":
		return NewS3Store(cfg)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported object store type: %s", cfg.Type)
	}
}
