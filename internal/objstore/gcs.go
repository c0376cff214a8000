package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cyderes/activity-ingestion-service/internal/config"
)

// GCSStore implements Store on a Google Cloud Storage bucket. Object
// versions are GCS generation numbers.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSStore creates a GCS-backed store for the configured bucket.
func NewGCSStore(ctx context.Context, cfg config.ObjectStoreConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
	}, nil
}

// Read downloads an object and records its generation.
func (g *GCSStore) Read(ctx context.Context, key string) (*Object, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	return &Object{
		Key:     key,
		Data:    data,
		Version: strconv.FormatInt(r.Attrs.Generation, 10),
	}, nil
}

// Write uploads data, applying generation preconditions when requested.
func (g *GCSStore) Write(ctx context.Context, key string, data []byte, opts WriteOptions) (string, error) {
	obj := g.bucket.Object(key)
	switch {
	case opts.IfNotExists:
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	case opts.IfVersion != "":
		generation, err := strconv.ParseInt(opts.IfVersion, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid generation %q for %s: %w", opts.IfVersion, key, err)
		}
		obj = obj.If(storage.Conditions{GenerationMatch: generation})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.ContentEncoding = opts.ContentEncoding

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write %s: %w", key, classifyGCSError(err))
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer for %s: %w", key, classifyGCSError(err))
	}

	return strconv.FormatInt(w.Attrs().Generation, 10), nil
}

// Close closes the underlying client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

func classifyGCSError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %v", ErrPreconditionFailed, err)
	}
	return err
}
