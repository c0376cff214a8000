package jobconfig

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/objstore"
)

const contentType = "text/plain; charset=utf-8"

// Store loads and saves the configuration file at a fixed object key.
type Store struct {
	objects objstore.Store
	key     string
	logger  *zap.Logger
}

// NewStore creates a configuration store for key within objects.
func NewStore(objects objstore.Store, key string, logger *zap.Logger) *Store {
	return &Store{
		objects: objects,
		key:     key,
		logger:  logger.With(zap.String("component", "config_store"), zap.String("object", key)),
	}
}

// Load reads and parses the configuration file.
func (s *Store) Load(ctx context.Context) (*File, error) {
	obj, err := s.objects.Read(ctx, s.key)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return nil, ingesterr.Wrap(err, ingesterr.KindMissingConfiguration, "configuration file does not exist").
				WithDetail("object", s.key)
		}
		return nil, ingesterr.Wrap(err, ingesterr.KindStorageTransaction, "failed to read configuration file").
			WithDetail("object", s.key)
	}

	file, err := Parse(obj.Data)
	if err != nil {
		return nil, err
	}
	file.version = obj.Version

	s.logger.Info("read configuration",
		zap.String("version", obj.Version),
		zap.Int("bytes", len(obj.Data)))
	return file, nil
}

// Save writes file back, conditional on the object still being at the
// version file was loaded at. On success the file adopts the new version so
// it can be saved again within the same run.
func (s *Store) Save(ctx context.Context, file *File) error {
	data, err := file.Bytes()
	if err != nil {
		return ingesterr.Wrap(err, ingesterr.KindStorageTransaction, "failed to encode configuration file")
	}

	version, err := s.objects.Write(ctx, s.key, data, objstore.WriteOptions{
		ContentType: contentType,
		IfVersion:   file.version,
	})
	if err != nil {
		wrapped := ingesterr.Wrap(err, ingesterr.KindStorageTransaction, "failed to write configuration file").
			WithDetail("object", s.key)
		if errors.Is(err, objstore.ErrPreconditionFailed) {
			wrapped = wrapped.WithDetail("concurrent_run", true)
		}
		return wrapped
	}

	s.logger.Info("wrote configuration",
		zap.String("previous_version", file.version),
		zap.String("version", version))
	file.version = version
	return nil
}
