// Package archive writes the raw activity payload of a run to object storage
// for audit and replay.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/models"
	"github.com/cyderes/activity-ingestion-service/internal/objstore"
)

const timestampLayout = "2006-01-02-15-04-05"

// Archiver stores one JSON array per run under <job>/<table>-<timestamp>.json.
type Archiver struct {
	store    objstore.Store
	jobName  string
	compress bool
	now      func() time.Time
	logger   *zap.Logger
}

// NewArchiver creates an archiver writing into store.
func NewArchiver(store objstore.Store, jobName string, cfg config.ArchiveConfig, logger *zap.Logger) *Archiver {
	return &Archiver{
		store:    store,
		jobName:  jobName,
		compress: cfg.Compression == "gzip",
		now:      time.Now,
		logger:   logger.With(zap.String("component", "archiver")),
	}
}

// ObjectName returns the archive key for table at t.
func (a *Archiver) ObjectName(table string, t time.Time) string {
	return fmt.Sprintf("%s/%s-%s.json", a.jobName, table, t.UTC().Format(timestampLayout))
}

// Archive writes records as a single JSON array. Existing archives are never
// overwritten; a name collision fails the write.
func (a *Archiver) Archive(ctx context.Context, table string, records []models.Activity) (string, error) {
	key := a.ObjectName(table, a.now())

	payload, err := json.Marshal(records)
	if err != nil {
		return "", ingesterr.Wrap(err, ingesterr.KindStorageTransaction, "failed to encode archive")
	}

	opts := objstore.WriteOptions{
		ContentType: "application/json",
		IfNotExists: true,
	}
	if a.compress {
		if payload, err = gzipBytes(payload); err != nil {
			return "", ingesterr.Wrap(err, ingesterr.KindStorageTransaction, "failed to compress archive")
		}
		opts.ContentEncoding = "gzip"
	}

	a.logger.Info("archiving response data",
		zap.String("object", key),
		zap.Int("activities", len(records)),
		zap.Int("bytes", len(payload)))

	if _, err := a.store.Write(ctx, key, payload, opts); err != nil {
		return "", ingesterr.Wrap(err, ingesterr.KindStorageTransaction, "failed to write archive").
			WithDetail("object", key)
	}
	return key, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
