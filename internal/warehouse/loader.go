// Package warehouse bulk-loads activity records into BigQuery.
package warehouse

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/models"
)

var tracer = otel.Tracer("warehouse")

// Loader submits one bulk load per run and returns the load job's ID.
type Loader interface {
	Load(ctx context.Context, dest models.Destination, records []models.Activity, mode models.RunMode) (string, error)
}

// BigQueryLoader loads newline-delimited JSON with schema auto-detection.
// Appends are not deduplicated: an activity fetched twice becomes two rows.
type BigQueryLoader struct {
	credentialsFile string
	waitForJob      bool
	jobLabel        string
	logger          *zap.Logger
}

// NewBigQueryLoader creates a loader. A BigQuery client is opened per load
// because the destination project comes from the job configuration file.
func NewBigQueryLoader(cfg config.WarehouseConfig, jobName string, logger *zap.Logger) *BigQueryLoader {
	return &BigQueryLoader{
		credentialsFile: cfg.CredentialsFile,
		waitForJob:      cfg.WaitForJob,
		jobLabel:        labelValue(jobName),
		logger:          logger.With(zap.String("component", "warehouse_loader")),
	}
}

// Load submits a load job into dest. Full mode truncates the table, which is
// not transactional with respect to the rest of the run.
func (l *BigQueryLoader) Load(ctx context.Context, dest models.Destination, records []models.Activity, mode models.RunMode) (string, error) {
	ctx, span := tracer.Start(ctx, "Load")
	defer span.End()

	span.SetAttributes(
		attribute.String("destination", dest.String()),
		attribute.Int("records", len(records)),
		attribute.String("mode", string(mode)),
	)

	if len(records) == 0 {
		return "", ingesterr.New(ingesterr.KindWarehouseLoad, "refusing to load an empty record set")
	}

	payload, err := EncodeNDJSON(records)
	if err != nil {
		return "", ingesterr.Wrap(err, ingesterr.KindWarehouseLoad, "failed to encode records")
	}

	var opts []option.ClientOption
	if l.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(l.credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, dest.ProjectID, opts...)
	if err != nil {
		return "", ingesterr.Wrap(err, ingesterr.KindWarehouseLoad, "failed to create bigquery client").
			WithDetail("project", dest.ProjectID)
	}
	defer client.Close()

	source := bigquery.NewReaderSource(bytes.NewReader(payload))
	source.SourceFormat = bigquery.JSON
	source.AutoDetect = true

	loader := client.Dataset(dest.Dataset).Table(dest.Table).LoaderFrom(source)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.WriteDisposition = WriteDisposition(mode)
	loader.Labels = map[string]string{
		"source":  "strava",
		"job":     l.jobLabel,
		"mode":    labelValue(string(mode)),
		"records": strconv.Itoa(len(records)),
	}

	l.logger.Info("submitting load job",
		zap.String("destination", dest.String()),
		zap.Int("records", len(records)),
		zap.String("write_disposition", string(loader.WriteDisposition)))

	job, err := loader.Run(ctx)
	if err != nil {
		span.RecordError(err)
		return "", ingesterr.Wrap(err, ingesterr.KindWarehouseLoad, "failed to submit load job").
			WithDetail("destination", dest.String())
	}

	l.logger.Info("launched load job", zap.String("job_id", job.ID()))

	if l.waitForJob {
		if err := l.wait(ctx, job); err != nil {
			return job.ID(), err
		}
	}
	return job.ID(), nil
}

func (l *BigQueryLoader) wait(ctx context.Context, job *bigquery.Job) error {
	start := time.Now()
	status, err := job.Wait(ctx)
	if err != nil {
		return ingesterr.Wrap(err, ingesterr.KindWarehouseLoad, "failed waiting for load job").
			WithDetail("job_id", job.ID())
	}
	if status.Err() != nil {
		for i, jobErr := range status.Errors {
			l.logger.Error("load job error detail",
				zap.Int("error_index", i),
				zap.String("message", jobErr.Message),
				zap.String("reason", jobErr.Reason),
				zap.String("location", jobErr.Location))
		}
		return ingesterr.Wrap(status.Err(), ingesterr.KindWarehouseLoad, "load job failed").
			WithDetail("job_id", job.ID())
	}

	fields := []zap.Field{zap.String("job_id", job.ID()), zap.Duration("duration", time.Since(start))}
	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			fields = append(fields, zap.Int64("output_rows", stats.OutputRows))
		}
	}
	l.logger.Info("load job completed", fields...)
	return nil
}

// WriteDisposition maps a run mode to replace or append semantics.
func WriteDisposition(mode models.RunMode) bigquery.TableWriteDisposition {
	if mode.IsFull() {
		return bigquery.WriteTruncate
	}
	return bigquery.WriteAppend
}

// EncodeNDJSON renders records as newline-delimited JSON, compacting each
// record onto a single line.
func EncodeNDJSON(records []models.Activity) ([]byte, error) {
	var out, line bytes.Buffer
	for i, record := range records {
		// Compact rewrites its whole destination, so each record gets its own.
		line.Reset()
		if err := json.Compact(&line, record); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out.Write(line.Bytes())
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}

// labelValue lower-cases s and replaces characters BigQuery labels reject.
func labelValue(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s) && len(out) < 63; i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
