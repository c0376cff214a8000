// Package ingestion runs one end-to-end activity ingestion: refresh the API
// token, fetch new activities, load and archive them, then advance the cursor.
package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cyderes/activity-ingestion-service/internal/auth"
	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/jobconfig"
	"github.com/cyderes/activity-ingestion-service/internal/models"
	"github.com/cyderes/activity-ingestion-service/internal/storage"
	"github.com/cyderes/activity-ingestion-service/internal/strava"
	"github.com/cyderes/activity-ingestion-service/internal/warehouse"
)

var tracer = otel.Tracer("ingestion")

// ConfigStore loads and conditionally saves the job configuration file.
type ConfigStore interface {
	Load(ctx context.Context) (*jobconfig.File, error)
	Save(ctx context.Context, file *jobconfig.File) error
}

// TokenRefresher exchanges a refresh token for an access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, creds jobconfig.Credentials) (*auth.TokenPair, error)
}

// ActivityFetcher pulls every activity after an epoch.
type ActivityFetcher interface {
	FetchAll(ctx context.Context, accessToken string, after int64) (*strava.FetchResult, error)
}

// Archiver stores the raw payload of a run.
type Archiver interface {
	Archive(ctx context.Context, table string, records []models.Activity) (string, error)
}

// Dependencies are the collaborators a Service drives.
type Dependencies struct {
	Configs   ConfigStore
	Refresher TokenRefresher
	Fetcher   ActivityFetcher
	Loader    warehouse.Loader
	Archiver  Archiver
	Ledger    storage.Storage
}

// RunResult summarizes a completed run.
type RunResult struct {
	RunID         string         `json:"run_id"`
	Mode          models.RunMode `json:"mode"`
	Activities    int            `json:"activities"`
	Pages         int            `json:"pages"`
	CursorBefore  string         `json:"cursor_before"`
	CursorAfter   string         `json:"cursor_after"`
	LoadJobID     string         `json:"load_job_id,omitempty"`
	ArchiveObject string         `json:"archive_object,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// Service handles activity ingestion runs
type Service struct {
	config config.IngestionConfig
	deps   Dependencies
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// NewService creates a new ingestion service
func NewService(cfg config.IngestionConfig, deps Dependencies, logger *zap.Logger) *Service {
	if deps.Ledger == nil {
		deps.Ledger = storage.NewMemoryStorage()
	}
	return &Service{
		config: cfg,
		deps:   deps,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger.With(zap.String("component", "ingestion")),
	}
}

// run is the state of a single invocation. Nothing outlives it.
type run struct {
	mode    models.RunMode
	logger  *zap.Logger
	status  models.IngestionStatus
	result  *RunResult
	started time.Time
}

// Run executes one ingestion in mode. Steps are strictly sequential and the
// first failure aborts the remainder. The rotated refresh token is persisted
// as soon as it is issued; the cursor is persisted only after the load and
// archive steps succeed.
func (s *Service) Run(ctx context.Context, mode models.RunMode) (*RunResult, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	r := s.begin(ctx, mode)
	span.SetAttributes(attribute.String("run_id", r.result.RunID), attribute.String("mode", string(mode)))

	file, err := s.deps.Configs.Load(ctx)
	if err != nil {
		return nil, s.fail(ctx, r, "failed to read configuration", err)
	}

	cursorBefore := file.Cursor()
	r.result.CursorBefore = cursorBefore
	r.result.CursorAfter = cursorBefore
	r.status.CursorBefore = cursorBefore
	r.status.CursorAfter = cursorBefore

	after, err := s.afterEpoch(mode, cursorBefore)
	if err != nil {
		return nil, s.fail(ctx, r, "stored cursor is invalid", err)
	}

	tokens, err := s.deps.Refresher.Refresh(ctx, file.Credentials())
	if err != nil {
		return nil, s.fail(ctx, r, "failed to refresh access token", err)
	}

	file.SetRefreshToken(tokens.RefreshToken)
	if err := s.deps.Configs.Save(ctx, file); err != nil {
		return nil, s.fail(ctx, r, "failed to persist rotated refresh token", err)
	}
	r.logger.Info("persisted rotated refresh token")

	fetched, err := s.deps.Fetcher.FetchAll(ctx, tokens.AccessToken, after)
	if err != nil {
		return nil, s.fail(ctx, r, "failed to fetch activities", err)
	}
	r.result.Activities = len(fetched.Activities)
	r.result.Pages = fetched.Pages
	r.status.RecordsIngested = len(fetched.Activities)
	r.status.PagesFetched = fetched.Pages
	activitiesFetched.WithLabelValues(string(mode)).Add(float64(len(fetched.Activities)))
	pagesFetched.WithLabelValues(string(mode)).Add(float64(fetched.Pages))

	if len(fetched.Activities) > 0 {
		dest := file.Destination()

		jobID, err := s.deps.Loader.Load(ctx, dest, fetched.Activities, mode)
		if err != nil {
			return nil, s.fail(ctx, r, "failed to load activities", err)
		}
		r.result.LoadJobID = jobID
		r.status.LoadJobID = jobID

		key, err := s.deps.Archiver.Archive(ctx, dest.Table, fetched.Activities)
		if err != nil {
			return nil, s.fail(ctx, r, "failed to archive activities", err)
		}
		r.result.ArchiveObject = key
		r.status.ArchiveObject = key
	} else {
		r.logger.Info("no new activities")
	}

	if fetched.Observed {
		next := s.nextCursor(fetched)
		file.SetCursor(next)
		r.result.CursorAfter = next
		r.status.CursorAfter = next
	}

	if err := s.deps.Configs.Save(ctx, file); err != nil {
		return nil, s.fail(ctx, r, "failed to persist configuration", err)
	}

	return s.succeed(ctx, r), nil
}

func (s *Service) begin(ctx context.Context, mode models.RunMode) *run {
	started := s.now().UTC()
	id := s.newID()

	r := &run{
		mode:    mode,
		logger:  s.logger.With(zap.String("run_id", id), zap.String("mode", string(mode))),
		started: started,
		result: &RunResult{
			RunID:     id,
			Mode:      mode,
			StartedAt: started,
		},
		status: models.IngestionStatus{
			RunID:       id,
			Mode:        mode,
			LastAttempt: started,
			Status:      models.StatusRunning,
		},
	}

	if previous, err := s.deps.Ledger.GetIngestionStatus(ctx); err != nil {
		r.logger.Warn("failed to read run status", zap.Error(err))
	} else {
		r.status.LastSuccessfulRun = previous.LastSuccessfulRun
	}

	r.logger.Info("starting ingestion run")
	s.record(ctx, r)
	return r
}

func (s *Service) succeed(ctx context.Context, r *run) *RunResult {
	finished := s.now().UTC()
	r.result.FinishedAt = finished
	r.status.Status = models.StatusSuccess
	r.status.LastSuccessfulRun = finished
	s.record(ctx, r)

	elapsed := finished.Sub(r.started)
	runsTotal.WithLabelValues(string(r.mode), models.StatusSuccess).Inc()
	runDuration.WithLabelValues(string(r.mode), models.StatusSuccess).Observe(elapsed.Seconds())

	r.logger.Info("ingestion run completed",
		zap.Int("activities", r.result.Activities),
		zap.Int("pages", r.result.Pages),
		zap.String("cursor_before", r.result.CursorBefore),
		zap.String("cursor_after", r.result.CursorAfter),
		zap.String("load_job_id", r.result.LoadJobID),
		zap.String("archive_object", r.result.ArchiveObject),
		zap.Duration("duration", elapsed))
	return r.result
}

// fail logs err with its kind and details, records the failure and returns
// err unchanged so callers can inspect its kind.
func (s *Service) fail(ctx context.Context, r *run, msg string, err error) error {
	kind := ingesterr.KindOf(err)
	fields := []zap.Field{zap.Error(err), zap.String("error_kind", string(kind))}
	if details := ingesterr.DetailsOf(err); len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	r.logger.Error(msg, fields...)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)

	r.status.Status = models.StatusFailure
	r.status.ErrorKind = string(kind)
	r.status.ErrorMessage = err.Error()
	s.record(ctx, r)

	elapsed := s.now().UTC().Sub(r.started)
	runsTotal.WithLabelValues(string(r.mode), models.StatusFailure).Inc()
	runFailures.WithLabelValues(string(kind)).Inc()
	runDuration.WithLabelValues(string(r.mode), models.StatusFailure).Observe(elapsed.Seconds())
	return err
}

// record writes the ledger entry. Ledger failures never change the outcome
// of the run.
func (s *Service) record(ctx context.Context, r *run) {
	if err := s.deps.Ledger.UpdateIngestionStatus(ctx, r.status); err != nil {
		r.logger.Warn("failed to record run status",
			zap.String("status", r.status.Status),
			zap.Error(err))
	}
}

// afterEpoch is 0 for a full reload, otherwise the stored cursor.
func (s *Service) afterEpoch(mode models.RunMode, cursor string) (int64, error) {
	if mode.IsFull() {
		return 0, nil
	}
	return models.ParseCursor(cursor)
}

// nextCursor applies the configured cursor policy. The default uses the time
// pagination finished, so activities uploaded late with an earlier start time
// can be skipped by later incremental runs.
func (s *Service) nextCursor(fetched *strava.FetchResult) string {
	if s.config.CursorPolicy == config.CursorPolicyLatestActivity && !fetched.LatestStart.IsZero() {
		return models.FormatCursor(fetched.LatestStart)
	}
	return models.FormatCursor(fetched.CompletedAt)
}

// Status returns the most recent ledger entry.
func (s *Service) Status(ctx context.Context) (*models.IngestionStatus, error) {
	return s.deps.Ledger.GetIngestionStatus(ctx)
}
