package strava

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/models"
)

const (
	// DefaultPageSize is the number of activities requested per page.
	DefaultPageSize = 200
	// DefaultMaxPages bounds a single run's pagination.
	DefaultMaxPages = 1000
)

// PageLister fetches a single page of activities.
type PageLister interface {
	ListActivities(ctx context.Context, accessToken string, after int64, page, perPage int) ([]models.Activity, error)
}

// FetchResult is everything one pagination pass produced.
type FetchResult struct {
	Activities []models.Activity
	Pages      int
	After      int64
	// CompletedAt is the wall-clock time the pagination loop terminated.
	CompletedAt time.Time
	// Observed is set once the cumulative activity count is positive.
	Observed bool
	// LatestStart is the most recent start_date among the fetched
	// activities, zero if none carried a parseable one.
	LatestStart time.Time
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	PageSize int
	MaxPages int
	Now      func() time.Time
}

// Fetcher paginates the activity list until a short page arrives.
type Fetcher struct {
	lister   PageLister
	pageSize int
	maxPages int
	now      func() time.Time
	logger   *zap.Logger
}

// NewFetcher creates a fetcher over lister.
func NewFetcher(lister PageLister, opts FetcherOptions, logger *zap.Logger) *Fetcher {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fetcher{
		lister:   lister,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		now:      opts.Now,
		logger:   logger.With(zap.String("component", "activity_fetcher")),
	}
}

// FetchAll requests pages 1, 2, ... and stops after the first page holding
// fewer than the page size, including an empty one. Activities are returned
// in API order. Reaching the page bound with a full page is an error so the
// cursor is never advanced past data that was not fetched.
func (f *Fetcher) FetchAll(ctx context.Context, accessToken string, after int64) (*FetchResult, error) {
	result := &FetchResult{After: after}

	f.logger.Info("fetching activities",
		zap.Int64("after", after),
		zap.String("after_time", models.CursorTime(after)),
		zap.Int("page_size", f.pageSize))

	for page := 1; ; page++ {
		if page > f.maxPages {
			return nil, ingesterr.Newf(ingesterr.KindSourceAPI, "pagination exceeded %d pages", f.maxPages).
				WithDetail("activities", len(result.Activities))
		}

		f.logger.Debug("fetching page", zap.Int("page", page))
		activities, err := f.lister.ListActivities(ctx, accessToken, after, page, f.pageSize)
		if err != nil {
			return nil, err
		}

		result.Pages = page
		result.Activities = append(result.Activities, activities...)
		if len(result.Activities) > 0 {
			result.Observed = true
		}
		for _, a := range activities {
			if start, ok := startDate(a); ok && start.After(result.LatestStart) {
				result.LatestStart = start
			}
		}

		if len(activities) < f.pageSize {
			result.CompletedAt = f.now()
			break
		}
	}

	f.logger.Info("fetched activities",
		zap.Int("activities", len(result.Activities)),
		zap.Int("pages", result.Pages))
	return result, nil
}

type startDateField struct {
	StartDate time.Time `json:"start_date"`
}

func startDate(a models.Activity) (time.Time, bool) {
	var f startDateField
	if err := json.Unmarshal(a, &f); err != nil || f.StartDate.IsZero() {
		return time.Time{}, false
	}
	return f.StartDate, true
}
