// Package strava fetches athlete activities from the Strava REST API.
package strava

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/models"
)

var tracer = otel.Tracer("strava")

// Client lists activities one page at a time.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client for the configured API URL. Requests are paced
// by a client-side limiter and never retried.
func NewClient(cfg config.SourceConfig, logger *zap.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		baseURL: cfg.APIURL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With(zap.String("component", "strava_client")),
	}
}

// HTTPClient exposes the instrumented client so the identity exchange can
// share its timeout and transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// ListActivities fetches one page of activities that started strictly after
// the given epoch.
func (c *Client) ListActivities(ctx context.Context, accessToken string, after int64, page, perPage int) ([]models.Activity, error) {
	ctx, span := tracer.Start(ctx, "ListActivities")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("after", after),
		attribute.Int("page", page),
		attribute.Int("per_page", perPage),
	)

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))
	query.Set("after", strconv.FormatInt(after, 10))
	endpoint := fmt.Sprintf("%s/athlete/activities?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, ingesterr.Wrap(err, ingesterr.KindSourceAPI, "failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, ingesterr.Wrap(err, ingesterr.KindSourceAPI, "failed to wait for rate limiter")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, ingesterr.Wrap(err, ingesterr.KindSourceAPI, "failed to make request").
			WithDetail("page", page)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ingesterr.Wrap(err, ingesterr.KindSourceAPI, "failed to read response body").
			WithDetail("page", page)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("activity API returned an error",
			zap.Int("status", resp.StatusCode),
			zap.Int("page", page),
			zap.ByteString("body", truncate(body, 512)))
		return nil, ingesterr.Newf(ingesterr.KindSourceAPI, "API returned status %d", resp.StatusCode).
			WithDetail("page", page)
	}

	var activities []models.Activity
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, ingesterr.Wrap(err, ingesterr.KindSourceAPI, "failed to unmarshal response").
			WithDetail("page", page)
	}

	span.SetAttributes(attribute.Int("activities", len(activities)))
	return activities, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
