// Package auth exchanges the stored rotating refresh token for a short-lived
// access token.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/jobconfig"
	"github.com/cyderes/activity-ingestion-service/internal/logger"
)

// TokenPair is the result of one refresh-token exchange. RefreshToken
// supersedes the token that was presented and must be persisted before the
// next exchange.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Refresher performs the refresh_token grant against the identity endpoint.
type Refresher struct {
	tokenURL   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRefresher creates a refresher for the configured token URL.
func NewRefresher(cfg config.SourceConfig, httpClient *http.Client, log *zap.Logger) *Refresher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Refresher{
		tokenURL:   cfg.TokenURL,
		httpClient: httpClient,
		logger:     log.With(zap.String("component", "token_refresher")),
	}
}

// Refresh posts client_id, client_secret, grant_type=refresh_token and
// refresh_token as form parameters and returns the issued token pair.
func (r *Refresher) Refresh(ctx context.Context, creds jobconfig.Credentials) (*TokenPair, error) {
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  r.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	r.logger.Info("exchanging refresh token", logger.Secret("refresh_token", creds.RefreshToken))

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		wrapped := ingesterr.Wrap(err, ingesterr.KindIdentityExchange, "failed to refresh access token").
			WithDetail("token_url", r.tokenURL)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			wrapped = wrapped.WithDetail("status", retrieveErr.Response.StatusCode)
		}
		return nil, wrapped
	}
	if token.AccessToken == "" {
		return nil, ingesterr.New(ingesterr.KindIdentityExchange, "identity endpoint returned no access token")
	}

	if token.RefreshToken == creds.RefreshToken {
		r.logger.Warn("identity endpoint did not rotate the refresh token")
	}

	r.logger.Info("obtained access token",
		logger.Secret("access_token", token.AccessToken),
		logger.Secret("refresh_token", token.RefreshToken),
		zap.Time("expires_at", token.Expiry))

	return &TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}
