package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/jobconfig"
)

var testCreds = jobconfig.Credentials{
	ClientID:     "12345",
	ClientSecret: "s3cr3t",
	RefreshToken: "refresh-0",
}

func newTestRefresher(url string) *Refresher {
	return NewRefresher(config.SourceConfig{
		TokenURL: url,
		Timeout:  30 * time.Second,
	}, nil, zap.NewNop())
}

func TestRefresher_Refresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "12345", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cr3t", r.PostForm.Get("client_secret"))
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-0", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer","access_token":"access-1","refresh_token":"refresh-1","expires_in":21600}`))
	}))
	defer server.Close()

	pair, err := newTestRefresher(server.URL).Refresh(context.Background(), testCreds)

	require.NoError(t, err)
	assert.Equal(t, "access-1", pair.AccessToken)
	assert.Equal(t, "refresh-1", pair.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(6*time.Hour), pair.ExpiresAt, time.Minute)
}

func TestRefresher_Refresh_KeepsTokenWhenNotRotated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-1","expires_in":3600}`))
	}))
	defer server.Close()

	pair, err := newTestRefresher(server.URL).Refresh(context.Background(), testCreds)

	require.NoError(t, err)
	assert.Equal(t, "refresh-0", pair.RefreshToken)
}

func TestRefresher_Refresh_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Bad Request","errors":[{"resource":"RefreshToken","code":"invalid"}]}`))
	}))
	defer server.Close()

	pair, err := newTestRefresher(server.URL).Refresh(context.Background(), testCreds)

	assert.Nil(t, pair)
	require.Error(t, err)
	assert.True(t, ingesterr.Is(err, ingesterr.KindIdentityExchange))
	assert.Equal(t, http.StatusBadRequest, ingesterr.DetailsOf(err)["status"])
}

func TestRefresher_Refresh_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":`))
	}))
	defer server.Close()

	_, err := newTestRefresher(server.URL).Refresh(context.Background(), testCreds)

	require.Error(t, err)
	assert.True(t, ingesterr.Is(err, ingesterr.KindIdentityExchange))
}

func TestRefresher_Refresh_MissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"refresh_token":"refresh-1"}`))
	}))
	defer server.Close()

	_, err := newTestRefresher(server.URL).Refresh(context.Background(), testCreds)

	require.Error(t, err)
	assert.True(t, ingesterr.Is(err, ingesterr.KindIdentityExchange))
}

func TestRefresher_Refresh_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestRefresher(url).Refresh(context.Background(), testCreds)

	require.Error(t, err)
	assert.True(t, ingesterr.Is(err, ingesterr.KindIdentityExchange))
}
