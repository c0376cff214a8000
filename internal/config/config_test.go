package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GCS_BUCKET", "ingest-bucket")
	t.Setenv("CONFIG_FILE", "config/strava.ini")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ingest-bucket", cfg.ObjectStore.Bucket)
	assert.Equal(t, "config/strava.ini", cfg.ObjectStore.ConfigFile)
	assert.Equal(t, "gcs", cfg.ObjectStore.Type)
	assert.Equal(t, "strava-ingest", cfg.Ingestion.JobName)
	assert.Equal(t, CursorPolicyFetchEnd, cfg.Ingestion.CursorPolicy)
	assert.Equal(t, 200, cfg.Source.PageSize)
	assert.Equal(t, 1000, cfg.Source.MaxPages)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
	assert.Equal(t, "https://www.strava.com/api/v3", cfg.Source.APIURL)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Warehouse.WaitForJob)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("GCS_BUCKET", "b")
	t.Setenv("CONFIG_FILE", "c.ini")
	t.Setenv("API_TIMEOUT", "5s")
	t.Setenv("PAGE_SIZE", "50")
	t.Setenv("CURSOR_POLICY", "LATEST_ACTIVITY")
	t.Setenv("STORAGE_TYPE", "PostgreSQL")
	t.Setenv("WAREHOUSE_WAIT", "true")
	t.Setenv("STRAVA_API_URL", "http://localhost:9000/api/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 50, cfg.Source.PageSize)
	assert.Equal(t, CursorPolicyLatestActivity, cfg.Ingestion.CursorPolicy)
	assert.Equal(t, "postgresql", cfg.Storage.Type)
	assert.True(t, cfg.Warehouse.WaitForJob)
	assert.Equal(t, "http://localhost:9000/api", cfg.Source.APIURL)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("GCS_BUCKET", "")
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.True(t, ingesterr.Is(err, ingesterr.KindMissingConfiguration))
	assert.Equal(t, []string{"GCS_BUCKET", "CONFIG_FILE"}, ingesterr.DetailsOf(err)["missing"])
}

func TestLoad_InvalidEnumerations(t *testing.T) {
	t.Setenv("GCS_BUCKET", "b")
	t.Setenv("CONFIG_FILE", "c.ini")

	t.Run("cursor policy", func(t *testing.T) {
		t.Setenv("CURSOR_POLICY", "max_id")
		_, err := Load()
		assert.ErrorContains(t, err, "unsupported cursor policy")
	})

	t.Run("compression", func(t *testing.T) {
		t.Setenv("ARCHIVE_COMPRESSION", "zstd")
		_, err := Load()
		assert.ErrorContains(t, err, "unsupported archive compression")
	})

	t.Run("page size", func(t *testing.T) {
		t.Setenv("PAGE_SIZE", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "page size must be positive")
	})
}
