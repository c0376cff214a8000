package jobconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/models"
	"github.com/cyderes/activity-ingestion-service/internal/objstore"
)

const sampleConfig = `[strava_client]
strava_client_id = 12345
strava_client_secret = s3cr3t
strava_refresh_token = refresh-0
strava_current_epoch =

[gcp_dwh]
gcp_project_id = fitness-project
gcp_bq_dataset = strava
gcp_bq_table = activities
`

func TestParse(t *testing.T) {
	file, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, Credentials{
		ClientID:     "12345",
		ClientSecret: "s3cr3t",
		RefreshToken: "refresh-0",
	}, file.Credentials())
	assert.Equal(t, "", file.Cursor())
	assert.Equal(t, models.Destination{
		ProjectID: "fitness-project",
		Dataset:   "strava",
		Table:     "activities",
	}, file.Destination())
}

func TestParse_MissingSectionsAndKeys(t *testing.T) {
	_, err := Parse([]byte(`[strava_client]
strava_client_id = 1
strava_client_secret =
strava_refresh_token = r
`))
	require.Error(t, err)
	assert.True(t, ingesterr.Is(err, ingesterr.KindMissingConfiguration))
	assert.Equal(t, []string{
		"strava_client.strava_client_secret",
		"strava_client.strava_current_epoch",
		"gcp_dwh",
	}, ingesterr.DetailsOf(err)["missing"])
}

func TestFile_RoundTrip(t *testing.T) {
	file, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	file.SetRefreshToken("refresh-1")
	file.SetCursor("1709296215")

	data, err := file.Bytes()
	require.NoError(t, err)

	reparsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", reparsed.Credentials().RefreshToken)
	assert.Equal(t, "1709296215", reparsed.Cursor())
	assert.Equal(t, file.Destination(), reparsed.Destination())
}

func TestStore_LoadSave(t *testing.T) {
	ctx := context.Background()
	objects := objstore.NewMemoryStore()
	_, err := objects.Write(ctx, "config/strava.ini", []byte(sampleConfig), objstore.WriteOptions{})
	require.NoError(t, err)

	store := NewStore(objects, "config/strava.ini", zap.NewNop())

	file, err := store.Load(ctx)
	require.NoError(t, err)
	loadedAt := file.Version()

	file.SetRefreshToken("refresh-1")
	require.NoError(t, store.Save(ctx, file))
	assert.NotEqual(t, loadedAt, file.Version())

	// A second save within the same run uses the advanced version.
	file.SetCursor("1700000000")
	require.NoError(t, store.Save(ctx, file))

	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", again.Credentials().RefreshToken)
	assert.Equal(t, "1700000000", again.Cursor())
}

func TestStore_SaveDetectsConcurrentWriter(t *testing.T) {
	ctx := context.Background()
	objects := objstore.NewMemoryStore()
	_, err := objects.Write(ctx, "strava.ini", []byte(sampleConfig), objstore.WriteOptions{})
	require.NoError(t, err)

	store := NewStore(objects, "strava.ini", zap.NewNop())
	first, err := store.Load(ctx)
	require.NoError(t, err)
	second, err := store.Load(ctx)
	require.NoError(t, err)

	second.SetRefreshToken("refresh-from-other-run")
	require.NoError(t, store.Save(ctx, second))

	first.SetRefreshToken("refresh-stale")
	err = store.Save(ctx, first)
	require.Error(t, err)
	assert.True(t, ingesterr.Is(err, ingesterr.KindStorageTransaction))
	assert.ErrorIs(t, err, objstore.ErrPreconditionFailed)
	assert.Equal(t, true, ingesterr.DetailsOf(err)["concurrent_run"])
}

func TestStore_LoadMissingObject(t *testing.T) {
	store := NewStore(objstore.NewMemoryStore(), "absent.ini", zap.NewNop())

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.True(t, ingesterr.Is(err, ingesterr.KindMissingConfiguration))
}
