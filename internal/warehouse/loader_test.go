package warehouse

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/models"
)

func TestWriteDisposition(t *testing.T) {
	assert.Equal(t, bigquery.WriteTruncate, WriteDisposition(models.ModeFull))
	assert.Equal(t, bigquery.WriteAppend, WriteDisposition(models.ModeIncremental))
}

func TestEncodeNDJSON(t *testing.T) {
	records := []models.Activity{
		models.Activity("{\n  \"id\": 1,\n  \"name\": \"Morning Run\"\n}"),
		models.Activity(`{"id":2,"map":{"summary_polyline":"abc"}}`),
	}

	payload, err := EncodeNDJSON(records)

	require.NoError(t, err)
	assert.Equal(t, "{\"id\":1,\"name\":\"Morning Run\"}\n{\"id\":2,\"map\":{\"summary_polyline\":\"abc\"}}\n", string(payload))
}

func TestEncodeNDJSON_OneRowPerRecord(t *testing.T) {
	records := make([]models.Activity, 610)
	for i := range records {
		records[i] = models.Activity(fmt.Sprintf("{\n  \"id\": %d,\n  \"name\": \"Activity %d\"\n}", i+1, i+1))
	}

	payload, err := EncodeNDJSON(records)
	require.NoError(t, err)

	rows := bytes.Split(bytes.TrimSuffix(payload, []byte("\n")), []byte("\n"))
	require.Len(t, rows, len(records))
	for i, row := range rows {
		assert.JSONEq(t, string(records[i]), string(row), "row %d", i)
		assert.Equal(t, fmt.Sprintf(`{"id":%d,"name":"Activity %d"}`, i+1, i+1), string(row))
	}
}

func TestEncodeNDJSON_InvalidRecord(t *testing.T) {
	_, err := EncodeNDJSON([]models.Activity{models.Activity(`{"id":`)})
	assert.ErrorContains(t, err, "record 0")
}

func TestBigQueryLoader_RejectsEmptyLoad(t *testing.T) {
	loader := NewBigQueryLoader(config.WarehouseConfig{}, "strava-ingest", zap.NewNop())

	jobID, err := loader.Load(context.Background(), models.Destination{ProjectID: "p", Dataset: "d", Table: "t"}, nil, models.ModeIncremental)

	assert.Empty(t, jobID)
	assert.True(t, ingesterr.Is(err, ingesterr.KindWarehouseLoad))
}

func TestLabelValue(t *testing.T) {
	assert.Equal(t, "strava-ingest", labelValue("Strava-Ingest"))
	assert.Equal(t, "load_all", labelValue("load_all"))
	assert.Equal(t, "nunis_ingest_fn", labelValue("nunis.ingest fn"))
}
