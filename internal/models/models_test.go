package models

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    RunMode
		wantErr bool
	}{
		{name: "absent payload", payload: "", want: ModeIncremental},
		{name: "load_new", payload: base64.StdEncoding.EncodeToString([]byte("load_new")), want: ModeIncremental},
		{name: "load_all", payload: base64.StdEncoding.EncodeToString([]byte("load_all")), want: ModeFull},
		{name: "trailing newline", payload: base64.StdEncoding.EncodeToString([]byte("load_all\n")), want: ModeFull},
		{name: "unknown token", payload: base64.StdEncoding.EncodeToString([]byte("reload")), wantErr: true},
		{name: "not base64", payload: "%%%", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrigger(tt.payload)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ingesterr.Is(err, ingesterr.KindInvalidTrigger))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCursor(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "   ", want: 0},
		{raw: "1700000000", want: 1700000000},
		{raw: "1700000000.987654", want: 1700000000},
		{raw: "yesterday", wantErr: true},
		{raw: "-5", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseCursor(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			assert.True(t, ingesterr.Is(err, ingesterr.KindMissingConfiguration))
			continue
		}
		assert.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestFormatCursor(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 15, 500, time.UTC)
	assert.Equal(t, "1709296215", FormatCursor(ts))
	assert.Equal(t, "2024-03-01 12:30:15", CursorTime(ts.Unix()))
}

func TestDestination_String(t *testing.T) {
	d := Destination{ProjectID: "proj", Dataset: "fitness", Table: "activities"}
	assert.Equal(t, "proj.fitness.activities", d.String())
}
