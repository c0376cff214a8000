package models

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
)

// ParseCursor converts a stored epoch cursor into Unix seconds. A blank value
// means "no cursor yet" and yields 0. Fractional values written by older
// versions of the job are truncated.
func ParseCursor(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if v < 0 {
			return 0, ingesterr.Newf(ingesterr.KindMissingConfiguration, "negative cursor %q", raw)
		}
		return v, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, ingesterr.Newf(ingesterr.KindMissingConfiguration, "cursor %q is not a Unix timestamp", raw)
	}
	return int64(f), nil
}

// FormatCursor renders t as integer Unix seconds.
func FormatCursor(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

// CursorTime renders a cursor for log output.
func CursorTime(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format("2006-01-02 15:04:05")
}
