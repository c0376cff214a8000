package models

import (
	"encoding/base64"
	"strings"

	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
)

// RunMode selects between incremental and full ingestion.
type RunMode string

const (
	// ModeIncremental fetches records after the stored cursor and appends them.
	ModeIncremental RunMode = "load_new"
	// ModeFull ignores the cursor, fetches the entire history and replaces
	// the destination table.
	ModeFull RunMode = "load_all"
)

// IsFull reports whether the mode replaces the destination.
func (m RunMode) IsFull() bool {
	return m == ModeFull
}

// ParseMode validates a plain mode token. An empty token means incremental.
func ParseMode(token string) (RunMode, error) {
	switch RunMode(strings.TrimSpace(token)) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", ingesterr.Newf(ingesterr.KindInvalidTrigger, "unknown run mode %q", token).
			WithDetail("accepted", []RunMode{ModeIncremental, ModeFull})
	}
}

// ParseTrigger decodes a base64 trigger payload into a run mode. An absent
// payload defaults to incremental.
func ParseTrigger(payload string) (RunMode, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return ModeIncremental, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", ingesterr.Wrap(err, ingesterr.KindInvalidTrigger, "trigger payload is not valid base64")
	}
	return ParseMode(string(decoded))
}
