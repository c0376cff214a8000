package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/activity-ingestion-service/internal/config"
)

func TestNew(t *testing.T) {
	log, err := New(config.LogConfig{Level: "debug", Encoding: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(-1))

	_, err = New(config.LogConfig{Level: "loud"})
	assert.ErrorContains(t, err, "invalid log level")
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", Mask(""))
	assert.Equal(t, "****", Mask("abcd"))
	assert.Equal(t, "abcd****", Mask("abcdef0123456789"))
	assert.Equal(t, "abcd****", Secret("refresh_token", "abcdefgh").String)
}
