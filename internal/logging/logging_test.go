package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, Setup("warn", "json", &buf))

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Str("peer", "cnc:23").Msg("connect failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "cnc:23", entry["peer"])
	assert.Equal(t, "connect failed", entry["message"])
}

func TestSetup_Console(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, Setup("DEBUG", "console", &buf))

	log.Debug().Int("x", 12).Msg("status")
	assert.Contains(t, buf.String(), "status")
	assert.Contains(t, buf.String(), "x=12")
}

func TestSetup_Errors(t *testing.T) {
	assert.Error(t, Setup("loud", "json", nil))
	assert.Error(t, Setup("info", "xml", nil))
}
