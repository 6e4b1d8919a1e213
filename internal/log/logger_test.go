package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWithComponentAddsFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test-svc"})
	t.Cleanup(func() { Configure(Config{Level: "info"}) })

	logger := WithComponent("tracker")
	logger.Info().Str("event", "probe").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "test-svc", entry["service"])
	require.Equal(t, "tracker", entry["component"])
	require.Equal(t, "probe", entry["event"])
	require.Equal(t, "hello", entry["message"])
}

func TestConfigureLevelFromEnv(t *testing.T) {
	var buf bytes.Buffer
	t.Setenv("LOG_LEVEL", "warn")
	Configure(Config{Output: &buf})
	t.Cleanup(func() { Configure(Config{Level: "info"}) })

	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	logger := Base()
	logger.Info().Msg("dropped")
	require.Zero(t, buf.Len())
}
