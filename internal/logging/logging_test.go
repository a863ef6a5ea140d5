package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/ratehub/internal/config"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.Log{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("rate provider attempt failed", "provider", "bog")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "rate provider attempt failed", entry["msg"])
	assert.Equal(t, "bog", entry["provider"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.Log{Level: "chatty", Format: "logfmt"})

	logger.Debug("hidden")
	logger.Info("shown", "component", "rates")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "component=rates")
}
