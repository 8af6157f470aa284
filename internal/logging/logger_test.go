package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"egiro-gateway/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	logger, err := New(config.LoggingConfig{Level: "info", Encoding: "json", File: path, MaxSizeMB: 1}, "egiro-gateway", "sandbox")
	require.NoError(t, err)

	logger.Debug("dropped")
	logger.Info("kept")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "egiro-gateway", entry["service"])
	assert.Equal(t, "sandbox", entry["environment"])
}

func TestNew_InvalidSettings(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"}, "egiro-gateway", "sandbox")
	assert.Error(t, err)

	_, err = New(config.LoggingConfig{Level: "info", Encoding: "xml"}, "egiro-gateway", "sandbox")
	assert.Error(t, err)
}

func TestNew_Console(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "debug", Encoding: "console"}, "egiro-gateway", "sandbox")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
