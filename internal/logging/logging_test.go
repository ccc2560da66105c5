package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = "json"
	cfg.Level = "warn"
	cfg.Out = &buf

	logger, closeFn, err := Setup(cfg)
	require.NoError(t, err)
	defer closeFn()

	logger.Info().Msg("dropped")
	logger.Warn().Str("path", "assets/model.onnx").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "assets/model.onnx", entry["path"])
	assert.Contains(t, entry, "time")

	buf.Reset()
	log.Warn().Msg("global")
	assert.Contains(t, buf.String(), "global")
}

func TestSetup_File(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "lesion.log")

	cfg := DefaultConfig()
	cfg.Out = &buf
	cfg.File = path

	logger, closeFn, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info().Msg("to both")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to both"`)
	assert.Contains(t, buf.String(), "to both")
}

func TestSetup_BadLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Level = "loud"
	_, _, err := Setup(cfg)
	assert.Error(t, err)
}
