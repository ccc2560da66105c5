package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every LESION_ variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, envPrefix) {
			t.Setenv(key, "")
			require.NoError(t, os.Unsetenv(key))
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, New(), cfg)
	assert.Equal(t, filepath.Join("assets", "model.onnx"), cfg.ModelPath())
	assert.Equal(t, filepath.Join("assets", "model_metadata.json"), cfg.MetadataPath())
	assert.Equal(t, 200*time.Millisecond, cfg.LoadTickInterval())
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "lesion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
assets_dir: /opt/lesion/assets
model_file: alternative_model.onnx
metadata_file: ""
load_tick_step: 25
load_tick_interval_ms: 0
metrics_enabled: false
log_format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "/opt/lesion/assets/alternative_model.onnx", cfg.ModelPath())
	assert.Empty(t, cfg.MetadataPath())
	assert.Equal(t, 25, cfg.LoadTickStep)
	assert.Equal(t, time.Duration(0), cfg.LoadTickInterval())
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "melanoma", cfg.IllustrationCategory)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "lesion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9090\"\nmodel_file: a.onnx\n"), 0o644))

	t.Setenv("LESION_CONFIG", path)
	t.Setenv("LESION_MODEL_FILE", "/models/b.onnx")
	t.Setenv("LESION_LOAD_TICK_STEP", "5")
	t.Setenv("LESION_MAX_UPLOAD_MB", "32")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "/models/b.onnx", cfg.ModelPath())
	assert.Equal(t, 5, cfg.LoadTickStep)
	assert.Equal(t, 32, cfg.MaxUploadMB)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("LESION_LOAD_TICK_STEP", "0")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Validate())

	cfg.ModelFile = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = New()
	cfg.LogFormat = "xml"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = New()
	cfg.LoadTickIntervalMS = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
