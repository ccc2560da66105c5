package cli

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Brownie44l1/lesion-api/internal/classifier"
	"github.com/Brownie44l1/lesion-api/internal/loader"
	"github.com/Brownie44l1/lesion-api/internal/model/modeltest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "valid_nv_sample.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, 12, 12)), nil))
	require.NoError(t, f.Close())
	return path
}

func TestClassifyCommand_MissingModel(t *testing.T) {
	t.Setenv("LESION_LOAD_TICK_INTERVAL_MS", "0")
	t.Setenv("LESION_LOG_LEVEL", "error")
	dir := t.TempDir()
	sample := writeSample(t, dir)

	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"classify", "--assets", dir, sample})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 images not classified")
	assert.Contains(t, errOut.String(), "Model load failed")
	assert.Contains(t, errOut.String(), "model.onnx")
	assert.Contains(t, out.String(), "Model not loaded")
}

func TestClassifyAll(t *testing.T) {
	dir := t.TempDir()
	sample := writeSample(t, dir)
	corrupt := filepath.Join(dir, "corrupt.jpg")
	require.NoError(t, os.WriteFile(corrupt, []byte("nope"), 0o644))

	c := classifier.New(classifier.WithLogger(zerolog.Nop()), classifier.WithAssetsDir(dir))
	c.OnLoadOutcome(loader.Success(modeltest.New("nv")))

	var out bytes.Buffer
	err := classifyAll(&out, c, []string{sample, corrupt}, false, 3)
	require.Error(t, err)
	text := out.String()
	assert.Contains(t, text, "nv")
	assert.Contains(t, text, "confidence 90.00%")
	assert.Contains(t, text, "Classification failed")

	out.Reset()
	require.NoError(t, classifyAll(&out, c, []string{sample}, true, 3))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, sample, decoded["image"])
	assert.Equal(t, "nv", decoded["class"])
	assert.Equal(t, "medium", decoded["tier"])
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, Version, strings.TrimSpace(out.String()))
}
