package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/FocusAssist/internal/camera"
	"github.com/bryanchriswhite/FocusAssist/internal/capture"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func startSynthetic(t *testing.T, imageFormat string) *capture.Handler {
	t.Helper()

	h := capture.New(camera.NewSynthetic(64, 48, imageFormat), capture.DefaultOptions())
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(h.Shutdown)
	return h
}

func measureLines(t *testing.T, h *capture.Handler, count int, continuous bool) ([]string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	err := measure(ctx, cmd, h, count, continuous)
	text := strings.TrimSpace(out.String())
	if text == "" {
		return nil, err
	}
	return strings.Split(text, "\n"), err
}

func TestMeasureOneShots(t *testing.T) {
	h := startSynthetic(t, "Large Fine JPEG")

	lines, err := measureLines(t, h, 3, false)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.True(t, strings.HasPrefix(strings.TrimSpace(line), []string{"1", "2", "3"}[i]))
		assert.Contains(t, line, "focus ")
		assert.Contains(t, line, "clipping ")
	}
	assert.Equal(t, uint64(3), h.Status().Captures)
}

func TestMeasureContinuous(t *testing.T) {
	h := startSynthetic(t, "Large Fine JPEG")

	lines, err := measureLines(t, h, 4, true)
	require.NoError(t, err)
	require.Len(t, lines, 4)
}

func TestMeasureRefusesRaw(t *testing.T) {
	h := startSynthetic(t, "RAW")

	lines, err := measureLines(t, h, 1, false)
	require.ErrorIs(t, err, capture.ErrRawFormat)
	assert.Empty(t, lines)
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := runRoot(t, "config", "path", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, path, strings.TrimSpace(out))

	_, err = runRoot(t, "config", "set", "server_port", "9090", "--config", path)
	require.NoError(t, err)

	out, err = runRoot(t, "config", "get", "server_port", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "9090", strings.TrimSpace(out))

	_, err = runRoot(t, "config", "set", "window.enabled", "true", "--config", path)
	require.NoError(t, err)

	out, err = runRoot(t, "config", "show", "--format", "json", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"server_port": 9090`)
	assert.Contains(t, out, `"enabled": true`)

	out, err = runRoot(t, "config", "show", "--format", "yaml", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "server_port: 9090")
}

func TestConfigSetRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := runRoot(t, "config", "set", "no_such_key", "1", "--config", path)
	assert.ErrorContains(t, err, "not found")

	_, err = runRoot(t, "config", "set", "server_port", "eighty", "--config", path)
	assert.ErrorContains(t, err, "invalid number")

	_, err = runRoot(t, "config", "set", "camera.backend", "polaroid", "--config", path)
	assert.ErrorContains(t, err, "polaroid")

	out, err := runRoot(t, "config", "get", "camera.backend", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "gphoto2", strings.TrimSpace(out))
}

func TestParseValue(t *testing.T) {
	v, err := parseValue(8080, "9090")
	require.NoError(t, err)
	assert.Equal(t, 9090, v)

	v, err = parseValue(false, "true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = parseValue("gphoto2", "synthetic")
	require.NoError(t, err)
	assert.Equal(t, "synthetic", v)

	_, err = parseValue(true, "maybe")
	assert.Error(t, err)
}
