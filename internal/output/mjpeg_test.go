package output

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 80, A: 255})
		}
	}
	return img
}

func TestWriteFrameRequiresStart(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	require.Error(t, m.WriteFrame(testFrame(4, 4)))

	require.NoError(t, m.Start())
	require.Error(t, m.Start())
	require.NoError(t, m.WriteFrame(testFrame(4, 4)))
	require.NoError(t, m.Stop())
	require.False(t, m.IsRunning())
}

func TestWriteFrameDownscales(t *testing.T) {
	m := NewMJPEGOutput(Config{MaxWidth: 100, Quality: 80})
	require.NoError(t, m.Start())
	defer m.Stop()

	require.NoError(t, m.WriteFrame(testFrame(400, 200)))

	latest, updated := m.Latest()
	require.NotNil(t, latest)
	require.False(t, updated.IsZero())

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(latest))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestWriteFrameKeepsSmallFrames(t *testing.T) {
	m := NewMJPEGOutput(Config{MaxWidth: 100})
	require.NoError(t, m.Start())
	defer m.Stop()

	require.NoError(t, m.WriteFrame(testFrame(64, 48)))
	latest, _ := m.Latest()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(latest))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
}

func TestFrameHandler(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	require.NoError(t, m.Start())
	defer m.Stop()

	rec := httptest.NewRecorder()
	m.GetFrameHandler()(rec, httptest.NewRequest(http.MethodGet, "/frame.jpg", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, m.WriteFrame(testFrame(8, 8)))
	rec = httptest.NewRecorder()
	m.GetFrameHandler()(rec, httptest.NewRequest(http.MethodGet, "/frame.jpg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	_, err := jpeg.Decode(rec.Body)
	require.NoError(t, err)
}

func TestStatsHandler(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	require.NoError(t, m.Start())
	defer m.Stop()
	require.NoError(t, m.WriteFrame(testFrame(8, 8)))
	require.NoError(t, m.WriteFrame(testFrame(8, 8)))

	rec := httptest.NewRecorder()
	m.GetStatsHandler()(rec, httptest.NewRequest(http.MethodGet, "/api/stream/stats", nil))

	var stats Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.True(t, stats.Running)
	assert.Equal(t, uint64(2), stats.Frames)
	assert.Zero(t, stats.Clients)
}

func TestStreamDeliversFrames(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	require.NoError(t, m.Start())
	defer m.Stop()

	srv := httptest.NewServer(m.GetHTTPHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace"))

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, m.WriteFrame(testFrame(8, 8)))

	buf := make([]byte, 7)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)
	require.Equal(t, "--frame", string(buf))
}

func TestStreamUnavailableWhenStopped(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	rec := httptest.NewRecorder()
	m.GetHTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStopClosesRegisteredClients(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	require.NoError(t, m.Start())

	ch, count, ok := m.addClient()
	require.True(t, ok)
	require.Equal(t, 1, count)

	require.NoError(t, m.Stop())
	_, open := <-ch
	require.False(t, open)

	_, _, ok = m.addClient()
	require.False(t, ok)
	require.Zero(t, m.ClientCount())
}

func TestStreamEndsOnStop(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	require.NoError(t, m.Start())

	srv := httptest.NewServer(m.GetHTTPHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, m.Stop())

	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
}
