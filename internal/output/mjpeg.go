package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/FocusAssist/internal/logger"
	"github.com/disintegration/gift"
)

// MJPEGOutput streams preview frames as Motion JPEG over HTTP and keeps the
// latest encoded frame for single-image requests
type MJPEGOutput struct {
	config  Config
	running bool
	mu      sync.RWMutex

	// Latest encoded frame
	frameMu    sync.RWMutex
	latest     []byte
	lastUpdate time.Time

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	// Stats
	frameCount uint64
	dropped    uint64
	startTime  time.Time
}

// Stats describes the stream
type Stats struct {
	Running    bool      `json:"running"`
	Clients    int       `json:"clients"`
	Frames     uint64    `json:"frames"`
	Dropped    uint64    `json:"dropped"`
	FPS        float64   `json:"fps"`
	LastUpdate time.Time `json:"last_update"`
	Uptime     string    `json:"uptime"`
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config) *MJPEGOutput {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = jpeg.DefaultQuality
	}
	return &MJPEGOutput{
		config:  config,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start initializes the MJPEG output
// Note: The HTTP handler is registered separately via GetHTTPHandler()
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0
	m.dropped = 0

	logger.WithComponent("mjpeg").Info().
		Int("max_width", m.config.MaxWidth).
		Int("quality", m.config.Quality).
		Msg("MJPEG output started")
	return nil
}

// Stop cleanly shuts down the output and disconnects every client
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().Uint64("frames", m.frameCount).Msg("MJPEG output stopped")
	return nil
}

// WriteFrame encodes a frame and sends it to all connected clients
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	jpegData, err := m.encode(frame)
	if err != nil {
		return err
	}

	m.frameMu.Lock()
	m.latest = jpegData
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	var dropped uint64
	m.clientsMu.RLock()
	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
			// slow client, skip this frame
			dropped++
		}
	}
	m.clientsMu.RUnlock()

	m.mu.Lock()
	m.frameCount++
	m.dropped += dropped
	m.mu.Unlock()

	return nil
}

func (m *MJPEGOutput) encode(frame *image.RGBA) ([]byte, error) {
	var src image.Image = frame
	if w := frame.Bounds().Dx(); m.config.MaxWidth > 0 && w > m.config.MaxWidth {
		g := gift.New(gift.Resize(m.config.MaxWidth, 0, gift.LinearResampling))
		dst := image.NewRGBA(g.Bounds(frame.Bounds()))
		g.Draw(dst, frame)
		src = dst
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, src, &jpeg.Options{Quality: m.config.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// Latest returns the most recent encoded frame, or nil before the first one
func (m *MJPEGOutput) Latest() ([]byte, time.Time) {
	m.frameMu.RLock()
	defer m.frameMu.RUnlock()
	return m.latest, m.lastUpdate
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "MJPEG HTTP Stream"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// ClientCount returns the number of connected stream clients
func (m *MJPEGOutput) ClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Stats returns current stream statistics
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	running := m.running
	frameCount := m.frameCount
	dropped := m.dropped
	startTime := m.startTime
	m.mu.RUnlock()

	m.frameMu.RLock()
	lastUpdate := m.lastUpdate
	m.frameMu.RUnlock()

	stats := Stats{
		Running:    running,
		Clients:    m.ClientCount(),
		Frames:     frameCount,
		Dropped:    dropped,
		LastUpdate: lastUpdate,
	}
	if running && !startTime.IsZero() {
		elapsed := time.Since(startTime)
		if elapsed > 0 {
			stats.FPS = float64(frameCount) / elapsed.Seconds()
		}
		stats.Uptime = elapsed.Round(time.Second).String()
	}
	return stats
}

// addClient registers a stream client. Holding mu keeps registration and
// Stop from interleaving, so every registered channel gets closed.
func (m *MJPEGOutput) addClient() (chan []byte, int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.running {
		return nil, 0, false
	}

	ch := make(chan []byte, 2)
	m.clientsMu.Lock()
	m.clients[ch] = struct{}{}
	count := len(m.clients)
	m.clientsMu.Unlock()
	return ch, count, true
}

// GetHTTPHandler returns an http.Handler for the MJPEG stream
func (m *MJPEGOutput) GetHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frameChan, clientCount, ok := m.addClient()
		if !ok {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		log := logger.WithComponent("mjpeg")
		log.Info().Int("clients", clientCount).Str("remote", r.RemoteAddr).Msg("Stream client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Stream client disconnected")
		}()

		// Start with the latest frame so a paused capture still shows something
		if latest, _ := m.Latest(); latest != nil {
			if err := writePart(w, latest); err != nil {
				return
			}
		}

		for {
			select {
			case jpegData, ok := <-frameChan:
				if !ok {
					return
				}
				if err := writePart(w, jpegData); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	}
}

func writePart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// GetFrameHandler serves the latest frame as a single JPEG
func (m *MJPEGOutput) GetFrameHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest, updated := m.Latest()
		if latest == nil {
			http.Error(w, "no frame captured yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Last-Modified", updated.UTC().Format(http.TimeFormat))
		w.Write(latest)
	}
}

// GetStatsHandler returns an HTTP handler that reports stream statistics
func (m *MJPEGOutput) GetStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Stats())
	}
}
