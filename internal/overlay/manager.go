package overlay

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/bryanchriswhite/FocusAssist/internal/logger"
)

// Manager holds overlay widgets and renders them in the order they were
// added
type Manager struct {
	widgets []Widget
	mu      sync.RWMutex
	enabled bool
}

// NewManager creates a new overlay manager
func NewManager() *Manager {
	return &Manager{enabled: true}
}

// AddWidget adds a widget on top of the existing ones
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.widgets {
		if w.ID() == widget.ID() {
			return fmt.Errorf("widget with ID %s already exists", widget.ID())
		}
	}

	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Debug().Str("widget", widget.ID()).Msg("Added widget")
	return nil
}

// GetWidget retrieves a widget by ID
func (m *Manager) GetWidget(id string) (Widget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.widgets {
		if w.ID() == id {
			return w, true
		}
	}
	return nil, false
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	logger.WithComponent("overlay").Info().Bool("enabled", enabled).Msg("Overlay toggled")
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws all enabled widgets onto img
func (m *Manager) Render(img *image.RGBA) error {
	if !m.IsEnabled() {
		return nil
	}

	m.mu.RLock()
	widgets := append([]Widget(nil), m.widgets...)
	m.mu.RUnlock()

	for _, widget := range widgets {
		if !widget.IsEnabled() {
			continue
		}
		if err := widget.Render(img); err != nil {
			logger.WithComponent("overlay").Warn().Err(err).Str("widget", widget.ID()).Msg("Failed to render widget")
		}
	}
	return nil
}

// Compose returns frame with the overlay drawn on a copy. frame itself is
// never modified; with the overlay disabled it is returned as is.
func (m *Manager) Compose(frame *image.RGBA) *image.RGBA {
	if !m.IsEnabled() {
		return frame
	}

	out := image.NewRGBA(frame.Bounds())
	draw.Draw(out, out.Bounds(), frame, frame.Bounds().Min, draw.Src)
	m.Render(out)
	return out
}
