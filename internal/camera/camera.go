// Package camera wraps camera-control backends behind the small surface the
// capture loop needs: init, a named config tree, preview capture and exit.
package camera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bryanchriswhite/FocusAssist/internal/config"
)

var (
	// ErrNotFound is returned when a config tree lookup finds no widget
	ErrNotFound = errors.New("config setting not found")

	// ErrClosed is returned by calls made after Exit
	ErrClosed = errors.New("camera closed")
)

// Camera is a camera-control handle. Implementations are not required to be
// safe for concurrent use; the capture loop confines each handle to a single
// goroutine.
type Camera interface {
	// Init opens the connection to the camera
	Init(ctx context.Context) error

	// GetConfig reads the full configuration tree
	GetConfig(ctx context.Context) (*Widget, error)

	// SetConfig writes every widget marked as changed in the tree
	SetConfig(ctx context.Context, root *Widget) error

	// CapturePreview grabs one live-view frame as an encoded image file.
	// Nothing is written to the camera's storage.
	CapturePreview(ctx context.Context) ([]byte, error)

	// Exit releases the camera
	Exit(ctx context.Context) error

	// Name returns a human-readable backend name
	Name() string
}

// Open builds the camera backend selected by cfg
func Open(cfg config.CameraConfig) (Camera, error) {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond

	switch cfg.Backend {
	case config.BackendGPhoto2:
		return NewGPhoto2(cfg.Command, timeout)
	case config.BackendSynthetic:
		return NewSynthetic(cfg.SyntheticWidth, cfg.SyntheticHeight, cfg.SyntheticImageFormat), nil
	case config.BackendWebcam:
		return openWebcam(cfg.Device)
	default:
		return nil, fmt.Errorf("unknown camera backend: %s", cfg.Backend)
	}
}
