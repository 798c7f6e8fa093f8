package output

import (
	"image"
)

// Output is a destination for preview frames: the MJPEG stream, the
// native window, and so on.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output. The frame may be shared with
	// other outputs and must not be modified.
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	// MaxWidth downscales wider frames; 0 keeps the camera size
	MaxWidth int

	// Quality is the JPEG quality, 1-100
	Quality int
}
