//go:build gocv

package camera

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"
)

// Webcam captures preview frames from a V4L/UVC device through OpenCV.
// Webcams expose no config tree, so every lookup reports ErrNotFound.
type Webcam struct {
	device  int
	capture *gocv.VideoCapture
	frame   gocv.Mat
	closed  bool
}

func openWebcam(device int) (Camera, error) {
	return &Webcam{device: device}, nil
}

// Name returns the backend name
func (w *Webcam) Name() string {
	return fmt.Sprintf("webcam:%d", w.device)
}

// Init opens the video device
func (w *Webcam) Init(ctx context.Context) error {
	if w.closed {
		return ErrClosed
	}
	vc, err := gocv.VideoCaptureDevice(w.device)
	if err != nil {
		return fmt.Errorf("failed to open webcam %d: %w", w.device, err)
	}
	w.capture = vc
	w.frame = gocv.NewMat()
	return nil
}

// GetConfig returns an empty tree
func (w *Webcam) GetConfig(ctx context.Context) (*Widget, error) {
	if w.closed {
		return nil, ErrClosed
	}
	return NewWidget("", WidgetWindow), nil
}

// SetConfig is a no-op; there is nothing to write
func (w *Webcam) SetConfig(ctx context.Context, root *Widget) error {
	if w.closed {
		return ErrClosed
	}
	root.ClearChanged()
	return nil
}

// CapturePreview reads one frame and encodes it as JPEG
func (w *Webcam) CapturePreview(ctx context.Context) ([]byte, error) {
	if w.closed {
		return nil, ErrClosed
	}
	if w.capture == nil {
		return nil, fmt.Errorf("webcam not initialised")
	}
	if ok := w.capture.Read(&w.frame); !ok || w.frame.Empty() {
		return nil, fmt.Errorf("failed to read frame from webcam %d", w.device)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, w.frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

// Exit closes the device
func (w *Webcam) Exit(ctx context.Context) error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true
	if w.capture == nil {
		return nil
	}
	w.frame.Close()
	return w.capture.Close()
}
