package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"github.com/disintegration/gift"
)

// maxSyntheticBlur is the Gaussian sigma at the worst point of the focus sweep
const maxSyntheticBlur = 4.0

// Synthetic is a camera that renders a test scene whose sharpness sweeps in
// and out of focus from frame to frame. It needs no hardware.
type Synthetic struct {
	width, height int
	scene         *image.RGBA
	tree          *Widget
	frame         int
	open          bool
	closed        bool
}

// NewSynthetic creates a synthetic camera reporting imageFormat as its
// "imageformat" setting
func NewSynthetic(width, height int, imageFormat string) *Synthetic {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 424
	}

	root := NewWidget("", WidgetWindow)
	mainSection := root.AddChild(NewWidget("main", WidgetSection))

	img := mainSection.AddChild(NewWidget("imgsettings", WidgetSection))
	format := img.AddChild(&Widget{
		Name:    "imageformat",
		Label:   "Image Format",
		Type:    WidgetRadio,
		Value:   imageFormat,
		Choices: []string{"Large Fine JPEG", "Medium Fine JPEG", "Small Fine JPEG", "RAW", "RAW + Large Fine JPEG"},
	})
	if !format.hasChoice(imageFormat) {
		format.Choices = append(format.Choices, imageFormat)
	}

	capture := mainSection.AddChild(NewWidget("capturesettings", WidgetSection))
	capture.AddChild(&Widget{
		Name:    "capturesizeclass",
		Label:   "Capture Size Class",
		Type:    WidgetRadio,
		Value:   "Full Image",
		Choices: []string{"Full Image", "Thumbnail", "Compatibility Mode"},
	})

	return &Synthetic{
		width:  width,
		height: height,
		scene:  renderScene(width, height),
		tree:   root,
	}
}

// renderScene draws a checkerboard over a diagonal colour gradient
func renderScene(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	const cell = 16
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := uint8(40 + 160*x/w)
			g := uint8(40 + 160*y/h)
			b := uint8(120)
			if (x/cell+y/cell)%2 == 0 {
				r, g, b = r/3, g/3, b/3
			}
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}

// Name returns the backend name
func (s *Synthetic) Name() string {
	return "synthetic"
}

// Init opens the synthetic camera
func (s *Synthetic) Init(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	s.open = true
	return nil
}

// GetConfig returns a copy of the config tree
func (s *Synthetic) GetConfig(ctx context.Context) (*Widget, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return cloneWidget(s.tree, nil), nil
}

// SetConfig applies changed widgets by path
func (s *Synthetic) SetConfig(ctx context.Context, root *Widget) error {
	if err := s.check(); err != nil {
		return err
	}
	for _, w := range root.ChangedWidgets() {
		target, err := s.tree.ChildByName(w.Path())
		if err != nil {
			return err
		}
		if err := target.SetValue(w.Value); err != nil {
			return err
		}
	}
	s.tree.ClearChanged()
	root.ClearChanged()
	return nil
}

// Blur returns the Gaussian sigma used for the given frame number
func (s *Synthetic) Blur(frame int) float32 {
	return float32(maxSyntheticBlur * math.Abs(math.Sin(float64(frame)*math.Pi/16)))
}

// CapturePreview renders the next frame of the focus sweep as JPEG
func (s *Synthetic) CapturePreview(ctx context.Context) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var src image.Image = s.scene
	if sigma := s.Blur(s.frame); sigma > 0 {
		g := gift.New(gift.GaussianBlur(sigma))
		dst := image.NewRGBA(g.Bounds(s.scene.Bounds()))
		g.Draw(dst, s.scene)
		src = dst
	}
	s.frame++

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 92}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// Exit closes the camera
func (s *Synthetic) Exit(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.open = false
	return nil
}

func (s *Synthetic) check() error {
	if s.closed {
		return ErrClosed
	}
	if !s.open {
		return fmt.Errorf("camera not initialised")
	}
	return nil
}

func cloneWidget(w *Widget, parent *Widget) *Widget {
	c := *w
	c.parent = parent
	c.Choices = append([]string(nil), w.Choices...)
	c.Children = nil
	for _, child := range w.Children {
		c.Children = append(c.Children, cloneWidget(child, &c))
	}
	return &c
}
