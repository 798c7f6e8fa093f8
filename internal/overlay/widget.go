// Package overlay draws readouts on top of preview frames before they are
// streamed.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
)

// Widget is something drawn on top of a frame
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Render draws the widget onto img
	Render(img *image.RGBA) error

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the widget should be rendered
	SetEnabled(enabled bool)
}

// Anchor is the frame corner a widget is placed against
type Anchor int

const (
	TopLeft Anchor = iota
	TopRight
	BottomLeft
	BottomRight
)

// BaseWidget provides common functionality for all widgets
type BaseWidget struct {
	mu      sync.RWMutex
	id      string
	enabled bool
	anchor  Anchor
	margin  int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, anchor Anchor, margin int, opacity float64) *BaseWidget {
	w := &BaseWidget{
		id:      id,
		enabled: true,
		anchor:  anchor,
		margin:  margin,
	}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = enabled
}

// SetAnchor moves the widget to another corner
func (w *BaseWidget) SetAnchor(anchor Anchor, margin int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.anchor = anchor
	w.margin = margin
}

// GetOpacity returns the widget's opacity
func (w *BaseWidget) GetOpacity() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.opacity
}

// SetOpacity sets the widget's opacity (0.0 to 1.0)
func (w *BaseWidget) SetOpacity(opacity float64) {
	if opacity < 0.0 {
		opacity = 0.0
	}
	if opacity > 1.0 {
		opacity = 1.0
	}
	w.mu.Lock()
	w.opacity = opacity
	w.mu.Unlock()
}

// place returns the top-left corner for a size x size box inside bounds
func (w *BaseWidget) place(bounds image.Rectangle, size image.Point) image.Point {
	w.mu.RLock()
	defer w.mu.RUnlock()

	p := image.Point{X: bounds.Min.X + w.margin, Y: bounds.Min.Y + w.margin}
	if w.anchor == TopRight || w.anchor == BottomRight {
		p.X = bounds.Max.X - w.margin - size.X
	}
	if w.anchor == BottomLeft || w.anchor == BottomRight {
		p.Y = bounds.Max.Y - w.margin - size.Y
	}
	return p
}

// BlendImage draws src onto dst with its top-left corner at pt, scaled by
// opacity. Parts outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, pt image.Point, opacity float64) {
	sb := src.Bounds()
	blend(dst, image.Rectangle{Min: pt, Max: pt.Add(sb.Size())}, src, sb.Min, opacity)
}

// DrawRectangle fills r with c at the given opacity
func DrawRectangle(dst *image.RGBA, r image.Rectangle, c color.Color, opacity float64) {
	blend(dst, r, image.NewUniform(c), image.Point{}, opacity)
}

func blend(dst *image.RGBA, r image.Rectangle, src image.Image, sp image.Point, opacity float64) {
	if opacity <= 0 {
		return
	}
	if opacity >= 1 {
		draw.Draw(dst, r, src, sp, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(dst, r, src, sp, mask, image.Point{}, draw.Over)
}
