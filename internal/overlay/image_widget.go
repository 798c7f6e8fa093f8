package overlay

import (
	"image"
	"image/color"
)

// ImageWidget insets a small image, such as the histogram, with a border
type ImageWidget struct {
	*BaseWidget
	img    image.Image
	border int
}

// NewImageWidget creates an empty image widget
func NewImageWidget(id string, anchor Anchor) *ImageWidget {
	return &ImageWidget{
		BaseWidget: NewBaseWidget(id, anchor, 8, 0.85),
		border:     1,
	}
}

// SetImage replaces the image shown; nil hides the widget
func (w *ImageWidget) SetImage(img image.Image) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.img = img
}

// Render draws the image inset
func (w *ImageWidget) Render(dst *image.RGBA) error {
	if !w.IsEnabled() {
		return nil
	}

	w.mu.RLock()
	img := w.img
	border := w.border
	opacity := w.opacity
	w.mu.RUnlock()

	if img == nil {
		return nil
	}

	size := img.Bounds().Size().Add(image.Pt(2*border, 2*border))
	at := w.place(dst.Bounds(), size)

	DrawRectangle(dst, image.Rectangle{Min: at, Max: at.Add(size)}, color.Black, opacity)
	BlendImage(dst, img, at.Add(image.Pt(border, border)), opacity)
	return nil
}
