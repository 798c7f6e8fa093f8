package overlay

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextWidget draws one or more lines of text on an optional background panel
type TextWidget struct {
	*BaseWidget
	lines     []string
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

// NewTextWidget creates a white-on-translucent-black text widget
func NewTextWidget(id string, anchor Anchor) *TextWidget {
	return &TextWidget{
		BaseWidget: NewBaseWidget(id, anchor, 8, 1.0),
		textColor:  color.RGBA{255, 255, 255, 255},
		bgColor:    &color.RGBA{0, 0, 0, 160},
		padding:    5,
	}
}

// SetLines replaces the text content
func (w *TextWidget) SetLines(lines ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines[:0:0], lines...)
}

// Lines returns the current text content
func (w *TextWidget) Lines() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.lines...)
}

// SetColor sets the text color
func (w *TextWidget) SetColor(c color.RGBA) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *TextWidget) SetBackground(c *color.RGBA) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bgColor = c
}

// Render draws the text widget
func (w *TextWidget) Render(img *image.RGBA) error {
	if !w.IsEnabled() {
		return nil
	}

	w.mu.RLock()
	lines := w.lines
	textColor := w.textColor
	bgColor := w.bgColor
	padding := w.padding
	opacity := w.opacity
	w.mu.RUnlock()

	if len(lines) == 0 {
		return nil
	}

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()

	textWidth := 0
	for _, line := range lines {
		if px := font.MeasureString(face, line).Ceil(); px > textWidth {
			textWidth = px
		}
	}

	size := image.Point{X: textWidth + 2*padding, Y: lineHeight*len(lines) + 2*padding}
	at := w.place(img.Bounds(), size)

	if bgColor != nil {
		DrawRectangle(img, image.Rectangle{Min: at, Max: at.Add(size)}, *bgColor, opacity)
	}

	textImg := image.NewRGBA(image.Rect(0, 0, textWidth, lineHeight*len(lines)))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(textColor),
		Face: face,
	}
	ascent := face.Metrics().Ascent.Ceil()
	for i, line := range lines {
		d.Dot = fixed.P(0, i*lineHeight+ascent)
		d.DrawString(line)
	}

	BlendImage(img, textImg, at.Add(image.Pt(padding, padding)), opacity)
	return nil
}
