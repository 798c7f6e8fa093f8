package display

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/bryanchriswhite/FocusAssist/internal/analysis"
	"github.com/disintegration/gift"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	panelWidth  = 200
	panelMargin = 8
	panelChars  = (panelWidth - panelMargin) / 7
)

var (
	panelText  = color.RGBA{220, 220, 220, 255}
	panelError = color.RGBA{255, 96, 96, 255}
)

// composeLayout draws the window contents: histogram and readings in a
// panel on the left, the frame scaled to fit on the right
func composeLayout(snap Snapshot, width, height int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	y := panelMargin
	if snap.Histogram != nil {
		r := image.Rect(panelMargin, y, panelMargin+analysis.HistogramWidth, y+analysis.HistogramHeight)
		draw.Draw(canvas, r, snap.Histogram, snap.Histogram.Bounds().Min, draw.Src)
	}
	y += analysis.HistogramHeight + panelMargin

	lines := []string{
		"Focus:", snap.FocusText,
		"",
		"Clipping:", snap.ClippingText,
		"",
		"State: " + snap.State.String(),
	}
	y = drawLines(canvas, panelMargin, y, lines, panelText)

	if snap.Err != nil {
		y = drawLines(canvas, panelMargin, y, append([]string{""}, wrap(snap.Err.Error(), panelChars, 4)...), panelError)
	}

	drawLines(canvas, panelMargin, y, []string{
		"",
		"Ctrl+G  capture",
		"Ctrl+R  continuous",
		"Ctrl+Q  quit",
	}, panelText)

	area := image.Rect(panelWidth, 0, width, height)
	if snap.Frame != nil && area.Dx() > 0 && area.Dy() > 0 {
		g := gift.New(gift.ResizeToFit(area.Dx(), area.Dy(), gift.LinearResampling))
		fitted := image.NewRGBA(g.Bounds(snap.Frame.Image.Bounds()))
		g.Draw(fitted, snap.Frame.Image)

		size := fitted.Bounds().Size()
		at := area.Min.Add(area.Size().Sub(size).Div(2))
		draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(size)}, fitted, image.Point{}, draw.Src)
	}

	return canvas
}

// drawLines writes lines top-down from (x, y) and returns the y below them
func drawLines(dst *image.RGBA, x, y int, lines []string, c color.Color) int {
	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()
	ascent := face.Metrics().Ascent.Ceil()

	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	for _, line := range lines {
		d.Dot = fixed.P(x, y+ascent)
		d.DrawString(line)
		y += lineHeight
	}
	return y
}

// wrap splits s into at most limit lines of n characters
func wrap(s string, n, limit int) []string {
	var out []string
	for len(s) > 0 && len(out) < limit {
		if len(s) <= n {
			out = append(out, s)
			break
		}
		out = append(out, s[:n])
		s = s[n:]
	}
	return out
}
