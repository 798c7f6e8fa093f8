package analysis

import (
	"image"
	"math"
)

// FocusScore is the per-channel (R, G, B) sharpness measure: the RMS of the
// difference between the image and itself shifted one pixel right, plus the
// same for a one pixel downward shift. Larger is sharper. The measure has
// local maxima, so it is only useful for fine tuning after a coarse visual
// focus.
type FocusScore [3]float64

// Focus computes the FocusScore of img
func Focus(img *image.RGBA) FocusScore {
	h := shiftRMS(img, 1, 0)
	v := shiftRMS(img, 0, 1)
	return FocusScore{h[0] + v[0], h[1] + v[1], h[2] + v[2]}
}

// shiftRMS returns the per-channel RMS of |img(x,y) - img(x-dx,y-dy)| over
// the region where both pixels exist.
func shiftRMS(img *image.RGBA, dx, dy int) [3]float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= dx || h <= dy {
		return [3]float64{}
	}

	var sum [3]float64
	for y := b.Min.Y + dy; y < b.Max.Y; y++ {
		for x := b.Min.X + dx; x < b.Max.X; x++ {
			p := img.PixOffset(x, y)
			q := img.PixOffset(x-dx, y-dy)
			for c := 0; c < 3; c++ {
				d := float64(img.Pix[p+c]) - float64(img.Pix[q+c])
				sum[c] += d * d
			}
		}
	}

	n := float64((w - dx) * (h - dy))
	return [3]float64{
		math.Sqrt(sum[0] / n),
		math.Sqrt(sum[1] / n),
		math.Sqrt(sum[2] / n),
	}
}
