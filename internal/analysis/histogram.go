package analysis

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// Histogram image geometry: one row per bin, bars grow rightwards.
const (
	HistogramWidth  = 100
	HistogramHeight = 256
	maxBarLength    = 98.0
)

// channelColors are the marker colours for R, G and B
var channelColors = [3]color.RGBA{
	{R: 0xff, A: 0xff},
	{G: 0xff, A: 0xff},
	{B: 0xff, A: 0xff},
}

// Histogram holds 256 intensity bins per channel (R, G, B)
type Histogram [3][256]int

// ClippingCounts is the number of saturated pixels per channel
type ClippingCounts [3]int

// ComputeHistogram counts pixel intensities per channel
func ComputeHistogram(img *image.RGBA) Histogram {
	var h Histogram
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			h[0][row[i]]++
			h[1][row[i+1]]++
			h[2][row[i+2]]++
		}
	}
	return h
}

// Clipping returns the raw count of the top bin per channel
func (h *Histogram) Clipping() ClippingCounts {
	return ClippingCounts{h[0][255], h[1][255], h[2][255]}
}

// Max returns the largest bin count of channel c
func (h *Histogram) Max(c int) int {
	m := 0
	for _, v := range h[c] {
		if v > m {
			m = v
		}
	}
	return m
}

// BarLength maps a bin count to a bar length on a log scale spanning five
// decades: the fullest bin reaches 98 pixels and bins 1e5 times emptier
// clamp to 0.
func BarLength(count, maxCount int) float64 {
	y := float64(1+count) / float64(1+maxCount)
	return maxBarLength * math.Max(0, 1+math.Log10(y)/5)
}

// RenderHistogram draws the histogram on a white 100x256 image. Each bin is
// row x; the end of its bar is marked with a two pixel dash in the channel
// colour so the three channels stay readable where they overlap.
func RenderHistogram(h Histogram) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, HistogramWidth, HistogramHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	for c := 0; c < 3; c++ {
		maxCount := h.Max(c)
		for x := 0; x < 256; x++ {
			col := int(BarLength(h[c][x], maxCount))
			img.SetRGBA(col, x, channelColors[c])
			img.SetRGBA(col+1, x, channelColors[c])
		}
	}
	return img
}
