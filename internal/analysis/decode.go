// Package analysis holds the per-frame image measurements: decoding, the
// per-channel histogram and its rendering, clipping counts and the focus
// score.
package analysis

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode turns an encoded preview image into an opaque RGB raster. The alpha
// channel of the source, if any, is discarded rather than composited.
func Decode(data []byte) (*image.RGBA, string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return ToRGB(src), format, nil
}

// ToRGB copies src into a new RGBA image with every pixel fully opaque and
// bounds starting at the origin.
func ToRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if isOpaque(src) {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

func isOpaque(src image.Image) bool {
	switch src.(type) {
	case *image.YCbCr, *image.Gray, *image.CMYK:
		return true
	}
	if o, ok := src.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
