package analysis

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/disintegration/gift"
	"github.com/stretchr/testify/require"
)

func uniform(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func checkerboard(w, h, cell int, lo, hi uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := lo
			if (x/cell+y/cell)%2 == 0 {
				v = hi
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func blurred(src *image.RGBA, sigma float32) *image.RGBA {
	g := gift.New(gift.GaussianBlur(sigma))
	dst := image.NewRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}

func brighten(src *image.RGBA, delta uint8) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	for i := range src.Pix {
		if i%4 == 3 {
			dst.Pix[i] = 0xff
			continue
		}
		dst.Pix[i] = src.Pix[i] + delta
	}
	return dst
}

func TestFocusUniformIsZero(t *testing.T) {
	f := Focus(uniform(20, 10, color.RGBA{R: 10, G: 200, B: 30, A: 255}))
	require.Equal(t, FocusScore{}, f)
}

func TestFocusKnownValues(t *testing.T) {
	// vertical stripes alternating 0/100 in red only:
	// every horizontal difference is 100, every vertical one 0
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			v := uint8(0)
			if x%2 == 1 {
				v = 100
			}
			img.SetRGBA(x, y, color.RGBA{R: v, A: 255})
		}
	}

	f := Focus(img)
	require.InDelta(t, 100, f[0], 1e-9)
	require.InDelta(t, 0, f[1], 1e-9)
	require.InDelta(t, 0, f[2], 1e-9)
}

func TestFocusSumsBothDirections(t *testing.T) {
	// single bright pixel in the corner of a 2x2 image
	img := uniform(2, 2, color.RGBA{A: 255})
	img.SetRGBA(0, 0, color.RGBA{R: 60, G: 60, B: 60, A: 255})

	// horizontal pairs: (0,0)-(1,0)=60, (0,1)-(1,1)=0 -> rms = sqrt(3600/2)
	// vertical pairs:   (0,0)-(0,1)=60, (1,0)-(1,1)=0 -> same
	want := 2 * 42.42640687119285
	f := Focus(img)
	for c := 0; c < 3; c++ {
		require.InDelta(t, want, f[c], 1e-9)
	}
}

func TestFocusDegenerateImages(t *testing.T) {
	require.Equal(t, FocusScore{}, Focus(image.NewRGBA(image.Rect(0, 0, 0, 0))))

	// a single column has no horizontal pairs but vertical ones
	col := image.NewRGBA(image.Rect(0, 0, 1, 2))
	col.SetRGBA(0, 0, color.RGBA{R: 10, A: 255})
	col.SetRGBA(0, 1, color.RGBA{R: 30, A: 255})
	require.InDelta(t, 20, Focus(col)[0], 1e-9)
}

func TestFocusHonoursSubImageBounds(t *testing.T) {
	full := checkerboard(32, 32, 4, 20, 200)
	sub := full.SubImage(image.Rect(8, 8, 24, 24)).(*image.RGBA)
	require.Equal(t, Focus(checkerboard(16, 16, 4, 20, 200)), Focus(sub))
}

func TestFocusOrdersSharpness(t *testing.T) {
	sharp := checkerboard(64, 64, 8, 40, 180)
	soft := blurred(sharp, 2)

	fs := Focus(sharp)
	fb := Focus(soft)
	for c := 0; c < 3; c++ {
		require.Greater(t, fs[c], fb[c])
	}

	// a uniform brightness shift must not change the ordering
	fsb := Focus(brighten(sharp, 30))
	fbb := Focus(brighten(soft, 30))
	for c := 0; c < 3; c++ {
		require.InDelta(t, fs[c], fsb[c], 1e-9)
		require.Greater(t, fsb[c], fbb[c])
	}
}

func TestBarLength(t *testing.T) {
	require.InDelta(t, 98, BarLength(500, 500), 1e-9)
	require.InDelta(t, 0, BarLength(0, 1_000_000), 1e-9)
	// one decade below max is one fifth shorter
	require.InDelta(t, 98*0.8, BarLength(99, 999), 1e-9)

	prev := BarLength(0, 10000)
	for c := 1; c <= 10000; c++ {
		l := BarLength(c, 10000)
		require.GreaterOrEqual(t, l, prev)
		require.GreaterOrEqual(t, l, 0.0)
		require.LessOrEqual(t, l, 98.0)
		prev = l
	}
}

func TestHistogramAndClipping(t *testing.T) {
	img := uniform(4, 4, color.RGBA{R: 255, G: 128, B: 0, A: 255})
	img.SetRGBA(0, 0, color.RGBA{R: 0, G: 255, B: 255, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 0, G: 255, B: 0, A: 255})

	h := ComputeHistogram(img)
	require.Equal(t, 14, h[0][255])
	require.Equal(t, 2, h[0][0])
	require.Equal(t, 14, h[1][128])
	require.Equal(t, 2, h[1][255])
	require.Equal(t, 15, h[2][0])
	require.Equal(t, 1, h[2][255])

	require.Equal(t, ClippingCounts{14, 2, 1}, h.Clipping())
	require.Equal(t, 14, h.Max(0))
}

func TestRenderHistogram(t *testing.T) {
	var h Histogram
	h[0][10] = 1000
	h[1][255] = 1000
	h[2][0] = 1

	img := RenderHistogram(h)
	require.Equal(t, image.Rect(0, 0, HistogramWidth, HistogramHeight), img.Bounds())

	// full bins mark columns 98 and 99
	require.Equal(t, color.RGBA{R: 0xff, A: 0xff}, img.RGBAAt(98, 10))
	require.Equal(t, color.RGBA{R: 0xff, A: 0xff}, img.RGBAAt(99, 10))
	require.Equal(t, color.RGBA{G: 0xff, A: 0xff}, img.RGBAAt(99, 255))

	// blue: the full bin is row 0, empty bins against a max of 1 land at
	// 98 * (1 + log10(1/2)/5) = 92.1
	require.Equal(t, color.RGBA{B: 0xff, A: 0xff}, img.RGBAAt(98, 0))
	require.Equal(t, color.RGBA{B: 0xff, A: 0xff}, img.RGBAAt(92, 200))
	require.Equal(t, color.RGBA{B: 0xff, A: 0xff}, img.RGBAAt(93, 200))

	// untouched pixels stay white
	require.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, img.RGBAAt(50, 128))
}

func TestRenderHistogramClampsAtZero(t *testing.T) {
	var h Histogram
	h[0][128] = 1_000_000

	img := RenderHistogram(h)
	// five decades below the max: empty red bins land on columns 0 and 1,
	// then green and blue (all empty, max 0) overwrite at full length
	require.Equal(t, color.RGBA{R: 0xff, A: 0xff}, img.RGBAAt(0, 3))
	require.Equal(t, color.RGBA{R: 0xff, A: 0xff}, img.RGBAAt(1, 3))
	require.Equal(t, color.RGBA{B: 0xff, A: 0xff}, img.RGBAAt(98, 3))
}

func TestDecodeJPEG(t *testing.T) {
	src := checkerboard(32, 16, 4, 0, 255)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 95}))

	img, format, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, image.Rect(0, 0, 32, 16), img.Bounds())
	require.Equal(t, uint8(0xff), img.Pix[3])
}

func TestDecodePNGDropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 128})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, format, err := Decode(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, "png", format)
	require.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 255}, img.RGBAAt(0, 0))
	require.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, img.RGBAAt(1, 0))
}

func TestDecodeGarbage(t *testing.T) {
	_, _, err := Decode([]byte("not an image"))
	require.Error(t, err)
}
