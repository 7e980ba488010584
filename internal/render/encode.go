package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"

	"github.com/local/flipbook/internal/layout"
	"github.com/local/flipbook/internal/tier"
)

const (
	// DefaultQuality matches the 0.92 JPEG quality of the page images.
	DefaultQuality = 92
	// DefaultThumbWidth is the pixel width of page thumbnails.
	DefaultThumbWidth = 160

	thumbQuality = 80
)

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// ClampScale reduces scale so that native×scale fits in maxSide on both axes.
func ClampScale(native layout.Size, scale float64, maxSide int) float64 {
	if maxSide <= 0 {
		maxSide = tier.MaxSide
	}
	w, h := native.Width*scale, native.Height*scale
	m := float64(maxSide)
	if w <= m && h <= m {
		return scale
	}
	return scale * math.Min(m/w, m/h)
}

// FitWithin downscales img when either side exceeds maxSide. The returned
// image is img itself when no scaling is needed.
func FitWithin(img *image.RGBA, maxSide int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	f := math.Min(float64(maxSide)/float64(w), float64(maxSide)/float64(h))
	nw := clampInt(int(math.Floor(float64(w)*f)), 1, maxSide)
	nh := clampInt(int(math.Floor(float64(h)*f)), 1, maxSide)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Thumbnail scales img down to width pixels and encodes it.
func Thumbnail(img image.Image, width int) ([]byte, error) {
	if width <= 0 {
		width = DefaultThumbWidth
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if width > b.Dx() {
		width = b.Dx()
	}
	height := clampInt(int(math.Round(float64(b.Dy())*float64(width)/float64(b.Dx()))), 1, math.MaxInt32)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return EncodeJPEG(dst, thumbQuality)
}

// Blank produces a white page bitmap of the given aspect, used only when no
// page of a document could be rendered during boot.
func Blank(page int, aspect layout.Size, width int) (*Bitmap, error) {
	if width <= 0 {
		width = DefaultThumbWidth
	}
	height := width
	if aspect.Valid() {
		height = clampInt(int(math.Round(float64(width)*aspect.Height/aspect.Width)), 1, tier.MaxSide)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	data, err := EncodeJPEG(img, DefaultQuality)
	if err != nil {
		return nil, err
	}
	thumb, err := Thumbnail(img, DefaultThumbWidth)
	if err != nil {
		return nil, err
	}
	return &Bitmap{Page: page, Tier: tier.None, Width: width, Height: height, Data: data, Thumb: thumb}, nil
}

// release drops the pixel buffer so it can be collected even if the image
// header is still referenced somewhere.
func release(img *image.RGBA) {
	if img != nil {
		img.Pix = nil
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
