package render

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var watermarkInk = color.NRGBA{R: 0, G: 0, B: 0, A: 70}

// Stamp draws text centred near the bottom of img, scaled to two fifths of the
// page width.
func Stamp(img *image.RGBA, text string) {
	if text == "" || img == nil {
		return
	}
	b := img.Bounds()
	if b.Dx() < 40 || b.Dy() < 40 {
		return
	}
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	adv := d.MeasureString(text).Ceil()
	m := face.Metrics()
	lineH := (m.Ascent + m.Descent).Ceil()
	if adv <= 0 || lineH <= 0 {
		return
	}

	mask := image.NewRGBA(image.Rect(0, 0, adv+4, lineH+4))
	d.Dst = mask
	d.Src = image.NewUniform(watermarkInk)
	d.Dot = fixed.Point26_6{X: fixed.I(2), Y: fixed.I(2) + m.Ascent}
	d.DrawString(text)

	tw := b.Dx() * 2 / 5
	th := tw * mask.Bounds().Dy() / mask.Bounds().Dx()
	if th < 1 {
		return
	}
	x0 := b.Min.X + (b.Dx()-tw)/2
	y0 := b.Max.Y - th - b.Dy()/20
	draw.BiLinear.Scale(img, image.Rect(x0, y0, x0+tw, y0+th), mask, mask.Bounds(), draw.Over, nil)
}
