package images

import (
	"image"
	"image/color"
	"image/draw"
)

// IsGrayscale reports whether img carries no color. Decoded JPEGs are checked
// on chroma planes directly, anything else pixel by pixel.
func IsGrayscale(img image.Image) bool {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	case *image.YCbCr:
		return neutralChroma(m.Cb) && neutralChroma(m.Cr)
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA); c.R != c.G || c.G != c.B {
				return false
			}
		}
	}
	return true
}

// Encoder rounding leaves chroma within a step of neutral for gray input.
func neutralChroma(plane []uint8) bool {
	for _, v := range plane {
		if v < 127 || v > 129 {
			return false
		}
	}
	return true
}

// ToGray converts image to single channel, JPEG encoder writes such images
// noticeably smaller.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	g := image.NewGray(img.Bounds())
	draw.Draw(g, g.Bounds(), img, img.Bounds().Min, draw.Src)
	return g
}
