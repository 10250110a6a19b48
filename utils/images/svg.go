package images

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Used when SVG viewBox has no size.
const defaultSVGSize = 1024

// Rasterizing SVG with huge viewBox would allocate enormous buffer.
var maxRasterDim = 8192

// SVGSize returns intrinsic dimensions of SVG image taken from its viewBox.
func SVGSize(data []byte) (int, int, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return intrinsic(icon)
}

func intrinsic(icon *oksvg.SvgIcon) (int, int, error) {
	w := int(math.Ceil(icon.ViewBox.W))
	h := int(math.Ceil(icon.ViewBox.H))
	if w <= 0 {
		w = defaultSVGSize
	}
	if h <= 0 {
		h = defaultSVGSize
	}
	return w, h, nil
}

// RasterizeSVG renders SVG on white background. When maxDim > 0 result fits
// into maxDim x maxDim box keeping aspect ratio, otherwise intrinsic size is
// used.
func RasterizeSVG(data []byte, maxDim int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	w, h, _ := intrinsic(icon)

	limit := maxRasterDim
	if maxDim > 0 {
		limit = min(limit, maxDim)
	}
	w, h = Fit(w, h, limit)

	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)
	return dst, nil
}

// Fit scales w x h down to fit into limit x limit box keeping aspect ratio.
// Sizes already inside the box are returned unchanged.
func Fit(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	s := min(float64(limit)/float64(w), float64(limit)/float64(h))
	return max(int(math.Round(float64(w)*s)), 1), max(int(math.Round(float64(h)*s)), 1)
}
