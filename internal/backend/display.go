package backend

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/view"
)

// displayValue maps a sample to 8 bits, clamping to [0, 1]
func displayValue(v float32) uint8 {
	switch {
	case v != v, v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(math.Round(float64(v) * 255))
}

// toGray converts the part r of a Mono32F image for display
func toGray(img *core.Image, r image.Rectangle) *image.Gray {
	r = r.Intersect(img.Bounds())
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		src := img.RowFloat32(y)[r.Min.X:r.Max.X]
		dst := out.Pix[(y-r.Min.Y)*out.Stride:]
		for x, v := range src {
			dst[x] = displayValue(v)
		}
	}
	return out
}

// toRGBA converts the part r of a Mono32F image to opaque grey RGBA
func toRGBA(img *core.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		src := img.RowFloat32(y)[r.Min.X:r.Max.X]
		dst := out.Pix[(y-r.Min.Y)*out.Stride:]
		for x, v := range src {
			g := displayValue(v)
			i := x * 4
			dst[i], dst[i+1], dst[i+2], dst[i+3] = g, g, g, 0xff
		}
	}
	return out
}

// background fills the part of the viewport not covered by the image
var background = color.Gray{Y: 0x40}

// selectionColor outlines the processed selection
var selectionColor = color.RGBA{R: 255, G: 64, B: 64, A: 255}

// outlineRects are the one-pixel edges of the selection r in viewport
// coordinates, cut to the target size
func outlineRects(r image.Rectangle, size image.Point) []image.Rectangle {
	var rects []image.Rectangle
	for _, edge := range view.Outline(r) {
		if edge = edge.Intersect(image.Rectangle{Max: size}); !edge.Empty() {
			rects = append(rects, edge)
		}
	}
	return rects
}

// markSelection draws the selection outline r into dst
func markSelection(dst *image.RGBA, r image.Rectangle) {
	src := image.NewUniform(selectionColor)
	for _, edge := range outlineRects(r, dst.Bounds().Size()) {
		draw.Draw(dst, edge, src, image.Point{}, draw.Src)
	}
}
