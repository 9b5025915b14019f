// Selection rectangle bookkeeping and logical/scaled coordinate conversion
package core

import (
	"image"
	"math"
)

// ZoomNone is the zoom factor at which one image pixel maps to one screen pixel
const ZoomNone = 1.0

// RectFromPoints builds the normalized rectangle spanned by two corners
func RectFromPoints(a, b image.Point) image.Rectangle {
	return image.Rectangle{Min: a, Max: b}.Canon()
}

// ClampSelection normalizes r and limits it to the image bounds
func ClampSelection(r, bounds image.Rectangle) image.Rectangle {
	return r.Canon().Intersect(bounds)
}

// DefaultSelection is the centered fifth of an image of the given size
func DefaultSelection(width, height int) image.Rectangle {
	x := 4 * width / 10
	y := 4 * height / 10
	w := width / 5
	h := height / 5
	if w == 0 {
		w = width
		x = 0
	}
	if h == 0 {
		h = height
		y = 0
	}
	return image.Rect(x, y, x+w, y+h)
}

// ScaleRect converts a logical rectangle to view coordinates at zoom.
// Origin and size are rounded independently so that UnscaleRect at the
// same zoom recovers r within one logical pixel.
func ScaleRect(r image.Rectangle, zoom float64) image.Rectangle {
	if zoom == ZoomNone {
		return r
	}
	return scaleRect(r, zoom)
}

// UnscaleRect converts a view rectangle back to logical coordinates
func UnscaleRect(r image.Rectangle, zoom float64) image.Rectangle {
	if zoom == ZoomNone {
		return r
	}
	return scaleRect(r, 1/zoom)
}

func scaleRect(r image.Rectangle, factor float64) image.Rectangle {
	x := roundInt(float64(r.Min.X) * factor)
	y := roundInt(float64(r.Min.Y) * factor)
	w := roundInt(float64(r.Dx()) * factor)
	h := roundInt(float64(r.Dy()) * factor)
	return image.Rect(x, y, x+w, y+h)
}

// ScalePoint converts a logical point to view coordinates
func ScalePoint(p image.Point, zoom float64) image.Point {
	return image.Pt(roundInt(float64(p.X)*zoom), roundInt(float64(p.Y)*zoom))
}

// UnscalePoint converts a view point to logical coordinates, truncating
// toward the pixel that contains it
func UnscalePoint(p image.Point, zoom float64) image.Point {
	return image.Pt(int(math.Floor(float64(p.X)/zoom)), int(math.Floor(float64(p.Y)/zoom)))
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
