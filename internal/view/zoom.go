// Zoom factor arithmetic
package view

import (
	"image"
	"math"

	"astro-postprocessor/internal/core"
)

const (
	ZoomStep = 1.5
	ZoomMin  = 0.05
	ZoomMax  = 20.0
	// zoom factors closer than this to ZoomNone snap to it
	ZoomSnapEpsilon = 0.1
)

// ClampZoom limits z to [ZoomMin, ZoomMax] and snaps it to core.ZoomNone
// when close enough
func ClampZoom(z float64) float64 {
	z = math.Max(ZoomMin, math.Min(ZoomMax, z))
	if math.Abs(z-core.ZoomNone) < ZoomSnapEpsilon {
		return core.ZoomNone
	}
	return z
}

func ZoomIn(z float64) float64  { return ClampZoom(z * ZoomStep) }
func ZoomOut(z float64) float64 { return ClampZoom(z / ZoomStep) }

// FitZoom returns the zoom factor at which img fits entirely in view
func FitZoom(img, view image.Point) float64 {
	if img.X <= 0 || img.Y <= 0 || view.X <= 0 || view.Y <= 0 {
		return core.ZoomNone
	}
	return math.Min(float64(view.X)/float64(img.X), float64(view.Y)/float64(img.Y))
}
