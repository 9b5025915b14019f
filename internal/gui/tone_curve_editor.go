// Tone curve editor: histogram of the sharpened selection with the curve
// drawn over it
package gui

import (
	"image"
	"math"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/gogpu/gg"
	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/metrics"
)

// pickRadius is how close, in curve units, a pointer must be to grab a
// control point
const pickRadius = 0.04

var (
	curveBackground = gg.RGBA{R: 0.12, G: 0.12, B: 0.12, A: 1}
	histogramFill   = [4]float64{0.45, 0.45, 0.45, 1}
	curveStroke     = [4]float64{1, 0.85, 0.2, 1}
	pointFill       = [4]float64{1, 1, 1, 1}
)

// ToneCurveEditor shows a histogram and lets the control points of the
// curve be added, dragged and removed
type ToneCurveEditor struct {
	widget.BaseWidget

	logger *logrus.Logger
	raster *canvas.Raster
	ctx    *gg.Context

	curve     core.ToneCurve
	histogram metrics.Histogram
	logScale  bool

	dragIndex int

	onChanged func(core.ToneCurve)
}

func NewToneCurveEditor(logger *logrus.Logger) *ToneCurveEditor {
	e := &ToneCurveEditor{
		logger:    logger,
		curve:     *core.NewToneCurve(),
		dragIndex: -1,
	}
	e.ExtendBaseWidget(e)
	return e
}

func (e *ToneCurveEditor) CreateRenderer() fyne.WidgetRenderer {
	e.raster = canvas.NewRaster(e.draw)
	return &imageViewRenderer{raster: e.raster}
}

// SetChangedCallback receives every edit of the curve
func (e *ToneCurveEditor) SetChangedCallback(fn func(core.ToneCurve)) {
	e.onChanged = fn
}

// SetCurve shows tc without reporting a change. A drag in progress
// survives as long as the points keep their count.
func (e *ToneCurveEditor) SetCurve(tc core.ToneCurve) {
	if tc.GammaMode || len(tc.Points) != len(e.curve.Points) {
		e.dragIndex = -1
	}
	e.curve = *tc.Clone()
	e.refresh()
}

func (e *ToneCurveEditor) SetHistogram(h metrics.Histogram) {
	e.histogram = h
	e.refresh()
}

func (e *ToneCurveEditor) SetLogScale(log bool) {
	e.logScale = log
	e.refresh()
}

func (e *ToneCurveEditor) refresh() {
	if e.raster != nil {
		e.raster.Refresh()
	}
}

func (e *ToneCurveEditor) draw(w, h int) image.Image {
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	if e.ctx == nil {
		e.ctx = gg.NewContext(w, h)
	} else if e.ctx.Width() != w || e.ctx.Height() != h {
		if err := e.ctx.Resize(w, h); err != nil {
			e.logger.WithError(err).Error("GUI: tone curve canvas resize failed")
		}
	}
	dc := e.ctx
	dc.ClearWithColor(curveBackground)
	fw, fh := float64(w), float64(h)

	if bins := e.histogram.Normalized(e.logScale); len(bins) > 0 {
		dc.SetRGBA(histogramFill[0], histogramFill[1], histogramFill[2], histogramFill[3])
		bw := fw / float64(len(bins))
		for i, v := range bins {
			bh := v * fh
			dc.DrawRectangle(float64(i)*bw, fh-bh, math.Max(bw, 1), bh)
		}
		if err := dc.Fill(); err != nil {
			e.logger.WithError(err).Debug("GUI: histogram fill failed")
		}
	}

	eval, err := e.curve.Evaluator()
	if err != nil {
		return dc.Image()
	}
	dc.SetRGBA(curveStroke[0], curveStroke[1], curveStroke[2], curveStroke[3])
	dc.SetLineWidth(2)
	for x := 0; x <= w; x++ {
		y := fh - eval(float64(x)/fw)*fh
		if x == 0 {
			dc.MoveTo(0, y)
		} else {
			dc.LineTo(float64(x), y)
		}
	}
	if err := dc.Stroke(); err != nil {
		e.logger.WithError(err).Debug("GUI: curve stroke failed")
	}

	if !e.curve.GammaMode {
		dc.SetRGBA(pointFill[0], pointFill[1], pointFill[2], pointFill[3])
		for _, p := range e.curve.Points {
			dc.DrawCircle(float64(p.X)*fw, fh-float64(p.Y)*fh, 4)
		}
		if err := dc.Fill(); err != nil {
			e.logger.WithError(err).Debug("GUI: point fill failed")
		}
	}
	return dc.Image()
}

// toCurve maps a widget position to curve coordinates
func (e *ToneCurveEditor) toCurve(pos fyne.Position) (float32, float32) {
	size := e.Size()
	if size.Width <= 0 || size.Height <= 0 {
		return 0, 0
	}
	x := min(max(pos.X/size.Width, 0), 1)
	y := min(max(1-pos.Y/size.Height, 0), 1)
	return x, y
}

// nearest returns the index of the control point closest to (x, y)
// within pickRadius, or -1
func (e *ToneCurveEditor) nearest(x, y float32) int {
	best, bestDist := -1, pickRadius
	for i, p := range e.curve.Points {
		d := math.Hypot(float64(p.X-x), float64(p.Y-y))
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Tapped adds a control point
func (e *ToneCurveEditor) Tapped(ev *fyne.PointEvent) {
	if e.curve.GammaMode {
		return
	}
	x, y := e.toCurve(ev.Position)
	if e.nearest(x, y) >= 0 {
		return
	}
	e.curve.AddPoint(x, y)
	e.changed()
}

// TappedSecondary removes the control point under the pointer
func (e *ToneCurveEditor) TappedSecondary(ev *fyne.PointEvent) {
	if e.curve.GammaMode {
		return
	}
	if i := e.nearest(e.toCurve(ev.Position)); i >= 0 && e.curve.RemovePoint(i) {
		e.changed()
	}
}

// Dragged moves the grabbed control point, keeping it between its
// neighbours
func (e *ToneCurveEditor) Dragged(ev *fyne.DragEvent) {
	if e.curve.GammaMode {
		return
	}
	x, y := e.toCurve(ev.Position)
	if e.dragIndex < 0 {
		start := ev.Position.Subtract(ev.Dragged)
		if e.dragIndex = e.nearest(e.toCurve(start)); e.dragIndex < 0 {
			return
		}
	}
	pts := e.curve.Points
	i := e.dragIndex
	const gap = 1e-3
	if i > 0 {
		x = max(x, pts[i-1].X+gap)
	}
	if i < len(pts)-1 {
		x = min(x, pts[i+1].X-gap)
	}
	pts[i] = core.CurvePoint{X: x, Y: y}
	e.changed()
}

func (e *ToneCurveEditor) DragEnd() {
	e.dragIndex = -1
}

func (e *ToneCurveEditor) changed() {
	e.refresh()
	if e.onChanged != nil {
		e.onChanged(*e.curve.Clone())
	}
}
