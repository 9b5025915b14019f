// Image view widget: shows the backend frame and turns pointer input into
// selection, scroll and zoom
package gui

import (
	"image"
	"image/color"
	"image/draw"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/session"
	"astro-postprocessor/internal/view"
)

var rubberBandColor = color.RGBA{R: 64, G: 255, B: 64, A: 255}

// ImageView is the image panel of the main window
type ImageView struct {
	widget.BaseWidget

	session *session.Session
	logger  *logrus.Logger

	raster *canvas.Raster

	// pixels per fyne unit, known after the first frame
	scale    float32
	pixels   image.Point
	dragging desktop.MouseButton
	lastPos  image.Point

	onViewChanged func()
}

func NewImageView(s *session.Session, logger *logrus.Logger) *ImageView {
	iv := &ImageView{session: s, logger: logger, scale: 1}
	iv.ExtendBaseWidget(iv)
	return iv
}

func (iv *ImageView) CreateRenderer() fyne.WidgetRenderer {
	iv.raster = canvas.NewRaster(iv.frame)
	return &imageViewRenderer{raster: iv.raster}
}

// SetViewChangedCallback is called after zoom or scroll changed
func (iv *ImageView) SetViewChangedCallback(fn func()) {
	iv.onViewChanged = fn
}

// Invalidate schedules a redraw. The raster has no partial repaint, so
// the rectangles only matter for logging.
func (iv *ImageView) Invalidate(rects []image.Rectangle) {
	if iv.raster == nil {
		return
	}
	iv.logger.WithField("rects", len(rects)).Trace("GUI: redraw requested")
	iv.raster.Refresh()
}

// frame renders one viewport-sized image
func (iv *ImageView) frame(w, h int) image.Image {
	size := iv.Size()
	if size.Width > 0 {
		iv.scale = float32(w) / size.Width
	}
	if p := image.Pt(w, h); p != iv.pixels {
		iv.pixels = p
		iv.session.Resize(p)
		iv.viewChanged()
	}

	frame := iv.session.Render(image.Rect(0, 0, w, h))
	out, ok := frame.(*image.RGBA)
	if !ok {
		out = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(out, out.Bounds(), frame, frame.Bounds().Min, draw.Src)
	}
	if !iv.session.View().HasImage() {
		return out
	}
	if band, ok := iv.session.Interaction().RubberBand(); ok {
		strokeRect(out, band, rubberBandColor)
	}
	return out
}

// strokeRect draws the one-pixel outline of r
func strokeRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	for _, edge := range view.Outline(r) {
		draw.Draw(dst, edge.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

func (iv *ImageView) toPixels(p fyne.Position) image.Point {
	return image.Pt(int(p.X*iv.scale), int(p.Y*iv.scale))
}

func buttonOf(b desktop.MouseButton) (view.Button, bool) {
	switch b {
	case desktop.MouseButtonPrimary:
		return view.ButtonPrimary, true
	case desktop.MouseButtonSecondary:
		return view.ButtonSecondary, true
	case desktop.MouseButtonTertiary:
		return view.ButtonMiddle, true
	}
	return 0, false
}

// MouseDown starts a selection with the primary button and a scroll drag
// with the others
func (iv *ImageView) MouseDown(ev *desktop.MouseEvent) {
	btn, ok := buttonOf(ev.Button)
	if !ok {
		return
	}
	iv.dragging = ev.Button
	iv.lastPos = iv.toPixels(ev.Position)
	iv.session.Interaction().MouseDown(btn, iv.lastPos)
}

func (iv *ImageView) MouseUp(ev *desktop.MouseEvent) {
	btn, ok := buttonOf(ev.Button)
	if !ok {
		return
	}
	iv.dragging = 0
	iv.lastPos = iv.toPixels(ev.Position)
	iv.session.Interaction().MouseUp(btn, iv.lastPos)
	iv.viewChanged()
}

func (iv *ImageView) Dragged(ev *fyne.DragEvent) {
	iv.lastPos = iv.toPixels(ev.Position)
	iv.session.Interaction().MouseMove(iv.lastPos)
	if iv.session.Interaction().ScrollDragging() {
		iv.viewChanged()
	}
}

// DragEnd finishes a drag whose button release was not delivered
func (iv *ImageView) DragEnd() {
	if iv.dragging == 0 {
		return
	}
	if btn, ok := buttonOf(iv.dragging); ok {
		iv.session.Interaction().MouseUp(btn, iv.lastPos)
	}
	iv.dragging = 0
}

func (iv *ImageView) MouseIn(*desktop.MouseEvent) {}

func (iv *ImageView) MouseMoved(ev *desktop.MouseEvent) {
	if iv.dragging != 0 {
		iv.lastPos = iv.toPixels(ev.Position)
		iv.session.Interaction().MouseMove(iv.lastPos)
	}
}

// MouseOut abandons a drag when the pointer leaves while no button is held
func (iv *ImageView) MouseOut() {
	if iv.dragging == 0 {
		iv.session.Interaction().CaptureLost()
	}
}

// Scrolled zooms around the pointer with Ctrl held and scrolls otherwise
func (iv *ImageView) Scrolled(ev *fyne.ScrollEvent) {
	if ev.Scrolled.DY == 0 {
		return
	}
	notches := float64(ev.Scrolled.DY) / 10
	if notches > -1 && notches < 1 {
		notches = 1
		if ev.Scrolled.DY < 0 {
			notches = -1
		}
	}
	iv.session.Interaction().Wheel(notches, iv.toPixels(ev.Position), ctrlHeld())
	iv.viewChanged()
}

func ctrlHeld() bool {
	app := fyne.CurrentApp()
	if app == nil {
		return false
	}
	drv, ok := app.Driver().(desktop.Driver)
	if !ok {
		return false
	}
	mods := drv.CurrentKeyModifiers()
	return mods&fyne.KeyModifierControl != 0 || mods&fyne.KeyModifierSuper != 0
}

func (iv *ImageView) viewChanged() {
	if iv.onViewChanged != nil {
		iv.onViewChanged()
	}
}

type imageViewRenderer struct {
	raster *canvas.Raster
}

func (r *imageViewRenderer) Layout(size fyne.Size) {
	r.raster.Resize(size)
}

func (r *imageViewRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

func (r *imageViewRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.raster}
}

func (r *imageViewRenderer) Refresh() {
	r.raster.Refresh()
}

func (r *imageViewRenderer) Destroy() {}
