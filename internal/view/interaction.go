// Mouse interaction state machine: selection dragging, scroll dragging and
// wheel zoom
package view

import (
	"image"

	"astro-postprocessor/internal/core"
)

// MouseState is the selection part of the interaction state
type MouseState int

const (
	NoSelection MouseState = iota
	Selecting
	SelectionSet
)

func (m MouseState) String() string {
	switch m {
	case NoSelection:
		return "no_selection"
	case Selecting:
		return "selecting"
	case SelectionSet:
		return "selection_set"
	}
	return "unknown"
}

// Button identifies a mouse button
type Button int

const (
	ButtonPrimary Button = iota
	ButtonSecondary
	ButtonMiddle
)

// wheelScrollStep is the scroll distance of one wheel notch without Ctrl
const wheelScrollStep = 40

// Listener receives the outcome of user interaction
type Listener struct {
	// OnNewSelection is called with the committed logical selection
	OnNewSelection func(r image.Rectangle)
	// OnViewChanged is called after zoom or scroll changed
	OnViewChanged func(ch Change)
	// OnDamage is called when viewport areas need redrawing
	OnDamage func(rects []image.Rectangle)
}

// Interaction turns pointer events into selection and view changes
type Interaction struct {
	view     *State
	listener Listener

	mouse    MouseState
	previous MouseState

	// drag corners in physical coordinates, clamped to the image
	physStart image.Point
	physEnd   image.Point

	scrolling    bool
	scrollAnchor image.Point
	scrollOrigin image.Point
}

func NewInteraction(view *State, listener Listener) *Interaction {
	return &Interaction{view: view, listener: listener}
}

func (in *Interaction) State() MouseState { return in.mouse }

// ScrollDragging reports whether the view is being dragged
func (in *Interaction) ScrollDragging() bool { return in.scrolling }

// Reset is called when a new image is opened with a default selection
func (in *Interaction) Reset(hasSelection bool) {
	in.scrolling = false
	in.mouse = NoSelection
	if hasSelection {
		in.mouse = SelectionSet
	}
}

// RubberBand returns the selection being dragged in physical coordinates
func (in *Interaction) RubberBand() (image.Rectangle, bool) {
	if in.mouse != Selecting {
		return image.Rectangle{}, false
	}
	return in.rubberBand(), true
}

func (in *Interaction) rubberBand() image.Rectangle {
	r := core.RectFromPoints(in.physStart, in.physEnd)
	r.Max = r.Max.Add(image.Pt(1, 1))
	return r
}

func (in *Interaction) MouseDown(btn Button, p image.Point) {
	if !in.view.HasImage() {
		return
	}
	switch btn {
	case ButtonPrimary:
		if in.scrolling {
			return
		}
		in.previous = in.mouse
		in.mouse = Selecting
		in.physStart = in.clampToImage(p)
		in.physEnd = in.physStart
		in.damage(Outline(in.view.PhysicalSelection()))
		in.damage(Outline(in.rubberBand()))

	case ButtonSecondary, ButtonMiddle:
		if in.mouse == Selecting {
			return
		}
		in.scrolling = true
		in.scrollAnchor = p
		in.scrollOrigin = in.view.Scroll()
	}
}

func (in *Interaction) MouseMove(p image.Point) {
	switch {
	case in.mouse == Selecting:
		old := in.rubberBand()
		in.physEnd = in.clampToImage(p)
		in.damage(Outline(old))
		in.damage(Outline(in.rubberBand()))

	case in.scrolling:
		target := in.scrollOrigin.Add(in.scrollAnchor.Sub(p))
		if ch, ok := in.view.ScrollTo(target); ok {
			in.viewChanged(ch)
		}
	}
}

func (in *Interaction) MouseUp(btn Button, p image.Point) {
	switch {
	case btn == ButtonPrimary && in.mouse == Selecting:
		in.MouseMove(p)
		in.damage(Outline(in.rubberBand()))

		start := in.view.PhysicalToLogical(in.physStart)
		end := in.view.PhysicalToLogical(in.physEnd)
		if start == end {
			in.mouse = in.previous
			in.damage(Outline(in.view.PhysicalSelection()))
			return
		}
		r := core.RectFromPoints(start, end)
		r.Max = r.Max.Add(image.Pt(1, 1))
		r = in.view.SetSelection(r)
		in.flushDamage()
		if r.Empty() {
			in.mouse = NoSelection
			return
		}
		in.mouse = SelectionSet
		if in.listener.OnNewSelection != nil {
			in.listener.OnNewSelection(r)
		}

	case btn != ButtonPrimary && in.scrolling:
		in.scrolling = false
	}
}

// CaptureLost abandons any drag in progress
func (in *Interaction) CaptureLost() {
	if in.mouse == Selecting {
		in.damage(Outline(in.rubberBand()))
		in.mouse = in.previous
		in.damage(Outline(in.view.PhysicalSelection()))
	}
	in.scrolling = false
}

// Wheel zooms around p when ctrl is held and scrolls vertically otherwise.
// Positive notches zoom in or scroll up.
func (in *Interaction) Wheel(notches float64, p image.Point, ctrl bool) {
	if !in.view.HasImage() || notches == 0 {
		return
	}
	if !ctrl {
		target := in.view.Scroll().Sub(image.Pt(0, int(notches*wheelScrollStep)))
		if ch, ok := in.view.ScrollTo(target); ok {
			in.viewChanged(ch)
		}
		return
	}
	if in.mouse == Selecting {
		return
	}
	zoom := ZoomOut(in.view.Zoom())
	if notches > 0 {
		zoom = ZoomIn(in.view.Zoom())
	}
	in.SetZoom(zoom, p)
}

// SetZoom applies a manual zoom around the viewport point p
func (in *Interaction) SetZoom(zoom float64, p image.Point) {
	if ch, ok := in.view.ZoomAt(zoom, p); ok {
		in.viewChanged(ch)
	}
}

// SelectAll selects the whole image
func (in *Interaction) SelectAll() {
	if !in.view.HasImage() {
		return
	}
	r := in.view.SetSelection(in.view.ImageBounds())
	in.flushDamage()
	in.mouse = SelectionSet
	if in.listener.OnNewSelection != nil {
		in.listener.OnNewSelection(r)
	}
}

func (in *Interaction) clampToImage(p image.Point) image.Point {
	content := in.view.ContentSize()
	lo := in.view.LogicalToPhysical(image.Point{})
	hi := lo.Add(content).Sub(image.Pt(1, 1))
	p.X = min(max(p.X, lo.X), hi.X)
	p.Y = min(max(p.Y, lo.Y), hi.Y)
	return p
}

func (in *Interaction) viewChanged(ch Change) {
	if in.listener.OnViewChanged != nil {
		in.listener.OnViewChanged(ch)
	}
	in.flushDamage()
}

func (in *Interaction) damage(rects []image.Rectangle) {
	for _, r := range rects {
		in.view.AddDamage(r)
	}
	in.flushDamage()
}

func (in *Interaction) flushDamage() {
	d := in.view.TakeDamage()
	if len(d) > 0 && in.listener.OnDamage != nil {
		in.listener.OnDamage(d)
	}
}
