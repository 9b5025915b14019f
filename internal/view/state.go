// Zoom, scroll, selection and damage bookkeeping of the image view
package view

import (
	"image"
	"math"

	"astro-postprocessor/internal/core"
)

// ChangeKind tells backends what part of the view changed
type ChangeKind int

const (
	ZoomChanged ChangeKind = iota
	Scrolled
	Resized
)

func (k ChangeKind) String() string {
	switch k {
	case ZoomChanged:
		return "zoom"
	case Scrolled:
		return "scroll"
	case Resized:
		return "resize"
	}
	return "unknown"
}

// Change describes the view after a zoom, scroll or resize
type Change struct {
	Kind     ChangeKind
	Zoom     float64
	Scroll   image.Point
	ViewSize image.Point
}

// State is the view model of the image panel. It is owned by the
// controlling thread and not safe for concurrent use.
//
// Coordinates: logical = image pixels; scaled = logical*zoom, the virtual
// canvas that is scrolled; physical = scaled minus scroll, i.e. viewport
// pixels.
type State struct {
	imageSize image.Point
	viewSize  image.Point
	zoom      float64
	scroll    image.Point
	fit       bool

	selection       image.Rectangle
	scaledSelection image.Rectangle

	rescalePending bool
	damage         []image.Rectangle
}

func NewState() *State {
	return &State{zoom: core.ZoomNone}
}

// Reset prepares the view for a newly opened image and installs its
// initial selection
func (s *State) Reset(imageSize image.Point, selection image.Rectangle) {
	s.imageSize = imageSize
	s.zoom = core.ZoomNone
	s.scroll = image.Point{}
	s.selection = core.ClampSelection(selection, s.ImageBounds())
	s.scaledSelection = s.selection
	if s.fit {
		s.zoom = FitZoom(s.imageSize, s.viewSize)
		s.scaledSelection = core.ScaleRect(s.selection, s.zoom)
	}
	s.rescalePending = true
	s.damageAll()
}

func (s *State) HasImage() bool               { return s.imageSize.X > 0 && s.imageSize.Y > 0 }
func (s *State) ImageSize() image.Point       { return s.imageSize }
func (s *State) ImageBounds() image.Rectangle { return image.Rectangle{Max: s.imageSize} }
func (s *State) ViewSize() image.Point        { return s.viewSize }
func (s *State) Zoom() float64                { return s.zoom }
func (s *State) Scroll() image.Point          { return s.scroll }
func (s *State) FitInWindow() bool            { return s.fit }

// Selection is the selection in logical coordinates
func (s *State) Selection() image.Rectangle { return s.selection }

// ScaledSelection is the selection in scaled coordinates
func (s *State) ScaledSelection() image.Rectangle { return s.scaledSelection }

// PhysicalSelection is the selection in viewport coordinates
func (s *State) PhysicalSelection() image.Rectangle {
	return s.scaledSelection.Sub(s.scroll)
}

// ContentSize is the size of the scaled image
func (s *State) ContentSize() image.Point {
	if s.zoom == core.ZoomNone {
		return s.imageSize
	}
	return image.Pt(
		int(math.Round(float64(s.imageSize.X)*s.zoom)),
		int(math.Round(float64(s.imageSize.Y)*s.zoom)))
}

// VisibleArea is the logical part of the image currently in the viewport
func (s *State) VisibleArea() image.Rectangle {
	r := core.UnscaleRect(image.Rectangle{Min: s.scroll, Max: s.scroll.Add(s.viewSize)}, s.zoom)
	// one extra pixel covers partially visible edges
	r.Max = r.Max.Add(image.Pt(1, 1))
	return r.Intersect(s.ImageBounds())
}

// PhysicalToLogical maps a viewport point to image coordinates
func (s *State) PhysicalToLogical(p image.Point) image.Point {
	return core.UnscalePoint(p.Add(s.scroll), s.zoom)
}

// LogicalToPhysical maps an image point to viewport coordinates
func (s *State) LogicalToPhysical(p image.Point) image.Point {
	return core.ScalePoint(p, s.zoom).Sub(s.scroll)
}

// SetSelection installs a logical selection, clamped to the image, and
// records the old and new outlines as damage
func (s *State) SetSelection(r image.Rectangle) image.Rectangle {
	s.damageOutline(s.PhysicalSelection())
	s.selection = core.ClampSelection(r, s.ImageBounds())
	s.scaledSelection = core.ScaleRect(s.selection, s.zoom)
	s.damageOutline(s.PhysicalSelection())
	return s.selection
}

// ZoomAt sets a new zoom factor keeping the viewport point center
// stationary. It turns fit-in-window mode off.
func (s *State) ZoomAt(zoom float64, center image.Point) (Change, bool) {
	s.fit = false
	return s.setZoom(ClampZoom(zoom), center)
}

func (s *State) setZoom(zoom float64, center image.Point) (Change, bool) {
	prev := s.zoom
	if zoom == prev || !s.HasImage() {
		return Change{}, false
	}
	ratio := zoom / prev
	p := s.scroll.Add(center)
	p = image.Pt(int(math.Round(float64(p.X)*ratio)), int(math.Round(float64(p.Y)*ratio)))

	s.zoom = zoom
	s.scaledSelection = core.ScaleRect(s.selection, zoom)
	s.scroll = s.clampScroll(p.Sub(center))
	s.rescalePending = true
	s.damageAll()
	return s.change(ZoomChanged), true
}

// SetFitInWindow toggles fit-in-window mode
func (s *State) SetFitInWindow(fit bool) (Change, bool) {
	s.fit = fit
	if !fit || !s.HasImage() {
		return Change{}, false
	}
	s.scroll = image.Point{}
	return s.setZoom(FitZoom(s.imageSize, s.viewSize), image.Point{})
}

// ScrollTo moves the viewport origin in scaled coordinates
func (s *State) ScrollTo(p image.Point) (Change, bool) {
	p = s.clampScroll(p)
	if p == s.scroll {
		return Change{}, false
	}
	s.scroll = p
	s.rescalePending = true
	s.damageAll()
	return s.change(Scrolled), true
}

// Resize records a new viewport size; in fit-in-window mode the zoom
// follows it
func (s *State) Resize(size image.Point) Change {
	s.viewSize = size
	if s.fit && s.HasImage() {
		s.scroll = image.Point{}
		if ch, ok := s.setZoom(FitZoom(s.imageSize, s.viewSize), image.Point{}); ok {
			ch.Kind = Resized
			return ch
		}
	}
	s.scroll = s.clampScroll(s.scroll)
	s.rescalePending = true
	s.damageAll()
	return s.change(Resized)
}

func (s *State) clampScroll(p image.Point) image.Point {
	content := s.ContentSize()
	maxX := max(content.X-s.viewSize.X, 0)
	maxY := max(content.Y-s.viewSize.Y, 0)
	return image.Pt(min(max(p.X, 0), maxX), min(max(p.Y, 0), maxY))
}

func (s *State) change(kind ChangeKind) Change {
	return Change{Kind: kind, Zoom: s.zoom, Scroll: s.scroll, ViewSize: s.viewSize}
}

// RescalePending reports whether the scaled preview is out of date
func (s *State) RescalePending() bool { return s.rescalePending }

// MarkRescaled clears the pending-rescale flag
func (s *State) MarkRescaled() { s.rescalePending = false }

// AddDamage records a viewport rectangle to be redrawn
func (s *State) AddDamage(r image.Rectangle) {
	r = r.Intersect(image.Rectangle{Max: s.viewSize})
	if !r.Empty() {
		s.damage = append(s.damage, r)
	}
}

// TakeDamage returns and clears the pending damage
func (s *State) TakeDamage() []image.Rectangle {
	d := s.damage
	s.damage = nil
	return d
}

func (s *State) damageAll() {
	s.damage = s.damage[:0]
	s.AddDamage(image.Rectangle{Max: s.viewSize})
}

func (s *State) damageOutline(r image.Rectangle) {
	for _, edge := range Outline(r) {
		s.AddDamage(edge)
	}
}

// Outline returns the four one-pixel edges of r
func Outline(r image.Rectangle) []image.Rectangle {
	if r.Empty() {
		return nil
	}
	return []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1),
		image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y),
		image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y),
	}
}
