package backend

import (
	"image"

	"github.com/disintegration/gift"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/pipeline"
	"astro-postprocessor/internal/view"
)

// CPU keeps an 8-bit bitmap of the whole source plus a scaled copy of the
// visible part, regenerated with cubic resampling once zooming or scrolling
// settles
type CPU struct {
	*base
	dispatch pipeline.Dispatcher
	rescaler *view.Debouncer

	bitmap *image.Gray
	// cache is the scaled fragment cacheArea of the bitmap at cacheZoom
	cache     *image.Gray
	cacheArea image.Rectangle
	cacheZoom float64

	closed bool
}

func NewCPU(deps Deps) *CPU {
	c := &CPU{dispatch: deps.Dispatch}
	c.base = newBase(deps, c.stageCompleted)
	delay := deps.RescaleDelay
	if delay <= 0 {
		delay = DefaultRescaleDelay
	}
	c.rescaler = view.NewDebouncer(delay, func() { c.dispatch(c.rescale) })
	return c
}

func (c *CPU) Name() string { return string(KindCPU) }

func (c *CPU) FileOpened(img *core.Image, sel *image.Rectangle) {
	c.rescaler.Stop()
	c.fileOpened(img)
	c.bitmap = toGray(img, img.Bounds())
	c.cache = nil

	c.logger.WithFields(logrus.Fields{
		"width":  img.Width(),
		"height": img.Height(),
	}).Info("BACKEND: cpu bitmap created")

	if sel != nil {
		c.NewSelection(*sel)
	}
	c.invalidateAll()
}

func (c *CPU) ViewChanged(ch view.Change) {
	if c.viewChanged(ch) {
		c.cache = nil
	}
	if c.source == nil {
		return
	}
	if c.zoom != core.ZoomNone && !c.cacheCovers(c.shownArea(image.Rectangle{Max: c.viewSize})) {
		c.rescaler.Trigger()
	}
	c.invalidateAll()
}

func (c *CPU) NewSelection(sel image.Rectangle) {
	old, had := c.newSelection(sel)
	if had && old != c.selection {
		c.blit(toGray(c.source, old), old)
		c.invalidate(core.ScaleRect(old, c.zoom).Sub(c.scroll))
	}
	c.invalidate(c.physicalSelection())
}

// stageCompleted shows the newest output in the selection
func (c *CPU) stageCompleted(stage core.StageID) {
	out, ok := c.sched.ReadOutput(stage)
	if !ok || c.bitmap == nil {
		return
	}
	c.blit(toGray(out, out.Bounds()), c.selection)
	c.invalidate(c.physicalSelection())
}

// blit draws src at the logical rectangle at into the bitmap and the
// scaled cache
func (c *CPU) blit(src *image.Gray, at image.Rectangle) {
	draw.Draw(c.bitmap, at, src, image.Point{}, draw.Src)
	if c.cache == nil {
		return
	}
	dst := core.ScaleRect(at, c.cacheZoom).Sub(c.cacheArea.Min)
	draw.CatmullRom.Scale(c.cache, dst, src, src.Bounds(), draw.Src, nil)
}

// rescale regenerates the scaled cache for the visible area
func (c *CPU) rescale() {
	if c.closed || c.source == nil {
		return
	}
	if c.zoom == core.ZoomNone {
		c.cache = nil
		return
	}
	area := c.visibleArea()
	if area.Empty() {
		return
	}
	scaled := core.ScaleRect(area, c.zoom)
	if scaled.Empty() {
		return
	}
	g := gift.New(gift.Resize(scaled.Dx(), scaled.Dy(), gift.CubicResampling))
	src := c.bitmap.SubImage(area)
	cache := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(cache, src)

	c.cache = cache
	c.cacheArea = image.Rectangle{Min: scaled.Min, Max: scaled.Min.Add(cache.Bounds().Size())}
	c.cacheZoom = c.zoom
	c.logger.WithFields(logrus.Fields{
		"area": area.String(),
		"zoom": c.zoom,
	}).Debug("BACKEND: scaled preview regenerated")
	c.invalidateAll()
}

// RescalePending reports whether a scaled preview regeneration is queued
func (c *CPU) RescalePending() bool { return c.rescaler.Pending() }

// shownArea is the scaled part of the image inside the viewport rectangle
func (c *CPU) shownArea(viewport image.Rectangle) image.Rectangle {
	content := core.ScaleRect(c.source.Bounds(), c.zoom)
	return viewport.Add(c.scroll).Intersect(content)
}

func (c *CPU) cacheCovers(shown image.Rectangle) bool {
	return c.cache != nil && c.cacheZoom == c.zoom && shown.In(c.cacheArea)
}

func (c *CPU) Render(viewport image.Rectangle) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, viewport.Dx(), viewport.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	if c.source == nil {
		return out
	}
	c.compose(out, viewport)
	if c.selected {
		markSelection(out, c.physicalSelection().Sub(viewport.Min))
	}
	return out
}

func (c *CPU) compose(out *image.RGBA, viewport image.Rectangle) {
	shown := c.shownArea(viewport)
	if shown.Empty() {
		return
	}
	origin := c.scroll.Add(viewport.Min)
	dst := shown.Sub(origin)

	if c.zoom == core.ZoomNone {
		draw.Draw(out, dst, c.bitmap, shown.Min, draw.Src)
		return
	}
	if !c.cacheCovers(shown) {
		src := core.UnscaleRect(shown, c.zoom).Intersect(c.bitmap.Bounds())
		draw.NearestNeighbor.Scale(out, dst, c.bitmap, src, draw.Src, nil)
	}
	if c.cache != nil && c.cacheZoom == c.zoom {
		part := shown.Intersect(c.cacheArea)
		draw.Draw(out, part.Sub(origin), c.cache, part.Min.Sub(c.cacheArea.Min), draw.Src)
	}
}

func (c *CPU) Close() {
	c.closed = true
	c.rescaler.Stop()
	c.close()
}
