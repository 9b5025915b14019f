package backend

import (
	"image"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/backend/gpu"
	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/view"
)

// GPU uploads the source and every stage output as textures and
// composites the viewport on the device without rescaling bitmaps
type GPU struct {
	*base
	device *gpu.Device

	sourceTex gpu.Handle
	stageTex  [core.NumStages]gpu.Handle
	shown     core.StageID

	textured  gpu.Handle
	solid     gpu.Handle
	quads     [numQuadSlots]gpu.Handle
	vertexArr [numQuadSlots]gpu.Handle
}

const (
	sourceQuad = iota
	selectionQuad
	outlineQuad
	numQuadSlots
)

func NewGPU(deps Deps) (*GPU, error) {
	g := &GPU{shown: core.StageNone}
	g.base = newBase(deps, g.stageCompleted)
	device, err := gpu.NewDevice(g.logger)
	if err != nil {
		g.close()
		return nil, err
	}
	g.device = device
	return g, nil
}

func (g *GPU) Name() string { return string(KindGPU) }

// Accelerated reports whether compositing runs on a hardware accelerator
func (g *GPU) Accelerated() bool { return g.device.Accelerated() }

// Device exposes the compositing device
func (g *GPU) Device() *gpu.Device { return g.device }

func (g *GPU) FileOpened(img *core.Image, sel *image.Rectangle) {
	g.fileOpened(img)
	g.deleteStageTextures()
	if err := g.device.UploadTexture(&g.sourceTex, toRGBA(img, img.Bounds()), true); err != nil {
		g.logger.WithError(err).Error("BACKEND: source upload failed")
	}
	g.logger.WithFields(logrus.Fields{
		"width":  img.Width(),
		"height": img.Height(),
	}).Info("BACKEND: source texture uploaded")

	if sel != nil {
		g.NewSelection(*sel)
	}
	g.invalidateAll()
}

func (g *GPU) ViewChanged(ch view.Change) {
	g.viewChanged(ch)
	if ch.Kind == view.Resized {
		g.resizeTarget(ch.ViewSize)
	}
	g.invalidateAll()
}

// resizeTarget recreates the viewport-sized resources
func (g *GPU) resizeTarget(size image.Point) {
	if size.X <= 0 || size.Y <= 0 {
		return
	}
	if err := g.device.Resize(size); err != nil {
		g.logger.WithError(err).Error("BACKEND: render target resize failed")
		return
	}
	for i := range g.quads {
		g.device.Delete(&g.vertexArr[i])
		g.device.Delete(&g.quads[i])
	}
}

// ContextLost drops all device resources; they are recreated on the next
// render
func (g *GPU) ContextLost() {
	g.device.ContextLost()
	g.invalidateAll()
}

func (g *GPU) NewSelection(sel image.Rectangle) {
	old, had := g.newSelection(sel)
	g.deleteStageTextures()
	if had {
		g.invalidate(core.ScaleRect(old, g.zoom).Sub(g.scroll))
	}
	g.invalidate(g.physicalSelection())
}

func (g *GPU) deleteStageTextures() {
	for i := range g.stageTex {
		g.device.Delete(&g.stageTex[i])
	}
	g.shown = core.StageNone
}

func (g *GPU) stageCompleted(stage core.StageID) {
	out, ok := g.sched.ReadOutput(stage)
	if !ok {
		return
	}
	if err := g.device.UploadTexture(&g.stageTex[stage], toRGBA(out, out.Bounds()), true); err != nil {
		g.logger.WithError(err).WithField("stage", stage.String()).Error("BACKEND: output upload failed")
		return
	}
	g.shown = stage
	g.invalidate(g.physicalSelection())
}

// ensureTextures re-uploads what a context loss dropped
func (g *GPU) ensureTextures() error {
	if !g.device.Valid(g.sourceTex) {
		if err := g.device.UploadTexture(&g.sourceTex, toRGBA(g.source, g.source.Bounds()), true); err != nil {
			return err
		}
	}
	if g.shown == core.StageNone || g.device.Valid(g.stageTex[g.shown]) {
		return nil
	}
	out, ok := g.sched.Output(g.shown)
	if !ok {
		g.shown = core.StageNone
		return nil
	}
	return g.device.UploadTexture(&g.stageTex[g.shown], toRGBA(out, out.Bounds()), true)
}

// quadFor maps the logical rectangle r, offset by origin in texture
// coordinates, onto the viewport
func (g *GPU) quadFor(r image.Rectangle, texOrigin image.Point, viewport image.Rectangle) gpu.Quad {
	return gpu.Quad{
		X:   float64(r.Min.X)*g.zoom - float64(g.scroll.X+viewport.Min.X),
		Y:   float64(r.Min.Y)*g.zoom - float64(g.scroll.Y+viewport.Min.Y),
		W:   float64(r.Dx()) * g.zoom,
		H:   float64(r.Dy()) * g.zoom,
		Src: r.Sub(texOrigin),
	}
}

func (g *GPU) drawQuads(slot int, prog, tex gpu.Handle, quads ...gpu.Quad) error {
	g.device.BufferData(&g.quads[slot], gpu.EncodeQuads(quads...))
	if err := g.device.EnsureVertexArray(&g.vertexArr[slot], g.quads[slot]); err != nil {
		return err
	}
	return g.device.Draw(prog, g.vertexArr[slot], tex)
}

// drawOutline marks the selection with the solid program
func (g *GPU) drawOutline(viewport image.Rectangle) error {
	edges := outlineRects(g.physicalSelection().Sub(viewport.Min), viewport.Size())
	if len(edges) == 0 {
		return nil
	}
	if err := g.device.EnsureProgram(&g.solid, gpu.ProgramSolid); err != nil {
		return err
	}
	g.device.SetUniform(g.solid, "r", float64(selectionColor.R)/0xff)
	g.device.SetUniform(g.solid, "g", float64(selectionColor.G)/0xff)
	g.device.SetUniform(g.solid, "b", float64(selectionColor.B)/0xff)
	g.device.SetUniform(g.solid, "a", float64(selectionColor.A)/0xff)

	quads := make([]gpu.Quad, len(edges))
	for i, e := range edges {
		quads[i] = gpu.Quad{X: float64(e.Min.X), Y: float64(e.Min.Y), W: float64(e.Dx()), H: float64(e.Dy())}
	}
	return g.drawQuads(outlineQuad, g.solid, gpu.NoHandle, quads...)
}

func (g *GPU) Render(viewport image.Rectangle) image.Image {
	if size := viewport.Size(); size != g.device.Size() {
		g.resizeTarget(size)
	}
	g.device.Clear(background)
	if g.source == nil {
		return g.device.Frame()
	}
	if err := g.render(viewport); err != nil {
		g.logger.WithError(err).Error("BACKEND: gpu render failed")
	}
	return g.device.Frame()
}

func (g *GPU) render(viewport image.Rectangle) error {
	if err := g.device.EnsureProgram(&g.textured, gpu.ProgramTextured); err != nil {
		return err
	}
	if err := g.ensureTextures(); err != nil {
		return err
	}

	area := g.visibleIn(viewport)
	if area.Empty() {
		return nil
	}
	if err := g.drawQuads(sourceQuad, g.textured, g.sourceTex, g.quadFor(area, image.Point{}, viewport)); err != nil {
		return err
	}
	if !g.selected {
		return nil
	}

	if part := g.selection.Intersect(area); g.shown != core.StageNone && !part.Empty() {
		if err := g.drawQuads(selectionQuad, g.textured, g.stageTex[g.shown], g.quadFor(part, g.selection.Min, viewport)); err != nil {
			return err
		}
	}
	return g.drawOutline(viewport)
}

func (g *GPU) Close() {
	g.close()
	if g.device != nil {
		if err := g.device.Close(); err != nil {
			g.logger.WithError(err).Warn("BACKEND: device close failed")
		}
	}
}
