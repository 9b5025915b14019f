// Package gpu is a small retained-mode compositing device on top of a
// gogpu/gg context. Resources are addressed by handles that stay invalid
// after deletion or context loss, so owners create them again on first use.
package gpu

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gg"
	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/core"
)

// Handle names a device resource. The zero handle is never valid.
type Handle uint32

const NoHandle Handle = 0

// ResourceKind distinguishes the resource tables
type ResourceKind int

const (
	KindTexture ResourceKind = iota
	KindBuffer
	KindProgram
	KindVertexArray
)

func (k ResourceKind) String() string {
	switch k {
	case KindTexture:
		return "texture"
	case KindBuffer:
		return "buffer"
	case KindProgram:
		return "program"
	case KindVertexArray:
		return "vertex_array"
	}
	return "unknown"
}

// Texture is an RGBA image sampled by programs
type Texture struct {
	buf    *gg.ImageBuf
	size   image.Point
	smooth bool
}

// Buffer holds vertex data
type Buffer struct {
	data []float32
}

// VertexArray describes how a buffer is read as quads
type VertexArray struct {
	buffer Handle
}

// Device is used from the controlling thread only
type Device struct {
	logger *logrus.Logger
	ctx    *gg.Context
	size   image.Point

	next      Handle
	resources map[Handle]ResourceKind
	textures  map[Handle]*Texture
	buffers   map[Handle]*Buffer
	programs  map[Handle]*Program
	arrays    map[Handle]*VertexArray

	lost int
}

func NewDevice(logger *logrus.Logger) (*Device, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	d := &Device{logger: logger, size: image.Pt(1, 1)}
	if err := d.createContext(); err != nil {
		return nil, err
	}
	d.resetTables()

	fields := logrus.Fields{"accelerated": d.Accelerated()}
	if a := gg.Accelerator(); a != nil {
		fields["accelerator"] = a.Name()
	}
	logger.WithFields(fields).Info("GPU: device created")
	return d, nil
}

func (d *Device) createContext() error {
	ctx := gg.NewContext(d.size.X, d.size.Y)
	if ctx == nil {
		return fmt.Errorf("failed to create %dx%d drawing context", d.size.X, d.size.Y)
	}
	d.ctx = ctx
	return nil
}

func (d *Device) resetTables() {
	d.resources = make(map[Handle]ResourceKind)
	d.textures = make(map[Handle]*Texture)
	d.buffers = make(map[Handle]*Buffer)
	d.programs = make(map[Handle]*Program)
	d.arrays = make(map[Handle]*VertexArray)
}

// Accelerated reports whether a hardware accelerator is registered
func (d *Device) Accelerated() bool { return gg.Accelerator() != nil }

// Size is the size of the render target
func (d *Device) Size() image.Point { return d.size }

// LostCount is how many times the context was lost
func (d *Device) LostCount() int { return d.lost }

// Resize reallocates the render target
func (d *Device) Resize(size image.Point) error {
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("invalid render target size %v", size)
	}
	if size == d.size {
		return nil
	}
	if err := d.ctx.Resize(size.X, size.Y); err != nil {
		return fmt.Errorf("failed to resize render target: %w", err)
	}
	d.size = size
	return nil
}

// ContextLost drops every resource and recreates the render target.
// Existing handles become invalid.
func (d *Device) ContextLost() {
	d.lost++
	d.logger.WithFields(logrus.Fields{
		"resources": len(d.resources),
		"lost":      d.lost,
	}).Warn("GPU: context lost, dropping resources")
	if d.ctx != nil {
		_ = d.ctx.Close()
	}
	if err := d.createContext(); err != nil {
		d.logger.WithError(err).Error("GPU: failed to recreate context")
	}
	d.resetTables()
}

// Valid reports whether h names a live resource
func (d *Device) Valid(h Handle) bool {
	_, ok := d.resources[h]
	return h != NoHandle && ok
}

// Live returns the number of live resources of a kind
func (d *Device) Live(kind ResourceKind) int {
	n := 0
	for _, k := range d.resources {
		if k == kind {
			n++
		}
	}
	return n
}

func (d *Device) alloc(kind ResourceKind) Handle {
	d.next++
	d.resources[d.next] = kind
	return d.next
}

// Delete releases *h, if valid, and clears it
func (d *Device) Delete(h *Handle) {
	if h == nil || *h == NoHandle {
		return
	}
	delete(d.resources, *h)
	delete(d.textures, *h)
	delete(d.buffers, *h)
	delete(d.programs, *h)
	delete(d.arrays, *h)
	*h = NoHandle
}

// UploadTexture stores img in a new texture, deleting the one *h named
func (d *Device) UploadTexture(h *Handle, img image.Image, smooth bool) error {
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("cannot upload empty image")
	}
	buf := gg.ImageBufFromImage(img)
	if buf == nil {
		return fmt.Errorf("failed to convert %v image", b.Size())
	}
	d.Delete(h)
	*h = d.alloc(KindTexture)
	d.textures[*h] = &Texture{buf: buf, size: b.Size(), smooth: smooth}
	return nil
}

// TextureSize returns the size of a live texture
func (d *Device) TextureSize(h Handle) (image.Point, bool) {
	t, ok := d.textures[h]
	if !ok {
		return image.Point{}, false
	}
	return t.size, true
}

// BufferData fills the buffer *h, creating it on first use
func (d *Device) BufferData(h *Handle, data []float32) {
	if !d.Valid(*h) {
		*h = d.alloc(KindBuffer)
		d.buffers[*h] = &Buffer{}
	}
	buf := d.buffers[*h]
	buf.data = append(buf.data[:0], data...)
}

// EnsureVertexArray creates a vertex array reading buffer on first use
func (d *Device) EnsureVertexArray(h *Handle, buffer Handle) error {
	if !d.Valid(buffer) {
		return fmt.Errorf("vertex array over invalid buffer %d", buffer)
	}
	if d.Valid(*h) {
		d.arrays[*h].buffer = buffer
		return nil
	}
	*h = d.alloc(KindVertexArray)
	d.arrays[*h] = &VertexArray{buffer: buffer}
	return nil
}

// EnsureProgram creates a program of the given kind on first use
func (d *Device) EnsureProgram(h *Handle, kind ProgramKind) error {
	if d.Valid(*h) {
		if d.programs[*h].kind != kind {
			core.Invariant("program %d is a %s, not a %s", *h, d.programs[*h].kind, kind)
		}
		return nil
	}
	p, err := newProgram(kind)
	if err != nil {
		return err
	}
	*h = d.alloc(KindProgram)
	d.programs[*h] = p
	return nil
}

// SetUniform sets a declared uniform of a live program
func (d *Device) SetUniform(prog Handle, name string, v float64) {
	p, ok := d.programs[prog]
	if !ok {
		core.Invariant("uniform %q set on invalid program %d", name, prog)
	}
	p.set(name, v)
}

// Clear fills the render target
func (d *Device) Clear(c color.Color) {
	r, g, b, a := c.RGBA()
	d.ctx.ClearWithColor(gg.RGBA{
		R: float64(r) / 0xffff,
		G: float64(g) / 0xffff,
		B: float64(b) / 0xffff,
		A: float64(a) / 0xffff,
	})
}

// Draw runs prog over every quad of vao, sampling tex when the program
// needs a texture
func (d *Device) Draw(prog, vao, tex Handle) error {
	p, ok := d.programs[prog]
	if !ok {
		return fmt.Errorf("draw with invalid program %d", prog)
	}
	va, ok := d.arrays[vao]
	if !ok {
		return fmt.Errorf("draw with invalid vertex array %d", vao)
	}
	buf, ok := d.buffers[va.buffer]
	if !ok {
		return fmt.Errorf("vertex array %d reads invalid buffer %d", vao, va.buffer)
	}
	var t *Texture
	if p.kind.textured() {
		if t, ok = d.textures[tex]; !ok {
			return fmt.Errorf("draw with invalid texture %d", tex)
		}
	}
	quads, err := decodeQuads(buf.data)
	if err != nil {
		return err
	}
	for _, q := range quads {
		if err := p.draw(d.ctx, q, t); err != nil {
			return fmt.Errorf("%s program: %w", p.kind, err)
		}
	}
	return nil
}

// Frame returns the render target contents
func (d *Device) Frame() image.Image {
	if err := d.ctx.FlushGPU(); err != nil {
		d.logger.WithError(err).Warn("GPU: flush failed")
	}
	return d.ctx.Image()
}

func (d *Device) Close() error {
	d.resetTables()
	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Close()
	d.ctx = nil
	return err
}
