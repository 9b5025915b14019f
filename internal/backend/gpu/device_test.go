package gpu

import (
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/core"
)

func newTestDevice(t *testing.T, size image.Point) *Device {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	d, err := NewDevice(logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Resize(size); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func uniform(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestUploadReplacesTexture(t *testing.T) {
	d := newTestDevice(t, image.Pt(4, 4))
	var h Handle
	if err := d.UploadTexture(&h, uniform(2, 2, color.White), false); err != nil {
		t.Fatal(err)
	}
	first := h
	if err := d.UploadTexture(&h, uniform(3, 1, color.Black), false); err != nil {
		t.Fatal(err)
	}
	if h == first || d.Valid(first) {
		t.Error("replaced texture still valid")
	}
	if n := d.Live(KindTexture); n != 1 {
		t.Errorf("live textures = %d, want 1", n)
	}
	if size, ok := d.TextureSize(h); !ok || size != image.Pt(3, 1) {
		t.Errorf("texture size = %v %v", size, ok)
	}
	if err := d.UploadTexture(&h, image.NewRGBA(image.Rectangle{}), false); err == nil {
		t.Error("empty upload accepted")
	}
}

func TestContextLostInvalidatesHandles(t *testing.T) {
	d := newTestDevice(t, image.Pt(4, 4))
	var tex, buf, prog, vao Handle
	if err := d.UploadTexture(&tex, uniform(1, 1, color.White), false); err != nil {
		t.Fatal(err)
	}
	d.BufferData(&buf, EncodeQuads(Quad{W: 1, H: 1}))
	if err := d.EnsureProgram(&prog, ProgramSolid); err != nil {
		t.Fatal(err)
	}
	if err := d.EnsureVertexArray(&vao, buf); err != nil {
		t.Fatal(err)
	}

	d.ContextLost()
	for _, h := range []Handle{tex, buf, prog, vao} {
		if d.Valid(h) {
			t.Errorf("handle %d valid after context loss", h)
		}
	}
	if d.LostCount() != 1 || d.Size() != image.Pt(4, 4) {
		t.Errorf("lost = %d size = %v", d.LostCount(), d.Size())
	}

	if err := d.EnsureProgram(&prog, ProgramSolid); err != nil || !d.Valid(prog) {
		t.Errorf("program not recreated on first use: %v", err)
	}
}

func TestSolidProgramFills(t *testing.T) {
	d := newTestDevice(t, image.Pt(8, 8))
	d.Clear(color.Black)

	var prog, buf, vao Handle
	if err := d.EnsureProgram(&prog, ProgramSolid); err != nil {
		t.Fatal(err)
	}
	d.SetUniform(prog, "r", 1)
	d.BufferData(&buf, EncodeQuads(Quad{X: 0, Y: 0, W: 4, H: 8}))
	if err := d.EnsureVertexArray(&vao, buf); err != nil {
		t.Fatal(err)
	}
	if err := d.Draw(prog, vao, NoHandle); err != nil {
		t.Fatal(err)
	}

	frame := d.Frame()
	r, g, _, _ := frame.At(1, 4).RGBA()
	if r>>8 < 250 || g>>8 > 5 {
		t.Errorf("filled pixel = %v", frame.At(1, 4))
	}
	r, _, _, _ = frame.At(6, 4).RGBA()
	if r>>8 > 5 {
		t.Errorf("pixel outside the quad = %v", frame.At(6, 4))
	}
}

func TestTexturedProgramNeedsTexture(t *testing.T) {
	d := newTestDevice(t, image.Pt(4, 4))
	var prog, buf, vao Handle
	if err := d.EnsureProgram(&prog, ProgramTextured); err != nil {
		t.Fatal(err)
	}
	d.BufferData(&buf, EncodeQuads(Quad{W: 4, H: 4, Src: image.Rect(0, 0, 1, 1)}))
	if err := d.EnsureVertexArray(&vao, buf); err != nil {
		t.Fatal(err)
	}
	if err := d.Draw(prog, vao, NoHandle); err == nil {
		t.Error("draw without texture succeeded")
	}
}

func TestUnknownUniformPanics(t *testing.T) {
	d := newTestDevice(t, image.Pt(2, 2))
	var prog Handle
	if err := d.EnsureProgram(&prog, ProgramTextured); err != nil {
		t.Fatal(err)
	}
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, core.ErrInternalInvariant) {
			t.Errorf("recovered %v, want an internal invariant error", r)
		}
	}()
	d.SetUniform(prog, "gamma", 2)
}

func TestDecodeQuads(t *testing.T) {
	q := Quad{X: 1.5, Y: 2, W: 3, H: 4, Src: image.Rect(5, 6, 7, 8)}
	got, err := decodeQuads(EncodeQuads(q, q))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1] != q {
		t.Errorf("decoded %v", got)
	}
	if _, err := decodeQuads(make([]float32, quadStride+1)); err == nil {
		t.Error("ragged buffer accepted")
	}
}
