package gpu

import (
	"fmt"
	"image"

	"github.com/gogpu/gg"

	"astro-postprocessor/internal/core"
)

// ProgramKind selects what a program draws for each quad
type ProgramKind int

const (
	// ProgramTextured draws the quad's source rectangle of a texture,
	// scaled into the destination rectangle. Uniform: opacity.
	ProgramTextured ProgramKind = iota
	// ProgramSolid fills the destination rectangle. Uniforms: r, g, b, a.
	ProgramSolid
)

func (k ProgramKind) String() string {
	switch k {
	case ProgramTextured:
		return "textured"
	case ProgramSolid:
		return "solid"
	}
	return "unknown"
}

func (k ProgramKind) textured() bool { return k == ProgramTextured }

// Program is a compositing routine with named uniforms
type Program struct {
	kind     ProgramKind
	uniforms map[string]float64
}

func newProgram(kind ProgramKind) (*Program, error) {
	switch kind {
	case ProgramTextured:
		return &Program{kind: kind, uniforms: map[string]float64{"opacity": 1}}, nil
	case ProgramSolid:
		return &Program{kind: kind, uniforms: map[string]float64{"r": 0, "g": 0, "b": 0, "a": 1}}, nil
	}
	return nil, fmt.Errorf("unknown program kind %d", int(kind))
}

func (p *Program) set(name string, v float64) {
	if _, ok := p.uniforms[name]; !ok {
		core.Invariant("%s program has no uniform %q", p.kind, name)
	}
	p.uniforms[name] = v
}

func (p *Program) draw(dc *gg.Context, q Quad, t *Texture) error {
	switch p.kind {
	case ProgramTextured:
		src := q.Src
		interp := gg.InterpNearest
		if t.smooth {
			interp = gg.InterpBilinear
		}
		dc.DrawImageEx(t.buf, gg.DrawImageOptions{
			X:             q.X,
			Y:             q.Y,
			DstWidth:      q.W,
			DstHeight:     q.H,
			SrcRect:       &src,
			Interpolation: interp,
			Opacity:       p.uniforms["opacity"],
		})
		return nil
	case ProgramSolid:
		dc.SetRGBA(p.uniforms["r"], p.uniforms["g"], p.uniforms["b"], p.uniforms["a"])
		dc.DrawRectangle(q.X, q.Y, q.W, q.H)
		return dc.Fill()
	}
	return fmt.Errorf("unknown program kind %d", int(p.kind))
}

// Quad is one destination rectangle in render target coordinates and the
// texture rectangle it samples
type Quad struct {
	X, Y, W, H float64
	Src        image.Rectangle
}

// quadStride is the number of floats per quad in a buffer
const quadStride = 8

// EncodeQuads lays quads out as buffer data
func EncodeQuads(quads ...Quad) []float32 {
	out := make([]float32, 0, len(quads)*quadStride)
	for _, q := range quads {
		out = append(out,
			float32(q.X), float32(q.Y), float32(q.W), float32(q.H),
			float32(q.Src.Min.X), float32(q.Src.Min.Y), float32(q.Src.Max.X), float32(q.Src.Max.Y))
	}
	return out
}

func decodeQuads(data []float32) ([]Quad, error) {
	if len(data)%quadStride != 0 {
		return nil, fmt.Errorf("buffer length %d is not a multiple of %d", len(data), quadStride)
	}
	quads := make([]Quad, 0, len(data)/quadStride)
	for i := 0; i < len(data); i += quadStride {
		v := data[i : i+quadStride]
		quads = append(quads, Quad{
			X: float64(v[0]), Y: float64(v[1]), W: float64(v[2]), H: float64(v[3]),
			Src: image.Rect(int(v[4]), int(v[5]), int(v[6]), int(v[7])),
		})
	}
	return quads, nil
}
