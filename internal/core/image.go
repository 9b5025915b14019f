// Core image buffer shared by the loader, the pipeline stages and the backends
package core

import (
	"fmt"
	"image"
	"math"
	"unsafe"
)

// PixelFormat describes the sample layout of an Image
type PixelFormat int

const (
	Mono8 PixelFormat = iota
	Mono16
	Mono32
	Mono32F
	RGB8
	RGBA8
)

func (f PixelFormat) String() string {
	switch f {
	case Mono8:
		return "mono8"
	case Mono16:
		return "mono16"
	case Mono32:
		return "mono32"
	case Mono32F:
		return "mono32f"
	case RGB8:
		return "rgb8"
	case RGBA8:
		return "rgba8"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// BytesPerPixel returns the storage size of one pixel
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case Mono8:
		return 1
	case Mono16:
		return 2
	case Mono32, Mono32F, RGBA8:
		return 4
	case RGB8:
		return 3
	default:
		Invariant("unknown pixel format %d", int(f))
		return 0
	}
}

// Image is a tightly packed pixel buffer. Its length always equals
// width*height*BytesPerPixel.
type Image struct {
	width  int
	height int
	format PixelFormat
	pix    []byte
}

// NewImage allocates a zeroed image
func NewImage(width, height int, format PixelFormat) *Image {
	if width < 0 || height < 0 {
		Invariant("negative image size %dx%d", width, height)
	}
	return &Image{
		width:  width,
		height: height,
		format: format,
		pix:    make([]byte, width*height*format.BytesPerPixel()),
	}
}

// NewImageFromPix wraps an existing buffer, taking ownership of it
func NewImageFromPix(width, height int, format PixelFormat, pix []byte) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", width, height)
	}
	if want := width * height * format.BytesPerPixel(); len(pix) != want {
		return nil, fmt.Errorf("buffer length %d does not match %dx%d %s (%d bytes)",
			len(pix), width, height, format, want)
	}
	return &Image{width: width, height: height, format: format, pix: pix}, nil
}

// NewMono32F allocates a float image with every sample set to value
func NewMono32F(width, height int, value float32) *Image {
	img := NewImage(width, height, Mono32F)
	if value != 0 {
		samples := img.Float32s()
		for i := range samples {
			samples[i] = value
		}
	}
	return img
}

func (img *Image) Width() int              { return img.width }
func (img *Image) Height() int             { return img.height }
func (img *Image) Format() PixelFormat     { return img.format }
func (img *Image) Stride() int             { return img.width * img.format.BytesPerPixel() }
func (img *Image) Pix() []byte             { return img.pix }
func (img *Image) Bounds() image.Rectangle { return image.Rect(0, 0, img.width, img.height) }
func (img *Image) Size() image.Point       { return image.Pt(img.width, img.height) }

// Row returns the bytes of row y
func (img *Image) Row(y int) []byte {
	if y < 0 || y >= img.height {
		Invariant("row %d out of range [0,%d)", y, img.height)
	}
	stride := img.Stride()
	return img.pix[y*stride : (y+1)*stride]
}

// Float32s views a Mono32F buffer as samples
func (img *Image) Float32s() []float32 {
	if img.format != Mono32F {
		Invariant("float access to %s image", img.format)
	}
	if len(img.pix) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&img.pix[0])), len(img.pix)/4)
}

// RowFloat32 returns the samples of row y of a Mono32F image
func (img *Image) RowFloat32(y int) []float32 {
	if y < 0 || y >= img.height {
		Invariant("row %d out of range [0,%d)", y, img.height)
	}
	return img.Float32s()[y*img.width : (y+1)*img.width]
}

// At returns the sample at (x, y) of a Mono32F image
func (img *Image) At(x, y int) float32 {
	if x < 0 || x >= img.width {
		Invariant("column %d out of range [0,%d)", x, img.width)
	}
	return img.RowFloat32(y)[x]
}

// Set stores a sample of a Mono32F image
func (img *Image) Set(x, y int, v float32) {
	if x < 0 || x >= img.width {
		Invariant("column %d out of range [0,%d)", x, img.width)
	}
	img.RowFloat32(y)[x] = v
}

// Clone returns a deep copy
func (img *Image) Clone() *Image {
	pix := make([]byte, len(img.pix))
	copy(pix, img.pix)
	return &Image{width: img.width, height: img.height, format: img.format, pix: pix}
}

// SubImage copies the pixels of r, which must lie inside the image
func (img *Image) SubImage(r image.Rectangle) *Image {
	if !r.In(img.Bounds()) {
		Invariant("sub-image %v outside of %v", r, img.Bounds())
	}
	out := NewImage(r.Dx(), r.Dy(), img.format)
	bpp := img.format.BytesPerPixel()
	for y := 0; y < r.Dy(); y++ {
		src := img.Row(r.Min.Y + y)[r.Min.X*bpp : r.Max.X*bpp]
		copy(out.Row(y), src)
	}
	return out
}

// Paste copies src into img with its top-left corner at p
func (img *Image) Paste(src *Image, p image.Point) {
	if src.format != img.format {
		Invariant("paste of %s into %s", src.format, img.format)
	}
	r := src.Bounds().Add(p)
	if !r.In(img.Bounds()) {
		Invariant("paste target %v outside of %v", r, img.Bounds())
	}
	bpp := img.format.BytesPerPixel()
	for y := 0; y < src.height; y++ {
		copy(img.Row(p.Y + y)[p.X*bpp:r.Max.X*bpp], src.Row(y))
	}
}

// Equal reports byte-for-byte equality including size and format
func (img *Image) Equal(other *Image) bool {
	if img == nil || other == nil {
		return img == other
	}
	if img.width != other.width || img.height != other.height || img.format != other.format {
		return false
	}
	for i := range img.pix {
		if img.pix[i] != other.pix[i] {
			return false
		}
	}
	return true
}

// ConvertToMono32F returns a float copy with samples scaled to [0,1].
// Color images are averaged over their RGB channels.
func (img *Image) ConvertToMono32F() *Image {
	if img.format == Mono32F {
		return img.Clone()
	}
	out := NewImage(img.width, img.height, Mono32F)
	dst := out.Float32s()
	for y := 0; y < img.height; y++ {
		row := img.Row(y)
		for x := 0; x < img.width; x++ {
			dst[y*img.width+x] = img.sampleAt(row, x)
		}
	}
	return out
}

func (img *Image) sampleAt(row []byte, x int) float32 {
	switch img.format {
	case Mono8:
		return float32(row[x]) / math.MaxUint8
	case Mono16:
		v := uint16(row[2*x]) | uint16(row[2*x+1])<<8
		return float32(v) / math.MaxUint16
	case Mono32:
		v := uint32(row[4*x]) | uint32(row[4*x+1])<<8 | uint32(row[4*x+2])<<16 | uint32(row[4*x+3])<<24
		return float32(float64(v) / math.MaxUint32)
	case RGB8:
		p := row[3*x : 3*x+3]
		return (float32(p[0]) + float32(p[1]) + float32(p[2])) / (3 * math.MaxUint8)
	case RGBA8:
		p := row[4*x : 4*x+3]
		return (float32(p[0]) + float32(p[1]) + float32(p[2])) / (3 * math.MaxUint8)
	}
	Invariant("cannot convert %s to mono32f", img.format)
	return 0
}

// MinMax returns the smallest and largest sample of a Mono32F image
func (img *Image) MinMax() (min, max float32) {
	samples := img.Float32s()
	if len(samples) == 0 {
		return 0, 0
	}
	min, max = samples[0], samples[0]
	for _, v := range samples[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
