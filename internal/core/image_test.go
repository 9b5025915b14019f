package core

import (
	"errors"
	"image"
	"testing"
)

func TestNewImageSize(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   int
	}{
		{Mono8, 12},
		{Mono16, 24},
		{Mono32F, 48},
		{RGB8, 36},
		{RGBA8, 48},
	}
	for _, tt := range tests {
		img := NewImage(4, 3, tt.format)
		if got := len(img.Pix()); got != tt.want {
			t.Errorf("%s: len(pix) = %d, want %d", tt.format, got, tt.want)
		}
	}
}

func TestNewImageFromPixRejectsWrongLength(t *testing.T) {
	if _, err := NewImageFromPix(2, 2, Mono16, make([]byte, 7)); err == nil {
		t.Fatal("expected error for short buffer")
	}
	if _, err := NewImageFromPix(2, 2, Mono16, make([]byte, 8)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRowOutOfRangePanics(t *testing.T) {
	img := NewImage(2, 2, Mono8)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrInternalInvariant) {
			t.Fatalf("expected invariant panic, got %v", r)
		}
	}()
	img.Row(2)
}

func TestSubImageAndPaste(t *testing.T) {
	img := NewImage(4, 4, Mono32F)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, float32(y*4+x))
		}
	}
	sub := img.SubImage(image.Rect(1, 2, 3, 4))
	if sub.Width() != 2 || sub.Height() != 2 {
		t.Fatalf("sub-image size %v", sub.Size())
	}
	if got := sub.At(0, 0); got != 9 {
		t.Errorf("sub.At(0,0) = %v, want 9", got)
	}
	if got := sub.At(1, 1); got != 14 {
		t.Errorf("sub.At(1,1) = %v, want 14", got)
	}

	dst := NewImage(4, 4, Mono32F)
	dst.Paste(sub, image.Pt(1, 2))
	if !dst.SubImage(image.Rect(1, 2, 3, 4)).Equal(sub) {
		t.Error("pasted region differs from source")
	}
	if dst.At(0, 0) != 0 {
		t.Error("paste touched pixels outside its target")
	}
}

func TestConvertToMono32F(t *testing.T) {
	img := NewImage(2, 1, Mono16)
	row := img.Row(0)
	row[0], row[1] = 0xff, 0xff
	f := img.ConvertToMono32F()
	if f.Format() != Mono32F {
		t.Fatalf("format = %s", f.Format())
	}
	if f.At(0, 0) != 1 || f.At(1, 0) != 0 {
		t.Errorf("samples = %v, %v", f.At(0, 0), f.At(1, 0))
	}
}

func TestNormalize(t *testing.T) {
	img := NewImage(3, 1, Mono32F)
	img.Set(0, 0, 0.2)
	img.Set(1, 0, 0.4)
	img.Set(2, 0, 0.6)
	Normalize(img, 0, 1)
	want := []float32{0, 0.5, 1}
	for x, w := range want {
		if d := img.At(x, 0) - w; d > 1e-6 || d < -1e-6 {
			t.Errorf("sample %d = %v, want %v", x, img.At(x, 0), w)
		}
	}
}
