package io

import (
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/core"
)

func quietLoader() *ImageLoader {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewImageLoader(logger)
}

func ramp(w, h int) *core.Image {
	img := core.NewMono32F(w, h, 0)
	for y := 0; y < h; y++ {
		row := img.RowFloat32(y)
		for x := range row {
			row[x] = float32(x) / float32(w-1)
		}
	}
	return img
}

func TestParseOutputFormat(t *testing.T) {
	for _, f := range OutputFormats() {
		got, err := ParseOutputFormat(f.String())
		if err != nil || got != f {
			t.Errorf("ParseOutputFormat(%q) = %v, %v", f.String(), got, err)
		}
	}
	if _, err := ParseOutputFormat("fits"); err == nil {
		t.Error("fits accepted")
	}
	if got := WithExtension("/data/moon.png", TIFF16); got != "/data/moon.tif" {
		t.Errorf("WithExtension = %q", got)
	}
}

func TestLoadRejectsUnsupported(t *testing.T) {
	_, _, err := quietLoader().LoadImage("stack.fits")
	var loadErr *core.FileLoadError
	if !errors.As(err, &loadErr) || loadErr.Path != "stack.fits" {
		t.Fatalf("error = %v, want a FileLoadError", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	var loadErr *core.FileLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("error = %v, want a FileLoadError", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tests := []struct {
		format    OutputFormat
		original  core.PixelFormat
		tolerance float64
	}{
		{PNG8, core.Mono8, 1.0 / 255},
		{BMP8, core.Mono8, 1.0 / 255},
		{TIFF16, core.Mono16, 1.0 / 65535},
		{TIFF32F, core.Mono32F, 1e-7},
	}
	il := quietLoader()
	src := ramp(16, 4)
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out"+tt.format.Extension())
			if err := il.SaveImage(src, path, tt.format); err != nil {
				t.Fatal(err)
			}
			img, original, err := il.LoadImage(path)
			if err != nil {
				t.Fatal(err)
			}
			if original != tt.original {
				t.Errorf("original format = %s, want %s", original, tt.original)
			}
			if img.Size() != src.Size() || img.Format() != core.Mono32F {
				t.Fatalf("loaded %v %s", img.Size(), img.Format())
			}
			for x := 0; x < 16; x++ {
				if d := math.Abs(float64(img.At(x, 2) - src.At(x, 2))); d > tt.tolerance {
					t.Errorf("x=%d: %v vs %v", x, img.At(x, 2), src.At(x, 2))
				}
			}
		})
	}
}
