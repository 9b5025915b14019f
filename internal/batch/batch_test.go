package batch

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/core"
	imgio "astro-postprocessor/internal/io"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func squaring() core.ProcessingSettings {
	s := core.DefaultSettings()
	s.LucyRichardson.Iterations = 0
	s.ToneCurve = *core.NewGammaCurve(2)
	return s
}

func writeFlat(t *testing.T, dir, name string, value float32) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := imgio.SaveImage(core.NewMono32F(12, 8, value), path, imgio.TIFF32F); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOutputPath(t *testing.T) {
	p, err := NewProcessor(core.DefaultSettings(), "/out", imgio.TIFF16, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string]string{
		"/in/m42.tif":        "/out/m42_out.tif",
		"/in/jupiter.v2.png": "/out/jupiter.v2_out.tif",
		"noext":              "/out/noext_out.tif",
	}
	for in, want := range tests {
		if got := p.OutputPath(in); got != want {
			t.Errorf("OutputPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInvalidSettings(t *testing.T) {
	s := core.DefaultSettings()
	s.UnsharpMask.Sigma = -1
	if _, err := Process(context.Background(), nil, s, t.TempDir(), imgio.PNG8); err == nil {
		t.Error("negative sigma accepted")
	}
}

func TestRunNormalizesFirst(t *testing.T) {
	s := squaring()
	s.Normalization = core.Normalization{Enabled: true, Min: 0, Max: 0.5}
	p, err := NewProcessor(s, t.TempDir(), imgio.TIFF32F, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	img := core.NewMono32F(4, 4, 0.1)
	img.Set(3, 3, 0.9)
	out, err := p.Run(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.At(3, 3); math.Abs(float64(got)-0.25) > 1e-5 {
		t.Errorf("brightest sample = %v, want 0.25", got)
	}
	if got := out.At(0, 0); got != 0 {
		t.Errorf("darkest sample = %v, want 0", got)
	}
	if img.At(3, 3) != 0.9 {
		t.Error("input modified")
	}
}

func TestProcessFiles(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := []string{
		writeFlat(t, in, "a.tif", 0.5),
		filepath.Join(in, "missing.tif"),
		writeFlat(t, in, "b.tif", 0.8),
	}

	var calls atomic.Int32
	results, err := ProcessWithOptions(context.Background(), files, squaring(), out, imgio.TIFF32F, Options{
		Logger:  quietLogger(),
		Workers: 2,
		OnFile:  func(done, total int, r Result) { calls.Add(1) },
	})
	if err == nil {
		t.Fatal("missing input not reported")
	}
	var loadErr *core.FileLoadError
	if !errors.As(results[1].Err, &loadErr) {
		t.Errorf("missing file error = %v", results[1].Err)
	}
	if calls.Load() != 3 {
		t.Errorf("OnFile called %d times", calls.Load())
	}

	for i, want := range map[int]float64{0: 0.25, 2: 0.64} {
		r := results[i]
		if r.Err != nil {
			t.Fatalf("%s: %v", r.Input, r.Err)
		}
		img, err := imgio.LoadImage(r.Output)
		if err != nil {
			t.Fatal(err)
		}
		if got := float64(img.At(5, 5)); math.Abs(got-want) > 1e-5 {
			t.Errorf("%s sample = %v, want %v", r.Output, got, want)
		}
	}
}

func TestProcessCancelled(t *testing.T) {
	in := t.TempDir()
	files := []string{writeFlat(t, in, "a.tif", 0.5)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ProcessWithOptions(ctx, files, squaring(), t.TempDir(), imgio.PNG8, Options{Logger: quietLogger()})
	if !errors.Is(err, core.ErrAborted) {
		t.Errorf("error = %v, want ErrAborted", err)
	}
}
