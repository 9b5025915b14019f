package metrics

import (
	"math"
	"testing"

	"astro-postprocessor/internal/core"
)

func imageOf(w, h int, values ...float32) *core.Image {
	img := core.NewMono32F(w, h, 0)
	copy(img.Float32s(), values)
	return img
}

func TestHistogramCountsAndClamps(t *testing.T) {
	img := imageOf(3, 2, 0, 0.2, 0.6, 1, float32(math.NaN()), 3)
	h := Compute(img, 4)

	want := []float64{3, 0, 1, 2}
	if h.Total != 6 {
		t.Fatalf("total = %d, want 6", h.Total)
	}
	for i, c := range want {
		if h.Counts[i] != c {
			t.Errorf("bin %d = %v, want %v (all %v)", i, h.Counts[i], c, h.Counts)
		}
	}
	if h.Stats.Min != 0 || h.Stats.Max != 1 {
		t.Errorf("range = [%v, %v], want [0, 1]", h.Stats.Min, h.Stats.Max)
	}
}

func TestHistogramEmpty(t *testing.T) {
	h := Compute(nil, 0)
	if !h.Empty() || len(h.Counts) != DefaultBins {
		t.Errorf("empty histogram = %d bins, total %d", len(h.Counts), h.Total)
	}
}

func TestHistogramNormalized(t *testing.T) {
	h := Compute(imageOf(4, 1, 0.1, 0.1, 0.1, 0.9), 2)
	i, peak := h.Peak()
	if i != 0 || peak != 3 {
		t.Fatalf("peak = %d/%v, want 0/3", i, peak)
	}
	n := h.Normalized(false)
	if n[0] != 1 || math.Abs(n[1]-1.0/3) > 1e-12 {
		t.Errorf("normalized = %v", n)
	}
	if h.Counts[0] != 3 {
		t.Error("Normalized modified the counts")
	}
}

func TestPSNRAndMSE(t *testing.T) {
	a := imageOf(2, 2, 0.5, 0.5, 0.5, 0.5)
	b := imageOf(2, 2, 0.6, 0.4, 0.6, 0.4)

	e := NewEvaluator()
	mse, err := e.Calculate("mse", a, b)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(mse-0.01) > 1e-6 {
		t.Errorf("mse = %v, want 0.01", mse)
	}
	psnr, err := e.Calculate("psnr", a, b)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(psnr-20) > 1e-3 {
		t.Errorf("psnr = %v, want 20", psnr)
	}
	if v, _ := e.Calculate("psnr", a, a); !math.IsInf(v, 1) {
		t.Errorf("psnr of identical images = %v", v)
	}
}

func TestMetricErrors(t *testing.T) {
	e := NewEvaluator()
	if _, err := e.Calculate("unknown", nil, nil); err == nil {
		t.Error("unknown metric did not fail")
	}
	if _, err := e.Calculate("mse", imageOf(2, 2), imageOf(3, 2)); err == nil {
		t.Error("size mismatch did not fail")
	}
}

func TestContrast(t *testing.T) {
	a := imageOf(2, 1, 0.4, 0.6)
	b := imageOf(2, 1, 0.3, 0.7)
	got, err := NewContrast().Calculate(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-2) > 1e-5 {
		t.Errorf("contrast = %v, want 2", got)
	}
}
