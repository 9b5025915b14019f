package core

import (
	"image"
	"math"
	"testing"
)

func TestClampSelection(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 80)
	tests := []struct {
		name string
		in   image.Rectangle
		want image.Rectangle
	}{
		{"inside", image.Rect(10, 10, 20, 20), image.Rect(10, 10, 20, 20)},
		{"reversed", image.Rectangle{Min: image.Pt(20, 20), Max: image.Pt(10, 10)}, image.Rect(10, 10, 20, 20)},
		{"overhang", image.Rect(-5, 70, 120, 90), image.Rect(0, 70, 100, 80)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampSelection(tt.in, bounds); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultSelection(t *testing.T) {
	got := DefaultSelection(1000, 500)
	want := image.Rect(400, 200, 600, 300)
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestScaleRectMatchesZoom(t *testing.T) {
	tests := []struct {
		r    image.Rectangle
		zoom float64
		want image.Rectangle
	}{
		{image.Rect(10, 20, 40, 60), 2.5, image.Rect(25, 50, 25+75, 50+100)},
		// origin and size round on their own: x 1.5->2, w 4.5->5
		{image.Rect(1, 1, 4, 4), 1.5, image.Rect(2, 2, 2+5, 2+5)},
		{image.Rect(3, 3, 10, 10), 0.3, image.Rect(1, 1, 1+2, 1+2)},
	}
	for _, tt := range tests {
		if got := ScaleRect(tt.r, tt.zoom); got != tt.want {
			t.Errorf("ScaleRect(%v, %v) = %v, want %v", tt.r, tt.zoom, got, tt.want)
		}
	}
}

func TestScaleRoundTrip(t *testing.T) {
	rects := []image.Rectangle{
		image.Rect(0, 0, 100, 100),
		image.Rect(13, 7, 58, 91),
		image.Rect(99, 1, 100, 3),
	}
	zooms := []float64{0.05, 0.1, 0.3, 2.0 / 3.0, 1, 1.5, 2.25, 7, 20}
	for _, r := range rects {
		for _, z := range zooms {
			back := UnscaleRect(ScaleRect(r, z), z)
			tol := 1
			if z < 1 {
				tol = int(math.Ceil(1 / z))
			}
			if !near(back.Min, r.Min, tol) || !near(back.Max, r.Max, tol) {
				t.Errorf("zoom %v: %v -> %v -> %v", z, r, ScaleRect(r, z), back)
			}
		}
	}
}

func near(a, b image.Point, tol int) bool {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx <= tol && dx >= -tol && dy <= tol && dy >= -tol
}
