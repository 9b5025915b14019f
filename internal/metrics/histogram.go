// Brightness histogram and summary statistics of Mono32F images
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"astro-postprocessor/internal/core"
)

// DefaultBins is the bin count used by the GUI histogram
const DefaultBins = 256

// Histogram counts samples over [0, 1] in equally sized bins. Samples
// outside the range are clamped; NaN counts as 0.
type Histogram struct {
	Counts []float64
	Total  int
	Stats  Summary
}

// Summary holds basic statistics of the clamped samples
type Summary struct {
	Min, Max float64
	Mean     float64
	StdDev   float64
	Median   float64
}

// Compute builds the histogram of img with the given number of bins
func Compute(img *core.Image, bins int) Histogram {
	if bins <= 0 {
		bins = DefaultBins
	}
	h := Histogram{Counts: make([]float64, bins)}
	if img == nil || img.Width() == 0 || img.Height() == 0 {
		return h
	}
	if img.Format() != core.Mono32F {
		img = img.ConvertToMono32F()
	}

	samples := img.Float32s()
	xs := make([]float64, len(samples))
	for i, v := range samples {
		xs[i] = clampSample(float64(v))
	}
	sort.Float64s(xs)

	dividers := floats.Span(make([]float64, bins+1), 0, 1)
	// the last bin is closed so that 1.0 is counted
	dividers[bins] = math.Nextafter(1, 2)
	h.Counts = stat.Histogram(h.Counts, dividers, xs, nil)
	h.Total = len(xs)

	mean, std := stat.MeanStdDev(xs, nil)
	h.Stats = Summary{
		Min:    xs[0],
		Max:    xs[len(xs)-1],
		Mean:   mean,
		StdDev: std,
		Median: stat.Quantile(0.5, stat.Empirical, xs, nil),
	}
	return h
}

func clampSample(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Empty reports whether no samples were counted
func (h Histogram) Empty() bool { return h.Total == 0 }

// Peak returns the index and count of the fullest bin
func (h Histogram) Peak() (int, float64) {
	if len(h.Counts) == 0 {
		return -1, 0
	}
	i := floats.MaxIdx(h.Counts)
	return i, h.Counts[i]
}

// Normalized returns the counts scaled so that the fullest bin is 1. With
// log set the counts are compressed with log1p first.
func (h Histogram) Normalized(log bool) []float64 {
	out := make([]float64, len(h.Counts))
	copy(out, h.Counts)
	if log {
		for i, c := range out {
			out[i] = math.Log1p(c)
		}
	}
	if len(out) == 0 {
		return out
	}
	if peak := floats.Max(out); peak > 0 {
		floats.Scale(1/peak, out)
	}
	return out
}
