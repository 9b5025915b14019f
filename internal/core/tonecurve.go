// Tone curve: control points or a single gamma value mapping [0,1] to [0,1]
package core

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// CurvePoint is a tone curve control point in [0,1]x[0,1]
type CurvePoint struct {
	X float32
	Y float32
}

// ToneCurve maps input brightness to output brightness. In gamma mode
// the mapping is y = x^Gamma and the control points are kept for when the
// mode is switched back.
type ToneCurve struct {
	Points    []CurvePoint
	Smooth    bool
	GammaMode bool
	Gamma     float32
}

// NewToneCurve returns the identity curve
func NewToneCurve() *ToneCurve {
	return &ToneCurve{
		Points: []CurvePoint{{0, 0}, {1, 1}},
		Smooth: true,
		Gamma:  1,
	}
}

// NewGammaCurve returns a curve in gamma mode
func NewGammaCurve(gamma float32) *ToneCurve {
	tc := NewToneCurve()
	tc.GammaMode = true
	tc.Gamma = gamma
	return tc
}

// IsIdentity reports whether the curve maps every value to itself
func (tc *ToneCurve) IsIdentity() bool {
	if tc.GammaMode {
		return tc.Gamma == 1
	}
	return len(tc.Points) == 2 &&
		tc.Points[0] == CurvePoint{0, 0} &&
		tc.Points[1] == CurvePoint{1, 1}
}

func (tc *ToneCurve) Clone() *ToneCurve {
	out := *tc
	out.Points = append([]CurvePoint(nil), tc.Points...)
	return &out
}

func (tc *ToneCurve) Equal(other *ToneCurve) bool {
	if tc.Smooth != other.Smooth || tc.GammaMode != other.GammaMode || tc.Gamma != other.Gamma {
		return false
	}
	if len(tc.Points) != len(other.Points) {
		return false
	}
	for i := range tc.Points {
		if tc.Points[i] != other.Points[i] {
			return false
		}
	}
	return true
}

// Validate checks that the curve can be evaluated
func (tc *ToneCurve) Validate() error {
	if tc.GammaMode && (tc.Gamma <= 0 || math.IsNaN(float64(tc.Gamma))) {
		return fmt.Errorf("tone curve gamma must be positive, got %g", tc.Gamma)
	}
	if len(tc.Points) < 2 {
		return fmt.Errorf("tone curve needs at least 2 points, got %d", len(tc.Points))
	}
	for i, p := range tc.Points {
		if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
			return fmt.Errorf("tone curve point %d (%g, %g) outside [0,1]", i, p.X, p.Y)
		}
		if i > 0 && p.X <= tc.Points[i-1].X {
			return fmt.Errorf("tone curve points must have increasing x, point %d has %g", i, p.X)
		}
	}
	return nil
}

// AddPoint inserts a control point keeping x order and returns its index.
// A point with the same x as an existing one replaces it.
func (tc *ToneCurve) AddPoint(x, y float32) int {
	p := CurvePoint{clampUnit(x), clampUnit(y)}
	i := sort.Search(len(tc.Points), func(i int) bool { return tc.Points[i].X >= p.X })
	if i < len(tc.Points) && tc.Points[i].X == p.X {
		tc.Points[i] = p
		return i
	}
	tc.Points = append(tc.Points, CurvePoint{})
	copy(tc.Points[i+1:], tc.Points[i:])
	tc.Points[i] = p
	return i
}

// RemovePoint deletes a control point; a curve keeps at least two
func (tc *ToneCurve) RemovePoint(i int) bool {
	if len(tc.Points) <= 2 || i < 0 || i >= len(tc.Points) {
		return false
	}
	tc.Points = append(tc.Points[:i], tc.Points[i+1:]...)
	return true
}

// Evaluator returns the exact mapping function of the curve
func (tc *ToneCurve) Evaluator() (func(float64) float64, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if tc.GammaMode {
		gamma := float64(tc.Gamma)
		return func(x float64) float64 {
			return math.Pow(clamp01(x), gamma)
		}, nil
	}

	xs := make([]float64, len(tc.Points))
	ys := make([]float64, len(tc.Points))
	for i, p := range tc.Points {
		xs[i] = float64(p.X)
		ys[i] = float64(p.Y)
	}
	first, last := tc.Points[0], tc.Points[len(tc.Points)-1]

	var predictor interp.Predictor
	if tc.Smooth && len(tc.Points) > 2 {
		var spline interp.AkimaSpline
		if err := spline.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("failed to fit tone curve: %w", err)
		}
		predictor = &spline
	} else {
		var linear interp.PiecewiseLinear
		if err := linear.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("failed to fit tone curve: %w", err)
		}
		predictor = &linear
	}

	return func(x float64) float64 {
		switch {
		case x <= float64(first.X):
			return float64(first.Y)
		case x >= float64(last.X):
			return float64(last.Y)
		}
		return clamp01(predictor.Predict(x))
	}, nil
}

// LUT samples the curve at n evenly spaced inputs over [0,1]
func (tc *ToneCurve) LUT(n int) ([]float32, error) {
	if n < 2 {
		return nil, fmt.Errorf("lookup table needs at least 2 entries, got %d", n)
	}
	eval, err := tc.Evaluator()
	if err != nil {
		return nil, err
	}
	lut := make([]float32, n)
	for i := range lut {
		lut[i] = float32(eval(float64(i) / float64(n-1)))
	}
	return lut, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func clampUnit(v float32) float32 {
	return float32(clamp01(float64(v)))
}
