package core

import (
	"math"
	"testing"
)

func TestToneCurveIdentity(t *testing.T) {
	tests := []struct {
		name string
		tc   *ToneCurve
		want bool
	}{
		{"default", NewToneCurve(), true},
		{"gamma one", NewGammaCurve(1), true},
		{"gamma two", NewGammaCurve(2), false},
		{"three points", func() *ToneCurve {
			tc := NewToneCurve()
			tc.AddPoint(0.5, 0.5)
			return tc
		}(), false},
		{"lifted black", &ToneCurve{Points: []CurvePoint{{0, 0.1}, {1, 1}}, Gamma: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tc.IsIdentity(); got != tt.want {
				t.Errorf("IsIdentity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToneCurveEvaluator(t *testing.T) {
	eval, err := NewGammaCurve(2).Evaluator()
	if err != nil {
		t.Fatal(err)
	}
	if got := eval(0.5); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("gamma 2 at 0.5 = %v, want 0.25", got)
	}

	tc := &ToneCurve{Points: []CurvePoint{{0, 0}, {0.5, 0.8}, {1, 1}}, Gamma: 1}
	eval, err = tc.Evaluator()
	if err != nil {
		t.Fatal(err)
	}
	if got := eval(0.25); math.Abs(got-0.4) > 1e-6 {
		t.Errorf("linear at 0.25 = %v, want 0.4", got)
	}
	if got := eval(-1); got != 0 {
		t.Errorf("below range = %v, want 0", got)
	}

	tc.Smooth = true
	eval, err = tc.Evaluator()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range tc.Points {
		if got := eval(float64(p.X)); math.Abs(got-float64(p.Y)) > 1e-6 {
			t.Errorf("spline at %v = %v, want %v", p.X, got, p.Y)
		}
	}
}

func TestToneCurveAddRemovePoint(t *testing.T) {
	tc := NewToneCurve()
	if i := tc.AddPoint(0.3, 0.6); i != 1 {
		t.Fatalf("AddPoint index = %d, want 1", i)
	}
	tc.AddPoint(0.3, 0.7)
	if len(tc.Points) != 3 || tc.Points[1].Y != 0.7 {
		t.Fatalf("points = %v", tc.Points)
	}
	if !tc.RemovePoint(1) || tc.RemovePoint(0) {
		t.Fatalf("unexpected remove results, points = %v", tc.Points)
	}
	if err := tc.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestSettingsFirstChangedStage(t *testing.T) {
	base := DefaultSettings()

	s := base.Clone()
	s.UnsharpMask.Sigma = 2
	if st, ok := base.FirstChangedStage(s); !ok || st != StageUnsharpMask {
		t.Errorf("got %v %v, want %v", st, ok, StageUnsharpMask)
	}

	s = base.Clone()
	s.ToneCurve.AddPoint(0.5, 0.6)
	if st, ok := base.FirstChangedStage(s); !ok || st != StageToneCurve {
		t.Errorf("got %v %v, want %v", st, ok, StageToneCurve)
	}
	if len(base.ToneCurve.Points) != 2 {
		t.Error("Clone shares tone curve points")
	}

	if _, ok := base.FirstChangedStage(base.Clone()); ok {
		t.Error("identical settings reported as changed")
	}
}

func TestUnsharpMaskIsEffective(t *testing.T) {
	u := DefaultSettings().UnsharpMask
	if u.IsEffective() {
		t.Error("default mask should be ineffective")
	}
	u.Adaptive = true
	u.AmountMin = 0.5
	if !u.IsEffective() {
		t.Error("adaptive mask with amountMin 0.5 should be effective")
	}
	u.Adaptive = false
	if u.IsEffective() {
		t.Error("non-adaptive mask only looks at amountMax")
	}
}
