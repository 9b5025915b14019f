// Processing settings owned by the session and snapshotted into workers
package core

import "fmt"

// LucyRichardson configures the deconvolution stage
type LucyRichardson struct {
	Sigma      float32
	Iterations int
	Deringing  bool
}

// UnsharpMask configures the unsharp masking stage. When Adaptive is set
// the amount varies from AmountMin to AmountMax around Threshold over
// a transition of the given Width.
type UnsharpMask struct {
	Adaptive  bool
	Sigma     float32
	AmountMin float32
	AmountMax float32
	Threshold float32
	Width     float32
}

// IsEffective reports whether the mask changes the image at all
func (u UnsharpMask) IsEffective() bool {
	if u.Adaptive {
		return u.AmountMin != 1 || u.AmountMax != 1
	}
	return u.AmountMax != 1
}

// Normalization linearly maps the brightness range of a loaded image
// to [Min, Max]
type Normalization struct {
	Enabled bool
	Min     float32
	Max     float32
}

// ProcessingSettings holds the parameters of every stage
type ProcessingSettings struct {
	Normalization  Normalization
	LucyRichardson LucyRichardson
	UnsharpMask    UnsharpMask
	ToneCurve      ToneCurve
}

const (
	DefaultLRSigma          = 1.3
	DefaultLRIterations     = 50
	DefaultUnsharpSigma     = 1.3
	DefaultUnsharpAmount    = 1.0
	DefaultUnsharpThreshold = 0.01
	DefaultUnsharpWidth     = 0.01
)

// DefaultSettings returns settings under which only deconvolution
// changes the image
func DefaultSettings() ProcessingSettings {
	return ProcessingSettings{
		Normalization: Normalization{Min: 0, Max: 1},
		LucyRichardson: LucyRichardson{
			Sigma:      DefaultLRSigma,
			Iterations: DefaultLRIterations,
		},
		UnsharpMask: UnsharpMask{
			Sigma:     DefaultUnsharpSigma,
			AmountMin: DefaultUnsharpAmount,
			AmountMax: DefaultUnsharpAmount,
			Threshold: DefaultUnsharpThreshold,
			Width:     DefaultUnsharpWidth,
		},
		ToneCurve: *NewToneCurve(),
	}
}

// Clone returns a deep copy safe to hand to a worker
func (s ProcessingSettings) Clone() ProcessingSettings {
	out := s
	out.ToneCurve = *s.ToneCurve.Clone()
	return out
}

// Validate checks parameter ranges
func (s ProcessingSettings) Validate() error {
	if s.LucyRichardson.Sigma <= 0 {
		return fmt.Errorf("lucy-richardson sigma must be positive, got %g", s.LucyRichardson.Sigma)
	}
	if s.LucyRichardson.Iterations < 0 {
		return fmt.Errorf("lucy-richardson iterations must not be negative, got %d", s.LucyRichardson.Iterations)
	}
	if s.UnsharpMask.Sigma <= 0 {
		return fmt.Errorf("unsharp mask sigma must be positive, got %g", s.UnsharpMask.Sigma)
	}
	if s.UnsharpMask.Adaptive && s.UnsharpMask.Width <= 0 {
		return fmt.Errorf("adaptive unsharp mask width must be positive, got %g", s.UnsharpMask.Width)
	}
	if s.Normalization.Enabled && s.Normalization.Min >= s.Normalization.Max {
		return fmt.Errorf("normalization range [%g, %g] is empty", s.Normalization.Min, s.Normalization.Max)
	}
	return s.ToneCurve.Validate()
}

// FirstChangedStage returns the earliest stage whose parameters differ
// between s and other, and false when none does
func (s ProcessingSettings) FirstChangedStage(other ProcessingSettings) (StageID, bool) {
	switch {
	case s.LucyRichardson != other.LucyRichardson:
		return StageSharpening, true
	case s.UnsharpMask != other.UnsharpMask:
		return StageUnsharpMask, true
	case !s.ToneCurve.Equal(&other.ToneCurve):
		return StageToneCurve, true
	}
	return StageNone, false
}
