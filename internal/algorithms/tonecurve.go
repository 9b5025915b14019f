// Tone curve remapping
package algorithms

import (
	"context"
	"math"

	"astro-postprocessor/internal/core"
)

// lutSize is the number of tone curve samples used for preview
const lutSize = 1 << 16

// ToneCurveStage maps brightness through the tone curve. Preview uses a
// lookup table; Precise evaluates the curve for every sample and is used
// when saving.
type ToneCurveStage struct {
	Precise bool
}

func NewToneCurveStage() *ToneCurveStage { return &ToneCurveStage{} }

func (*ToneCurveStage) ID() core.StageID { return core.StageToneCurve }
func (*ToneCurveStage) Name() string     { return "Tone curve" }

func (*ToneCurveStage) IsBypass(s core.ProcessingSettings) bool {
	return s.ToneCurve.IsIdentity()
}

func (st *ToneCurveStage) Run(ctx context.Context, in *core.Image, s core.ProcessingSettings, progress ProgressFunc) (*core.Image, error) {
	checkInput(in)
	if st.IsBypass(s) {
		return bypass(in, progress), nil
	}

	var mapSample func(float32) float32
	if st.Precise {
		eval, err := s.ToneCurve.Evaluator()
		if err != nil {
			return nil, err
		}
		mapSample = func(v float32) float32 { return float32(eval(float64(v))) }
	} else {
		lut, err := s.ToneCurve.LUT(lutSize)
		if err != nil {
			return nil, err
		}
		mapSample = func(v float32) float32 {
			switch {
			case math.IsNaN(float64(v)):
				return v
			case v <= 0:
				return lut[0]
			case v >= 1:
				return lut[lutSize-1]
			}
			return lut[int(v*(lutSize-1)+0.5)]
		}
	}

	out := core.NewImage(in.Width(), in.Height(), core.Mono32F)
	reporter := newProgressReporter(progress)
	for y := 0; y < in.Height(); y++ {
		if ctx.Err() != nil {
			return nil, aborted(ctx)
		}
		src, dst := in.RowFloat32(y), out.RowFloat32(y)
		for x, v := range src {
			dst[x] = mapSample(v)
		}
		reporter.report(float64(y+1) / float64(in.Height()))
	}
	return out, nil
}
