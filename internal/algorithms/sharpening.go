// Lucy-Richardson deconvolution with a Gaussian point spread function
package algorithms

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"astro-postprocessor/internal/core"
)

const (
	// added to the re-blurred estimate to keep the ratio finite
	lrEpsilon = 1.0e-6

	// input samples at or above this level are treated as saturated
	// when deringing
	deringThreshold = 0.99
)

// Sharpening is the deconvolution stage
type Sharpening struct{}

func NewSharpening() *Sharpening { return &Sharpening{} }

func (*Sharpening) ID() core.StageID { return core.StageSharpening }
func (*Sharpening) Name() string     { return "Lucy-Richardson deconvolution" }

func (*Sharpening) IsBypass(s core.ProcessingSettings) bool {
	return s.LucyRichardson.Iterations == 0
}

func (st *Sharpening) Run(ctx context.Context, in *core.Image, s core.ProcessingSettings, progress ProgressFunc) (*core.Image, error) {
	checkInput(in)
	if st.IsBypass(s) {
		return bypass(in, progress), nil
	}
	lr := s.LucyRichardson
	if lr.Sigma <= 0 {
		return nil, fmt.Errorf("invalid lucy-richardson sigma %g", lr.Sigma)
	}

	observed, err := toMat(in)
	if err != nil {
		return nil, err
	}
	defer observed.Close()

	estimate := observed.Clone()
	defer func() { estimate.Close() }()

	blurred := gocv.NewMat()
	defer blurred.Close()
	ratio := gocv.NewMat()
	defer ratio.Close()
	correction := gocv.NewMat()
	defer correction.Close()

	reporter := newProgressReporter(progress)
	for i := 0; i < lr.Iterations; i++ {
		if ctx.Err() != nil {
			return nil, aborted(ctx)
		}

		if err := gaussianBlur(estimate, &blurred, lr.Sigma); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		blurred.AddFloat(lrEpsilon)
		if err := gocv.Divide(observed, blurred, &ratio); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		if err := gaussianBlur(ratio, &correction, lr.Sigma); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		next := gocv.NewMat()
		if err := gocv.Multiply(estimate, correction, &next); err != nil {
			next.Close()
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		estimate.Close()
		estimate = next

		reporter.report(float64(i+1) / float64(lr.Iterations))
	}

	out, err := fromMat(estimate)
	if err != nil {
		return nil, err
	}
	if lr.Deringing {
		restoreSaturated(in, out)
	}
	return out, nil
}

// restoreSaturated copies saturated input samples and their immediate
// neighbours into out, where deconvolution produces ringing
func restoreSaturated(in, out *core.Image) {
	w, h := in.Width(), in.Height()
	src := in.Float32s()
	dst := out.Float32s()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if src[y*w+x] < deringThreshold {
				continue
			}
			for ny := max(y-1, 0); ny <= min(y+1, h-1); ny++ {
				for nx := max(x-1, 0); nx <= min(x+1, w-1); nx++ {
					dst[ny*w+nx] = src[ny*w+nx]
				}
			}
		}
	}
}
