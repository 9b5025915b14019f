// Unsharp masking, optionally with brightness-adaptive amount
package algorithms

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"astro-postprocessor/internal/core"
)

// UnsharpMasking is the second stage
type UnsharpMasking struct{}

func NewUnsharpMasking() *UnsharpMasking { return &UnsharpMasking{} }

func (*UnsharpMasking) ID() core.StageID { return core.StageUnsharpMask }
func (*UnsharpMasking) Name() string     { return "Unsharp masking" }

func (*UnsharpMasking) IsBypass(s core.ProcessingSettings) bool {
	return !s.UnsharpMask.IsEffective()
}

func (st *UnsharpMasking) Run(ctx context.Context, in *core.Image, s core.ProcessingSettings, progress ProgressFunc) (*core.Image, error) {
	checkInput(in)
	if st.IsBypass(s) {
		return bypass(in, progress), nil
	}
	um := s.UnsharpMask
	if um.Sigma <= 0 {
		return nil, fmt.Errorf("invalid unsharp mask sigma %g", um.Sigma)
	}

	src, err := toMat(in)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	if err := gaussianBlur(src, &blurred, um.Sigma); err != nil {
		return nil, fmt.Errorf("failed to blur: %w", err)
	}
	if ctx.Err() != nil {
		return nil, aborted(ctx)
	}

	if !um.Adaptive {
		result := gocv.NewMat()
		defer result.Close()
		amount := float64(um.AmountMax)
		if err := gocv.AddWeighted(src, amount, blurred, 1-amount, 0, &result); err != nil {
			return nil, fmt.Errorf("failed to combine: %w", err)
		}
		if progress != nil {
			progress(1)
		}
		return fromMat(result)
	}

	blur, err := fromMat(blurred)
	if err != nil {
		return nil, err
	}
	out := core.NewImage(in.Width(), in.Height(), core.Mono32F)
	reporter := newProgressReporter(progress)
	for y := 0; y < in.Height(); y++ {
		if ctx.Err() != nil {
			return nil, aborted(ctx)
		}
		srcRow, blurRow, dstRow := in.RowFloat32(y), blur.RowFloat32(y), out.RowFloat32(y)
		for x := range dstRow {
			a := AdaptiveAmount(um, blurRow[x])
			dstRow[x] = a*srcRow[x] + (1-a)*blurRow[x]
		}
		reporter.report(float64(y+1) / float64(in.Height()))
	}
	return out, nil
}

// AdaptiveAmount returns the mask amount for a pixel of the given blurred
// brightness: AmountMin below Threshold-Width, AmountMax above
// Threshold+Width, and a smooth cubic transition between
func AdaptiveAmount(um core.UnsharpMask, brightness float32) float32 {
	lo := um.Threshold - um.Width
	hi := um.Threshold + um.Width
	switch {
	case brightness <= lo:
		return um.AmountMin
	case brightness >= hi:
		return um.AmountMax
	}
	t := (brightness - lo) / (hi - lo)
	t = t * t * (3 - 2*t)
	return um.AmountMin + (um.AmountMax-um.AmountMin)*t
}
