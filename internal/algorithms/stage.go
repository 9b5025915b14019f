// Pipeline stage contract and registry
package algorithms

import (
	"context"
	"fmt"

	"astro-postprocessor/internal/core"
)

// ProgressFunc receives the completed fraction of a stage in [0,1]
type ProgressFunc func(fraction float64)

// Stage is a pure transformation of a Mono32F image. Run never modifies
// in and always returns a freshly allocated output of the same size.
// A cancelled ctx makes Run return an error wrapping core.ErrAborted.
type Stage interface {
	ID() core.StageID
	Name() string
	// IsBypass reports whether s makes the stage a plain copy
	IsBypass(s core.ProcessingSettings) bool
	Run(ctx context.Context, in *core.Image, s core.ProcessingSettings, progress ProgressFunc) (*core.Image, error)
}

var stages = make(map[core.StageID]Stage)

func Register(stage Stage) {
	stages[stage.ID()] = stage
}

func Get(id core.StageID) (Stage, bool) {
	stage, exists := stages[id]
	return stage, exists
}

// Apply runs a registered stage
func Apply(ctx context.Context, id core.StageID, in *core.Image, s core.ProcessingSettings, progress ProgressFunc) (*core.Image, error) {
	stage, exists := stages[id]
	if !exists {
		return nil, fmt.Errorf("stage not found: %s", id)
	}
	return stage.Run(ctx, in, s, progress)
}

// Pipeline returns the registered stages in execution order
func Pipeline() [core.NumStages]Stage {
	var result [core.NumStages]Stage
	for i, id := range core.Stages {
		stage, exists := stages[id]
		if !exists {
			core.Invariant("stage %s not registered", id)
		}
		result[i] = stage
	}
	return result
}

func init() {
	Register(NewSharpening())
	Register(NewUnsharpMasking())
	Register(NewToneCurveStage())
}

func checkInput(in *core.Image) {
	if in == nil || in.Format() != core.Mono32F {
		core.Invariant("stage input must be a %s image", core.Mono32F)
	}
}

func aborted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", core.ErrAborted, ctx.Err())
}

// bypass returns a copy of the input, reporting completion
func bypass(in *core.Image, progress ProgressFunc) *core.Image {
	if progress != nil {
		progress(1)
	}
	return in.Clone()
}
