package backend

import (
	"image"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/algorithms"
	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/metrics"
	"astro-postprocessor/internal/pipeline"
	"astro-postprocessor/internal/view"
)

// base holds what both variants share: the source image, the selection,
// the last known view geometry and the scheduler
type base struct {
	logger *logrus.Logger
	hooks  Hooks
	sched  *pipeline.Scheduler

	source    *core.Image
	selection image.Rectangle
	selected  bool

	zoom     float64
	scroll   image.Point
	viewSize image.Point

	// stageCompleted is the variant's reaction to a new stage output
	stageCompleted func(stage core.StageID)
}

func newBase(deps Deps, stageCompleted func(core.StageID)) *base {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	stages := algorithms.Pipeline()
	if deps.Stages != nil {
		stages = *deps.Stages
	}
	b := &base{
		logger:         logger,
		hooks:          deps.Hooks,
		zoom:           core.ZoomNone,
		stageCompleted: stageCompleted,
	}
	b.sched = pipeline.NewScheduler(pipeline.Config{
		Stages:       stages,
		Dispatch:     deps.Dispatch,
		Logger:       logger,
		PollInterval: deps.PollInterval,
	})
	b.sched.SetCallbacks(pipeline.Callbacks{
		OnProgress: func(stage core.StageID, fraction float64) {
			if b.hooks.OnProgress != nil {
				b.hooks.OnProgress(stage, fraction)
			}
		},
		OnStageCompleted: func(stage core.StageID) {
			if b.stageCompleted != nil {
				b.stageCompleted(stage)
			}
		},
		OnComplete: func() {
			if b.hooks.OnProcessingComplete != nil {
				b.hooks.OnProcessingComplete()
			}
		},
		OnError: func(stage core.StageID, err error) {
			b.logger.WithFields(logrus.Fields{
				"stage": stage.String(),
				"error": err,
			}).Error("BACKEND: stage failed")
			if b.hooks.OnError != nil {
				b.hooks.OnError(stage, err)
			}
		},
	})
	return b
}

func (b *base) Scheduler() *pipeline.Scheduler { return b.sched }

func (b *base) fileOpened(img *core.Image) {
	if img == nil || img.Format() != core.Mono32F {
		core.Invariant("backend source must be a %s image", core.Mono32F)
	}
	b.sched.Reset()
	b.source = img
	b.selected = false
	b.selection = image.Rectangle{}
	b.scroll = image.Point{}
	b.zoom = core.ZoomNone
}

// newSelection returns the previous selection, if any
func (b *base) newSelection(sel image.Rectangle) (image.Rectangle, bool) {
	if b.source == nil {
		return image.Rectangle{}, false
	}
	old, had := b.selection, b.selected
	sel = core.ClampSelection(sel, b.source.Bounds())
	if sel.Empty() {
		return old, had
	}
	b.selection = sel
	b.selected = true
	b.logger.WithFields(logrus.Fields{
		"selection": sel.String(),
	}).Debug("BACKEND: new selection")
	b.sched.SetInput(b.source.SubImage(sel))
	return old, had
}

func (b *base) viewChanged(ch view.Change) (zoomChanged bool) {
	zoomChanged = ch.Zoom != b.zoom
	b.zoom = ch.Zoom
	b.scroll = ch.Scroll
	b.viewSize = ch.ViewSize
	return zoomChanged
}

func (b *base) SettingsChanged(stage core.StageID, settings core.ProcessingSettings) {
	b.sched.SettingsChanged(stage, settings)
}

func (b *base) RefreshRect(r image.Rectangle) {
	b.invalidate(r)
}

// GetHistogram covers the most recent valid output before the tone curve
func (b *base) GetHistogram() metrics.Histogram {
	if !b.selected {
		return metrics.Compute(nil, metrics.DefaultBins)
	}
	return metrics.Compute(b.sched.LatestValid(core.StageUnsharpMask), metrics.DefaultBins)
}

func (b *base) ProcessedOutput() (*core.Image, bool) {
	return b.sched.Output(core.StageToneCurve)
}

// latestOutput is the output to display in the selection
func (b *base) latestOutput() (*core.Image, core.StageID, bool) {
	for st := core.StageToneCurve; st >= core.StageSharpening; st-- {
		if img, ok := b.sched.Output(st); ok {
			return img, st, true
		}
	}
	return nil, core.StageNone, false
}

// scaledSelection is the selection in scaled coordinates
func (b *base) scaledSelection() image.Rectangle {
	if b.hooks.ScaledSelection != nil {
		return b.hooks.ScaledSelection()
	}
	return core.ScaleRect(b.selection, b.zoom)
}

// physicalSelection is the selection in viewport coordinates
func (b *base) physicalSelection() image.Rectangle {
	if b.hooks.PhysicalSelection != nil {
		return b.hooks.PhysicalSelection()
	}
	return b.scaledSelection().Sub(b.scroll)
}

// visibleArea is the logical part of the source inside the viewport
func (b *base) visibleArea() image.Rectangle {
	return b.visibleIn(image.Rectangle{Max: b.viewSize})
}

// visibleIn is the logical part of the source inside a viewport rectangle,
// widened by a pixel to cover partially visible edges
func (b *base) visibleIn(viewport image.Rectangle) image.Rectangle {
	if b.source == nil {
		return image.Rectangle{}
	}
	r := core.UnscaleRect(viewport.Add(b.scroll), b.zoom)
	r.Max = r.Max.Add(image.Pt(1, 1))
	return r.Intersect(b.source.Bounds())
}

func (b *base) invalidate(r image.Rectangle) {
	if b.hooks.Invalidate != nil && !r.Empty() {
		b.hooks.Invalidate(r)
	}
}

func (b *base) invalidateAll() {
	b.invalidate(image.Rectangle{Max: b.viewSize})
}

func (b *base) close() {
	b.sched.Close()
}
