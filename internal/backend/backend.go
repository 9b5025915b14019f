// Package backend displays the image view and drives processing of the
// selection. Two variants exist: CPU bitmaps and a GPU compositing device.
package backend

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/algorithms"
	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/metrics"
	"astro-postprocessor/internal/pipeline"
	"astro-postprocessor/internal/view"
)

// Kind selects a backend variant
type Kind string

const (
	KindAuto Kind = "auto"
	KindCPU  Kind = "cpu"
	KindGPU  Kind = "gpu"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAuto, KindCPU, KindGPU:
		return k, nil
	case "":
		return KindAuto, nil
	}
	return "", fmt.Errorf("unknown backend %q (want auto, cpu or gpu)", s)
}

// Backend is called on the controlling thread only
type Backend interface {
	Name() string
	// FileOpened installs a new source image. A non-nil selection starts
	// processing of that region.
	FileOpened(img *core.Image, sel *image.Rectangle)
	ViewChanged(ch view.Change)
	NewSelection(sel image.Rectangle)
	SettingsChanged(stage core.StageID, settings core.ProcessingSettings)
	// RefreshRect asks for the viewport rectangle r to be redrawn
	RefreshRect(r image.Rectangle)
	GetHistogram() metrics.Histogram
	// Render composites the viewport rectangle of the view
	Render(viewport image.Rectangle) image.Image
	// ProcessedOutput returns the final output of the selection if valid
	ProcessedOutput() (*core.Image, bool)
	Scheduler() *pipeline.Scheduler
	Close()
}

// Hooks connect a backend to the view without a back-pointer
type Hooks struct {
	PhysicalSelection    func() image.Rectangle
	ScaledSelection      func() image.Rectangle
	OnProcessingComplete func()
	OnProgress           func(stage core.StageID, fraction float64)
	OnError              func(stage core.StageID, err error)
	// Invalidate requests a repaint of a viewport rectangle
	Invalidate func(r image.Rectangle)
}

// DefaultRescaleDelay is how long the CPU variant waits after the last
// zoom or scroll before regenerating its scaled preview
const DefaultRescaleDelay = 200 * time.Millisecond

// Deps are the collaborators of a backend
type Deps struct {
	Logger   *logrus.Logger
	Dispatch pipeline.Dispatcher
	Hooks    Hooks

	// Stages defaults to algorithms.Pipeline()
	Stages       *[core.NumStages]algorithms.Stage
	PollInterval time.Duration
	RescaleDelay time.Duration
}

// New constructs the backend of the given kind. KindAuto picks the GPU
// variant when a hardware accelerator is registered.
func New(kind Kind, deps Deps) (Backend, error) {
	switch kind {
	case KindCPU:
		return NewCPU(deps), nil
	case KindGPU:
		return NewGPU(deps)
	case KindAuto, "":
		b, err := NewGPU(deps)
		if err == nil && b.Accelerated() {
			return b, nil
		}
		if b != nil {
			b.Close()
		}
		logger := deps.Logger
		if logger == nil {
			logger = logrus.StandardLogger()
		}
		logger.WithField("reason", reasonOf(err)).Info("BACKEND: no GPU accelerator, using CPU")
		return NewCPU(deps), nil
	}
	return nil, fmt.Errorf("unknown backend kind %q", kind)
}

func reasonOf(err error) string {
	if err != nil {
		return err.Error()
	}
	return "software rasterizer only"
}
