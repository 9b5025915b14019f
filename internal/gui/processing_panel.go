// Processing settings panel: stage parameters and progress
package gui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/session"
)

// ProcessingPanel edits the settings of the session
type ProcessingPanel struct {
	session *session.Session
	logger  *logrus.Logger

	container *fyne.Container

	// set while widgets are updated from the settings
	syncing bool

	lrSigma      *slider
	lrIterations *slider
	lrDeringing  *widget.Check

	umAdaptive  *widget.Check
	umSigma     *slider
	umAmountMin *slider
	umAmountMax *slider
	umThreshold *slider
	umWidth     *slider

	normEnabled *widget.Check
	normMin     *slider
	normMax     *slider

	progressBar *widget.ProgressBar
	statusLabel *widget.Label

	onError func(error)
}

// slider is a labelled slider showing its value
type slider struct {
	*widget.Slider
	label  *widget.Label
	format string
}

func newSlider(min, max, step float64, format string, onChanged func(float64)) *slider {
	s := &slider{Slider: widget.NewSlider(min, max), label: widget.NewLabel(""), format: format}
	s.Step = step
	s.OnChanged = func(v float64) {
		s.label.SetText(fmt.Sprintf(s.format, v))
		onChanged(v)
	}
	return s
}

func (s *slider) set(v float64) {
	s.SetValue(v)
	s.label.SetText(fmt.Sprintf(s.format, v))
}

func (s *slider) row(name string) fyne.CanvasObject {
	return container.NewBorder(nil, nil, widget.NewLabel(name), s.label, s.Slider)
}

func NewProcessingPanel(s *session.Session, logger *logrus.Logger) *ProcessingPanel {
	panel := &ProcessingPanel{
		session: s,
		logger:  logger,
	}
	panel.initializeUI()
	panel.SyncFromSettings(s.Settings())
	return panel
}

func (pp *ProcessingPanel) initializeUI() {
	pp.lrSigma = newSlider(0.5, 10, 0.05, "%.2f", pp.edit(func(st *core.ProcessingSettings, v float64) {
		st.LucyRichardson.Sigma = float32(v)
	}))
	pp.lrIterations = newSlider(0, 500, 1, "%.0f", pp.edit(func(st *core.ProcessingSettings, v float64) {
		st.LucyRichardson.Iterations = int(v)
	}))
	pp.lrDeringing = widget.NewCheck("Prevent ringing around saturated areas", func(checked bool) {
		pp.apply(func(st *core.ProcessingSettings) { st.LucyRichardson.Deringing = checked })
	})
	lrCard := widget.NewCard("Lucy-Richardson deconvolution", "", container.NewVBox(
		pp.lrSigma.row("Sigma"),
		pp.lrIterations.row("Iterations"),
		pp.lrDeringing,
	))

	pp.umAdaptive = widget.NewCheck("Adaptive", func(checked bool) {
		pp.apply(func(st *core.ProcessingSettings) { st.UnsharpMask.Adaptive = checked })
		pp.updateAdaptive(checked)
	})
	pp.umSigma = newSlider(0.5, 200, 0.1, "%.1f", pp.edit(func(st *core.ProcessingSettings, v float64) {
		st.UnsharpMask.Sigma = float32(v)
	}))
	pp.umAmountMin = newSlider(0, 100, 0.05, "%.2f", pp.edit(func(st *core.ProcessingSettings, v float64) {
		st.UnsharpMask.AmountMin = float32(v)
	}))
	pp.umAmountMax = newSlider(0, 100, 0.05, "%.2f", pp.edit(func(st *core.ProcessingSettings, v float64) {
		st.UnsharpMask.AmountMax = float32(v)
	}))
	pp.umThreshold = newSlider(0, 1, 0.005, "%.3f", pp.edit(func(st *core.ProcessingSettings, v float64) {
		st.UnsharpMask.Threshold = float32(v)
	}))
	pp.umWidth = newSlider(0.001, 1, 0.001, "%.3f", pp.edit(func(st *core.ProcessingSettings, v float64) {
		st.UnsharpMask.Width = float32(v)
	}))
	umCard := widget.NewCard("Unsharp masking", "", container.NewVBox(
		pp.umAdaptive,
		pp.umSigma.row("Sigma"),
		pp.umAmountMin.row("Amount min."),
		pp.umAmountMax.row("Amount"),
		pp.umThreshold.row("Threshold"),
		pp.umWidth.row("Transition width"),
	))

	pp.normEnabled = widget.NewCheck("Normalize brightness", func(checked bool) {
		pp.apply(func(st *core.ProcessingSettings) { st.Normalization.Enabled = checked })
	})
	pp.normMin = newSlider(-1, 1, 0.01, "%.2f", pp.edit(func(st *core.ProcessingSettings, v float64) {
		st.Normalization.Min = float32(v)
	}))
	pp.normMax = newSlider(0, 2, 0.01, "%.2f", pp.edit(func(st *core.ProcessingSettings, v float64) {
		st.Normalization.Max = float32(v)
	}))
	normCard := widget.NewCard("Normalization", "", container.NewVBox(
		pp.normEnabled,
		pp.normMin.row("Min."),
		pp.normMax.row("Max."),
	))

	pp.progressBar = widget.NewProgressBar()
	pp.progressBar.Hide()
	pp.statusLabel = widget.NewLabel("Idle")

	pp.container = container.NewVBox(
		normCard,
		lrCard,
		umCard,
		widget.NewSeparator(),
		pp.statusLabel,
		pp.progressBar,
	)
}

func (pp *ProcessingPanel) GetContainer() fyne.CanvasObject {
	return container.NewVScroll(pp.container)
}

// SetErrorCallback receives settings the session rejected
func (pp *ProcessingPanel) SetErrorCallback(fn func(error)) {
	pp.onError = fn
}

func (pp *ProcessingPanel) edit(set func(st *core.ProcessingSettings, v float64)) func(float64) {
	return func(v float64) {
		pp.apply(func(st *core.ProcessingSettings) { set(st, v) })
	}
}

func (pp *ProcessingPanel) apply(change func(st *core.ProcessingSettings)) {
	if pp.syncing {
		return
	}
	next := pp.session.Settings()
	change(&next)
	if err := pp.session.SetSettings(next); err != nil {
		pp.logger.WithError(err).Warn("GUI: settings rejected")
		if pp.onError != nil {
			pp.onError(err)
		}
		pp.SyncFromSettings(pp.session.Settings())
	}
}

// SyncFromSettings shows s without feeding the changes back
func (pp *ProcessingPanel) SyncFromSettings(s core.ProcessingSettings) {
	pp.syncing = true
	defer func() { pp.syncing = false }()

	pp.lrSigma.set(float64(s.LucyRichardson.Sigma))
	pp.lrIterations.set(float64(s.LucyRichardson.Iterations))
	pp.lrDeringing.SetChecked(s.LucyRichardson.Deringing)

	pp.umAdaptive.SetChecked(s.UnsharpMask.Adaptive)
	pp.umSigma.set(float64(s.UnsharpMask.Sigma))
	pp.umAmountMin.set(float64(s.UnsharpMask.AmountMin))
	pp.umAmountMax.set(float64(s.UnsharpMask.AmountMax))
	pp.umThreshold.set(float64(s.UnsharpMask.Threshold))
	pp.umWidth.set(float64(s.UnsharpMask.Width))
	pp.updateAdaptive(s.UnsharpMask.Adaptive)

	pp.normEnabled.SetChecked(s.Normalization.Enabled)
	pp.normMin.set(float64(s.Normalization.Min))
	pp.normMax.set(float64(s.Normalization.Max))
}

func (pp *ProcessingPanel) updateAdaptive(adaptive bool) {
	for _, s := range []*slider{pp.umAmountMin, pp.umThreshold, pp.umWidth} {
		if adaptive {
			s.Enable()
		} else {
			s.Disable()
		}
	}
}

// UpdateProgress shows the running stage
func (pp *ProcessingPanel) UpdateProgress(stage core.StageID, fraction float64) {
	pp.progressBar.Show()
	pp.progressBar.SetValue(fraction)
	pp.statusLabel.SetText(fmt.Sprintf("Step %d/%d: %s", int(stage)+1, core.NumStages, stage))
}

// ProcessingDone hides the progress bar
func (pp *ProcessingPanel) ProcessingDone(r session.Report) {
	pp.progressBar.Hide()
	pp.statusLabel.SetText(fmt.Sprintf("Done (%s)", r.Stats.Summary()))
}
