// internal/gui/info_panel.go
// Tone curve, histogram and quality metrics of the processed selection
package gui

import (
	"fmt"
	"math"
	"sort"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/config"
	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/session"
)

// InfoPanel provides the right panel with the tone curve and metrics
type InfoPanel struct {
	session *session.Session
	store   *config.Store
	logger  *logrus.Logger

	container *fyne.Container
	syncing   bool

	editor      *ToneCurveEditor
	gammaCheck  *widget.Check
	gammaSlider *slider
	smoothCheck *widget.Check
	logCheck    *widget.Check
	statsLabel  *widget.Label

	metricsContent *fyne.Container
	currentMetrics map[string]float64
}

func NewInfoPanel(s *session.Session, store *config.Store, logger *logrus.Logger) *InfoPanel {
	panel := &InfoPanel{
		session:        s,
		store:          store,
		logger:         logger,
		currentMetrics: make(map[string]float64),
	}
	panel.initializeUI()
	panel.SyncFromSettings(s.Settings())
	return panel
}

func (ip *InfoPanel) initializeUI() {
	ip.editor = NewToneCurveEditor(ip.logger)
	ip.editor.SetChangedCallback(func(tc core.ToneCurve) {
		ip.setCurve(tc)
	})

	ip.gammaCheck = widget.NewCheck("Gamma", func(checked bool) {
		ip.editCurve(func(tc *core.ToneCurve) { tc.GammaMode = checked })
	})
	ip.gammaSlider = newSlider(0.1, 5, 0.01, "%.2f", func(v float64) {
		ip.editCurve(func(tc *core.ToneCurve) { tc.Gamma = float32(v) })
	})
	ip.smoothCheck = widget.NewCheck("Smooth", func(checked bool) {
		ip.editCurve(func(tc *core.ToneCurve) { tc.Smooth = checked })
	})
	ip.logCheck = widget.NewCheck("Logarithmic histogram", func(checked bool) {
		ip.editor.SetLogScale(checked)
		if ip.store != nil {
			ip.store.SetHistogramLog(checked)
		}
	})
	if ip.store != nil {
		ip.logCheck.SetChecked(ip.store.HistogramLog())
	}
	resetBtn := widget.NewButtonWithIcon("Reset", theme.ViewRefreshIcon(), func() {
		ip.setCurve(*core.NewToneCurve())
	})
	ip.statsLabel = widget.NewLabel("")

	curveBox := container.NewBorder(
		nil,
		container.NewVBox(
			container.NewHBox(ip.smoothCheck, ip.gammaCheck, resetBtn),
			ip.gammaSlider.row("Gamma"),
			ip.logCheck,
			ip.statsLabel,
		),
		nil, nil,
		ip.editor,
	)
	curveCard := widget.NewCard("Tone curve", "Click to add a point, right-click to remove", curveBox)

	ip.metricsContent = container.NewVBox(
		widget.NewLabel("Quality metrics appear when processing completes."),
	)
	metricsCard := widget.NewCard("Quality Metrics", "", ip.metricsContent)

	ip.container = container.NewBorder(nil, metricsCard, nil, nil, curveCard)
}

func (ip *InfoPanel) GetContainer() fyne.CanvasObject {
	return ip.container
}

func (ip *InfoPanel) editCurve(change func(tc *core.ToneCurve)) {
	if ip.syncing {
		return
	}
	tc := ip.session.Settings().ToneCurve
	change(&tc)
	ip.setCurve(tc)
}

func (ip *InfoPanel) setCurve(tc core.ToneCurve) {
	if err := ip.session.SetToneCurve(tc); err != nil {
		ip.logger.WithError(err).Warn("GUI: tone curve rejected")
	}
	ip.SyncFromSettings(ip.session.Settings())
}

// SyncFromSettings shows the tone curve of s
func (ip *InfoPanel) SyncFromSettings(s core.ProcessingSettings) {
	ip.syncing = true
	defer func() { ip.syncing = false }()

	tc := s.ToneCurve
	ip.editor.SetCurve(tc)
	ip.gammaCheck.SetChecked(tc.GammaMode)
	ip.smoothCheck.SetChecked(tc.Smooth)
	ip.gammaSlider.set(float64(tc.Gamma))
	if tc.GammaMode {
		ip.gammaSlider.Enable()
		ip.smoothCheck.Disable()
	} else {
		ip.gammaSlider.Disable()
		ip.smoothCheck.Enable()
	}
}

// UpdateReport shows the histogram and metrics of a finished run
func (ip *InfoPanel) UpdateReport(r session.Report) {
	ip.editor.SetHistogram(r.Histogram)
	st := r.Histogram.Stats
	ip.statsLabel.SetText(fmt.Sprintf("min %.3f  max %.3f  mean %.3f  σ %.3f  median %.3f",
		st.Min, st.Max, st.Mean, st.StdDev, st.Median))
	ip.UpdateMetrics(r.Quality)
}

func (ip *InfoPanel) UpdateMetrics(metrics map[string]float64) {
	ip.currentMetrics = metrics
	ip.refreshMetricsDisplay()
}

func (ip *InfoPanel) refreshMetricsDisplay() {
	ip.metricsContent.RemoveAll()

	if len(ip.currentMetrics) == 0 {
		ip.metricsContent.Add(widget.NewLabel("Processing..."))
		ip.metricsContent.Refresh()
		return
	}

	names := make([]string, 0, len(ip.currentMetrics))
	for name := range ip.currentMetrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ip.metricsContent.Add(ip.createMetricWidget(name, ip.currentMetrics[name]))
	}
	ip.metricsContent.Refresh()
}

func (ip *InfoPanel) createMetricWidget(name string, value float64) fyne.CanvasObject {
	var displayText string
	var icon fyne.Resource

	switch name {
	case "psnr":
		if math.IsInf(value, 1) {
			displayText = "PSNR: unchanged"
		} else {
			displayText = fmt.Sprintf("PSNR: %.2f dB", value)
		}
		icon = theme.InfoIcon()
	case "sharpness", "contrast":
		displayText = fmt.Sprintf("%s gain: %.2fx", name, value)
		icon = theme.ConfirmIcon()
		if value < 1 {
			icon = theme.WarningIcon()
		}
	default:
		displayText = fmt.Sprintf("%s: %.5f", name, value)
		icon = theme.InfoIcon()
	}
	return container.NewHBox(widget.NewIcon(icon), widget.NewLabel(displayText))
}

func (ip *InfoPanel) Clear() {
	ip.currentMetrics = make(map[string]float64)
	ip.metricsContent.RemoveAll()
	ip.metricsContent.Add(widget.NewLabel("Quality metrics appear when processing completes."))
	ip.metricsContent.Refresh()
	ip.statsLabel.SetText("")
}

// StatusManager handles status messages and notifications
type StatusManager struct {
	widget    *widget.Card
	container *fyne.Container
}

func NewStatusManager() *StatusManager {
	manager := &StatusManager{}
	manager.container = container.NewHBox(
		widget.NewIcon(theme.InfoIcon()),
		widget.NewLabel("Open an image to start"),
	)
	manager.widget = widget.NewCard("", "", manager.container)
	return manager
}

func (sm *StatusManager) GetWidget() fyne.CanvasObject {
	return sm.widget
}

func (sm *StatusManager) ShowInfo(message string) {
	sm.updateStatus(message, theme.InfoIcon())
}

func (sm *StatusManager) ShowSuccess(message string) {
	sm.updateStatus(message, theme.ConfirmIcon())
}

func (sm *StatusManager) ShowError(err error) {
	sm.updateStatus(fmt.Sprintf("Error: %s", err.Error()), theme.ErrorIcon())
}

func (sm *StatusManager) updateStatus(message string, icon fyne.Resource) {
	sm.container.RemoveAll()
	sm.container.Add(widget.NewIcon(icon))
	sm.container.Add(widget.NewLabel(message))
	sm.container.Refresh()
}
