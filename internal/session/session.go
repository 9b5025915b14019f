// Package session is the controlling-thread glue between the UI, the view
// model, the backend and the file collaborators
package session

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/algorithms"
	"astro-postprocessor/internal/backend"
	"astro-postprocessor/internal/config"
	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/io"
	"astro-postprocessor/internal/metrics"
	"astro-postprocessor/internal/pipeline"
	"astro-postprocessor/internal/settings"
	"astro-postprocessor/internal/view"
)

// Report summarizes a finished processing run
type Report struct {
	Histogram metrics.Histogram
	Quality   map[string]float64
	Stats     pipeline.Stats
}

// Listener receives session events on the controlling thread
type Listener struct {
	OnImageOpened     func(path string, size image.Point)
	OnProgress        func(stage core.StageID, fraction float64)
	OnProcessingDone  func(r Report)
	OnInvalidate      func(rects []image.Rectangle)
	OnSettingsChanged func(s core.ProcessingSettings)
	OnSaved           func(path string)
	OnError           func(err error)
}

// Config holds what a Session is built from
type Config struct {
	Logger   *logrus.Logger
	Dispatch pipeline.Dispatcher
	Backend  backend.Kind
	Store    *config.Store
	Listener Listener

	// BackendDeps overrides the stages and timings of the backend
	BackendDeps backend.Deps
}

type pendingSave struct {
	path   string
	format io.OutputFormat
}

// Session is used from the controlling thread only
type Session struct {
	logger      *logrus.Logger
	listener    Listener
	store       *config.Store
	loader      *io.ImageLoader
	evaluator   *metrics.Evaluator
	backend     backend.Backend
	view        *view.State
	interaction *view.Interaction
	document    *core.Document

	// original is the loaded image before normalization
	original     *core.Image
	settings     core.ProcessingSettings
	settingsPath string
	modified     bool

	pending *pendingSave
}

func New(cfg Config) (*Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Session{
		logger:    logger,
		listener:  cfg.Listener,
		store:     cfg.Store,
		loader:    io.NewImageLoader(logger),
		evaluator: metrics.NewEvaluator(),
		view:      view.NewState(),
		document:  core.NewDocument(),
		settings:  core.DefaultSettings(),
	}
	s.interaction = view.NewInteraction(s.view, view.Listener{
		OnNewSelection: s.selectionChanged,
		OnViewChanged:  s.viewChanged,
		OnDamage:       s.invalidateRects,
	})

	deps := cfg.BackendDeps
	deps.Logger = logger
	deps.Dispatch = cfg.Dispatch
	deps.Hooks = backend.Hooks{
		PhysicalSelection:    s.view.PhysicalSelection,
		ScaledSelection:      s.view.ScaledSelection,
		OnProcessingComplete: s.processingComplete,
		OnProgress:           s.progress,
		OnError: func(stage core.StageID, err error) {
			s.fail(fmt.Errorf("%s failed: %w", stage, err))
		},
		Invalidate: func(r image.Rectangle) { s.invalidateRects([]image.Rectangle{r}) },
	}
	b, err := backend.New(cfg.Backend, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	s.backend = b
	s.backend.SettingsChanged(core.StageSharpening, s.settings)
	if s.store != nil {
		s.view.SetFitInWindow(s.store.FitInWindow())
	}

	logger.WithFields(logrus.Fields{"backend": b.Name()}).Info("SESSION: created")
	return s, nil
}

func (s *Session) Backend() backend.Backend              { return s.backend }
func (s *Session) View() *view.State                     { return s.view }
func (s *Session) Interaction() *view.Interaction        { return s.interaction }
func (s *Session) Document() *core.Document              { return s.document }
func (s *Session) Settings() core.ProcessingSettings     { return s.settings.Clone() }
func (s *Session) SettingsPath() string                  { return s.settingsPath }
func (s *Session) SettingsModified() bool                { return s.modified }
func (s *Session) Stats() pipeline.Stats                 { return s.backend.Scheduler().Stats() }
func (s *Session) Histogram() metrics.Histogram          { return s.backend.GetHistogram() }
func (s *Session) Render(vp image.Rectangle) image.Image { return s.backend.Render(vp) }

// OpenFile loads an image and starts processing its default selection
func (s *Session) OpenFile(path string) error {
	img, original, err := s.loader.LoadImage(path)
	if err != nil {
		s.logger.WithError(err).Error("SESSION: open failed")
		return err
	}
	if err := s.OpenImage(img, original, path); err != nil {
		return err
	}
	if s.store != nil {
		s.store.SetLastOpenFile(path)
	}
	return nil
}

// OpenImage installs an already decoded Mono32F image
func (s *Session) OpenImage(img *core.Image, original core.PixelFormat, path string) error {
	source := s.normalized(img)
	if err := s.document.SetSource(source, original, path); err != nil {
		return &core.FileLoadError{Path: path, Err: err}
	}
	s.original = img
	s.pending = nil

	sel := core.DefaultSelection(img.Width(), img.Height())
	s.view.Reset(img.Bounds().Size(), sel)
	s.interaction.Reset(!s.view.Selection().Empty())
	sel = s.view.Selection()
	s.backend.FileOpened(source, &sel)
	s.backend.ViewChanged(s.currentView(view.Resized))
	s.flushDamage()

	s.logger.WithFields(logrus.Fields{
		"path":      path,
		"width":     img.Width(),
		"height":    img.Height(),
		"selection": sel.String(),
	}).Info("SESSION: image opened")
	if s.listener.OnImageOpened != nil {
		s.listener.OnImageOpened(path, img.Bounds().Size())
	}
	return nil
}

// normalized applies the normalization settings to a copy of img
func (s *Session) normalized(img *core.Image) *core.Image {
	if !s.settings.Normalization.Enabled {
		return img
	}
	out := img.Clone()
	core.Normalize(out, s.settings.Normalization.Min, s.settings.Normalization.Max)
	return out
}

func (s *Session) currentView(kind view.ChangeKind) view.Change {
	return view.Change{
		Kind:     kind,
		Zoom:     s.view.Zoom(),
		Scroll:   s.view.Scroll(),
		ViewSize: s.view.ViewSize(),
	}
}

// SetSettings replaces the settings and recomputes from the first stage
// whose parameters changed
func (s *Session) SetSettings(next core.ProcessingSettings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	prev := s.settings
	s.settings = next.Clone()
	s.modified = true

	if prev.Normalization != next.Normalization && s.original != nil {
		s.renormalize()
	} else if stage, changed := prev.FirstChangedStage(next); changed {
		s.logger.WithFields(logrus.Fields{"stage": stage.String()}).Debug("SESSION: settings changed")
		s.backend.SettingsChanged(stage, s.settings)
	}
	if s.listener.OnSettingsChanged != nil {
		s.listener.OnSettingsChanged(s.settings.Clone())
	}
	return nil
}

// renormalize reinstalls the source after a normalization change, keeping
// the view and the selection
func (s *Session) renormalize() {
	source := s.normalized(s.original)
	meta := s.document.Metadata()
	if err := s.document.SetSource(source, meta.OriginalFormat, s.document.Filepath()); err != nil {
		s.fail(err)
		return
	}
	s.backend.Scheduler().UpdateSettings(s.settings)
	sel := s.view.Selection()
	s.backend.FileOpened(source, &sel)
	s.backend.ViewChanged(s.currentView(view.Resized))
}

func (s *Session) SetLucyRichardson(lr core.LucyRichardson) error {
	next := s.settings.Clone()
	next.LucyRichardson = lr
	return s.SetSettings(next)
}

func (s *Session) SetUnsharpMask(um core.UnsharpMask) error {
	next := s.settings.Clone()
	next.UnsharpMask = um
	return s.SetSettings(next)
}

func (s *Session) SetToneCurve(tc core.ToneCurve) error {
	next := s.settings.Clone()
	next.ToneCurve = *tc.Clone()
	return s.SetSettings(next)
}

func (s *Session) SetNormalization(n core.Normalization) error {
	next := s.settings.Clone()
	next.Normalization = n
	return s.SetSettings(next)
}

// LoadSettings reads a settings file; on failure the current settings
// stay in effect
func (s *Session) LoadSettings(path string) error {
	loaded, err := settings.Load(path)
	if err != nil {
		s.logger.WithError(err).Error("SESSION: settings load failed")
		if s.store != nil {
			s.store.RemoveMRU(path)
		}
		return err
	}
	if err := s.SetSettings(loaded); err != nil {
		return &core.SettingsLoadError{Path: path, Err: err}
	}
	s.settingsPath = path
	s.modified = false
	if s.store != nil {
		s.store.AddMRU(path)
		s.store.SetLastSettingsFile(path)
	}
	s.logger.WithField("path", path).Info("SESSION: settings loaded")
	return nil
}

func (s *Session) SaveSettings(path string) error {
	if err := settings.Save(path, s.settings); err != nil {
		s.logger.WithError(err).Error("SESSION: settings save failed")
		return err
	}
	s.settingsPath = path
	s.modified = false
	if s.store != nil {
		s.store.AddMRU(path)
		s.store.SetLastSettingsFile(path)
	}
	s.logger.WithField("path", path).Info("SESSION: settings saved")
	return nil
}

// Resize follows the size of the image panel
func (s *Session) Resize(size image.Point) {
	ch := s.view.Resize(size)
	s.viewChanged(ch)
	s.flushDamage()
}

func (s *Session) SetFitInWindow(fit bool) {
	if s.store != nil {
		s.store.SetFitInWindow(fit)
	}
	if ch, ok := s.view.SetFitInWindow(fit); ok {
		s.viewChanged(ch)
	}
	s.flushDamage()
}

// ZoomIn, ZoomOut and SetZoom keep the middle of the viewport in place
func (s *Session) ZoomIn()  { s.SetZoom(view.ZoomIn(s.view.Zoom())) }
func (s *Session) ZoomOut() { s.SetZoom(view.ZoomOut(s.view.Zoom())) }

func (s *Session) SetZoom(z float64) {
	center := s.view.ViewSize().Div(2)
	s.interaction.SetZoom(z, center)
}

// SelectAndProcessAll selects the whole image
func (s *Session) SelectAndProcessAll() {
	s.interaction.SelectAll()
}

// SaveOutput writes the processed whole image. If the whole image is not
// processed yet, it is selected and the file is written once processing
// completes.
func (s *Session) SaveOutput(path string, format io.OutputFormat) error {
	if !s.document.HasImage() {
		return fmt.Errorf("no image loaded")
	}
	if s.view.Selection() == s.view.ImageBounds() {
		if _, ok := s.backend.ProcessedOutput(); ok {
			return s.savePrecise(path, format)
		}
		s.pending = &pendingSave{path: path, format: format}
		// an idle scheduler here stopped on a failed stage
		if sched := s.backend.Scheduler(); sched.State() == pipeline.Idle {
			sched.RequestProcessing(core.StageToneCurve)
		}
		return nil
	}
	s.pending = &pendingSave{path: path, format: format}
	s.SelectAndProcessAll()
	return nil
}

// SavePending reports whether a save waits for processing to finish
func (s *Session) SavePending() bool { return s.pending != nil }

// savePrecise writes the unsharp masking output mapped through the exact
// tone curve rather than the preview lookup table
func (s *Session) savePrecise(path string, format io.OutputFormat) error {
	sched := s.backend.Scheduler()
	in, ok := sched.ReadOutput(core.StageUnsharpMask)
	if !ok {
		return fmt.Errorf("unsharp masking output is not available")
	}
	stage := &algorithms.ToneCurveStage{Precise: true}
	out, err := stage.Run(context.Background(), in, sched.Settings(), nil)
	if err != nil {
		return fmt.Errorf("failed to apply tone curve: %w", err)
	}
	return s.save(out, path, format)
}

func (s *Session) save(img *core.Image, path string, format io.OutputFormat) error {
	if err := s.loader.SaveImage(img, path, format); err != nil {
		return err
	}
	if s.store != nil {
		s.store.SetLastSaveFile(path)
		s.store.SetOutputFormat(format.String())
	}
	if s.listener.OnSaved != nil {
		s.listener.OnSaved(path)
	}
	return nil
}

func (s *Session) selectionChanged(r image.Rectangle) {
	if s.pending != nil && r != s.view.ImageBounds() {
		s.logger.Info("SESSION: selection changed, pending save dropped")
		s.pending = nil
	}
	s.backend.NewSelection(r)
}

func (s *Session) viewChanged(ch view.Change) {
	s.backend.ViewChanged(ch)
}

func (s *Session) invalidateRects(rects []image.Rectangle) {
	if len(rects) > 0 && s.listener.OnInvalidate != nil {
		s.listener.OnInvalidate(rects)
	}
}

func (s *Session) flushDamage() {
	s.invalidateRects(s.view.TakeDamage())
}

func (s *Session) progress(stage core.StageID, fraction float64) {
	if s.listener.OnProgress != nil {
		s.listener.OnProgress(stage, fraction)
	}
}

func (s *Session) processingComplete() {
	report := Report{
		Histogram: s.backend.GetHistogram(),
		Stats:     s.backend.Scheduler().Stats(),
	}
	if out, ok := s.backend.ProcessedOutput(); ok {
		report.Quality = s.evaluator.CalculateAll(s.backend.Scheduler().Input(), out)

		if p := s.pending; p != nil && s.view.Selection() == s.view.ImageBounds() {
			s.pending = nil
			if err := s.savePrecise(p.path, p.format); err != nil {
				s.fail(err)
			}
		}
	}
	s.logger.WithFields(logrus.Fields{
		"stats": report.Stats.Summary(),
	}).Debug("SESSION: processing complete")
	if s.listener.OnProcessingDone != nil {
		s.listener.OnProcessingDone(report)
	}
}

func (s *Session) fail(err error) {
	s.logger.WithError(err).Error("SESSION: error")
	if s.listener.OnError != nil {
		s.listener.OnError(err)
	}
}

// Close stops processing and stores the preferences
func (s *Session) Close() {
	s.backend.Close()
	if s.store != nil {
		s.store.Save()
	}
}
