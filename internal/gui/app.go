// Main application window: image view in the center, processing settings
// on the left, tone curve and metrics on the right
package gui

import (
	"fmt"
	"image"
	"path/filepath"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/backend"
	"astro-postprocessor/internal/config"
	"astro-postprocessor/internal/core"
	"astro-postprocessor/internal/pipeline"
	"astro-postprocessor/internal/session"
)

const (
	AppName    = "Astro Post-processor"
	AppVersion = "1.0.0"
)

// Application represents the main application
type Application struct {
	app       fyne.App
	window    fyne.Window
	logger    *logrus.Logger
	debugMode bool

	store   *config.Store
	session *session.Session

	imageView   *ImageView
	toolbar     *Toolbar
	processing  *ProcessingPanel
	info        *InfoPanel
	status      *StatusManager
	menuHandler *MenuHandler
}

// NewApplication builds the main window. An empty backendKind uses the
// stored choice.
func NewApplication(app fyne.App, logger *logrus.Logger, debugMode bool, backendKind string) (*Application, error) {
	a := &Application{
		app:       app,
		logger:    logger,
		debugMode: debugMode,
		store:     config.New(app.Preferences()),
	}
	a.store.Load()

	if backendKind == "" {
		backendKind = a.store.Backend()
	}
	kind, err := backend.ParseKind(backendKind)
	if err != nil {
		return nil, err
	}
	a.store.SetBackend(string(kind))

	a.session, err = session.New(session.Config{
		Logger:   logger,
		Dispatch: fyne.Do,
		Backend:  kind,
		Store:    a.store,
		Listener: a.listener(),
		BackendDeps: backend.Deps{
			PollInterval: pipeline.DefaultPollInterval,
			RescaleDelay: backend.DefaultRescaleDelay,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	a.window = app.NewWindow(AppName)
	a.window.Resize(a.store.WindowSize())
	a.window.CenterOnScreen()

	a.initializeGUI()
	a.setupLayout()
	a.setupCallbacks()
	return a, nil
}

func (a *Application) listener() session.Listener {
	return session.Listener{
		OnImageOpened: func(path string, size image.Point) {
			a.window.SetTitle(fmt.Sprintf("%s - %s", AppName, filepath.Base(path)))
			a.info.Clear()
			a.toolbar.Refresh()
			a.status.ShowSuccess(fmt.Sprintf("Loaded %s (%dx%d)", path, size.X, size.Y))
		},
		OnProgress: func(stage core.StageID, fraction float64) {
			a.processing.UpdateProgress(stage, fraction)
		},
		OnProcessingDone: func(r session.Report) {
			a.processing.ProcessingDone(r)
			a.info.UpdateReport(r)
		},
		OnInvalidate: func(rects []image.Rectangle) {
			if a.imageView != nil {
				a.imageView.Invalidate(rects)
			}
		},
		OnSaved: func(path string) {
			a.status.ShowSuccess(fmt.Sprintf("Saved %s", path))
			dialog.ShowInformation("Image Saved", fmt.Sprintf("Image saved to:\n%s", path), a.window)
		},
		OnError: func(err error) {
			a.showError("Processing Error", err)
		},
	}
}

func (a *Application) initializeGUI() {
	a.menuHandler = NewMenuHandler(a.window, a.session, a.store, a.logger)
	a.window.SetMainMenu(a.menuHandler.GetMainMenu())

	a.imageView = NewImageView(a.session, a.logger)
	a.toolbar = NewToolbar(a.session, a.menuHandler)
	a.processing = NewProcessingPanel(a.session, a.logger)
	a.info = NewInfoPanel(a.session, a.store, a.logger)
	a.status = NewStatusManager()
}

func (a *Application) setupLayout() {
	center := container.NewBorder(
		a.toolbar.GetContainer(),
		a.status.GetWidget(),
		nil, nil,
		a.imageView,
	)

	centerAndRight := container.NewHSplit(center, a.info.GetContainer())
	centerAndRight.SetOffset(0.72)

	content := container.NewHSplit(a.processing.GetContainer(), centerAndRight)
	content.SetOffset(0.22)

	a.window.SetContent(content)
}

func (a *Application) setupCallbacks() {
	a.menuHandler.SetCallbacks(
		// onImageLoaded
		func(path string) {
			a.logger.WithField("filepath", path).Debug("Image opened from menu")
		},
		// onSettingsChanged
		func() {
			settings := a.session.Settings()
			a.processing.SyncFromSettings(settings)
			a.info.SyncFromSettings(settings)
			a.status.ShowInfo(fmt.Sprintf("Settings loaded from %s", a.session.SettingsPath()))
		},
		a.showError,
	)
	a.processing.SetErrorCallback(func(err error) {
		a.status.ShowError(err)
	})
	a.imageView.SetViewChangedCallback(a.toolbar.Refresh)
}

func (a *Application) ShowAndRun() {
	a.logger.WithField("backend", a.session.Backend().Name()).Info("Showing main application window")

	a.window.SetCloseIntercept(func() {
		a.cleanup()
		a.window.Close()
	})
	a.window.ShowAndRun()
}

// OpenFile opens an image given on the command line
func (a *Application) OpenFile(path string) {
	if err := a.session.OpenFile(path); err != nil {
		a.showError("Failed to Load Image", err)
	}
}

func (a *Application) cleanup() {
	a.logger.Info("Cleaning up application resources")
	a.store.SetWindowSize(a.window.Canvas().Size())
	a.session.Close()
}

func (a *Application) showError(title string, err error) {
	a.logger.WithError(err).Error(title)
	a.status.ShowError(err)
	dialog.ShowError(err, a.window)
}
