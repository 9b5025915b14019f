// Menu handler for application actions
package gui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"astro-postprocessor/internal/config"
	"astro-postprocessor/internal/io"
	"astro-postprocessor/internal/session"
)

var errNoImage = errors.New("no image loaded")

// MenuHandler handles menu actions
type MenuHandler struct {
	window  fyne.Window
	session *session.Session
	store   *config.Store
	logger  *logrus.Logger

	mainMenu   *fyne.MainMenu
	recentItem *fyne.MenuItem
	fitItem    *fyne.MenuItem

	onImageLoaded     func(string)
	onSettingsChanged func()
	onError           func(string, error)
}

func NewMenuHandler(window fyne.Window, s *session.Session, store *config.Store, logger *logrus.Logger) *MenuHandler {
	return &MenuHandler{
		window:  window,
		session: s,
		store:   store,
		logger:  logger,
	}
}

func (mh *MenuHandler) GetMainMenu() *fyne.MainMenu {
	mh.recentItem = fyne.NewMenuItem("Recent Settings", nil)
	mh.rebuildRecent()

	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Image...", mh.OpenImage),
		fyne.NewMenuItem("Save Image As...", mh.SaveImage),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Load Settings...", mh.loadSettings),
		fyne.NewMenuItem("Save Settings...", mh.saveSettings),
		mh.recentItem,
	)

	mh.fitItem = fyne.NewMenuItem("Fit in Window", func() {
		mh.SetFitInWindow(!mh.session.View().FitInWindow())
	})
	mh.fitItem.Checked = mh.session.View().FitInWindow()
	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", mh.session.ZoomIn),
		fyne.NewMenuItem("Zoom Out", mh.session.ZoomOut),
		fyne.NewMenuItem("Actual Size", func() { mh.session.SetZoom(1) }),
		mh.fitItem,
	)

	editMenu := fyne.NewMenu("Edit",
		fyne.NewMenuItem("Select and Process All", mh.session.SelectAndProcessAll),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mh.showAbout),
	)

	mh.mainMenu = fyne.NewMainMenu(fileMenu, editMenu, viewMenu, helpMenu)
	return mh.mainMenu
}

func (mh *MenuHandler) SetCallbacks(onImageLoaded func(string), onSettingsChanged func(), onError func(string, error)) {
	mh.onImageLoaded = onImageLoaded
	mh.onSettingsChanged = onSettingsChanged
	mh.onError = onError
}

// SetFitInWindow toggles fit-in-window mode and the menu check mark
func (mh *MenuHandler) SetFitInWindow(fit bool) {
	mh.session.SetFitInWindow(fit)
	mh.SyncFit()
}

// SyncFit shows the current fit-in-window mode, which manual zoom turns off
func (mh *MenuHandler) SyncFit() {
	if mh.fitItem == nil || mh.fitItem.Checked == mh.session.View().FitInWindow() {
		return
	}
	mh.fitItem.Checked = mh.session.View().FitInWindow()
	mh.mainMenu.Refresh()
}

func (mh *MenuHandler) rebuildRecent() {
	var items []*fyne.MenuItem
	for _, path := range mh.store.MRU() {
		items = append(items, fyne.NewMenuItem(path, func() { mh.loadSettingsFrom(path) }))
	}
	if len(items) == 0 {
		none := fyne.NewMenuItem("(none)", nil)
		none.Disabled = true
		items = append(items, none)
	} else {
		items = append(items, fyne.NewMenuItemSeparator(), fyne.NewMenuItem("Clear List", func() {
			mh.store.ClearMRU()
			mh.rebuildRecent()
		}))
	}
	mh.recentItem.ChildMenu = fyne.NewMenu("", items...)
	if mh.mainMenu != nil {
		mh.mainMenu.Refresh()
	}
}

// setLocation starts a file dialog in dir when it still exists
func setLocation(d interface{ SetLocation(fyne.ListableURI) }, dir string) {
	if dir == "" {
		return
	}
	if l, err := storage.ListerForURI(storage.NewFileURI(dir)); err == nil {
		d.SetLocation(l)
	}
}

func (mh *MenuHandler) OpenImage() {
	mh.logger.Info("Opening file dialog for image selection")

	fileDialog := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			mh.showError("File Dialog Error", err)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()

		if err := mh.session.OpenFile(path); err != nil {
			mh.showError("Failed to Load Image", err)
			return
		}
		if mh.onImageLoaded != nil {
			mh.onImageLoaded(path)
		}
	}, mh.window)

	fileDialog.SetFilter(storage.NewExtensionFileFilter(io.SupportedExtensions()))
	setLocation(fileDialog, mh.store.LastOpenDir())
	fileDialog.Show()
}

// SaveImage asks for an output format and a file, then saves the
// processed whole image
func (mh *MenuHandler) SaveImage() {
	if !mh.session.Document().HasImage() {
		mh.showError("No Image", errNoImage)
		return
	}

	var names []string
	for _, f := range io.OutputFormats() {
		names = append(names, f.String())
	}
	formatSelect := widget.NewSelect(names, nil)
	formatSelect.SetSelected(mh.store.OutputFormat())
	if formatSelect.Selected == "" {
		formatSelect.SetSelected(io.TIFF16.String())
	}

	items := []*widget.FormItem{widget.NewFormItem("Format", formatSelect)}
	dialog.ShowForm("Save Image", "Next", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		format, err := io.ParseOutputFormat(formatSelect.Selected)
		if err != nil {
			mh.showError("Invalid Format", err)
			return
		}
		mh.chooseOutputFile(format)
	}, mh.window)
}

func (mh *MenuHandler) chooseOutputFile(format io.OutputFormat) {
	fileDialog := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			mh.showError("File Dialog Error", err)
			return
		}
		if writer == nil {
			return
		}
		path := io.WithExtension(writer.URI().Path(), format)
		writer.Close()

		mh.logger.WithFields(logrus.Fields{
			"filepath": path,
			"format":   format.String(),
		}).Info("Saving image")
		if err := mh.session.SaveOutput(path, format); err != nil {
			mh.showError("Failed to Save Image", err)
		}
	}, mh.window)

	base := filepath.Base(mh.session.Document().Filepath())
	fileDialog.SetFileName(strings.TrimSuffix(base, filepath.Ext(base)) + "_out" + format.Extension())
	setLocation(fileDialog, mh.store.LastSaveDir())
	fileDialog.Show()
}

func (mh *MenuHandler) loadSettings() {
	fileDialog := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			mh.showError("File Dialog Error", err)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()
		mh.loadSettingsFrom(path)
	}, mh.window)
	fileDialog.SetFilter(storage.NewExtensionFileFilter([]string{".xml"}))
	setLocation(fileDialog, mh.store.LastSettingsDir())
	fileDialog.Show()
}

func (mh *MenuHandler) loadSettingsFrom(path string) {
	err := mh.session.LoadSettings(path)
	mh.rebuildRecent()
	if err != nil {
		mh.showError("Failed to Load Settings", err)
		return
	}
	if mh.onSettingsChanged != nil {
		mh.onSettingsChanged()
	}
}

func (mh *MenuHandler) saveSettings() {
	fileDialog := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			mh.showError("File Dialog Error", err)
			return
		}
		if writer == nil {
			return
		}
		path := writer.URI().Path()
		writer.Close()
		if filepath.Ext(path) == "" {
			path += ".xml"
		}
		if err := mh.session.SaveSettings(path); err != nil {
			mh.showError("Failed to Save Settings", err)
			return
		}
		mh.rebuildRecent()
	}, mh.window)
	fileDialog.SetFileName("settings.xml")
	setLocation(fileDialog, mh.store.LastSettingsDir())
	fileDialog.Show()
}

func (mh *MenuHandler) showAbout() {
	content := container.NewVBox(
		widget.NewLabel(fmt.Sprintf("%s %s", AppName, AppVersion)),
		widget.NewSeparator(),
		widget.NewLabel("Lucy-Richardson deconvolution, unsharp masking"),
		widget.NewLabel("and tone curve for monochrome astronomical images."),
		widget.NewSeparator(),
		widget.NewLabel(fmt.Sprintf("Rendering backend: %s", mh.session.Backend().Name())),
		widget.NewLabel("Built with Go, Fyne and OpenCV"),
	)

	aboutDialog := dialog.NewCustom("About", "Close", content, mh.window)
	aboutDialog.Resize(fyne.NewSize(400, 250))
	aboutDialog.Show()
}

func (mh *MenuHandler) showError(title string, err error) {
	if mh.onError != nil {
		mh.onError(title, err)
		return
	}
	mh.logger.WithError(err).Error(title)
	dialog.ShowError(err, mh.window)
}
