// internal/gui/toolbar.go
// Top toolbar: file actions, selection and zoom controls
package gui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"astro-postprocessor/internal/session"
)

type Toolbar struct {
	session *session.Session
	menu    *MenuHandler

	container *fyne.Container

	saveBtn      *widget.Button
	selectAllBtn *widget.Button
	zoomInBtn    *widget.Button
	zoomOutBtn   *widget.Button
	fitBtn       *widget.Button
	zoomLabel    *widget.Label
}

func NewToolbar(s *session.Session, menu *MenuHandler) *Toolbar {
	toolbar := &Toolbar{session: s, menu: menu}
	toolbar.initializeUI()
	return toolbar
}

func (tb *Toolbar) initializeUI() {
	openBtn := widget.NewButtonWithIcon("Open", theme.FolderOpenIcon(), tb.menu.OpenImage)
	openBtn.Importance = widget.HighImportance

	tb.saveBtn = widget.NewButtonWithIcon("Save", theme.DocumentSaveIcon(), tb.menu.SaveImage)
	tb.selectAllBtn = widget.NewButtonWithIcon("Process All", theme.MediaPlayIcon(), tb.session.SelectAndProcessAll)

	tb.zoomOutBtn = widget.NewButtonWithIcon("", theme.ZoomOutIcon(), func() {
		tb.session.ZoomOut()
		tb.Refresh()
	})
	tb.zoomInBtn = widget.NewButtonWithIcon("", theme.ZoomInIcon(), func() {
		tb.session.ZoomIn()
		tb.Refresh()
	})
	tb.fitBtn = widget.NewButtonWithIcon("", theme.ViewFullScreenIcon(), func() {
		tb.menu.SetFitInWindow(!tb.session.View().FitInWindow())
		tb.Refresh()
	})
	tb.zoomLabel = widget.NewLabel("100%")

	leftSection := container.NewHBox(openBtn, tb.saveBtn, widget.NewSeparator(), tb.selectAllBtn)
	rightSection := container.NewHBox(
		widget.NewLabel("Zoom:"),
		tb.zoomOutBtn,
		tb.zoomLabel,
		tb.zoomInBtn,
		tb.fitBtn,
	)
	tb.container = container.NewBorder(nil, nil, leftSection, rightSection)
	tb.Refresh()
}

func (tb *Toolbar) GetContainer() fyne.CanvasObject {
	return tb.container
}

// Refresh shows the zoom factor and enables the image actions
func (tb *Toolbar) Refresh() {
	tb.zoomLabel.SetText(fmt.Sprintf("%.0f%%", tb.session.View().Zoom()*100))
	if tb.session.View().FitInWindow() {
		tb.fitBtn.Importance = widget.HighImportance
	} else {
		tb.fitBtn.Importance = widget.MediumImportance
	}
	tb.fitBtn.Refresh()

	buttons := []*widget.Button{tb.saveBtn, tb.selectAllBtn, tb.zoomInBtn, tb.zoomOutBtn}
	for _, b := range buttons {
		if tb.session.Document().HasImage() {
			b.Enable()
		} else {
			b.Disable()
		}
	}
	tb.menu.SyncFit()
}
