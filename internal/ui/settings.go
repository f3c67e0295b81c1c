package ui

import (
	"fmt"
	"os"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"deskwidgets/internal/config"
)

// SettingsStore reads and writes the global settings.
type SettingsStore interface {
	Get() config.Settings
	Save(settings config.Settings) error
}

// SettingsDialog manages the settings window
type SettingsDialog struct {
	app    fyne.App
	store  SettingsStore
	log    *zap.SugaredLogger
	onSave func(old, updated config.Settings)

	window fyne.Window
}

// NewSettingsDialog creates a new settings dialog
func NewSettingsDialog(app fyne.App, store SettingsStore, log *zap.SugaredLogger) *SettingsDialog {
	return &SettingsDialog{app: app, store: store, log: log}
}

// SetOnSave is called after settings were written.
func (s *SettingsDialog) SetOnSave(fn func(old, updated config.Settings)) {
	s.onSave = fn
}

// Show displays the settings dialog
func (s *SettingsDialog) Show() {
	if s.window != nil {
		s.window.RequestFocus()
		return
	}
	current := s.store.Get()

	window := s.app.NewWindow("WinDash Settings")
	window.Resize(fyne.NewSize(420, 320))
	s.window = window
	window.SetOnClosed(func() { s.window = nil })

	// --- Dragging ---
	modeSelect := widget.NewRadioGroup([]string{
		config.DragModeFree.String(),
		config.DragModeGridBased.String(),
	}, nil)
	modeSelect.Horizontal = true
	modeSelect.SetSelected(current.DragMode.String())

	gridBinding := binding.NewFloat()
	gridBinding.Set(float64(config.ClampGridSize(current.GridSize)))
	gridSlider := widget.NewSliderWithData(config.MinGridSize, config.MaxGridSize, gridBinding)
	gridSlider.Step = 1
	gridValueLabel := widget.NewLabel(fmt.Sprintf("%dpx", config.ClampGridSize(current.GridSize)))
	gridBinding.AddListener(binding.NewDataListener(func() {
		v, _ := gridBinding.Get()
		gridValueLabel.SetText(fmt.Sprintf("%.0fpx", v))
	}))

	dragSection := container.NewVBox(
		SectionHeader("Dragging"),
		modeSelect,
		container.NewHBox(widget.NewLabel("Grid size"), layout.NewSpacer(), gridValueLabel),
		gridSlider,
	)

	// --- Widgets folder ---
	folderEntry := widget.NewEntry()
	folderEntry.SetPlaceHolder("Default (widgets next to settings)")
	folderEntry.SetText(current.WidgetsFolderPath)

	browseBtn := widget.NewButton("Browse...", func() {
		dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
			if err != nil {
				dialog.ShowError(err, window)
				return
			}
			if uri != nil {
				folderEntry.SetText(uri.Path())
			}
		}, window)
	})

	folderSection := container.NewVBox(
		SectionHeader("Widgets folder"),
		container.NewBorder(nil, nil, nil, browseBtn, folderEntry),
	)

	// --- Buttons ---
	saveBtn := widget.NewButton("Save", func() {
		grid, _ := gridBinding.Get()
		updated, err := settingsFromForm(current, modeSelect.Selected, grid, folderEntry.Text)
		if err != nil {
			dialog.ShowError(err, window)
			return
		}
		if err := s.store.Save(updated); err != nil {
			s.log.Warnf("Failed to save settings: %v", err)
			dialog.ShowError(err, window)
			return
		}
		if s.onSave != nil {
			s.onSave(current, updated)
		}
		current = updated
		dialog.ShowInformation("Saved", "Settings saved", window)
	})
	saveBtn.Importance = widget.HighImportance

	closeBtn := widget.NewButton("Close", func() {
		window.Close()
	})

	buttons := container.NewHBox(layout.NewSpacer(), saveBtn, closeBtn, layout.NewSpacer())

	content := container.NewVBox(
		dragSection,
		widget.NewSeparator(),
		folderSection,
		widget.NewSeparator(),
		buttons,
	)

	window.SetContent(container.NewPadded(content))
	window.Show()
}

// settingsFromForm validates the form values and applies them to base.
func settingsFromForm(base config.Settings, mode string, grid float64, folder string) (config.Settings, error) {
	out := base
	switch mode {
	case config.DragModeFree.String():
		out.DragMode = config.DragModeFree
	case config.DragModeGridBased.String():
		out.DragMode = config.DragModeGridBased
	}
	out.GridSize = config.ClampGridSize(int(grid + 0.5))

	folder = strings.TrimSpace(folder)
	if folder != "" {
		// A missing folder is created on next start; a file is rejected.
		if info, err := os.Stat(folder); err == nil && !info.IsDir() {
			return base, fmt.Errorf("widgets folder %s is not a directory", folder)
		}
	}
	out.WidgetsFolderPath = folder
	return out, nil
}
