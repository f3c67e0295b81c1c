package ui

import (
	"errors"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"go.uber.org/zap"

	"deskwidgets/internal/assets"
)

// ErrNoTray is returned when the driver has no system tray.
var ErrNoTray = errors.New("system tray not supported on this platform")

// TrayActions are the callbacks behind the tray menu entries.
type TrayActions struct {
	OpenManager      func()
	ToggleEditLayout func()
	ToggleGridSnap   func()
	ReloadWidgets    func()
	OpenFolder       func()
	OpenSettings     func()
	ToggleStartup    func()
	Quit             func()
}

// TrayManager handles the system tray icon and menu
type TrayManager struct {
	app     fyne.App
	actions TrayActions
	log     *zap.SugaredLogger

	menu        *fyne.Menu
	editItem    *fyne.MenuItem
	gridItem    *fyne.MenuItem
	startupItem *fyne.MenuItem
}

// NewTrayManager creates a new tray manager
func NewTrayManager(app fyne.App, actions TrayActions, log *zap.SugaredLogger) *TrayManager {
	t := &TrayManager{app: app, actions: actions, log: log}
	t.menu = t.buildMenu()
	return t
}

func call(fn func()) func() {
	return func() {
		if fn != nil {
			fn()
		}
	}
}

func (t *TrayManager) buildMenu() *fyne.Menu {
	t.editItem = fyne.NewMenuItem("Edit Layout", call(t.actions.ToggleEditLayout))
	t.gridItem = fyne.NewMenuItem("Grid Snapping", call(t.actions.ToggleGridSnap))
	t.startupItem = fyne.NewMenuItem("Start with Windows", call(t.actions.ToggleStartup))

	return fyne.NewMenu("WinDash",
		fyne.NewMenuItem("Open Manager", call(t.actions.OpenManager)),
		fyne.NewMenuItemSeparator(),
		t.editItem,
		t.gridItem,
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Reload Widgets", call(t.actions.ReloadWidgets)),
		fyne.NewMenuItem("Open Widgets Folder", call(t.actions.OpenFolder)),
		fyne.NewMenuItem("Settings...", call(t.actions.OpenSettings)),
		t.startupItem,
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", call(t.actions.Quit)),
	)
}

// Setup installs the icon and menu in the system tray
func (t *TrayManager) Setup() error {
	desk, ok := t.app.(desktop.App)
	if !ok {
		return ErrNoTray
	}
	desk.SetSystemTrayMenu(t.menu)
	desk.SetSystemTrayIcon(assets.TrayIcon())
	t.log.Info("System tray initialized")
	return nil
}

// SetState updates the checked toggles. Must run on the UI thread.
func (t *TrayManager) SetState(editLayout, gridSnap, startup bool) {
	t.editItem.Checked = editLayout
	t.gridItem.Checked = gridSnap
	t.startupItem.Checked = startup
	t.menu.Refresh()
}

// Menu returns the tray menu
func (t *TrayManager) Menu() *fyne.Menu {
	return t.menu
}
