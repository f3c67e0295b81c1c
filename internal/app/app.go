package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"go.uber.org/zap"

	"deskwidgets/internal/assets"
	"deskwidgets/internal/browser"
	"deskwidgets/internal/config"
	"deskwidgets/internal/favicon"
	"deskwidgets/internal/grid"
	"deskwidgets/internal/hotkeys"
	"deskwidgets/internal/logging"
	"deskwidgets/internal/orchestrator"
	"deskwidgets/internal/platform"
	"deskwidgets/internal/startup"
	"deskwidgets/internal/ui"
	"deskwidgets/internal/watch"
	"deskwidgets/internal/widget"
	"deskwidgets/internal/window"
)

// webViewDir holds the browser profile shared by all widgets.
const webViewDir = "webview"

// App is the main application
type App struct {
	fyneApp   fyne.App
	log       *zap.SugaredLogger
	settings  *config.Store
	platform  platform.PlatformFeatures
	store     *widget.FileStore
	grid      *grid.Calculator
	widgets   *orchestrator.Orchestrator
	watcher   *watch.Watcher
	hotkeyMgr *hotkeys.Manager
	startup   startup.Manager
	iconCache *favicon.Cache
	favicons  *faviconSync

	// UI components
	tray        *ui.TrayManager
	manager     *ui.ManagerWindow
	settingsDlg *ui.SettingsDialog

	// State
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.Mutex
	running     bool
	unsubscribe []func()
}

// Run starts the application
func Run() error {
	dir, err := config.DefaultDir()
	if err != nil {
		return err
	}
	log, err := logging.New(dir, config.DebugEnabled())
	if err != nil {
		return err
	}
	defer log.Sync()

	a := &App{log: log}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.settings, err = config.NewStore(dir, log)
	if err != nil {
		return err
	}

	// Initialize Fyne app
	a.fyneApp = app.NewWithID("com.windash.app")
	a.fyneApp.Settings().SetTheme(theme.DarkTheme())
	a.fyneApp.SetIcon(assets.AppIcon())

	a.platform = platform.New(log)
	a.startup = startup.New()

	folder, err := a.settings.WidgetsFolder()
	if err != nil {
		return err
	}
	log.Infof("Widgets folder: %s", folder)
	a.store = widget.NewFileStore(folder, log)

	overlay := ui.NewGridOverlay(a.fyneApp, a.platform, log)
	a.grid = grid.New(a.settings, a.platform, func() (grid.Overlay, error) {
		return overlay, nil
	}, log)

	deps := window.Deps{
		Native:       a.platform,
		Grid:         a.grid,
		NewSurface:   browser.NewWebView2,
		Options:      browser.DefaultOptions(browser.Env{OpenExternal: a.openURL, Log: log}),
		Content:      a.store,
		DataPath:     filepath.Join(dir, webViewDir),
		OpenExternal: a.openURL,
		Log:          log,
	}
	a.widgets = orchestrator.New(a.store, window.Factory(deps), log)

	a.initFavicons(dir)

	// Initialize UI
	a.initUI()

	a.loadWidgets()

	a.watcher = watch.New(folder, a.widgets, 0, log)
	if err := a.watcher.Start(a.ctx); err != nil {
		log.Warnf("Widgets folder will not be watched: %v", err)
	}

	// Start hotkey listener
	a.hotkeyMgr = hotkeys.NewManager(a.platform, log)
	a.hotkeyMgr.SetLayoutEditCallback(a.toggleEditLayout)
	a.hotkeyMgr.SetGridModeCallback(a.toggleGridSnap)
	if err := a.hotkeyMgr.Start(); err != nil {
		log.Warnf("Failed to start hotkey listener: %v", err)
	}

	a.running = true
	a.tray.SetState(a.trayState())

	// Run the app (blocking)
	a.fyneApp.Run()

	// Cleanup
	a.shutdown()

	return nil
}

func (a *App) initFavicons(dir string) {
	client, err := favicon.NewClient()
	if err != nil {
		a.log.Warnf("Favicons disabled: %v", err)
		return
	}
	cache, err := favicon.OpenCache(filepath.Join(dir, favicon.CacheFile))
	if err != nil {
		a.log.Warnf("Favicon cache unavailable: %v", err)
	} else {
		a.iconCache = cache
	}
	a.favicons = newFaviconSync(favicon.NewFetcher(client, a.iconCache, a.log), a.store, a.log)
}

// initUI initializes all UI components
func (a *App) initUI() {
	var icons ui.IconResolver
	if a.favicons != nil {
		icons = a.favicons.iconPath
	}
	a.manager = ui.NewManagerWindow(a.fyneApp, a.widgets, icons, a.log)
	a.manager.SetOpenCallback(func(bool) { a.refreshTray() })

	a.settingsDlg = ui.NewSettingsDialog(a.fyneApp, a.settings, a.log)
	a.settingsDlg.SetOnSave(a.settingsSaved)

	a.tray = ui.NewTrayManager(a.fyneApp, ui.TrayActions{
		OpenManager:      a.manager.Show,
		ToggleEditLayout: func() { go a.toggleEditLayout() },
		ToggleGridSnap:   func() { go a.toggleGridSnap() },
		ReloadWidgets:    func() { go a.reload() },
		OpenFolder:       a.openWidgetsFolder,
		OpenSettings:     a.settingsDlg.Show,
		ToggleStartup:    func() { go a.toggleStartup() },
		Quit:             a.quit,
	}, a.log)
	if err := a.tray.Setup(); err != nil {
		a.log.Warnf("System tray setup failed: %v", err)
	}
}

// loadWidgets opens the saved widgets. The change subscription is set up
// first so windows that fail to open at startup are reported.
func (a *App) loadWidgets() {
	a.subscribe()
	if err := a.widgets.Initialize(); err != nil {
		a.log.Warnf("Some widgets failed to load: %v", err)
	}
	if a.favicons != nil {
		a.favicons.fetchAll(a.ctx, a.widgets.GetWidgets())
	}
}

func (a *App) subscribe() {
	a.unsubscribe = append(a.unsubscribe, a.widgets.Subscribe(func(ev orchestrator.ChangeEvent) {
		if ev.Kind == orchestrator.ChangeWindowFailed && ev.Widget != nil {
			a.notify(fmt.Sprintf("%s could not be opened", ev.Widget.Name))
		}
		if a.favicons != nil {
			a.favicons.onChange(a.ctx, ev)
		}
	}))
}

// toggleEditLayout flips whether widget windows can be dragged
func (a *App) toggleEditLayout() {
	draggable := !a.widgets.Draggable()
	a.widgets.SetDraggable(draggable)
	a.log.Infof("Edit layout: %v", draggable)
	a.refreshTray()
}

// toggleGridSnap flips the drag mode between Free and GridBased
func (a *App) toggleGridSnap() {
	mode := config.DragModeGridBased
	if a.settings.Get().DragMode == config.DragModeGridBased {
		mode = config.DragModeFree
	}
	if err := a.settings.UpdateDragMode(mode); err != nil {
		a.log.Warnf("Failed to save drag mode: %v", err)
	}
	a.log.Infof("Drag mode: %s", mode)
	a.refreshTray()
}

func (a *App) toggleStartup() {
	enabled, err := a.startup.IsEnabled()
	if err == nil {
		err = a.startup.SetEnabled(!enabled)
	}
	if err != nil {
		a.log.Warnf("Failed to change start with Windows: %v", err)
		if errors.Is(err, startup.ErrNotSupported) {
			a.notify("Start with Windows is only available on Windows")
		}
	}
	a.refreshTray()
}

func (a *App) reload() {
	if err := a.widgets.Reload(); err != nil {
		a.log.Warnf("Reload finished with errors: %v", err)
		a.notify("Some widgets failed to load, see the log for details")
	}
}

func (a *App) trayState() (edit, gridOn, onStartup bool) {
	onStartup, err := a.startup.IsEnabled()
	if err != nil {
		a.log.Debugf("Failed to read startup state: %v", err)
	}
	return a.widgets.Draggable(), a.grid.IsGridEnabled(), onStartup
}

// refreshTray updates the tray toggles from the current state. Call it off
// the UI thread.
func (a *App) refreshTray() {
	edit, gridOn, onStartup := a.trayState()
	fyne.Do(func() {
		a.tray.SetState(edit, gridOn, onStartup)
	})
}

func (a *App) settingsSaved(old, updated config.Settings) {
	if old.WidgetsFolderPath != updated.WidgetsFolderPath {
		a.notify("Restart WinDash to load widgets from the new folder")
	}
	go a.refreshTray()
}

func (a *App) openWidgetsFolder() {
	if err := a.fyneApp.OpenURL(folderURL(a.store.Root())); err != nil {
		a.log.Warnf("Failed to open widgets folder: %v", err)
	}
}

func (a *App) openURL(u *url.URL) error {
	return a.fyneApp.OpenURL(u)
}

func (a *App) notify(msg string) {
	a.fyneApp.SendNotification(fyne.NewNotification("WinDash", msg))
}

// folderURL builds a file:// URL for a local folder.
func folderURL(p string) *url.URL {
	s := filepath.ToSlash(p)
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return &url.URL{Scheme: "file", Path: s}
}

// quit shuts down the application
func (a *App) quit() {
	a.shutdown()
	a.fyneApp.Quit()
}

// shutdown releases every widget window and background worker
func (a *App) shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false

	a.log.Info("Shutting down...")

	for _, cancel := range a.unsubscribe {
		cancel()
	}
	if err := a.watcher.Close(); err != nil {
		a.log.Debugf("Failed to close watcher: %v", err)
	}
	a.hotkeyMgr.Stop()

	a.widgets.CloseAllWidgets()
	a.grid.DestroyOverlay()

	a.cancel()
	if a.favicons != nil {
		a.favicons.wait()
	}
	if a.iconCache != nil {
		if err := a.iconCache.Close(); err != nil {
			a.log.Debugf("Failed to close favicon cache: %v", err)
		}
	}

	a.log.Info("Shutdown complete")
}
