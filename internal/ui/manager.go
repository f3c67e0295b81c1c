package ui

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"deskwidgets/internal/orchestrator"
	dw "deskwidgets/internal/widget"
)

const managerTitle = "WinDash Widgets"

// WidgetService is what the shell windows need from the orchestrator.
type WidgetService interface {
	GetWidgets() []*dw.Widget
	Widget(id uuid.UUID) (*dw.Widget, bool)
	Failed() []uuid.UUID
	SaveWidget(rec *dw.Widget, rerender bool) error
	DeleteWidget(rec *dw.Widget) error
	ToggleEnabled(id uuid.UUID) error
	NewWidget(name, url string) (*dw.Widget, error)
	SetDraggable(draggable bool)
	Subscribe(fn func(orchestrator.ChangeEvent)) (cancel func())
}

// IconResolver returns the favicon file for a widget, or "" if none.
type IconResolver func(rec *dw.Widget) string

// ManagerWindow lists the widgets and opens editors for them. While it is
// open, widget windows are draggable.
type ManagerWindow struct {
	app      fyne.App
	svc      WidgetService
	iconPath IconResolver
	log      *zap.SugaredLogger

	// UI thread only
	window      fyne.Window
	list        *widget.List
	items       []*dw.Widget
	failed      []uuid.UUID
	editors     map[uuid.UUID]*EditorWindow
	unsubscribe func()

	mu     sync.Mutex
	onOpen func(open bool)
}

// NewManagerWindow creates the manager; call Show to open it.
func NewManagerWindow(app fyne.App, svc WidgetService, iconPath IconResolver, log *zap.SugaredLogger) *ManagerWindow {
	return &ManagerWindow{
		app:      app,
		svc:      svc,
		iconPath: iconPath,
		log:      log,
		editors:  make(map[uuid.UUID]*EditorWindow),
	}
}

// SetOpenCallback is told when the window opens or closes.
func (m *ManagerWindow) SetOpenCallback(fn func(open bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = fn
}

func (m *ManagerWindow) notifyOpen(open bool) {
	m.mu.Lock()
	fn := m.onOpen
	m.mu.Unlock()
	if fn != nil {
		fn(open)
	}
}

// Show opens the manager or focuses it. Must run on the UI thread.
func (m *ManagerWindow) Show() {
	if m.window != nil {
		m.window.RequestFocus()
		return
	}

	m.window = m.app.NewWindow(managerTitle)
	m.window.Resize(fyne.NewSize(520, 420))

	m.list = widget.NewList(
		func() int { return len(m.items) },
		m.newRow,
		m.updateRow,
	)

	newBtn := widget.NewButtonWithIcon("New Widget", theme.ContentAddIcon(), m.showNewDialog)
	newBtn.Importance = widget.HighImportance

	header := container.NewHBox(SectionHeader("Widgets"), layout.NewSpacer(), newBtn)
	hint := canvas.NewText("Widgets can be dragged while this window is open.", colorGray)
	hint.TextSize = 12

	content := container.NewBorder(
		container.NewVBox(header, Separator()),
		hint,
		nil, nil,
		m.list,
	)
	m.window.SetContent(container.NewPadded(content))

	m.unsubscribe = m.svc.Subscribe(func(ev orchestrator.ChangeEvent) {
		fyne.Do(func() { m.handleChange(ev) })
	})
	m.window.SetOnClosed(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
			m.unsubscribe = nil
		}
		m.window = nil
		m.list = nil
		go func() {
			m.svc.SetDraggable(false)
			m.notifyOpen(false)
		}()
	})

	m.refresh()
	m.window.Show()

	go func() {
		m.svc.SetDraggable(true)
		m.notifyOpen(true)
	}()
}

func (m *ManagerWindow) handleChange(ev orchestrator.ChangeEvent) {
	if ev.Kind == orchestrator.ChangeDeleted {
		if e, ok := m.editors[ev.ID]; ok {
			e.Close()
		}
	}
	if e, ok := m.editors[ev.ID]; ok && ev.Kind == orchestrator.ChangeSaved && ev.Err == nil {
		e.Update(ev.Widget)
	}
	m.refresh()
}

// refresh reloads the rows from the service. Must run on the UI thread.
func (m *ManagerWindow) refresh() {
	m.items = m.svc.GetWidgets()
	m.failed = m.svc.Failed()
	if m.list != nil {
		m.list.Refresh()
	}
}

func (m *ManagerWindow) newRow() fyne.CanvasObject {
	icon := canvas.NewImageFromResource(theme.ComputerIcon())
	icon.FillMode = canvas.ImageFillContain
	icon.SetMinSize(fyne.NewSize(20, 20))

	enabled := widget.NewCheck("", nil)
	name := widget.NewLabel("")
	name.Truncation = fyne.TextTruncateEllipsis
	edit := widget.NewButtonWithIcon("", theme.DocumentCreateIcon(), nil)
	del := widget.NewButtonWithIcon("", theme.DeleteIcon(), nil)

	return container.NewBorder(nil, nil,
		container.NewHBox(icon, enabled),
		container.NewHBox(edit, del),
		name,
	)
}

func (m *ManagerWindow) updateRow(id widget.ListItemID, obj fyne.CanvasObject) {
	if id < 0 || id >= len(m.items) {
		return
	}
	rec := m.items[id]

	row := obj.(*fyne.Container)
	left := row.Objects[1].(*fyne.Container)
	right := row.Objects[2].(*fyne.Container)
	name := row.Objects[0].(*widget.Label)
	icon := left.Objects[0].(*canvas.Image)
	enabled := left.Objects[1].(*widget.Check)
	edit := right.Objects[0].(*widget.Button)
	del := right.Objects[1].(*widget.Button)

	name.SetText(rowLabel(rec, slices.Contains(m.failed, rec.ID)))

	if p := m.iconFor(rec); p != "" {
		icon.Resource = nil
		icon.File = p
	} else {
		icon.File = ""
		icon.Resource = theme.ComputerIcon()
	}
	icon.Refresh()

	enabled.OnChanged = nil
	enabled.SetChecked(rec.Enabled)
	recID := rec.ID
	enabled.OnChanged = func(bool) {
		runAsync(m.window, m.log, "Toggle widget", func() error {
			return m.svc.ToggleEnabled(recID)
		})
	}

	edit.OnTapped = func() { m.openEditor(recID) }
	del.OnTapped = func() { m.confirmDelete(recID) }
}

func (m *ManagerWindow) iconFor(rec *dw.Widget) string {
	if m.iconPath == nil {
		return ""
	}
	p := m.iconPath(rec)
	if p == "" {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// rowLabel is the text shown for a widget in the list.
func rowLabel(rec *dw.Widget, failed bool) string {
	label := rec.Name
	if label == "" {
		label = rec.FileName
	}
	if label == "" {
		label = rec.ID.String()
	}
	if failed {
		label += " (failed to open)"
	}
	return label
}

func (m *ManagerWindow) openEditor(id uuid.UUID) {
	if e, ok := m.editors[id]; ok {
		e.Focus()
		return
	}
	rec, ok := m.svc.Widget(id)
	if !ok {
		return
	}
	e := NewEditorWindow(m.app, m.svc, rec, m.log)
	m.editors[id] = e
	e.SetOnClosed(func() { delete(m.editors, id) })
	e.Show()
}

func (m *ManagerWindow) confirmDelete(id uuid.UUID) {
	rec, ok := m.svc.Widget(id)
	if !ok || m.window == nil {
		return
	}
	msg := fmt.Sprintf("Delete %q?\nIts definition file is removed from the widgets folder.", rowLabel(rec, false))
	dialog.ShowConfirm("Delete Widget", msg, func(confirmed bool) {
		if !confirmed {
			return
		}
		runAsync(m.window, m.log, "Delete widget", func() error {
			return m.svc.DeleteWidget(rec)
		})
	}, m.window)
}

func (m *ManagerWindow) showNewDialog() {
	if m.window == nil {
		return
	}
	nameEntry := widget.NewEntry()
	nameEntry.SetPlaceHolder("My widget")
	nameEntry.Validator = func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("name is required")
		}
		return nil
	}
	urlEntry := widget.NewEntry()
	urlEntry.SetPlaceHolder("https://example.com")
	urlEntry.Validator = validateURL

	items := []*widget.FormItem{
		widget.NewFormItem("Name", nameEntry),
		widget.NewFormItem("URL", urlEntry),
	}
	parent := m.window
	dialog.ShowForm("New Widget", "Create", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		name := strings.TrimSpace(nameEntry.Text)
		addr := strings.TrimSpace(urlEntry.Text)
		go func() {
			rec, err := m.svc.NewWidget(name, addr)
			fyne.Do(func() {
				if err != nil {
					m.log.Warnf("Create widget failed: %v", err)
					dialog.ShowError(err, parent)
				}
				if rec != nil {
					m.openEditor(rec.ID)
				}
			})
		}()
	}, parent)
}

// validateURL accepts an empty string (html-only widget) or an absolute
// http(s) URL.
func validateURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("URL must start with http:// or https://")
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}
