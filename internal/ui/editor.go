package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"go.uber.org/zap"

	"deskwidgets/internal/debounce"
	dw "deskwidgets/internal/widget"
)

// Permission choices in the editor
const (
	permDefault = "Default"
	permAllow   = "Allow"
	permDeny    = "Deny"
)

// EditorWindow edits one widget and saves every change after a short pause.
// Saving re-renders the widget window.
type EditorWindow struct {
	app fyne.App
	svc WidgetService
	log *zap.SugaredLogger

	// UI thread only
	base     *dw.Widget
	window   fyne.Window
	loading  bool
	onClosed func()
	status   *StatusText

	name, url, html      *widget.Entry
	x, y, width, height  *widget.Entry
	enabled, touch, devs *widget.Check
	script               *widget.Entry
	forceTab             *widget.Entry
	userAgents           *widget.Entry
	perms                map[dw.Permission]*widget.Select

	saver  *debounce.Debouncer
	cancel context.CancelFunc

	mu      sync.Mutex
	pending *dw.Widget
}

// NewEditorWindow creates an editor for a copy of rec.
func NewEditorWindow(app fyne.App, svc WidgetService, rec *dw.Widget, log *zap.SugaredLogger) *EditorWindow {
	ctx, cancel := context.WithCancel(context.Background())
	return &EditorWindow{
		app:    app,
		svc:    svc,
		log:    log,
		base:   rec.Clone(),
		saver:  debounce.New(ctx, debounce.DefaultDelay, log),
		cancel: cancel,
		perms:  make(map[dw.Permission]*widget.Select),
	}
}

// SetOnClosed registers fn to run after the window closes.
func (e *EditorWindow) SetOnClosed(fn func()) {
	e.onClosed = fn
}

// Show builds and opens the editor window
func (e *EditorWindow) Show() {
	title := fmt.Sprintf("Edit %s", rowLabel(e.base, false))
	e.window = e.app.NewWindow(title)
	e.window.Resize(fyne.NewSize(520, 640))

	e.status = NewStatusText()
	e.buildFields()
	e.load(e.base)

	general := widget.NewForm(
		widget.NewFormItem("Name", e.name),
		widget.NewFormItem("URL", e.url),
		widget.NewFormItem("HTML file", e.html),
	)
	geometry := container.NewGridWithColumns(4,
		labeled("X", e.x), labeled("Y", e.y),
		labeled("Width", e.width), labeled("Height", e.height),
	)
	flags := container.NewGridWithColumns(3, e.enabled, e.touch, e.devs)

	permItems := make([]*widget.FormItem, 0, len(dw.Permissions))
	for _, p := range dw.Permissions {
		permItems = append(permItems, widget.NewFormItem(string(p), e.perms[p]))
	}

	advanced := widget.NewAccordion(
		widget.NewAccordionItem("Custom script", e.script),
		widget.NewAccordionItem("Open in widget (URL patterns, one per line)", e.forceTab),
		widget.NewAccordionItem("User agents (domain | user agent, one per line)", e.userAgents),
		widget.NewAccordionItem("Permissions", widget.NewForm(permItems...)),
	)

	content := container.NewVBox(
		SectionHeader("General"),
		general,
		Separator(),
		SectionHeader("Geometry"),
		geometry,
		flags,
		Separator(),
		advanced,
		e.status.Text,
	)
	e.window.SetContent(container.NewPadded(container.NewVScroll(content)))
	e.window.SetOnClosed(e.closed)
	e.window.Show()
}

func labeled(label string, obj fyne.CanvasObject) fyne.CanvasObject {
	return container.NewVBox(widget.NewLabel(label), obj)
}

func (e *EditorWindow) buildFields() {
	changed := func(string) { e.changed() }
	toggled := func(bool) { e.changed() }

	newEntry := func() *widget.Entry {
		en := widget.NewEntry()
		en.OnChanged = changed
		return en
	}
	newMulti := func() *widget.Entry {
		en := widget.NewMultiLineEntry()
		en.SetMinRowsVisible(4)
		en.OnChanged = changed
		return en
	}

	e.name, e.url, e.html = newEntry(), newEntry(), newEntry()
	e.url.Validator = validateURL
	e.x, e.y, e.width, e.height = newEntry(), newEntry(), newEntry(), newEntry()
	e.enabled = widget.NewCheck("Enabled", toggled)
	e.touch = widget.NewCheck("Touch", toggled)
	e.devs = widget.NewCheck("DevTools", toggled)
	e.script, e.forceTab, e.userAgents = newMulti(), newMulti(), newMulti()
	for _, p := range dw.Permissions {
		e.perms[p] = widget.NewSelect([]string{permDefault, permAllow, permDeny}, changed)
	}
}

// load fills the form from rec without triggering a save.
func (e *EditorWindow) load(rec *dw.Widget) {
	e.loading = true
	defer func() { e.loading = false }()

	e.name.SetText(rec.Name)
	e.url.SetText(rec.URL)
	e.html.SetText(rec.HTML)
	e.setGeometry(rec)
	e.enabled.SetChecked(rec.Enabled)
	e.touch.SetChecked(rec.TouchEnabled)
	e.devs.SetChecked(rec.DevTools)
	e.script.SetText(rec.CustomScript)
	e.forceTab.SetText(strings.Join(rec.ForceInCurrentTab, "\n"))
	e.userAgents.SetText(formatUserAgents(rec.CustomUserAgent))
	for p, sel := range e.perms {
		sel.SetSelected(permissionChoice(rec.PermissionFor(p)))
	}
}

func (e *EditorWindow) setGeometry(rec *dw.Widget) {
	setIfChanged(e.x, strconv.Itoa(rec.X))
	setIfChanged(e.y, strconv.Itoa(rec.Y))
	setIfChanged(e.width, strconv.Itoa(rec.Width))
	setIfChanged(e.height, strconv.Itoa(rec.Height))
}

func setIfChanged(en *widget.Entry, text string) {
	if en.Text != text {
		en.SetText(text)
	}
}

// Update takes geometry and bookkeeping from a record saved elsewhere, such
// as after a drag. Fields the user may be editing are left alone.
func (e *EditorWindow) Update(rec *dw.Widget) {
	if rec == nil || e.window == nil {
		return
	}
	e.base = rec.Clone()
	e.loading = true
	e.setGeometry(rec)
	e.enabled.SetChecked(rec.Enabled)
	e.loading = false
}

// Focus raises the editor window
func (e *EditorWindow) Focus() {
	if e.window != nil {
		e.window.RequestFocus()
	}
}

// Close closes the editor, saving any pending change.
func (e *EditorWindow) Close() {
	if e.window != nil {
		e.window.Close()
	}
}

func (e *EditorWindow) closed() {
	e.saver.Cancel()
	e.cancel()
	e.window = nil

	e.mu.Lock()
	rec := e.pending
	e.pending = nil
	e.mu.Unlock()
	if rec != nil {
		go func() {
			if err := e.svc.SaveWidget(rec, true); err != nil {
				e.log.Warnf("Final save of widget %s failed: %v", rec.ID, err)
			}
		}()
	}

	if e.onClosed != nil {
		e.onClosed()
	}
}

func (e *EditorWindow) changed() {
	if e.loading || e.window == nil {
		return
	}
	rec, err := e.record()
	if err != nil {
		e.status.Set(err.Error(), true)
		return
	}
	e.status.Set("Saving...", false)

	e.mu.Lock()
	e.pending = rec
	e.mu.Unlock()

	e.saver.Execute(func(ctx context.Context) error {
		e.mu.Lock()
		if e.pending != rec {
			e.mu.Unlock()
			return nil
		}
		e.pending = nil
		e.mu.Unlock()

		err := e.svc.SaveWidget(rec, true)
		fyne.Do(func() {
			if e.window == nil {
				return
			}
			if err != nil {
				e.status.Set("Save failed: "+err.Error(), true)
			} else {
				e.status.Set("Saved", false)
			}
		})
		return err
	})
}

// record builds the edited widget from the form.
func (e *EditorWindow) record() (*dw.Widget, error) {
	if err := validateURL(e.url.Text); err != nil {
		return nil, err
	}
	geo, err := parseGeometry(e.x.Text, e.y.Text, e.width.Text, e.height.Text)
	if err != nil {
		return nil, err
	}

	rec := e.base.Clone()
	rec.Name = strings.TrimSpace(e.name.Text)
	rec.URL = strings.TrimSpace(e.url.Text)
	rec.HTML = strings.TrimSpace(e.html.Text)
	rec.X, rec.Y, rec.Width, rec.Height = geo[0], geo[1], geo[2], geo[3]
	rec.Enabled = e.enabled.Checked
	rec.TouchEnabled = e.touch.Checked
	rec.DevTools = e.devs.Checked
	rec.CustomScript = e.script.Text
	rec.ForceInCurrentTab = splitLines(e.forceTab.Text)
	rec.CustomUserAgent = parseUserAgents(e.userAgents.Text)
	for p, sel := range e.perms {
		rec.SetPermission(p, choicePermission(sel.Selected))
	}
	return rec, nil
}

// parseGeometry parses x, y, width and height. Sizes must be positive.
func parseGeometry(x, y, w, h string) ([4]int, error) {
	var out [4]int
	names := [4]string{"X", "Y", "Width", "Height"}
	for i, s := range [4]string{x, y, w, h} {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return out, fmt.Errorf("%s must be a whole number", names[i])
		}
		if i >= 2 && n <= 0 {
			return out, fmt.Errorf("%s must be positive", names[i])
		}
		out[i] = n
	}
	return out, nil
}

// splitLines returns the non-empty trimmed lines of s.
func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// parseUserAgents reads "domain | user agent" lines. A line without a
// separator sets the user agent for every domain.
func parseUserAgents(s string) []dw.UserAgentMapping {
	var out []dw.UserAgentMapping
	for _, line := range splitLines(s) {
		domain, ua, ok := strings.Cut(line, "|")
		if !ok {
			out = append(out, dw.UserAgentMapping{UserAgent: line})
			continue
		}
		ua = strings.TrimSpace(ua)
		if ua == "" {
			continue
		}
		out = append(out, dw.UserAgentMapping{Domain: strings.TrimSpace(domain), UserAgent: ua})
	}
	return out
}

func formatUserAgents(m []dw.UserAgentMapping) string {
	lines := make([]string, 0, len(m))
	for _, ua := range m {
		if ua.Domain == "" {
			lines = append(lines, ua.UserAgent)
			continue
		}
		lines = append(lines, ua.Domain+" | "+ua.UserAgent)
	}
	return strings.Join(lines, "\n")
}

func permissionChoice(v *bool) string {
	switch {
	case v == nil:
		return permDefault
	case *v:
		return permAllow
	default:
		return permDeny
	}
}

func choicePermission(choice string) *bool {
	switch choice {
	case permAllow:
		v := true
		return &v
	case permDeny:
		v := false
		return &v
	default:
		return nil
	}
}
