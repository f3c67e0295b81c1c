// Package window presents one widget as a borderless browser window and
// reports user-driven geometry changes back to its host.
package window

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deskwidgets/internal/browser"
	"deskwidgets/internal/platform"
	"deskwidgets/internal/widget"
)

// State is a widget window's lifecycle stage.
type State int

const (
	StateCreated State = iota
	StateTitleBarConfigured
	StateContentLoading
	StateInteractive
	StateDragging
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateTitleBarConfigured:
		return "TitleBarConfigured"
	case StateContentLoading:
		return "ContentLoading"
	case StateInteractive:
		return "Interactive"
	case StateDragging:
		return "Dragging"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handle is the orchestrator's view of a live widget window.
type Handle interface {
	ID() uuid.UUID
	Activate()
	SetDraggable(draggable bool)
	// Close destroys the window without touching the widget record.
	Close()
}

// Host receives changes a window makes to its widget. Only the changed
// fields are reported; the host merges them onto its current record.
type Host interface {
	UpdateGeometry(id uuid.UUID, r platform.Rect) error
	// WindowClosed reports that the user closed h. The host disables the widget.
	WindowClosed(h Handle) error
}

// Snapper is the grid behavior a window needs while being dragged.
type Snapper interface {
	IsGridEnabled() bool
	SnapWindowBounds(r platform.Rect) platform.Rect
	OnMoveResizeStarted()
	UpdateOverlayPosition()
	OnMoveResizeFinished()
}

// Deps are the collaborators shared by every widget window.
type Deps struct {
	Native     platform.PlatformFeatures
	Grid       Snapper
	NewSurface browser.Factory
	Options    []browser.Option
	Content    browser.HTMLResolver
	// DataPath is the browser profile folder shared by all widgets.
	DataPath     string
	OpenExternal func(*url.URL) error
	Log          *zap.SugaredLogger
}

// Window is one widget's on-screen window.
type Window struct {
	deps Deps
	host Host
	id   uuid.UUID
	log  *zap.SugaredLogger

	mu          sync.Mutex
	record      *widget.Widget
	state       State
	draggable   bool
	rerendering bool
	surface     browser.Surface
	unwatch     func()
}

// New binds a window to a copy of rec. Nothing is shown until Open.
func New(deps Deps, host Host, rec *widget.Widget) *Window {
	log := deps.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Window{
		deps:   deps,
		host:   host,
		id:     rec.ID,
		log:    log.With("widget", rec.ID.String()),
		record: rec.Clone(),
		state:  StateCreated,
	}
}

// Factory returns a constructor that creates and opens windows with deps.
func Factory(deps Deps) func(Host, *widget.Widget) (Handle, error) {
	return func(host Host, rec *widget.Widget) (Handle, error) {
		w := New(deps, host, rec)
		if err := w.Open(); err != nil {
			return nil, err
		}
		return w, nil
	}
}

func (w *Window) ID() uuid.UUID { return w.id }

// State returns the current lifecycle stage.
func (w *Window) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Record returns a copy of the widget as this window last saw it.
func (w *Window) Record() *widget.Widget {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.record.Clone()
}

func bounds(rec *widget.Widget) platform.Rect {
	return platform.Rect{X: rec.X, Y: rec.Y, Width: rec.Width, Height: rec.Height}
}

// Open creates the browser surface and walks the window from Created to
// Interactive. A failure to create the surface closes the window; option and
// content failures are logged and leave the window usable.
func (w *Window) Open() error {
	w.mu.Lock()
	if w.state != StateCreated {
		w.mu.Unlock()
		return fmt.Errorf("window %s: open in state %s", w.id, w.state)
	}
	rec := w.record.Clone()
	w.mu.Unlock()

	surface, err := w.deps.NewSurface(browser.Config{
		Title:        rec.Name,
		Bounds:       bounds(rec),
		DevTools:     rec.DevTools,
		DataPath:     w.deps.DataPath,
		OpenExternal: w.deps.OpenExternal,
		Log:          w.log,
	})
	if err != nil {
		w.setState(StateClosed)
		return fmt.Errorf("create browser for %q: %w", rec.Name, err)
	}

	h := surface.Handle()
	native := w.deps.Native
	if err := native.MoveAndResizeWindow(h, bounds(rec)); err != nil {
		w.log.Warnf("Failed to position window: %v", err)
	}
	if err := native.HideFromSwitchers(h); err != nil && !errors.Is(err, platform.ErrNotSupported) {
		w.log.Warnf("Failed to hide window from task switchers: %v", err)
	}
	if err := native.SetFrame(h, false); err != nil && !errors.Is(err, platform.ErrNotSupported) {
		w.log.Warnf("Failed to remove window frame: %v", err)
	}
	unwatch, err := native.WatchMoveResize(h, w)
	if err != nil {
		w.log.Debugf("Move/resize notifications unavailable: %v", err)
		unwatch = func() {}
	}

	w.mu.Lock()
	w.surface = surface
	w.unwatch = unwatch
	w.state = StateTitleBarConfigured
	w.mu.Unlock()

	w.setState(StateContentLoading)
	if err := browser.ApplyAll(w.deps.Options, rec, surface); err != nil {
		w.log.Warnf("Some browser options could not be applied: %v", err)
	}
	if err := browser.LoadContent(rec, w.deps.Content, surface); err != nil {
		w.log.Warnf("Failed to load content: %v", err)
	}

	w.mu.Lock()
	if w.state == StateContentLoading {
		w.state = StateInteractive
	}
	w.mu.Unlock()
	w.log.Debugf("Window opened at %d,%d %dx%d", rec.X, rec.Y, rec.Width, rec.Height)
	return nil
}

func (w *Window) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Activate shows the window without stealing focus.
func (w *Window) Activate() {
	w.mu.Lock()
	s := w.surface
	closed := w.state == StateClosed
	w.mu.Unlock()
	if s != nil && !closed {
		s.Show()
	}
}

// SetDraggable shows the native frame so the window can be moved and
// resized, or hides it again. Geometry is left untouched.
func (w *Window) SetDraggable(draggable bool) {
	w.mu.Lock()
	if w.state == StateClosed || w.surface == nil {
		w.mu.Unlock()
		return
	}
	w.draggable = draggable
	h := w.surface.Handle()
	w.mu.Unlock()

	if err := w.deps.Native.SetFrame(h, draggable); err != nil && !errors.Is(err, platform.ErrNotSupported) {
		w.log.Warnf("Failed to toggle window frame: %v", err)
	}
}

// Draggable reports whether the frame is currently shown.
func (w *Window) Draggable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draggable
}

// OnDragStart shows the grid overlay when grid snapping is on.
func (w *Window) OnDragStart() {
	w.mu.Lock()
	if w.state != StateInteractive {
		w.mu.Unlock()
		return
	}
	w.state = StateDragging
	w.mu.Unlock()

	if w.deps.Grid.IsGridEnabled() {
		w.deps.Grid.OnMoveResizeStarted()
	}
}

// OnDragging follows the pointer across monitors with the overlay.
func (w *Window) OnDragging() {
	w.mu.Lock()
	dragging := w.state == StateDragging
	w.mu.Unlock()

	if dragging && w.deps.Grid.IsGridEnabled() {
		w.deps.Grid.UpdateOverlayPosition()
	}
}

// OnDragEnd hides the overlay, snaps the final bounds when grid snapping is
// on and saves the new geometry without rerendering.
func (w *Window) OnDragEnd() {
	w.mu.Lock()
	if w.state != StateDragging {
		w.mu.Unlock()
		return
	}
	w.state = StateInteractive
	h := w.surface.Handle()
	w.mu.Unlock()

	w.deps.Grid.OnMoveResizeFinished()

	r, err := w.deps.Native.GetWindowRect(h)
	if err != nil {
		w.log.Warnf("Failed to read window bounds: %v", err)
		return
	}
	if w.deps.Grid.IsGridEnabled() {
		r = w.deps.Grid.SnapWindowBounds(r)
		if err := w.deps.Native.MoveAndResizeWindow(h, r); err != nil {
			w.log.Warnf("Failed to snap window: %v", err)
		}
	}

	w.mu.Lock()
	w.record.X, w.record.Y = r.X, r.Y
	w.record.Width, w.record.Height = r.Width, r.Height
	w.mu.Unlock()

	if err := w.host.UpdateGeometry(w.id, r); err != nil {
		w.log.Errorf("Failed to save widget geometry: %v", err)
	}
}

// OnClose handles a close requested by the user: the widget is disabled and
// saved. Closes issued through Close are ignored here.
func (w *Window) OnClose() {
	w.mu.Lock()
	if w.rerendering || w.state == StateClosed {
		w.mu.Unlock()
		return
	}
	wasDragging := w.state == StateDragging
	w.state = StateClosed
	w.record.Enabled = false
	name := w.record.Name
	unwatch := w.unwatch
	w.unwatch = nil
	w.mu.Unlock()

	if wasDragging {
		w.deps.Grid.OnMoveResizeFinished()
	}
	if unwatch != nil {
		unwatch()
	}

	w.log.Infof("Widget %q closed by user, disabling", name)
	if err := w.host.WindowClosed(w); err != nil {
		w.log.Errorf("Failed to save disabled widget: %v", err)
	}
}

// Close destroys the window. The widget record is not modified.
func (w *Window) Close() {
	w.mu.Lock()
	if w.state == StateClosed && w.surface == nil {
		w.mu.Unlock()
		return
	}
	w.rerendering = true
	wasDragging := w.state == StateDragging
	w.state = StateClosed
	surface := w.surface
	w.surface = nil
	unwatch := w.unwatch
	w.unwatch = nil
	w.mu.Unlock()

	if wasDragging {
		w.deps.Grid.OnMoveResizeFinished()
	}
	if unwatch != nil {
		unwatch()
	}
	if surface != nil {
		surface.Close()
	}
}
