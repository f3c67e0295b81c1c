package grid

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"deskwidgets/internal/config"
	"deskwidgets/internal/platform"
)

// WindowBorderOffset is the width of the border the OS draws around a framed
// window. It is added to snapped sizes so the client area, not the outer
// window rect, lands on grid lines.
const WindowBorderOffset = 7

// SettingsSource provides the current global settings.
type SettingsSource interface {
	Get() config.Settings
}

// DisplayLocator answers monitor and pointer queries.
type DisplayLocator interface {
	Displays() ([]platform.Display, error)
	CursorPos() (platform.Point, error)
}

// Overlay is the borderless, click-through window that draws grid lines while
// a widget is being dragged.
type Overlay interface {
	ShowOn(area platform.Rect, cell int)
	Hide()
	Close()
}

// OverlayFactory creates the overlay on first use.
type OverlayFactory func() (Overlay, error)

// Calculator snaps widget geometry to a monitor-relative grid and owns the
// grid overlay window.
type Calculator struct {
	settings   SettingsSource
	locator    DisplayLocator
	newOverlay OverlayFactory
	log        *zap.SugaredLogger

	mu      sync.Mutex
	overlay Overlay
	shownOn platform.Rect
	showing bool
}

// New creates a Calculator. overlays may be nil, in which case no overlay is shown.
func New(settings SettingsSource, locator DisplayLocator, overlays OverlayFactory, log *zap.SugaredLogger) *Calculator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Calculator{
		settings:   settings,
		locator:    locator,
		newOverlay: overlays,
		log:        log,
	}
}

// IsGridEnabled reports whether the drag mode is GridBased.
func (c *Calculator) IsGridEnabled() bool {
	return c.settings.Get().DragMode == config.DragModeGridBased
}

// CellSize returns the grid size, clamped to a positive value.
func (c *Calculator) CellSize() int {
	return config.ClampGridSize(c.settings.Get().GridSize)
}

// DisplayUnderCursor returns the display whose work area contains the pointer,
// falling back to the primary display. ok is false when no display is known.
func (c *Calculator) DisplayUnderCursor() (platform.Display, bool) {
	displays, err := c.locator.Displays()
	if err != nil {
		c.log.Warnf("Failed to enumerate displays: %v", err)
		return platform.Display{}, false
	}
	pos, err := c.locator.CursorPos()
	if err != nil {
		c.log.Debugf("Cursor position unavailable, using primary display: %v", err)
		if len(displays) == 0 {
			return platform.Display{}, false
		}
		return platform.PrimaryDisplay(displays), true
	}
	return platform.DisplayForPoint(displays, pos)
}

func roundTo(v, cell int) int {
	return int(math.Round(float64(v)/float64(cell))) * cell
}

// SnapToGrid rounds a position to the nearest grid intersection of the display
// under the pointer. Free mode returns the input unchanged.
func (c *Calculator) SnapToGrid(x, y int) (int, int) {
	if !c.IsGridEnabled() {
		return x, y
	}

	var origin platform.Point
	if d, ok := c.DisplayUnderCursor(); ok {
		origin = d.WorkArea.Origin()
	}

	cell := c.CellSize()
	return roundTo(x-origin.X, cell) + origin.X, roundTo(y-origin.Y, cell) + origin.Y
}

// SnapSizeToGrid rounds a size to the nearest multiple of the cell size, at
// least one cell. Free mode returns the input unchanged.
func (c *Calculator) SnapSizeToGrid(width, height int) (int, int) {
	if !c.IsGridEnabled() {
		return width, height
	}

	cell := c.CellSize()
	return max(cell, roundTo(width, cell)), max(cell, roundTo(height, cell))
}

// SnapWindowBounds snaps position and size, then widens the size by
// WindowBorderOffset. Free mode returns the input unchanged.
func (c *Calculator) SnapWindowBounds(r platform.Rect) platform.Rect {
	if !c.IsGridEnabled() {
		return r
	}

	x, y := c.SnapToGrid(r.X, r.Y)
	w, h := c.SnapSizeToGrid(r.Width, r.Height)
	snapped := platform.Rect{
		X:      x,
		Y:      y,
		Width:  w + WindowBorderOffset,
		Height: h + WindowBorderOffset,
	}
	c.log.Debugf("Snapped window bounds %+v -> %+v", r, snapped)
	return snapped
}

// OnMoveResizeStarted shows the overlay on the display under the pointer,
// creating it on first use. No-op in Free mode.
func (c *Calculator) OnMoveResizeStarted() {
	if !c.IsGridEnabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overlay == nil {
		if c.newOverlay == nil {
			return
		}
		overlay, err := c.newOverlay()
		if err != nil {
			c.log.Warnf("Failed to create grid overlay: %v", err)
			return
		}
		c.overlay = overlay
	}
	c.showing = false
	c.showOnCursorDisplayLocked()
}

// UpdateOverlayPosition moves the overlay when the pointer has crossed to a
// different display. No-op in Free mode.
func (c *Calculator) UpdateOverlayPosition() {
	if !c.IsGridEnabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overlay == nil {
		return
	}
	c.showOnCursorDisplayLocked()
}

func (c *Calculator) showOnCursorDisplayLocked() {
	d, ok := c.DisplayUnderCursor()
	if !ok {
		return
	}
	if c.showing && c.shownOn == d.WorkArea {
		return
	}
	c.overlay.ShowOn(d.WorkArea, c.CellSize())
	c.shownOn = d.WorkArea
	c.showing = true
}

// OnMoveResizeFinished hides the overlay.
func (c *Calculator) OnMoveResizeFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overlay != nil && c.showing {
		c.overlay.Hide()
	}
	c.showing = false
}

// DestroyOverlay closes the overlay window entirely.
func (c *Calculator) DestroyOverlay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overlay != nil {
		c.overlay.Close()
		c.overlay = nil
	}
	c.showing = false
}
