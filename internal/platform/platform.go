package platform

import "errors"

// ErrNotSupported is returned by features the current OS backend cannot provide.
var ErrNotSupported = errors.New("platform: not supported on this OS")

// WindowHandle represents a platform-specific window handle
type WindowHandle uintptr

// Point is a position in virtual-screen coordinates.
type Point struct {
	X int
	Y int
}

// Rect describes a rectangular region in screen coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Contains reports whether p lies inside r. The right and bottom edges are exclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width &&
		p.Y >= r.Y && p.Y < r.Y+r.Height
}

// Origin returns the top-left corner of r.
func (r Rect) Origin() Point {
	return Point{X: r.X, Y: r.Y}
}

// Display describes one monitor. WorkArea excludes the taskbar and other
// OS-reserved regions.
type Display struct {
	ID       int
	Primary  bool
	Bounds   Rect
	WorkArea Rect
}

// MoveResizeHandler receives native move/resize notifications for a window.
type MoveResizeHandler interface {
	// OnDragStart fires when an interactive move or resize begins.
	OnDragStart()
	// OnDragging fires for every intermediate move/resize step.
	OnDragging()
	// OnDragEnd fires when the interactive move or resize finishes.
	OnDragEnd()
	// OnClose fires when the user (not the program) asks the window to close.
	OnClose()
}

// PlatformFeatures defines the interface for platform-specific features.
// Each platform (Windows, Linux, macOS) must implement this interface.
type PlatformFeatures interface {
	// Screen info
	Displays() ([]Display, error)
	CursorPos() (Point, error)

	// Window management
	MoveAndResizeWindow(handle WindowHandle, bounds Rect) error
	GetWindowRect(handle WindowHandle) (Rect, error)
	SetFrame(handle WindowHandle, visible bool) error
	HideFromSwitchers(handle WindowHandle) error
	SetBottomMost(handle WindowHandle) error
	SetClickThrough(handle WindowHandle, clickThrough bool) error
	WatchMoveResize(handle WindowHandle, handler MoveResizeHandler) (unwatch func(), err error)

	// Global hotkeys
	RegisterHotkey(id int, modifiers uint, keyCode uint) error
	UnregisterHotkey(id int) error
	SetupHotkeyListener(bindings []Hotkey, callback func(id int)) error
	StopHotkeyListener()
}

// Hotkey binds an id to a modifier + key combination.
type Hotkey struct {
	ID        int
	Modifiers uint
	Key       uint
	Name      string
}

// Hotkey modifiers
const (
	ModAlt   uint = 0x0001
	ModCtrl  uint = 0x0002
	ModShift uint = 0x0004
	ModWin   uint = 0x0008
)

// Virtual key codes
const (
	VK_D uint = 0x44
	VK_G uint = 0x47
)

// Hotkey IDs
const (
	HotkeyToggleLayoutEdit = 1
	HotkeyToggleGridMode   = 2
)

// DefaultHotkeys are the global shortcuts registered at startup.
var DefaultHotkeys = []Hotkey{
	{HotkeyToggleLayoutEdit, ModCtrl | ModAlt, VK_D, "Ctrl+Alt+D (edit layout)"},
	{HotkeyToggleGridMode, ModCtrl | ModAlt, VK_G, "Ctrl+Alt+G (grid snapping)"},
}

// DisplayForPoint returns the first display whose work area contains p.
// Falls back to the primary display, then to the first one. ok is false only
// when displays is empty.
func DisplayForPoint(displays []Display, p Point) (d Display, ok bool) {
	if len(displays) == 0 {
		return Display{}, false
	}
	for _, disp := range displays {
		if disp.WorkArea.Contains(p) {
			return disp, true
		}
	}
	return PrimaryDisplay(displays), true
}

// PrimaryDisplay returns the display flagged primary, or the first one.
func PrimaryDisplay(displays []Display) Display {
	for _, d := range displays {
		if d.Primary {
			return d
		}
	}
	if len(displays) == 0 {
		return Display{}
	}
	return displays[0]
}
