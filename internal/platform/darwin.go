//go:build darwin

package platform

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DarwinFeatures implements PlatformFeatures for macOS. Without CGO only the
// desktop bounds and frontmost-window placement are reachable via AppleScript.
type DarwinFeatures struct {
	log           *zap.SugaredLogger
	mu            sync.Mutex
	hotkeyRunning bool
}

// New creates the macOS platform features instance
func New(log *zap.SugaredLogger) PlatformFeatures {
	return &DarwinFeatures{log: log}
}

// Displays reports a single display spanning the Finder desktop bounds
func (d *DarwinFeatures) Displays() ([]Display, error) {
	script := `
		tell application "Finder"
			set screenBounds to bounds of window of desktop
			return screenBounds
		end tell`
	out, err := exec.Command("osascript", "-e", script).Output()
	if err != nil {
		return nil, fmt.Errorf("AppleScript desktop bounds failed: %w", err)
	}
	parts := strings.Split(strings.TrimSpace(string(out)), ", ")
	if len(parts) < 4 {
		return nil, fmt.Errorf("unexpected desktop bounds %q", out)
	}
	var n [4]int
	for i := range n {
		n[i], _ = strconv.Atoi(parts[i])
	}
	bounds := Rect{X: n[0], Y: n[1], Width: n[2] - n[0], Height: n[3] - n[1]}

	// Menu bar is roughly 25px.
	work := bounds
	work.Y += 25
	work.Height -= 25
	return []Display{{ID: 0, Primary: true, Bounds: bounds, WorkArea: work}}, nil
}

// CursorPos requires CoreGraphics (CGO)
func (d *DarwinFeatures) CursorPos() (Point, error) {
	return Point{}, ErrNotSupported
}

// MoveAndResizeWindow moves and resizes the frontmost window using AppleScript
func (d *DarwinFeatures) MoveAndResizeWindow(handle WindowHandle, bounds Rect) error {
	script := fmt.Sprintf(`
		tell application "System Events"
			tell (first process whose frontmost is true)
				set position of window 1 to {%d, %d}
				set size of window 1 to {%d, %d}
			end tell
		end tell`, bounds.X, bounds.Y, bounds.Width, bounds.Height)
	cmd := exec.Command("osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("AppleScript move/resize failed: %w", err)
	}
	return nil
}

// GetWindowRect is not available without CGO
func (d *DarwinFeatures) GetWindowRect(handle WindowHandle) (Rect, error) {
	return Rect{}, ErrNotSupported
}

func (d *DarwinFeatures) SetFrame(handle WindowHandle, visible bool) error {
	return ErrNotSupported
}

func (d *DarwinFeatures) HideFromSwitchers(handle WindowHandle) error {
	return ErrNotSupported
}

func (d *DarwinFeatures) SetBottomMost(handle WindowHandle) error {
	return ErrNotSupported
}

func (d *DarwinFeatures) SetClickThrough(handle WindowHandle, clickThrough bool) error {
	return ErrNotSupported
}

func (d *DarwinFeatures) WatchMoveResize(handle WindowHandle, handler MoveResizeHandler) (func(), error) {
	return nil, ErrNotSupported
}

// RegisterHotkey - global hotkeys on macOS require Carbon API or CGO
func (d *DarwinFeatures) RegisterHotkey(id int, modifiers uint, keyCode uint) error {
	return ErrNotSupported
}

// UnregisterHotkey removes a registered hotkey
func (d *DarwinFeatures) UnregisterHotkey(id int) error {
	return nil
}

// SetupHotkeyListener sets up hotkey listening (stub on macOS)
func (d *DarwinFeatures) SetupHotkeyListener(bindings []Hotkey, callback func(id int)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hotkeyRunning {
		return nil
	}
	d.hotkeyRunning = true
	d.log.Info("Global hotkeys not yet implemented on macOS (requires Carbon API)")
	return nil
}

// StopHotkeyListener stops the hotkey listener
func (d *DarwinFeatures) StopHotkeyListener() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hotkeyRunning = false
}

// GetWindowHandle finds a window by title (requires CGWindowListCopyWindowInfo)
func GetWindowHandle(title string) (WindowHandle, error) {
	return 0, fmt.Errorf("GetWindowHandle %q: %w", title, ErrNotSupported)
}
