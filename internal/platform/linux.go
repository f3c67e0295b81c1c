//go:build linux

package platform

import (
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LinuxFeatures implements PlatformFeatures for X11 using xrandr, xdotool and xprop.
type LinuxFeatures struct {
	log           *zap.SugaredLogger
	mu            sync.Mutex
	hotkeyRunning bool
}

// New creates the Linux platform features instance
func New(log *zap.SugaredLogger) PlatformFeatures {
	return &LinuxFeatures{log: log}
}

// "DP-1 connected primary 1920x1080+0+0 ..." or "HDMI-1 connected 1280x1024+-1280+0 ..."
var xrandrMonitor = regexp.MustCompile(`^\S+ connected( primary)? (\d+)x(\d+)\+(-?\d+)\+(-?\d+)`)

// Displays parses `xrandr --query`. Only the primary monitor gets the
// _NET_WORKAREA reduction; the others use their full bounds.
func (l *LinuxFeatures) Displays() ([]Display, error) {
	out, err := exec.Command("xrandr", "--query").Output()
	if err != nil {
		return nil, fmt.Errorf("xrandr failed: %w", err)
	}

	displays := parseXrandr(string(out))
	if len(displays) == 0 {
		return nil, fmt.Errorf("xrandr reported no connected monitors")
	}

	if wa, ok := netWorkArea(); ok {
		for i := range displays {
			if displays[i].Primary {
				displays[i].WorkArea = wa
			}
		}
	}
	return displays, nil
}

func parseXrandr(out string) []Display {
	var displays []Display
	for _, line := range strings.Split(out, "\n") {
		m := xrandrMonitor.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		w, _ := strconv.Atoi(m[2])
		h, _ := strconv.Atoi(m[3])
		x, _ := strconv.Atoi(m[4])
		y, _ := strconv.Atoi(m[5])
		bounds := Rect{X: x, Y: y, Width: w, Height: h}
		displays = append(displays, Display{
			ID:       len(displays),
			Primary:  m[1] != "",
			Bounds:   bounds,
			WorkArea: bounds,
		})
	}
	return displays
}

// netWorkArea reads the first _NET_WORKAREA rectangle from the root window.
func netWorkArea() (Rect, bool) {
	out, err := exec.Command("xprop", "-root", "_NET_WORKAREA").Output()
	if err != nil {
		return Rect{}, false
	}
	// Format: "_NET_WORKAREA(CARDINAL) = 0, 0, 1920, 1040, ..."
	s := string(out)
	idx := strings.Index(s, "=")
	if idx == -1 {
		return Rect{}, false
	}
	vals := strings.Split(strings.TrimSpace(s[idx+1:]), ",")
	if len(vals) < 4 {
		return Rect{}, false
	}
	var n [4]int
	for i := range n {
		n[i], _ = strconv.Atoi(strings.TrimSpace(vals[i]))
	}
	if n[2] <= 0 || n[3] <= 0 {
		return Rect{}, false
	}
	return Rect{X: n[0], Y: n[1], Width: n[2], Height: n[3]}, true
}

// CursorPos uses `xdotool getmouselocation --shell`
func (l *LinuxFeatures) CursorPos() (Point, error) {
	out, err := exec.Command("xdotool", "getmouselocation", "--shell").Output()
	if err != nil {
		return Point{}, fmt.Errorf("xdotool getmouselocation failed: %w", err)
	}
	vals := parseShellVars(string(out))
	return Point{X: vals["X"], Y: vals["Y"]}, nil
}

// parseShellVars parses KEY=VALUE lines as printed by xdotool --shell.
func parseShellVars(out string) map[string]int {
	vals := make(map[string]int)
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		vals[parts[0]] = v
	}
	return vals
}

// MoveAndResizeWindow moves and resizes a window
func (l *LinuxFeatures) MoveAndResizeWindow(handle WindowHandle, bounds Rect) error {
	id := strconv.FormatUint(uint64(handle), 10)
	cmd := exec.Command("xdotool", "windowmove", "--sync", id,
		strconv.Itoa(bounds.X), strconv.Itoa(bounds.Y))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("xdotool windowmove failed: %w", err)
	}
	cmd = exec.Command("xdotool", "windowsize", "--sync", id,
		strconv.Itoa(bounds.Width), strconv.Itoa(bounds.Height))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("xdotool windowsize failed: %w", err)
	}
	return nil
}

// GetWindowRect returns the window position and size
func (l *LinuxFeatures) GetWindowRect(handle WindowHandle) (Rect, error) {
	out, err := exec.Command("xdotool", "getwindowgeometry", "--shell",
		strconv.FormatUint(uint64(handle), 10)).Output()
	if err != nil {
		return Rect{}, fmt.Errorf("xdotool getwindowgeometry failed: %w", err)
	}
	vals := parseShellVars(string(out))
	return Rect{X: vals["X"], Y: vals["Y"], Width: vals["WIDTH"], Height: vals["HEIGHT"]}, nil
}

// SetFrame toggles decorations through _MOTIF_WM_HINTS
func (l *LinuxFeatures) SetFrame(handle WindowHandle, visible bool) error {
	decorations := "0x0"
	if visible {
		decorations = "0x1"
	}
	cmd := exec.Command("xprop", "-id", fmt.Sprintf("0x%x", handle),
		"-f", "_MOTIF_WM_HINTS", "32c",
		"-set", "_MOTIF_WM_HINTS", "0x2, 0x0, "+decorations+", 0x0, 0x0")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("xprop _MOTIF_WM_HINTS failed: %w", err)
	}
	return nil
}

// HideFromSwitchers sets _NET_WM_STATE skip-taskbar/skip-pager
func (l *LinuxFeatures) HideFromSwitchers(handle WindowHandle) error {
	cmd := exec.Command("xprop", "-id", fmt.Sprintf("0x%x", handle),
		"-f", "_NET_WM_STATE", "32a",
		"-set", "_NET_WM_STATE", "_NET_WM_STATE_SKIP_TASKBAR,_NET_WM_STATE_SKIP_PAGER")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("xprop _NET_WM_STATE failed: %w", err)
	}
	return nil
}

// SetBottomMost lowers the window to the bottom of the stacking order
func (l *LinuxFeatures) SetBottomMost(handle WindowHandle) error {
	cmd := exec.Command("xdotool", "windowlower", strconv.FormatUint(uint64(handle), 10))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("xdotool windowlower failed: %w", err)
	}
	return nil
}

// SetClickThrough is not easily supported on Linux without compositor-specific APIs
func (l *LinuxFeatures) SetClickThrough(handle WindowHandle, clickThrough bool) error {
	l.log.Debug("SetClickThrough: not supported on Linux")
	return ErrNotSupported
}

// WatchMoveResize needs a window-procedure hook that X11 tools cannot provide
func (l *LinuxFeatures) WatchMoveResize(handle WindowHandle, handler MoveResizeHandler) (func(), error) {
	return nil, ErrNotSupported
}

// RegisterHotkey registers a global hotkey (requires X11 keygrab)
func (l *LinuxFeatures) RegisterHotkey(id int, modifiers uint, keyCode uint) error {
	return ErrNotSupported
}

// UnregisterHotkey removes a registered hotkey
func (l *LinuxFeatures) UnregisterHotkey(id int) error {
	return nil
}

// SetupHotkeyListener records the listener as running. Global hotkeys need
// XGrabKey, so bindings are only logged here.
func (l *LinuxFeatures) SetupHotkeyListener(bindings []Hotkey, callback func(id int)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hotkeyRunning {
		return nil
	}
	l.hotkeyRunning = true

	for _, hk := range bindings {
		l.log.Infof("Global hotkey %s unavailable on Linux (bind it with xbindkeys)", hk.Name)
	}
	return nil
}

// StopHotkeyListener stops the hotkey listener
func (l *LinuxFeatures) StopHotkeyListener() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hotkeyRunning = false
}

// GetWindowHandle finds a window by title using xdotool
func GetWindowHandle(title string) (WindowHandle, error) {
	out, err := exec.Command("xdotool", "search", "--name", title).Output()
	if err != nil {
		return 0, fmt.Errorf("xdotool search failed: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return 0, fmt.Errorf("window not found: %s", title)
	}
	id, err := strconv.ParseUint(lines[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid window id: %s", lines[0])
	}
	return WindowHandle(id), nil
}
