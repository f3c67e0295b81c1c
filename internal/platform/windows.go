//go:build windows

package platform

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procSetWindowPos         = user32.NewProc("SetWindowPos")
	procMoveWindow           = user32.NewProc("MoveWindow")
	procGetWindowRect        = user32.NewProc("GetWindowRect")
	procGetWindowLongPtr     = user32.NewProc("GetWindowLongPtrW")
	procSetWindowLongPtr     = user32.NewProc("SetWindowLongPtrW")
	procCallWindowProc       = user32.NewProc("CallWindowProcW")
	procDefWindowProc        = user32.NewProc("DefWindowProcW")
	procSetLayeredWindowAttr = user32.NewProc("SetLayeredWindowAttributes")
	procEnumDisplayMonitors  = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfo       = user32.NewProc("GetMonitorInfoW")
	procGetCursorPos         = user32.NewProc("GetCursorPos")
	procRegisterHotKey       = user32.NewProc("RegisterHotKey")
	procUnregisterHotKey     = user32.NewProc("UnregisterHotKey")
	procGetMessage           = user32.NewProc("GetMessageW")
	procPostThreadMessage    = user32.NewProc("PostThreadMessageW")
	procFindWindow           = user32.NewProc("FindWindowW")
)

// Windows constants
const (
	HWND_BOTTOM      = uintptr(1)
	SWP_NOSIZE       = 0x0001
	SWP_NOMOVE       = 0x0002
	SWP_NOZORDER     = 0x0004
	SWP_NOACTIVATE   = 0x0010
	SWP_FRAMECHANGED = 0x0020

	WS_CAPTION     = 0x00C00000
	WS_THICKFRAME  = 0x00040000
	WS_SYSMENU     = 0x00080000
	WS_MINIMIZEBOX = 0x00020000
	WS_MAXIMIZEBOX = 0x00010000

	WS_EX_LAYERED     = 0x00080000
	WS_EX_TRANSPARENT = 0x00000020
	WS_EX_TOOLWINDOW  = 0x00000080
	WS_EX_APPWINDOW   = 0x00040000
	WS_EX_NOACTIVATE  = 0x08000000

	LWA_ALPHA = 0x00000002

	MONITORINFOF_PRIMARY = 0x00000001

	WM_CLOSE         = 0x0010
	WM_NCDESTROY     = 0x0082
	WM_SIZING        = 0x0214
	WM_MOVING        = 0x0216
	WM_ENTERSIZEMOVE = 0x0231
	WM_EXITSIZEMOVE  = 0x0232
	WM_HOTKEY        = 0x0312
	WM_QUIT          = 0x0012
)

var (
	gwlStyle    = negativeIndex(-16)
	gwlExStyle  = negativeIndex(-20)
	gwlpWndProc = negativeIndex(-4)
)

// negativeIndex converts a GWL_* index to the uintptr the syscall expects.
func negativeIndex(v int) uintptr {
	return uintptr(v)
}

// RECT structure for Windows API
type RECT struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

func (r RECT) toRect() Rect {
	return Rect{
		X:      int(r.Left),
		Y:      int(r.Top),
		Width:  int(r.Right - r.Left),
		Height: int(r.Bottom - r.Top),
	}
}

// POINT structure for Windows API
type POINT struct {
	X int32
	Y int32
}

// MONITORINFO structure for GetMonitorInfoW
type MONITORINFO struct {
	CbSize    uint32
	RcMonitor RECT
	RcWork    RECT
	DwFlags   uint32
}

// MSG structure for Windows message loop
type MSG struct {
	HWnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      POINT
}

// WindowsFeatures implements PlatformFeatures for Windows
type WindowsFeatures struct {
	log            *zap.SugaredLogger
	mu             sync.Mutex
	hotkeyThreadID uint32
	hotkeyRunning  bool
}

// New creates the Windows platform features instance
func New(log *zap.SugaredLogger) PlatformFeatures {
	return &WindowsFeatures{log: log}
}

// Monitor enumeration uses one callback for the process lifetime; callbacks
// created with NewCallback are never released.
var (
	enumMu       sync.Mutex
	enumResult   []Display
	enumCallback = windows.NewCallback(enumMonitorProc)
)

func enumMonitorProc(hMonitor, hdc, lprcMonitor, dwData uintptr) uintptr {
	var mi MONITORINFO
	mi.CbSize = uint32(unsafe.Sizeof(mi))
	ret, _, _ := procGetMonitorInfo.Call(hMonitor, uintptr(unsafe.Pointer(&mi)))
	if ret == 0 {
		return 1 // keep enumerating
	}
	enumResult = append(enumResult, Display{
		ID:       len(enumResult),
		Primary:  mi.DwFlags&MONITORINFOF_PRIMARY != 0,
		Bounds:   mi.RcMonitor.toRect(),
		WorkArea: mi.RcWork.toRect(),
	})
	return 1
}

// Displays enumerates every monitor with its work area
func (w *WindowsFeatures) Displays() ([]Display, error) {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumResult = nil
	ret, _, err := procEnumDisplayMonitors.Call(0, 0, enumCallback, 0)
	if ret == 0 {
		return nil, fmt.Errorf("EnumDisplayMonitors failed: %w", err)
	}
	displays := make([]Display, len(enumResult))
	copy(displays, enumResult)
	return displays, nil
}

// CursorPos returns the pointer position in virtual-screen coordinates
func (w *WindowsFeatures) CursorPos() (Point, error) {
	var pt POINT
	ret, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	if ret == 0 {
		return Point{}, fmt.Errorf("GetCursorPos failed: %w", err)
	}
	return Point{X: int(pt.X), Y: int(pt.Y)}, nil
}

// MoveAndResizeWindow moves and resizes a window
func (w *WindowsFeatures) MoveAndResizeWindow(handle WindowHandle, bounds Rect) error {
	ret, _, err := procMoveWindow.Call(
		uintptr(handle),
		uintptr(bounds.X),
		uintptr(bounds.Y),
		uintptr(bounds.Width),
		uintptr(bounds.Height),
		1, // bRepaint = TRUE
	)
	if ret == 0 {
		return fmt.Errorf("MoveWindow failed: %w", err)
	}
	return nil
}

// GetWindowRect returns the actual window position and size (including frame/title bar)
func (w *WindowsFeatures) GetWindowRect(handle WindowHandle) (Rect, error) {
	var rect RECT
	ret, _, err := procGetWindowRect.Call(
		uintptr(handle),
		uintptr(unsafe.Pointer(&rect)),
	)
	if ret == 0 {
		return Rect{}, fmt.Errorf("GetWindowRect failed: %w", err)
	}
	return rect.toRect(), nil
}

// SetFrame shows or hides the caption and sizing border. A framed window is
// resizable, a frameless one is not.
func (w *WindowsFeatures) SetFrame(handle WindowHandle, visible bool) error {
	style, _, _ := procGetWindowLongPtr.Call(uintptr(handle), gwlStyle)

	const frame = WS_CAPTION | WS_THICKFRAME | WS_SYSMENU
	if visible {
		style |= frame
	} else {
		style &^= frame
	}
	style &^= WS_MINIMIZEBOX | WS_MAXIMIZEBOX

	procSetWindowLongPtr.Call(uintptr(handle), gwlStyle, style)
	return w.refreshFrame(handle)
}

// HideFromSwitchers removes the window from the taskbar and Alt+Tab
func (w *WindowsFeatures) HideFromSwitchers(handle WindowHandle) error {
	exStyle, _, _ := procGetWindowLongPtr.Call(uintptr(handle), gwlExStyle)
	exStyle = (exStyle | WS_EX_TOOLWINDOW) &^ WS_EX_APPWINDOW
	procSetWindowLongPtr.Call(uintptr(handle), gwlExStyle, exStyle)
	return w.refreshFrame(handle)
}

// SetBottomMost pushes the window to the bottom of the z-order
func (w *WindowsFeatures) SetBottomMost(handle WindowHandle) error {
	ret, _, err := procSetWindowPos.Call(
		uintptr(handle),
		HWND_BOTTOM,
		0, 0, 0, 0,
		SWP_NOMOVE|SWP_NOSIZE|SWP_NOACTIVATE,
	)
	if ret == 0 {
		return fmt.Errorf("SetWindowPos failed: %w", err)
	}
	return nil
}

// SetClickThrough makes the window ignore mouse clicks
func (w *WindowsFeatures) SetClickThrough(handle WindowHandle, clickThrough bool) error {
	exStyle, _, _ := procGetWindowLongPtr.Call(uintptr(handle), gwlExStyle)

	var newStyle uintptr
	if clickThrough {
		newStyle = exStyle | WS_EX_TRANSPARENT | WS_EX_LAYERED | WS_EX_NOACTIVATE | WS_EX_TOOLWINDOW
	} else {
		newStyle = exStyle &^ (WS_EX_TRANSPARENT | WS_EX_NOACTIVATE)
	}
	procSetWindowLongPtr.Call(uintptr(handle), gwlExStyle, newStyle)

	if clickThrough {
		// Layered windows stay invisible until their attributes are set once.
		ret, _, err := procSetLayeredWindowAttr.Call(uintptr(handle), 0, 255, LWA_ALPHA)
		if ret == 0 {
			return fmt.Errorf("SetLayeredWindowAttributes failed: %w", err)
		}
	}
	return nil
}

func (w *WindowsFeatures) refreshFrame(handle WindowHandle) error {
	ret, _, err := procSetWindowPos.Call(
		uintptr(handle),
		0,
		0, 0, 0, 0,
		SWP_NOMOVE|SWP_NOSIZE|SWP_NOZORDER|SWP_NOACTIVATE|SWP_FRAMECHANGED,
	)
	if ret == 0 {
		return fmt.Errorf("SetWindowPos failed: %w", err)
	}
	return nil
}

// subclass tracks one hooked window procedure.
type subclass struct {
	orig    uintptr
	handler MoveResizeHandler
}

var (
	subclassMu   sync.Mutex
	subclasses   = make(map[uintptr]*subclass)
	subclassProc = windows.NewCallback(subclassWndProc)
)

func subclassWndProc(hwnd, msg, wParam, lParam uintptr) uintptr {
	subclassMu.Lock()
	sc := subclasses[hwnd]
	subclassMu.Unlock()

	if sc == nil {
		ret, _, _ := procDefWindowProc.Call(hwnd, msg, wParam, lParam)
		return ret
	}

	switch msg {
	case WM_ENTERSIZEMOVE:
		sc.handler.OnDragStart()
	case WM_MOVING, WM_SIZING:
		sc.handler.OnDragging()
	case WM_EXITSIZEMOVE:
		sc.handler.OnDragEnd()
	case WM_CLOSE:
		sc.handler.OnClose()
	case WM_NCDESTROY:
		subclassMu.Lock()
		delete(subclasses, hwnd)
		subclassMu.Unlock()
		procSetWindowLongPtr.Call(hwnd, gwlpWndProc, sc.orig)
	}

	ret, _, _ := procCallWindowProc.Call(sc.orig, hwnd, msg, wParam, lParam)
	return ret
}

// WatchMoveResize hooks the window procedure and forwards move/resize/close
// notifications to handler. The returned func restores the original procedure.
func (w *WindowsFeatures) WatchMoveResize(handle WindowHandle, handler MoveResizeHandler) (func(), error) {
	hwnd := uintptr(handle)

	subclassMu.Lock()
	if _, exists := subclasses[hwnd]; exists {
		subclassMu.Unlock()
		return nil, fmt.Errorf("window %#x is already watched", hwnd)
	}
	orig, _, err := procGetWindowLongPtr.Call(hwnd, gwlpWndProc)
	if orig == 0 {
		subclassMu.Unlock()
		return nil, fmt.Errorf("GetWindowLongPtr failed: %w", err)
	}
	subclasses[hwnd] = &subclass{orig: orig, handler: handler}
	subclassMu.Unlock()

	procSetWindowLongPtr.Call(hwnd, gwlpWndProc, subclassProc)

	unwatch := func() {
		subclassMu.Lock()
		sc, ok := subclasses[hwnd]
		delete(subclasses, hwnd)
		subclassMu.Unlock()
		if ok {
			procSetWindowLongPtr.Call(hwnd, gwlpWndProc, sc.orig)
		}
	}
	return unwatch, nil
}

// RegisterHotkey registers a global hotkey
func (w *WindowsFeatures) RegisterHotkey(id int, modifiers uint, keyCode uint) error {
	ret, _, err := procRegisterHotKey.Call(
		0,
		uintptr(id),
		uintptr(modifiers),
		uintptr(keyCode),
	)

	if ret == 0 {
		return fmt.Errorf("RegisterHotKey failed for id %d: %w", id, err)
	}
	return nil
}

// UnregisterHotkey removes a registered hotkey
func (w *WindowsFeatures) UnregisterHotkey(id int) error {
	ret, _, err := procUnregisterHotKey.Call(0, uintptr(id))
	if ret == 0 {
		return fmt.Errorf("UnregisterHotKey failed for id %d: %w", id, err)
	}
	return nil
}

// SetupHotkeyListener registers bindings and runs the hotkey message loop
func (w *WindowsFeatures) SetupHotkeyListener(bindings []Hotkey, callback func(id int)) error {
	w.mu.Lock()
	if w.hotkeyRunning {
		w.mu.Unlock()
		return nil
	}
	w.hotkeyRunning = true
	w.mu.Unlock()

	go func() {
		// RegisterHotKey and GetMessage must run on the same OS thread.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		w.mu.Lock()
		w.hotkeyThreadID = windows.GetCurrentThreadId()
		w.mu.Unlock()

		for _, hk := range bindings {
			if err := w.RegisterHotkey(hk.ID, hk.Modifiers, hk.Key); err != nil {
				w.log.Warnf("Failed to register %s: %v", hk.Name, err)
			} else {
				w.log.Infof("Registered hotkey: %s", hk.Name)
			}
		}

		var msg MSG
		for {
			ret, _, _ := procGetMessage.Call(
				uintptr(unsafe.Pointer(&msg)),
				0, 0, 0,
			)

			// ret == 0 means WM_QUIT, ret == -1 means error
			if ret == 0 || int32(ret) == -1 {
				break
			}

			if msg.Message == WM_HOTKEY {
				callback(int(msg.WParam))
			}
		}

		for _, hk := range bindings {
			w.UnregisterHotkey(hk.ID)
		}
		w.log.Debug("Hotkey message loop exited")
	}()

	return nil
}

// StopHotkeyListener stops the hotkey message loop
func (w *WindowsFeatures) StopHotkeyListener() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.hotkeyRunning {
		return
	}
	w.hotkeyRunning = false

	// Post WM_QUIT to the hotkey thread to unblock GetMessage
	if w.hotkeyThreadID != 0 {
		procPostThreadMessage.Call(uintptr(w.hotkeyThreadID), WM_QUIT, 0, 0)
	}
}

// GetWindowHandle extracts the native window handle by title
func GetWindowHandle(title string) (WindowHandle, error) {
	titlePtr, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return 0, err
	}

	hwnd, _, callErr := procFindWindow.Call(0, uintptr(unsafe.Pointer(titlePtr)))
	if hwnd == 0 {
		return 0, fmt.Errorf("FindWindow failed: %w", callErr)
	}
	return WindowHandle(hwnd), nil
}
