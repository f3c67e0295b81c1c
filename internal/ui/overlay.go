package ui

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"go.uber.org/zap"

	"deskwidgets/internal/platform"
)

const overlayTitle = "WinDash Grid Overlay"

var (
	overlayBackground = color.NRGBA{R: 20, G: 20, B: 24, A: 60}
	overlayLine       = color.NRGBA{R: 88, G: 140, B: 236, A: 140}
)

// GridOverlay is a borderless window drawing grid lines over one monitor
// while a widget is dragged. It is click-through and kept at the bottom of
// the z-order so the dragged widget stays visible.
type GridOverlay struct {
	app      fyne.App
	platform platform.PlatformFeatures
	log      *zap.SugaredLogger

	mu     sync.Mutex
	window fyne.Window
	area   platform.Rect
	closed bool
}

// NewGridOverlay creates the overlay. The window is built on first ShowOn.
func NewGridOverlay(app fyne.App, p platform.PlatformFeatures, log *zap.SugaredLogger) *GridOverlay {
	return &GridOverlay{app: app, platform: p, log: log}
}

// ShowOn covers area with lines every cell pixels.
func (o *GridOverlay) ShowOn(area platform.Rect, cell int) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.area = area
	o.mu.Unlock()

	fyne.Do(func() {
		w := o.ensureWindow()
		scale := w.Canvas().Scale()
		if scale <= 0 {
			scale = 1
		}
		size := fyne.NewSize(float32(area.Width)/scale, float32(area.Height)/scale)
		w.SetContent(gridContent(size, float32(cell)/scale))
		w.Resize(size)
		w.Show()

		// Native features need the HWND, which exists only after Show
		go func() {
			time.Sleep(200 * time.Millisecond)
			o.applyWindowFeatures()
		}()
	})
}

// Hide hides the overlay window
func (o *GridOverlay) Hide() {
	fyne.Do(func() {
		o.mu.Lock()
		w := o.window
		o.mu.Unlock()
		if w != nil {
			w.Hide()
		}
	})
}

// Close destroys the overlay window. ShowOn is a no-op afterwards.
func (o *GridOverlay) Close() {
	o.mu.Lock()
	o.closed = true
	w := o.window
	o.window = nil
	o.mu.Unlock()

	if w != nil {
		fyne.Do(w.Close)
	}
}

func (o *GridOverlay) ensureWindow() fyne.Window {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.window != nil {
		return o.window
	}

	var w fyne.Window
	if drv, ok := o.app.Driver().(desktop.Driver); ok {
		w = drv.CreateSplashWindow()
		w.SetTitle(overlayTitle)
	} else {
		w = o.app.NewWindow(overlayTitle)
	}
	w.SetPadded(false)
	w.SetFixedSize(true)
	o.window = w
	return w
}

// applyWindowFeatures positions the window on the monitor and makes it
// click-through and bottom-most.
func (o *GridOverlay) applyWindowFeatures() {
	handle, err := platform.GetWindowHandle(overlayTitle)
	if err != nil {
		o.log.Debugf("Grid overlay handle unavailable: %v", err)
		return
	}

	o.mu.Lock()
	area := o.area
	o.mu.Unlock()

	if err := o.platform.MoveAndResizeWindow(handle, area); err != nil {
		o.log.Warnf("Failed to move grid overlay: %v", err)
	}
	if err := o.platform.SetClickThrough(handle, true); err != nil {
		o.log.Warnf("Failed to make grid overlay click-through: %v", err)
	}
	if err := o.platform.SetBottomMost(handle); err != nil {
		o.log.Warnf("Failed to send grid overlay to bottom: %v", err)
	}
	if err := o.platform.HideFromSwitchers(handle); err != nil {
		o.log.Debugf("Failed to hide grid overlay from task switcher: %v", err)
	}
}

// gridLines returns the offsets of the lines drawn across length, one every
// cell units starting at 0. A non-positive cell yields no lines.
func gridLines(length, cell float32) []float32 {
	if cell <= 0 || length <= 0 {
		return nil
	}
	var out []float32
	for v := float32(0); v <= length; v += cell {
		out = append(out, v)
	}
	return out
}

func gridContent(size fyne.Size, cell float32) fyne.CanvasObject {
	bg := canvas.NewRectangle(overlayBackground)
	bg.Resize(size)
	objects := []fyne.CanvasObject{bg}

	for _, x := range gridLines(size.Width, cell) {
		l := canvas.NewLine(overlayLine)
		l.StrokeWidth = 1
		l.Position1 = fyne.NewPos(x, 0)
		l.Position2 = fyne.NewPos(x, size.Height)
		objects = append(objects, l)
	}
	for _, y := range gridLines(size.Height, cell) {
		l := canvas.NewLine(overlayLine)
		l.StrokeWidth = 1
		l.Position1 = fyne.NewPos(0, y)
		l.Position2 = fyne.NewPos(size.Width, y)
		objects = append(objects, l)
	}
	return container.NewWithoutLayout(objects...)
}
