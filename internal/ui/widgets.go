package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/dialog"
	"go.uber.org/zap"
)

// Dark palette shared by the shell windows
var (
	colorWhite     = color.RGBA{237, 237, 237, 255} // Header text
	colorGray      = color.RGBA{156, 163, 175, 255} // Status text
	colorError     = color.RGBA{239, 68, 68, 255}
	colorSeparator = color.RGBA{55, 57, 61, 255}
)

// SectionHeader creates a bold section header like "Geometry"
func SectionHeader(text string) *canvas.Text {
	t := canvas.NewText(text, colorWhite)
	t.TextSize = 15
	t.TextStyle = fyne.TextStyle{Bold: true}
	return t
}

// Separator creates a thin horizontal divider line
func Separator() *canvas.Rectangle {
	sep := canvas.NewRectangle(colorSeparator)
	sep.SetMinSize(fyne.NewSize(0, 1))
	return sep
}

// StatusText is a small gray line for "Saving..." style feedback. Add its
// Text to a container; the wrapper itself is not a renderable object.
type StatusText struct {
	*canvas.Text
}

// NewStatusText creates an empty status line
func NewStatusText() *StatusText {
	t := canvas.NewText("", colorGray)
	t.TextSize = 12
	return &StatusText{Text: t}
}

// Set shows msg, in red when isErr. Must run on the UI thread.
func (s *StatusText) Set(msg string, isErr bool) {
	s.Text.Text = msg
	if isErr {
		s.Color = colorError
	} else {
		s.Color = colorGray
	}
	s.Refresh()
}

// runAsync runs fn off the UI thread and reports a failure in parent.
func runAsync(parent fyne.Window, log *zap.SugaredLogger, what string, fn func() error) {
	go func() {
		err := fn()
		if err == nil {
			return
		}
		log.Warnf("%s failed: %v", what, err)
		fyne.Do(func() {
			if parent != nil {
				dialog.ShowError(err, parent)
			}
		})
	}()
}
