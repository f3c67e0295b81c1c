package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"

	"fyne.io/fyne/v2"
)

// IconSize is the edge length of the generated icons in pixels.
const IconSize = 64

var (
	iconOnce sync.Once
	iconPNG  []byte
)

// TrayIcon returns the system tray icon resource
func TrayIcon() fyne.Resource {
	return fyne.NewStaticResource("tray.png", PNG())
}

// AppIcon returns the application icon resource
func AppIcon() fyne.Resource {
	return fyne.NewStaticResource("app.png", PNG())
}

// PNG returns the encoded icon: four widget tiles on a dark rounded square.
func PNG() []byte {
	iconOnce.Do(func() {
		var buf bytes.Buffer
		if err := png.Encode(&buf, Draw(IconSize)); err != nil {
			panic(err) // encoding an in-memory RGBA cannot fail
		}
		iconPNG = buf.Bytes()
	})
	return iconPNG
}

// Draw renders the icon at size x size.
func Draw(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))

	bg := color.RGBA{32, 33, 35, 255}
	tiles := []color.RGBA{
		{88, 140, 236, 255}, // blue
		{74, 222, 128, 255}, // green
		{234, 179, 8, 255},  // yellow
		{156, 163, 175, 255},
	}

	s := float64(size) / 64
	fillRounded(img, 2*s, 2*s, float64(size)-4*s, float64(size)-4*s, 12*s, bg)

	// 2x2 tiles with a gap, like widgets snapped to a grid.
	tile, gap, margin := 20*s, 4*s, 10*s
	for i, c := range tiles {
		x := margin + float64(i%2)*(tile+gap)
		y := margin + float64(i/2)*(tile+gap)
		fillRounded(img, x, y, tile, tile, 4*s, c)
	}
	return img
}

func fillRounded(img *image.RGBA, rx, ry, rw, rh, radius float64, c color.Color) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if inRoundedRect(float64(x)+0.5, float64(y)+0.5, rx, ry, rw, rh, radius) {
				img.Set(x, y, c)
			}
		}
	}
}

func inRoundedRect(px, py, rx, ry, rw, rh, radius float64) bool {
	if px < rx || px >= rx+rw || py < ry || py >= ry+rh {
		return false
	}
	// Distance to the nearest corner centre, only inside the corner squares.
	cx := math.Max(rx+radius, math.Min(px, rx+rw-radius))
	cy := math.Max(ry+radius, math.Min(py, ry+rh-radius))
	return math.Hypot(px-cx, py-cy) <= radius
}
