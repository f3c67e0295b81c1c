package assets

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNGDecodes(t *testing.T) {
	img, err := png.Decode(bytes.NewReader(PNG()))
	require.NoError(t, err)
	assert.Equal(t, IconSize, img.Bounds().Dx())
	assert.Equal(t, IconSize, img.Bounds().Dy())
	assert.Equal(t, "tray.png", TrayIcon().Name())
	assert.Equal(t, PNG(), AppIcon().Content())
}

func TestDrawCornersAreTransparent(t *testing.T) {
	img := Draw(IconSize)
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Zero(t, a)
	_, _, _, a = img.At(IconSize-1, IconSize-1).RGBA()
	assert.Zero(t, a)

	// Centre of the first tile.
	assert.Equal(t, color.RGBA{88, 140, 236, 255}, img.RGBAAt(20, 20))
}

func TestInRoundedRect(t *testing.T) {
	assert.True(t, inRoundedRect(5, 5, 0, 0, 10, 10, 2))
	assert.False(t, inRoundedRect(0.1, 0.1, 0, 0, 10, 10, 3))
	assert.True(t, inRoundedRect(3, 0.5, 0, 0, 10, 10, 3))
	assert.False(t, inRoundedRect(11, 5, 0, 0, 10, 10, 2))
}
