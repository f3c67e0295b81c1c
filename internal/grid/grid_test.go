package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deskwidgets/internal/config"
	"deskwidgets/internal/platform"
)

type fakeSettings struct {
	settings config.Settings
}

func (f *fakeSettings) Get() config.Settings { return f.settings }

type fakeLocator struct {
	displays  []platform.Display
	cursor    platform.Point
	cursorErr error
}

func (f *fakeLocator) Displays() ([]platform.Display, error) { return f.displays, nil }
func (f *fakeLocator) CursorPos() (platform.Point, error) { return f.cursor, f.cursorErr }

type fakeOverlay struct {
	shows  []platform.Rect
	cell   int
	hides  int
	closed bool
}

func (o *fakeOverlay) ShowOn(area platform.Rect, cell int) {
	o.shows = append(o.shows, area)
	o.cell = cell
}
func (o *fakeOverlay) Hide() { o.hides++ }
func (o *fakeOverlay) Close() { o.closed = true }

var (
	primary = platform.Display{
		ID:       1,
		Primary:  true,
		Bounds:   platform.Rect{X: 0, Y: 0, Width: 1920, Height: 1080},
		WorkArea: platform.Rect{X: 0, Y: 0, Width: 1920, Height: 1040},
	}
	left = platform.Display{
		ID:       2,
		Bounds:   platform.Rect{X: -1280, Y: 30, Width: 1280, Height: 1024},
		WorkArea: platform.Rect{X: -1280, Y: 30, Width: 1280, Height: 1024},
	}
)

func newCalc(mode config.DragMode, size int) (*Calculator, *fakeSettings, *fakeLocator, *fakeOverlay) {
	s := &fakeSettings{settings: config.Settings{DragMode: mode, GridSize: size}}
	l := &fakeLocator{displays: []platform.Display{primary, left}, cursor: platform.Point{X: 500, Y: 500}}
	o := &fakeOverlay{}
	factory := func() (Overlay, error) { return o, nil }
	return New(s, l, factory, zap.NewNop().Sugar()), s, l, o
}

func TestSnapToGridPrimaryOrigin(t *testing.T) {
	c, _, _, _ := newCalc(config.DragModeGridBased, 100)

	x, y := c.SnapToGrid(153, 47)
	assert.Equal(t, 200, x)
	assert.Equal(t, 0, y)
}

func TestSnapSizeToGrid(t *testing.T) {
	c, _, _, _ := newCalc(config.DragModeGridBased, 100)

	w, h := c.SnapSizeToGrid(40, 260)
	assert.Equal(t, 100, w)
	assert.Equal(t, 300, h)
}

func TestFreeModeIsIdentity(t *testing.T) {
	c, _, _, o := newCalc(config.DragModeFree, 100)

	for _, p := range [][2]int{{153, 47}, {-7, 3}, {0, 0}, {99999, -99999}} {
		x, y := c.SnapToGrid(p[0], p[1])
		assert.Equal(t, p[0], x)
		assert.Equal(t, p[1], y)
	}
	w, h := c.SnapSizeToGrid(13, 17)
	assert.Equal(t, 13, w)
	assert.Equal(t, 17, h)

	r := platform.Rect{X: 11, Y: 22, Width: 33, Height: 44}
	assert.Equal(t, r, c.SnapWindowBounds(r))

	c.OnMoveResizeStarted()
	assert.Empty(t, o.shows)
}

func TestSnapRelativeToMonitorUnderCursor(t *testing.T) {
	c, _, l, _ := newCalc(config.DragModeGridBased, 100)
	l.cursor = platform.Point{X: -600, Y: 400}

	// Relative to (-1280, 30): (-1135+1280, 160-30) = (145, 130) -> (100, 100)
	x, y := c.SnapToGrid(-1135, 160)
	assert.Equal(t, -1180, x)
	assert.Equal(t, 130, y)
}

func TestSnapFallsBackToPrimaryOutsideWorkAreas(t *testing.T) {
	c, _, l, _ := newCalc(config.DragModeGridBased, 100)
	l.cursor = platform.Point{X: 300, Y: 1060} // taskbar strip

	x, y := c.SnapToGrid(149, 151)
	assert.Equal(t, 100, x)
	assert.Equal(t, 200, y)
}

func TestSnapWithoutCursorUsesPrimary(t *testing.T) {
	c, _, l, _ := newCalc(config.DragModeGridBased, 50)
	l.cursorErr = errors.New("no cursor")

	x, y := c.SnapToGrid(74, 76)
	assert.Equal(t, 50, x)
	assert.Equal(t, 100, y)
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	c, _, _, _ := newCalc(config.DragModeGridBased, 100)

	x, y := c.SnapToGrid(150, -150)
	assert.Equal(t, 200, x)
	assert.Equal(t, -200, y)
}

func TestSnapIdempotent(t *testing.T) {
	for _, size := range []int{1, 7, 50, 100, 333} {
		for _, cursor := range []platform.Point{{X: 10, Y: 10}, {X: -10, Y: 500}} {
			c, _, l, _ := newCalc(config.DragModeGridBased, size)
			l.cursor = cursor
			for _, p := range [][2]int{{153, 47}, {-1135, 160}, {0, 0}, {1919, 1039}, {-3, -4}} {
				x1, y1 := c.SnapToGrid(p[0], p[1])
				x2, y2 := c.SnapToGrid(x1, y1)
				assert.Equal(t, x1, x2, "size %d point %v", size, p)
				assert.Equal(t, y1, y2, "size %d point %v", size, p)
			}
		}
	}
}

func TestSnapSizeBounded(t *testing.T) {
	for _, size := range []int{1, 7, 100, 500} {
		c, _, _, _ := newCalc(config.DragModeGridBased, size)
		for _, v := range []int{0, 1, 49, 50, 51, 149, 260, 1234} {
			w, h := c.SnapSizeToGrid(v, v)
			assert.GreaterOrEqual(t, w, size)
			assert.GreaterOrEqual(t, h, size)
			assert.Zero(t, w%size)

			nearest := roundTo(v, size)
			if nearest >= size {
				assert.Equal(t, nearest, w, "size %d value %d", size, v)
			}
			assert.LessOrEqual(t, w-v, size)
		}
	}
}

func TestGridSizeClampedAtUse(t *testing.T) {
	c, _, _, _ := newCalc(config.DragModeGridBased, 0)
	assert.Equal(t, 1, c.CellSize())

	w, h := c.SnapSizeToGrid(0, 3)
	assert.Equal(t, 1, w)
	assert.Equal(t, 3, h)
}

func TestSnapWindowBoundsAddsBorderOffset(t *testing.T) {
	c, _, _, _ := newCalc(config.DragModeGridBased, 100)

	got := c.SnapWindowBounds(platform.Rect{X: 153, Y: 47, Width: 40, Height: 260})
	assert.Equal(t, platform.Rect{
		X:      200,
		Y:      0,
		Width:  100 + WindowBorderOffset,
		Height: 300 + WindowBorderOffset,
	}, got)
}

func TestOverlayLifecycle(t *testing.T) {
	c, _, l, o := newCalc(config.DragModeGridBased, 80)

	c.OnMoveResizeStarted()
	require.Len(t, o.shows, 1)
	assert.Equal(t, primary.WorkArea, o.shows[0])
	assert.Equal(t, 80, o.cell)

	// Same monitor: no reposition.
	l.cursor = platform.Point{X: 900, Y: 900}
	c.UpdateOverlayPosition()
	assert.Len(t, o.shows, 1)

	// Crossing to the left monitor moves the overlay.
	l.cursor = platform.Point{X: -100, Y: 100}
	c.UpdateOverlayPosition()
	require.Len(t, o.shows, 2)
	assert.Equal(t, left.WorkArea, o.shows[1])

	c.OnMoveResizeFinished()
	assert.Equal(t, 1, o.hides)

	// The next drag shows again even on the same monitor.
	c.OnMoveResizeStarted()
	assert.Len(t, o.shows, 3)

	c.DestroyOverlay()
	assert.True(t, o.closed)

	// Updates after destruction are ignored.
	c.UpdateOverlayPosition()
	assert.Len(t, o.shows, 3)
}

func TestOverlayFactoryFailure(t *testing.T) {
	s := &fakeSettings{settings: config.Settings{DragMode: config.DragModeGridBased, GridSize: 100}}
	l := &fakeLocator{displays: []platform.Display{primary}}
	calls := 0
	c := New(s, l, func() (Overlay, error) {
		calls++
		return nil, errors.New("no gpu")
	}, zap.NewNop().Sugar())

	c.OnMoveResizeStarted()
	c.UpdateOverlayPosition()
	c.OnMoveResizeFinished()
	c.DestroyOverlay()
	assert.Equal(t, 1, calls)
}

func TestNilLoggerFallsBackToNop(t *testing.T) {
	s := &fakeSettings{settings: config.Settings{DragMode: config.DragModeGridBased, GridSize: 50}}
	l := &fakeLocator{displays: []platform.Display{primary}, cursorErr: errors.New("no cursor")}
	c := New(s, l, func() (Overlay, error) {
		return nil, errors.New("no gpu")
	}, nil)

	assert.NotPanics(t, func() {
		x, y := c.SnapToGrid(74, 76)
		assert.Equal(t, 50, x)
		assert.Equal(t, 100, y)

		c.OnMoveResizeStarted()
		c.OnMoveResizeFinished()
	})
}
