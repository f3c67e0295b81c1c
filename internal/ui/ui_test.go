package ui

import (
	"os"
	"path/filepath"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deskwidgets/internal/config"
	"deskwidgets/internal/orchestrator"
	dw "deskwidgets/internal/widget"
)

type fakeService struct {
	widgets []*dw.Widget
	saved   []*dw.Widget
}

func (f *fakeService) GetWidgets() []*dw.Widget { return f.widgets }
func (f *fakeService) Failed() []uuid.UUID      { return nil }
func (f *fakeService) SetDraggable(bool)        {}

func (f *fakeService) Widget(id uuid.UUID) (*dw.Widget, bool) {
	for _, w := range f.widgets {
		if w.ID == id {
			return w.Clone(), true
		}
	}
	return nil, false
}

func (f *fakeService) SaveWidget(rec *dw.Widget, rerender bool) error {
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeService) DeleteWidget(*dw.Widget) error                { return nil }
func (f *fakeService) ToggleEnabled(uuid.UUID) error                { return nil }
func (f *fakeService) NewWidget(string, string) (*dw.Widget, error) { return nil, nil }

func (f *fakeService) Subscribe(func(orchestrator.ChangeEvent)) func() { return func() {} }

func TestTrayMenuActions(t *testing.T) {
	a := test.NewTempApp(t)

	var opened, quit int
	tray := NewTrayManager(a, TrayActions{
		OpenManager: func() { opened++ },
		Quit:        func() { quit++ },
	}, zap.NewNop().Sugar())

	var labels []string
	for _, item := range tray.Menu().Items {
		if !item.IsSeparator {
			labels = append(labels, item.Label)
		}
	}
	assert.Equal(t, []string{
		"Open Manager", "Edit Layout", "Grid Snapping", "Reload Widgets",
		"Open Widgets Folder", "Settings...", "Start with Windows", "Quit",
	}, labels)

	tray.Menu().Items[0].Action()
	tray.Menu().Items[len(tray.Menu().Items)-1].Action()
	// Entries without a callback are no-ops.
	tray.editItem.Action()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, quit)

	tray.SetState(true, false, true)
	assert.True(t, tray.editItem.Checked)
	assert.False(t, tray.gridItem.Checked)
	assert.True(t, tray.startupItem.Checked)
}

func TestGridLines(t *testing.T) {
	assert.Equal(t, []float32{0, 100, 200}, gridLines(250, 100))
	assert.Equal(t, []float32{0, 50, 100}, gridLines(100, 50))
	assert.Nil(t, gridLines(100, 0))
	assert.Nil(t, gridLines(0, 10))
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, validateURL(""))
	assert.NoError(t, validateURL(" https://example.com/x "))
	assert.NoError(t, validateURL("http://localhost:8080"))
	assert.Error(t, validateURL("ftp://example.com"))
	assert.Error(t, validateURL("example.com"))
	assert.Error(t, validateURL("https://"))
}

func TestParseGeometry(t *testing.T) {
	geo, err := parseGeometry("-10", " 20", "300", "200 ")
	require.NoError(t, err)
	assert.Equal(t, [4]int{-10, 20, 300, 200}, geo)

	_, err = parseGeometry("a", "0", "1", "1")
	assert.EqualError(t, err, "X must be a whole number")
	_, err = parseGeometry("0", "0", "0", "1")
	assert.EqualError(t, err, "Width must be positive")
}

func TestUserAgentLines(t *testing.T) {
	text := "example.com | Agent/1\n\nFallback/2\nbad.com |   \n"
	got := parseUserAgents(text)
	assert.Equal(t, []dw.UserAgentMapping{
		{Domain: "example.com", UserAgent: "Agent/1"},
		{UserAgent: "Fallback/2"},
	}, got)
	assert.Equal(t, "example.com | Agent/1\nFallback/2", formatUserAgents(got))
	assert.Equal(t, []string{"a", "b"}, splitLines(" a \n\n b\n"))
}

func TestPermissionChoices(t *testing.T) {
	for _, choice := range []string{permDefault, permAllow, permDeny} {
		assert.Equal(t, choice, permissionChoice(choicePermission(choice)))
	}
	assert.Nil(t, choicePermission("something else"))
}

func TestRowLabel(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, "Clock", rowLabel(&dw.Widget{ID: id, Name: "Clock"}, false))
	assert.Equal(t, "clock.widget.json (failed to open)", rowLabel(&dw.Widget{ID: id, FileName: "clock.widget.json"}, true))
	assert.Equal(t, id.String(), rowLabel(&dw.Widget{ID: id}, false))
}

func TestSettingsFromForm(t *testing.T) {
	base := config.Default()
	dir := t.TempDir()

	got, err := settingsFromForm(base, "Free", 42.6, " "+dir+" ")
	require.NoError(t, err)
	assert.Equal(t, config.DragModeFree, got.DragMode)
	assert.Equal(t, 43, got.GridSize)
	assert.Equal(t, dir, got.WidgetsFolderPath)

	got, err = settingsFromForm(base, "GridBased", 9999, filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Equal(t, config.MaxGridSize, got.GridSize)

	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = settingsFromForm(base, "Free", 10, file)
	assert.Error(t, err)
}

func TestEditorRecord(t *testing.T) {
	a := test.NewTempApp(t)
	allow := true
	rec := &dw.Widget{
		ID:          uuid.New(),
		Name:        "Clock",
		URL:         "https://example.com",
		X:           1,
		Y:           2,
		Width:       300,
		Height:      200,
		Enabled:     true,
		Permissions: map[dw.Permission]*bool{dw.PermissionMidi: &allow},
		FileName:    "clock.widget.json",
	}
	svc := &fakeService{widgets: []*dw.Widget{rec}}
	e := NewEditorWindow(a, svc, rec, zap.NewNop().Sugar())
	e.buildFields()
	e.load(e.base)

	assert.Equal(t, permAllow, e.perms[dw.PermissionMidi].Selected)
	assert.Equal(t, permDefault, e.perms[dw.PermissionGeolocation].Selected)

	e.width.SetText("640")
	e.forceTab.SetText("*.example.com/*\n")
	e.perms[dw.PermissionGeolocation].SetSelected(permDeny)
	e.perms[dw.PermissionMidi].SetSelected(permDefault)

	got, err := e.record()
	require.NoError(t, err)
	assert.Equal(t, 640, got.Width)
	assert.Equal(t, "clock.widget.json", got.FileName)
	assert.Equal(t, []string{"*.example.com/*"}, got.ForceInCurrentTab)
	assert.Nil(t, got.PermissionFor(dw.PermissionMidi))
	require.NotNil(t, got.PermissionFor(dw.PermissionGeolocation))
	assert.False(t, *got.PermissionFor(dw.PermissionGeolocation))
	// Without a window nothing is saved.
	assert.Empty(t, svc.saved)

	e.height.SetText("tall")
	_, err = e.record()
	assert.EqualError(t, err, "Height must be a whole number")
}
