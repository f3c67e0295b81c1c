package orchestrator

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deskwidgets/internal/platform"
	"deskwidgets/internal/widget"
	"deskwidgets/internal/window"
)

type memStore struct {
	mu      sync.Mutex
	files   map[string]*widget.Widget
	loadErr error
	saveErr error
	saves   int
}

func newMemStore(recs ...*widget.Widget) *memStore {
	s := &memStore{files: make(map[string]*widget.Widget)}
	for _, r := range recs {
		s.files[r.FileName] = r.Clone()
	}
	return s
}

func (s *memStore) LoadAll() ([]*widget.Widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]*widget.Widget, 0, len(names))
	for _, name := range names {
		out = append(out, s.files[name].Clone())
	}
	return out, s.loadErr
}

func (s *memStore) Save(w *widget.Widget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.files[w.FileName] = w.Clone()
	return nil
}

func (s *memStore) Delete(w *widget.Widget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[w.FileName]; !ok {
		return widget.ErrNotFound
	}
	delete(s.files, w.FileName)
	return nil
}

func (s *memStore) NewFileName(name string) string {
	return strings.ToLower(name) + widget.Extension
}

func (s *memStore) file(name string) *widget.Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[name]
}

type fakeWindow struct {
	id        uuid.UUID
	rec       *widget.Widget
	host      window.Host
	activated int
	draggable []bool
	closed    int
}

func (w *fakeWindow) ID() uuid.UUID       { return w.id }
func (w *fakeWindow) Activate()           { w.activated++ }
func (w *fakeWindow) SetDraggable(d bool) { w.draggable = append(w.draggable, d) }
func (w *fakeWindow) Close()              { w.closed++ }

type windowFactory struct {
	mu      sync.Mutex
	created []*fakeWindow
	fail    map[uuid.UUID]bool
}

func (f *windowFactory) New(host window.Host, rec *widget.Widget) (window.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[rec.ID] {
		return nil, errors.New("webview runtime missing")
	}
	w := &fakeWindow{id: rec.ID, rec: rec, host: host}
	f.created = append(f.created, w)
	return w, nil
}

func (f *windowFactory) last() *fakeWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[len(f.created)-1]
}

func (f *windowFactory) liveFor(id uuid.UUID) []*fakeWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeWindow
	for _, w := range f.created {
		if w.id == id && w.closed == 0 {
			out = append(out, w)
		}
	}
	return out
}

func rec(name string, enabled bool) *widget.Widget {
	return &widget.Widget{
		ID:       uuid.New(),
		Name:     name,
		URL:      "https://example.com/" + name,
		Width:    200,
		Height:   100,
		Enabled:  enabled,
		FileName: name + widget.Extension,
	}
}

func newTestOrchestrator(t *testing.T, recs ...*widget.Widget) (*Orchestrator, *memStore, *windowFactory) {
	t.Helper()
	store := newMemStore(recs...)
	factory := &windowFactory{fail: make(map[uuid.UUID]bool)}
	return New(store, factory.New, zap.NewNop().Sugar()), store, factory
}

func TestInitializeCreatesWindowsForEnabledWidgets(t *testing.T) {
	a, b, c := rec("a", true), rec("b", false), rec("c", true)
	o, _, factory := newTestOrchestrator(t, a, b, c)

	require.NoError(t, o.Initialize())

	widgets := o.GetWidgets()
	require.Len(t, widgets, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{widgets[0].Name, widgets[1].Name, widgets[2].Name})
	assert.True(t, o.HasWindow(a.ID))
	assert.False(t, o.HasWindow(b.ID))
	assert.True(t, o.HasWindow(c.ID))
	require.Len(t, factory.created, 2)
	for _, w := range factory.created {
		assert.Equal(t, 1, w.activated)
		assert.Equal(t, []bool{false}, w.draggable)
		assert.Equal(t, o, w.host)
	}
}

func TestInitializeSkipsWindowFailures(t *testing.T) {
	a, b := rec("a", true), rec("b", true)
	o, _, factory := newTestOrchestrator(t, a, b)
	factory.fail[a.ID] = true

	var events []ChangeEvent
	o.Subscribe(func(ev ChangeEvent) { events = append(events, ev) })

	err := o.Initialize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webview runtime missing")

	assert.False(t, o.HasWindow(a.ID))
	assert.True(t, o.HasWindow(b.ID))
	assert.Equal(t, []uuid.UUID{a.ID}, o.Failed())

	// The record stays enabled so a reload can retry it.
	got, ok := o.Widget(a.ID)
	require.True(t, ok)
	assert.True(t, got.Enabled)

	require.Len(t, events, 2)
	assert.Equal(t, ChangeWindowFailed, events[0].Kind)
	assert.Equal(t, a.ID, events[0].ID)
	assert.Equal(t, ChangeReloaded, events[1].Kind)

	delete(factory.fail, a.ID)
	require.NoError(t, o.Reload())
	assert.True(t, o.HasWindow(a.ID))
	assert.Empty(t, o.Failed())
}

func TestInitializeKeepsLoadedWidgetsOnLoadError(t *testing.T) {
	a := rec("a", true)
	o, store, _ := newTestOrchestrator(t, a)
	store.loadErr = errors.New("broken.widget.json: invalid character")

	err := o.Initialize()
	require.Error(t, err)
	assert.Len(t, o.GetWidgets(), 1)
	assert.True(t, o.HasWindow(a.ID))
}

func TestGetWidgetsReturnsCopies(t *testing.T) {
	a := rec("a", true)
	o, _, _ := newTestOrchestrator(t, a)
	require.NoError(t, o.Initialize())

	o.GetWidgets()[0].Name = "mutated"
	got, _ := o.Widget(a.ID)
	assert.Equal(t, "a", got.Name)
}

// Scenario C: disabling a live widget through a rerendering save.
func TestSaveWidgetDisableRemovesWindow(t *testing.T) {
	w1 := rec("w1", true)
	o, store, factory := newTestOrchestrator(t, w1)
	require.NoError(t, o.Initialize())
	live := factory.last()

	w1.Enabled = false
	require.NoError(t, o.SaveWidget(w1, true))

	assert.False(t, o.HasWindow(w1.ID))
	assert.Equal(t, 1, live.closed)
	got, _ := o.Widget(w1.ID)
	assert.False(t, got.Enabled)
	assert.False(t, store.file("w1.widget.json").Enabled)
}

func TestSaveWidgetRerenderReplacesWindow(t *testing.T) {
	w1 := rec("w1", true)
	o, _, factory := newTestOrchestrator(t, w1)
	require.NoError(t, o.Initialize())
	first := factory.last()

	w1.URL = "https://example.org"
	require.NoError(t, o.SaveWidget(w1, true))

	second := factory.last()
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, "https://example.org", second.rec.URL)
	assert.Len(t, factory.liveFor(w1.ID), 1)
}

func TestSaveWidgetWithoutRerenderKeepsWindow(t *testing.T) {
	w1 := rec("w1", true)
	o, store, factory := newTestOrchestrator(t, w1)
	require.NoError(t, o.Initialize())

	w1.X = 300
	require.NoError(t, o.SaveWidget(w1, false))

	assert.Len(t, factory.created, 1)
	assert.Zero(t, factory.last().closed)
	got, _ := o.Widget(w1.ID)
	assert.Equal(t, 300, got.X)
	assert.Equal(t, 300, store.file("w1.widget.json").X)
}

func TestSaveWidgetPersistenceFailureStillUpdatesMemory(t *testing.T) {
	w1 := rec("w1", true)
	o, store, _ := newTestOrchestrator(t, w1)
	require.NoError(t, o.Initialize())

	var events []ChangeEvent
	o.Subscribe(func(ev ChangeEvent) { events = append(events, ev) })

	store.saveErr = errors.New("access denied")
	w1.Name = "renamed"
	err := o.SaveWidget(w1, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	got, _ := o.Widget(w1.ID)
	assert.Equal(t, "renamed", got.Name)
	require.Len(t, events, 1)
	assert.Equal(t, ChangeSaved, events[0].Kind)
	assert.Error(t, events[0].Err)
}

func TestSaveWidgetAssignsFileName(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	w := &widget.Widget{ID: uuid.New(), Name: "Weather", Enabled: false}

	require.NoError(t, o.SaveWidget(w, false))
	assert.Empty(t, w.FileName, "caller's record is not modified")

	got, _ := o.Widget(w.ID)
	assert.Equal(t, "weather.widget.json", got.FileName)
	assert.NotNil(t, store.file("weather.widget.json"))

	// Later saves without a file name keep the assigned one.
	w.Name = "Forecast"
	require.NoError(t, o.SaveWidget(w, false))
	got, _ = o.Widget(w.ID)
	assert.Equal(t, "weather.widget.json", got.FileName)
}

func TestSaveWidgetRequiresID(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	assert.ErrorIs(t, o.SaveWidget(&widget.Widget{Name: "x"}, true), widget.ErrNoID)
	assert.Error(t, o.SaveWidget(nil, true))
	assert.Empty(t, o.GetWidgets())
}

func TestCreateOrUpdateWindowDisabledWithoutWindowIsNoop(t *testing.T) {
	o, _, factory := newTestOrchestrator(t)
	require.NoError(t, o.CreateOrUpdateWindow(rec("off", false)))
	assert.Empty(t, factory.created)
}

func TestSetDraggable(t *testing.T) {
	a, b, c := rec("a", true), rec("b", true), rec("c", false)
	o, _, factory := newTestOrchestrator(t, a, b, c)
	require.NoError(t, o.Initialize())

	o.SetDraggable(true)
	assert.True(t, o.Draggable())
	for _, w := range factory.created {
		assert.Equal(t, []bool{false, true}, w.draggable)
	}

	// New windows pick up the current flag.
	c.Enabled = true
	require.NoError(t, o.SaveWidget(c, true))
	assert.Equal(t, []bool{true}, factory.last().draggable)
}

// Scenario E: deleting a widget with a live window.
func TestDeleteWidgetRemovesRecordAndWindow(t *testing.T) {
	a, b := rec("a", true), rec("b", true)
	o, store, factory := newTestOrchestrator(t, a, b)
	require.NoError(t, o.Initialize())
	live := factory.liveFor(a.ID)[0]

	require.NoError(t, o.DeleteWidget(a))

	assert.Equal(t, 1, live.closed)
	assert.False(t, o.HasWindow(a.ID))
	_, ok := o.Widget(a.ID)
	assert.False(t, ok)
	for _, w := range o.GetWidgets() {
		assert.NotEqual(t, a.ID, w.ID)
	}
	assert.Nil(t, store.file("a.widget.json"))
	assert.True(t, o.HasWindow(b.ID))
}

func TestDeleteWidgetErrors(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	assert.ErrorIs(t, o.DeleteWidget(&widget.Widget{ID: uuid.New()}), ErrUnknownWidget)

	ghost := rec("ghost", false)
	err := o.DeleteWidget(ghost)
	assert.ErrorIs(t, err, widget.ErrNotFound)
}

func TestDeleteWidgetUsesStoredFileName(t *testing.T) {
	a := rec("a", false)
	o, store, _ := newTestOrchestrator(t, a)
	require.NoError(t, o.Initialize())

	require.NoError(t, o.DeleteWidget(&widget.Widget{ID: a.ID}))
	assert.Nil(t, store.file("a.widget.json"))
}

func TestCloseAllWidgetsKeepsRecords(t *testing.T) {
	a, b := rec("a", true), rec("b", true)
	o, _, factory := newTestOrchestrator(t, a, b)
	require.NoError(t, o.Initialize())

	o.CloseAllWidgets()

	for _, w := range factory.created {
		assert.Equal(t, 1, w.closed)
	}
	assert.False(t, o.HasWindow(a.ID))
	assert.False(t, o.HasWindow(b.ID))
	assert.Len(t, o.GetWidgets(), 2)
}

func TestUserClosedWindow(t *testing.T) {
	a := rec("a", true)
	o, store, factory := newTestOrchestrator(t, a)
	require.NoError(t, o.Initialize())
	live := factory.last()

	require.NoError(t, live.host.WindowClosed(live))

	assert.False(t, o.HasWindow(a.ID))
	got, _ := o.Widget(a.ID)
	assert.False(t, got.Enabled)
	assert.False(t, store.file("a.widget.json").Enabled)
	assert.Zero(t, live.closed)
}

func TestWindowClosedIgnoresStaleHandle(t *testing.T) {
	a := rec("a", true)
	o, _, factory := newTestOrchestrator(t, a)
	require.NoError(t, o.Initialize())
	stale := factory.last()
	require.NoError(t, o.SaveWidget(a, true))

	require.NoError(t, o.WindowClosed(stale))
	assert.True(t, o.HasWindow(a.ID))
	got, _ := o.Widget(a.ID)
	assert.True(t, got.Enabled)
}

func TestUpdateGeometryKeepsOtherFields(t *testing.T) {
	a := rec("a", true)
	o, store, factory := newTestOrchestrator(t, a)
	require.NoError(t, o.Initialize())
	live := factory.last()

	edited := a.Clone()
	edited.URL = "https://example.org/"
	require.NoError(t, o.SaveWidget(edited, false))

	require.NoError(t, live.host.UpdateGeometry(a.ID, platform.Rect{X: 10, Y: 20, Width: 300, Height: 150}))

	got, _ := o.Widget(a.ID)
	assert.Equal(t, "https://example.org/", got.URL)
	assert.Equal(t, []int{10, 20, 300, 150}, []int{got.X, got.Y, got.Width, got.Height})
	assert.Equal(t, "https://example.org/", store.file("a.widget.json").URL)
	assert.Same(t, live, factory.last(), "geometry changes do not rerender")
}

func TestUpdateGeometryUnknownWidget(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	assert.ErrorIs(t, o.UpdateGeometry(uuid.New(), platform.Rect{}), ErrUnknownWidget)
}

func TestDragAfterExternalRenameWritesRenamedFile(t *testing.T) {
	a := rec("a", true)
	o, store, factory := newTestOrchestrator(t, a)
	require.NoError(t, o.Initialize())
	live := factory.last()

	// The file is renamed outside the app.
	store.mu.Lock()
	moved := store.files["a.widget.json"]
	delete(store.files, "a.widget.json")
	moved.FileName = "b.widget.json"
	store.files["b.widget.json"] = moved
	store.mu.Unlock()
	require.NoError(t, o.Sync())

	require.NoError(t, live.host.UpdateGeometry(a.ID, platform.Rect{X: 5, Y: 6, Width: 70, Height: 80}))

	assert.Nil(t, store.file("a.widget.json"))
	require.NotNil(t, store.file("b.widget.json"))
	assert.Equal(t, 5, store.file("b.widget.json").X)
	got, _ := o.Widget(a.ID)
	assert.Equal(t, "b.widget.json", got.FileName)
}

func TestToggleEnabled(t *testing.T) {
	a := rec("a", false)
	o, _, _ := newTestOrchestrator(t, a)
	require.NoError(t, o.Initialize())

	require.NoError(t, o.ToggleEnabled(a.ID))
	assert.True(t, o.HasWindow(a.ID))
	require.NoError(t, o.ToggleEnabled(a.ID))
	assert.False(t, o.HasWindow(a.ID))

	assert.ErrorIs(t, o.ToggleEnabled(uuid.New()), ErrUnknownWidget)
}

func TestNewWidget(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)

	w, err := o.NewWidget("Notes", "https://notes.example.com")
	require.NoError(t, err)
	assert.True(t, w.HasID())
	assert.Equal(t, "notes.widget.json", w.FileName)
	assert.Equal(t, []int{DefaultX, DefaultY, DefaultWidth, DefaultHeight}, []int{w.X, w.Y, w.Width, w.Height})
	assert.True(t, o.HasWindow(w.ID))
	assert.NotNil(t, store.file("notes.widget.json"))
}

func TestSyncPicksUpExternalChanges(t *testing.T) {
	a, b := rec("a", true), rec("b", true)
	o, store, factory := newTestOrchestrator(t, a, b)
	require.NoError(t, o.Initialize())
	bWindow := factory.liveFor(b.ID)[0]

	// Never-persisted records are not dropped by a sync.
	store.saveErr = errors.New("read-only")
	unsaved := &widget.Widget{ID: uuid.New(), Name: "unsaved"}
	require.Error(t, o.SaveWidget(unsaved, false))
	store.saveErr = nil

	c := rec("c", true)
	store.mu.Lock()
	store.files[c.FileName] = c.Clone()
	delete(store.files, b.FileName)
	store.mu.Unlock()

	var reloaded int
	o.Subscribe(func(ev ChangeEvent) {
		if ev.Kind == ChangeReloaded {
			reloaded++
		}
	})

	require.NoError(t, o.Sync())

	assert.True(t, o.HasWindow(c.ID))
	assert.False(t, o.HasWindow(b.ID))
	assert.Equal(t, 1, bWindow.closed)
	_, ok := o.Widget(b.ID)
	assert.False(t, ok)
	_, ok = o.Widget(unsaved.ID)
	assert.True(t, ok)
	assert.Equal(t, 1, reloaded)

	// Nothing changed: no event.
	require.NoError(t, o.Sync())
	assert.Equal(t, 1, reloaded)
}

func TestSyncKeepsRecordsWhenLoadFails(t *testing.T) {
	a := rec("a", true)
	o, store, _ := newTestOrchestrator(t, a)
	require.NoError(t, o.Initialize())

	store.mu.Lock()
	delete(store.files, a.FileName)
	store.mu.Unlock()
	store.loadErr = errors.New("half-written file")

	require.Error(t, o.Sync())
	assert.True(t, o.HasWindow(a.ID))
}

func TestSubscribeCancel(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	var n int
	cancel := o.Subscribe(func(ChangeEvent) { n++ })

	_, err := o.NewWidget("x", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cancel()
	_, err = o.NewWidget("y", "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// A window exists for an id exactly when its record is enabled, and never
// more than one.
func TestAtMostOneWindowInvariant(t *testing.T) {
	recs := []*widget.Widget{rec("a", true), rec("b", false), rec("c", true)}
	o, _, factory := newTestOrchestrator(t, recs...)
	require.NoError(t, o.Initialize())

	rng := rand.New(rand.NewSource(7))
	for step := 0; step < 300; step++ {
		r := recs[rng.Intn(len(recs))].Clone()
		switch rng.Intn(4) {
		case 0:
			r.Enabled = !r.Enabled
			require.NoError(t, o.SaveWidget(r, true))
		case 1:
			r.Enabled = rng.Intn(2) == 0
			r.X = rng.Intn(1000)
			require.NoError(t, o.SaveWidget(r, rng.Intn(2) == 0))
		case 2:
			cur, _ := o.Widget(r.ID)
			require.NoError(t, o.CreateOrUpdateWindow(cur))
		case 3:
			o.SetDraggable(rng.Intn(2) == 0)
		}
		for _, orig := range recs {
			cur, ok := o.Widget(orig.ID)
			require.True(t, ok)
			live := factory.liveFor(orig.ID)
			if cur.Enabled {
				require.Len(t, live, 1, "step %d", step)
				require.True(t, o.HasWindow(orig.ID))
			} else {
				require.Empty(t, live, "step %d", step)
				require.False(t, o.HasWindow(orig.ID))
			}
		}
	}
}

func TestWithFileStore(t *testing.T) {
	root := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(root, name)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(body), 0o644))
	}
	write("clock.widget.json", `{"name": "Clock", "url": "https://time.is", "enabled": true, "width": 200, "height": 100}`)
	write("sub/notes.widget.json", `{"name": "Notes", "enabled": false}`)
	write("broken.widget.json", `{"name": `)

	store := widget.NewFileStore(root, zap.NewNop().Sugar())
	factory := &windowFactory{fail: make(map[uuid.UUID]bool)}
	o := New(store, factory.New, zap.NewNop().Sugar())

	err := o.Initialize()
	require.Error(t, err, "broken file is reported")
	widgets := o.GetWidgets()
	require.Len(t, widgets, 2)
	assert.Len(t, factory.created, 1)

	// Identity is stable across a reload.
	ids := map[string]uuid.UUID{}
	for _, w := range widgets {
		ids[w.FileName] = w.ID
	}
	_ = o.Reload()
	for _, w := range o.GetWidgets() {
		assert.Equal(t, ids[w.FileName], w.ID)
	}

	clock := widgets[0]
	require.NoError(t, o.DeleteWidget(clock))
	_, statErr := os.Stat(filepath.Join(root, "clock.widget.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRenamedFileSurvivesDragAndClose(t *testing.T) {
	root := t.TempDir()
	id := uuid.New()
	body := `{"id": "` + id.String() + `", "name": "Clock", "url": "https://time.is", "enabled": true, "width": 200, "height": 100}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.widget.json"), []byte(body), 0o644))

	store := widget.NewFileStore(root, zap.NewNop().Sugar())
	factory := &windowFactory{fail: make(map[uuid.UUID]bool)}
	o := New(store, factory.New, zap.NewNop().Sugar())
	require.NoError(t, o.Initialize())
	live := factory.last()

	require.NoError(t, os.Rename(filepath.Join(root, "a.widget.json"), filepath.Join(root, "b.widget.json")))
	require.NoError(t, o.Sync())

	require.NoError(t, live.host.UpdateGeometry(id, platform.Rect{X: 40, Y: 50, Width: 320, Height: 240}))
	require.NoError(t, live.host.WindowClosed(live))

	_, err := os.Stat(filepath.Join(root, "a.widget.json"))
	assert.True(t, os.IsNotExist(err), "stale file name must not be recreated")

	recs, err := store.LoadAll()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b.widget.json", recs[0].FileName)
	assert.Equal(t, id, recs[0].ID)
	assert.Equal(t, []int{40, 50, 320, 240}, []int{recs[0].X, recs[0].Y, recs[0].Width, recs[0].Height})
	assert.False(t, recs[0].Enabled)
}
