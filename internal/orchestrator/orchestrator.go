// Package orchestrator is the single source of truth for which widgets exist
// and which of them are currently shown as windows.
package orchestrator

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deskwidgets/internal/platform"
	"deskwidgets/internal/widget"
	"deskwidgets/internal/window"
)

// ErrUnknownWidget is returned for ids the orchestrator does not track.
var ErrUnknownWidget = errors.New("orchestrator: unknown widget")

// Store persists widget records.
type Store interface {
	LoadAll() ([]*widget.Widget, error)
	Save(w *widget.Widget) error
	Delete(w *widget.Widget) error
	NewFileName(name string) string
}

// WindowFactory creates and opens the window for rec.
type WindowFactory func(host window.Host, rec *widget.Widget) (window.Handle, error)

// ChangeKind says what happened to a widget.
type ChangeKind int

const (
	ChangeSaved ChangeKind = iota
	ChangeDeleted
	ChangeReloaded
	ChangeWindowFailed
)

// ChangeEvent is published after a record changes. Widget is a copy and is
// nil for ChangeReloaded. Err carries a persistence or window failure.
type ChangeEvent struct {
	Kind   ChangeKind
	ID     uuid.UUID
	Widget *widget.Widget
	Err    error
}

// Defaults for widgets created from the shell.
const (
	DefaultX      = 100
	DefaultY      = 100
	DefaultWidth  = 400
	DefaultHeight = 300
)

// Orchestrator owns the widget records and their windows. There is at most
// one live window per widget id, and a window exists only for enabled records.
type Orchestrator struct {
	store     Store
	newWindow WindowFactory
	log       *zap.SugaredLogger

	// ops serializes window creation and destruction.
	ops sync.Mutex

	mu        sync.Mutex
	records   map[uuid.UUID]*widget.Widget
	order     []uuid.UUID
	windows   map[uuid.UUID]window.Handle
	failed    map[uuid.UUID]error
	persisted map[uuid.UUID]bool
	draggable bool
	subs      map[int]func(ChangeEvent)
	nextSub   int
}

// New creates an empty orchestrator. Call Initialize to load widgets.
func New(store Store, factory WindowFactory, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		store:     store,
		newWindow: factory,
		log:       log,
		records:   make(map[uuid.UUID]*widget.Widget),
		windows:   make(map[uuid.UUID]window.Handle),
		failed:    make(map[uuid.UUID]error),
		persisted: make(map[uuid.UUID]bool),
		subs:      make(map[int]func(ChangeEvent)),
	}
}

// Initialize loads every widget from the store and opens a window for each
// enabled one. Unreadable files and windows that fail to open are skipped;
// their errors are joined into the returned error.
func (o *Orchestrator) Initialize() error {
	o.ops.Lock()
	err := o.initializeLocked()
	o.ops.Unlock()
	o.publish(ChangeEvent{Kind: ChangeReloaded})
	return err
}

func (o *Orchestrator) initializeLocked() error {
	recs, loadErr := o.store.LoadAll()
	if loadErr != nil {
		o.log.Warnf("Some widgets could not be loaded: %v", loadErr)
	}

	o.mu.Lock()
	o.records = make(map[uuid.UUID]*widget.Widget, len(recs))
	o.order = o.order[:0]
	o.persisted = make(map[uuid.UUID]bool, len(recs))
	o.failed = make(map[uuid.UUID]error)
	for _, rec := range recs {
		o.records[rec.ID] = rec.Clone()
		o.order = append(o.order, rec.ID)
		o.persisted[rec.ID] = true
	}
	o.mu.Unlock()

	errs := []error{loadErr}
	for _, rec := range recs {
		if !rec.Enabled {
			continue
		}
		if err := o.createOrUpdateLocked(rec); err != nil {
			errs = append(errs, err)
		}
	}
	o.log.Infof("Loaded %d widgets", len(recs))
	return errors.Join(errs...)
}

// GetWidgets returns copies of all records in load order.
func (o *Orchestrator) GetWidgets() []*widget.Widget {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*widget.Widget, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.records[id].Clone())
	}
	return out
}

// Widget returns a copy of one record.
func (o *Orchestrator) Widget(id uuid.UUID) (*widget.Widget, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// HasWindow reports whether a live window exists for id.
func (o *Orchestrator) HasWindow(id uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.windows[id]
	return ok
}

// Failed lists the widgets whose last window creation failed.
func (o *Orchestrator) Failed() []uuid.UUID {
	o.mu.Lock()
	defer o.mu.Unlock()
	var ids []uuid.UUID
	for _, id := range o.order {
		if _, ok := o.failed[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// SaveWidget inserts or replaces rec and writes it to the store. The
// in-memory record is updated even when the write fails; the write error is
// returned. With rerender set, the widget's window is recreated. Without it,
// the window is only opened or closed when the enabled flag changed.
func (o *Orchestrator) SaveWidget(rec *widget.Widget, rerender bool) error {
	if rec == nil {
		return errors.New("orchestrator: nil widget")
	}
	if !rec.HasID() {
		return widget.ErrNoID
	}
	rec = rec.Clone()

	o.mu.Lock()
	existing, known := o.records[rec.ID]
	if rec.FileName == "" {
		if known && existing.FileName != "" {
			rec.FileName = existing.FileName
		} else {
			rec.FileName = o.store.NewFileName(rec.Name)
		}
	}
	if !known {
		o.order = append(o.order, rec.ID)
	}
	o.records[rec.ID] = rec
	o.mu.Unlock()

	return o.commit(rec, rerender)
}

// update applies fn to a copy of the current record for id and saves it
// without rerendering. fn runs under o.mu so fields changed elsewhere, such
// as the file name after a Sync, are kept.
func (o *Orchestrator) update(id uuid.UUID, fn func(rec *widget.Widget)) error {
	o.mu.Lock()
	cur, ok := o.records[id]
	if !ok {
		o.mu.Unlock()
		return ErrUnknownWidget
	}
	rec := cur.Clone()
	fn(rec)
	o.records[id] = rec
	o.mu.Unlock()

	return o.commit(rec, false)
}

// commit writes rec, which is already in memory, to the store and brings its
// window in line with it.
func (o *Orchestrator) commit(rec *widget.Widget, rerender bool) error {
	err := o.store.Save(rec)
	if err != nil {
		err = fmt.Errorf("save widget %q: %w", rec.Name, err)
		o.log.Errorw("Failed to persist widget", "widget", rec.ID.String(), "error", err)
	} else {
		o.mu.Lock()
		o.persisted[rec.ID] = true
		o.mu.Unlock()
	}

	// Window failures are recorded in Failed and published separately.
	if rerender || o.needsWindowChange(rec) {
		_ = o.CreateOrUpdateWindow(rec)
	}
	o.publish(ChangeEvent{Kind: ChangeSaved, ID: rec.ID, Widget: rec.Clone(), Err: err})
	return err
}

// CreateOrUpdateWindow destroys the window for rec if one exists, then opens
// a fresh one when rec is enabled. The new window is shown and gets the
// current draggable state.
func (o *Orchestrator) CreateOrUpdateWindow(rec *widget.Widget) error {
	o.ops.Lock()
	defer o.ops.Unlock()
	return o.createOrUpdateLocked(rec)
}

func (o *Orchestrator) createOrUpdateLocked(rec *widget.Widget) error {
	o.mu.Lock()
	old := o.windows[rec.ID]
	delete(o.windows, rec.ID)
	draggable := o.draggable
	if !rec.Enabled {
		delete(o.failed, rec.ID)
	}
	o.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if !rec.Enabled {
		return nil
	}

	h, err := o.newWindow(o, rec.Clone())
	if err != nil {
		err = fmt.Errorf("open window for %q: %w", rec.Name, err)
		o.mu.Lock()
		o.failed[rec.ID] = err
		o.mu.Unlock()
		o.log.Errorw("Widget window failed", "widget", rec.ID.String(), "error", err)
		o.publish(ChangeEvent{Kind: ChangeWindowFailed, ID: rec.ID, Widget: rec.Clone(), Err: err})
		return err
	}

	o.mu.Lock()
	o.windows[rec.ID] = h
	delete(o.failed, rec.ID)
	o.mu.Unlock()

	h.Activate()
	h.SetDraggable(draggable)
	return nil
}

// needsWindowChange reports whether rec's enabled flag disagrees with its
// window. Failed windows are only retried by a rerender or a reload.
func (o *Orchestrator) needsWindowChange(rec *widget.Widget) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, live := o.windows[rec.ID]
	_, failed := o.failed[rec.ID]
	if rec.Enabled {
		return !live && !failed
	}
	return live
}

// UpdateGeometry stores new window bounds for the widget with id. Only the
// geometry of the current record changes.
func (o *Orchestrator) UpdateGeometry(id uuid.UUID, r platform.Rect) error {
	return o.update(id, func(rec *widget.Widget) {
		rec.X, rec.Y = r.X, r.Y
		rec.Width, rec.Height = r.Width, r.Height
	})
}

// WindowClosed forgets h after the user closed it and disables its widget.
// Handles that are no longer the widget's live window are ignored.
func (o *Orchestrator) WindowClosed(h window.Handle) error {
	id := h.ID()
	o.mu.Lock()
	if cur, ok := o.windows[id]; !ok || cur != h {
		o.mu.Unlock()
		return nil
	}
	delete(o.windows, id)
	o.mu.Unlock()

	return o.update(id, func(rec *widget.Widget) { rec.Enabled = false })
}

// SetDraggable switches layout-edit mode on or off for every live window.
func (o *Orchestrator) SetDraggable(draggable bool) {
	o.ops.Lock()
	defer o.ops.Unlock()

	o.mu.Lock()
	o.draggable = draggable
	handles := o.liveWindows()
	o.mu.Unlock()

	for _, h := range handles {
		h.SetDraggable(draggable)
	}
	o.log.Debugf("Draggable mode %v", draggable)
}

// Draggable reports the global layout-edit flag.
func (o *Orchestrator) Draggable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.draggable
}

// liveWindows returns the open windows in record order. o.mu must be held.
func (o *Orchestrator) liveWindows() []window.Handle {
	handles := make([]window.Handle, 0, len(o.windows))
	for _, id := range o.order {
		if h, ok := o.windows[id]; ok {
			handles = append(handles, h)
		}
	}
	return handles
}

// DeleteWidget removes rec from the store and from memory and destroys its
// window.
func (o *Orchestrator) DeleteWidget(rec *widget.Widget) error {
	o.ops.Lock()
	defer o.ops.Unlock()

	o.mu.Lock()
	stored, known := o.records[rec.ID]
	target := rec.Clone()
	if known && target.FileName == "" {
		target.FileName = stored.FileName
	}
	h := o.windows[rec.ID]
	o.forgetLocked(rec.ID)
	o.mu.Unlock()

	if h != nil {
		h.Close()
	}
	if !known && target.FileName == "" {
		return ErrUnknownWidget
	}

	err := o.store.Delete(target)
	if err != nil {
		err = fmt.Errorf("delete widget %q: %w", target.Name, err)
		o.log.Errorw("Failed to delete widget file", "widget", rec.ID.String(), "error", err)
	}
	o.publish(ChangeEvent{Kind: ChangeDeleted, ID: rec.ID, Widget: target, Err: err})
	return err
}

// forgetLocked drops every trace of id. o.mu must be held.
func (o *Orchestrator) forgetLocked(id uuid.UUID) {
	delete(o.records, id)
	delete(o.windows, id)
	delete(o.failed, id)
	delete(o.persisted, id)
	o.order = slices.DeleteFunc(o.order, func(x uuid.UUID) bool { return x == id })
}

// CloseAllWidgets destroys every live window. Records are kept.
func (o *Orchestrator) CloseAllWidgets() {
	o.ops.Lock()
	defer o.ops.Unlock()
	o.closeAllLocked()
}

func (o *Orchestrator) closeAllLocked() {
	o.mu.Lock()
	handles := o.liveWindows()
	o.windows = make(map[uuid.UUID]window.Handle)
	o.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
	if len(handles) > 0 {
		o.log.Infof("Closed %d widget windows", len(handles))
	}
}

// Reload closes every window, reloads all records from the store and opens
// windows again. Widgets whose window failed before are retried.
func (o *Orchestrator) Reload() error {
	o.ops.Lock()
	o.closeAllLocked()
	err := o.initializeLocked()
	o.ops.Unlock()
	o.publish(ChangeEvent{Kind: ChangeReloaded})
	return err
}

// Sync reconciles memory with the store after files were edited outside the
// app. New files are added and opened; records whose files vanished are
// dropped and their windows closed. Records already in memory win over their
// files. Nothing is dropped when some file failed to load.
func (o *Orchestrator) Sync() error {
	o.ops.Lock()
	defer o.ops.Unlock()

	recs, loadErr := o.store.LoadAll()
	if loadErr != nil {
		o.log.Warnf("Sync: some widgets could not be loaded: %v", loadErr)
	}

	onDisk := make(map[uuid.UUID]bool, len(recs))
	var added []*widget.Widget
	var closing []window.Handle

	o.mu.Lock()
	for _, rec := range recs {
		onDisk[rec.ID] = true
		if cur, ok := o.records[rec.ID]; ok {
			cur.FileName = rec.FileName
			o.persisted[rec.ID] = true
			continue
		}
		o.records[rec.ID] = rec.Clone()
		o.order = append(o.order, rec.ID)
		o.persisted[rec.ID] = true
		added = append(added, rec)
	}
	var removed []uuid.UUID
	if loadErr == nil {
		for _, id := range slices.Clone(o.order) {
			if onDisk[id] || !o.persisted[id] {
				continue
			}
			if h, ok := o.windows[id]; ok {
				closing = append(closing, h)
			}
			o.forgetLocked(id)
			removed = append(removed, id)
		}
	}
	o.mu.Unlock()

	for _, h := range closing {
		h.Close()
	}
	errs := []error{loadErr}
	for _, rec := range added {
		if rec.Enabled {
			if err := o.createOrUpdateLocked(rec); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(added) > 0 || len(removed) > 0 {
		o.log.Infof("Synced widgets folder: %d added, %d removed", len(added), len(removed))
		o.publish(ChangeEvent{Kind: ChangeReloaded})
	}
	return errors.Join(errs...)
}

// ToggleEnabled flips the enabled flag of a widget and opens or closes its
// window accordingly.
func (o *Orchestrator) ToggleEnabled(id uuid.UUID) error {
	rec, ok := o.Widget(id)
	if !ok {
		return ErrUnknownWidget
	}
	rec.Enabled = !rec.Enabled
	return o.SaveWidget(rec, true)
}

// NewWidget creates, saves and opens an enabled widget showing url.
func (o *Orchestrator) NewWidget(name, url string) (*widget.Widget, error) {
	rec := &widget.Widget{
		ID:      uuid.New(),
		Name:    name,
		URL:     url,
		X:       DefaultX,
		Y:       DefaultY,
		Width:   DefaultWidth,
		Height:  DefaultHeight,
		Enabled: true,
	}
	err := o.SaveWidget(rec, true)
	saved, _ := o.Widget(rec.ID)
	return saved, err
}

// Subscribe registers fn for change events. Events are delivered
// synchronously on the goroutine that made the change. fn may read state but
// must hand window-changing calls off to another goroutine.
func (o *Orchestrator) Subscribe(fn func(ChangeEvent)) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

func (o *Orchestrator) publish(ev ChangeEvent) {
	o.mu.Lock()
	keys := make([]int, 0, len(o.subs))
	for k := range o.subs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fns := make([]func(ChangeEvent), 0, len(keys))
	for _, k := range keys {
		fns = append(fns, o.subs[k])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
