// Package watch reloads widgets when files in the widgets folder change
// outside the app.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"deskwidgets/internal/debounce"
	"deskwidgets/internal/widget"
)

// Syncer reconciles in-memory widgets with the folder.
type Syncer interface {
	Sync() error
}

// Watcher watches the widgets folder and its subfolders and calls Sync once
// changes settle.
type Watcher struct {
	root   string
	target Syncer
	delay  time.Duration
	log    *zap.SugaredLogger

	fw       *fsnotify.Watcher
	debounce *debounce.Debouncer
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// New creates a watcher for root. delay is how long the folder must be quiet
// before Sync runs.
func New(root string, target Syncer, delay time.Duration, log *zap.SugaredLogger) *Watcher {
	if delay <= 0 {
		delay = debounce.DefaultDelay
	}
	return &Watcher{root: root, target: target, delay: delay, log: log}
}

// Start begins watching. It returns once every existing folder is watched.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fw = fw
	if err := w.addTree(w.root); err != nil {
		fw.Close()
		w.fw = nil
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.debounce = debounce.New(ctx, w.delay, w.log)
	w.done = make(chan struct{})
	go w.loop(ctx)

	w.log.Infof("Watching widgets folder %s", w.root)
	return nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			w.log.Debugf("Not watching %s: %v", p, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fw.Add(p); err != nil {
			w.log.Warnf("Failed to watch %s: %v", p, err)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if w.handle(ev) {
				w.scheduleSync()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warnf("Widgets folder watcher error: %v", err)
		}
	}
}

// handle watches new folders and reports whether ev may change the set of
// widgets.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if isDir(ev.Name) {
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warnf("Failed to watch new folder %s: %v", ev.Name, err)
			}
			return true
		}
	}
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if isWidgetFile(ev.Name) {
		return true
	}
	// A removed or renamed folder may have held widgets.
	return (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) && filepath.Ext(ev.Name) == ""
}

func (w *Watcher) scheduleSync() {
	w.debounce.Execute(func(ctx context.Context) error {
		w.log.Debugf("Widgets folder changed, syncing")
		return w.target.Sync()
	})
}

// Close stops watching and drops any pending sync.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		if w.fw == nil {
			return
		}
		w.cancel()
		w.debounce.Cancel()
		err = w.fw.Close()
		<-w.done
	})
	return err
}

func isWidgetFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(filepath.Base(name)), widget.Extension)
}

func isDir(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.IsDir()
}
