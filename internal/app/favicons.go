package app

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"deskwidgets/internal/favicon"
	"deskwidgets/internal/orchestrator"
	"deskwidgets/internal/widget"
)

type iconFetcher interface {
	Fetch(ctx context.Context, pageURL, dir string) (string, error)
}

type widgetDirs interface {
	WidgetDir(w *widget.Widget) (string, error)
}

// faviconSync keeps favicon.ico next to every url widget.
type faviconSync struct {
	fetcher iconFetcher
	dirs    widgetDirs
	log     *zap.SugaredLogger

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

func newFaviconSync(fetcher iconFetcher, dirs widgetDirs, log *zap.SugaredLogger) *faviconSync {
	return &faviconSync{
		fetcher:  fetcher,
		dirs:     dirs,
		log:      log,
		inflight: make(map[string]bool),
	}
}

// iconPath returns where rec's favicon is stored, or "".
func (s *faviconSync) iconPath(rec *widget.Widget) string {
	dir, err := s.dirs.WidgetDir(rec)
	if err != nil {
		return ""
	}
	return favicon.Path(dir)
}

// fetchAll fetches icons for recs in the background.
func (s *faviconSync) fetchAll(ctx context.Context, recs []*widget.Widget) {
	for _, rec := range recs {
		s.fetch(ctx, rec)
	}
}

// onChange fetches the icon of a saved widget.
func (s *faviconSync) onChange(ctx context.Context, ev orchestrator.ChangeEvent) {
	if ev.Kind == orchestrator.ChangeSaved && ev.Widget != nil {
		s.fetch(ctx, ev.Widget)
	}
}

func (s *faviconSync) fetch(ctx context.Context, rec *widget.Widget) {
	if strings.TrimSpace(rec.URL) == "" {
		return
	}
	dir, err := s.dirs.WidgetDir(rec)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.inflight[dir] {
		s.mu.Unlock()
		return
	}
	s.inflight[dir] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, dir)
			s.mu.Unlock()
		}()

		if _, err := s.fetcher.Fetch(ctx, rec.URL, dir); err != nil {
			if errors.Is(err, favicon.ErrNoFavicon) || ctx.Err() != nil {
				s.log.Debugf("No favicon for %s: %v", rec.URL, err)
				return
			}
			s.log.Warnf("Failed to fetch favicon for %s: %v", rec.URL, err)
		}
	}()
}

// wait blocks until running fetches finish.
func (s *faviconSync) wait() {
	s.wg.Wait()
}
