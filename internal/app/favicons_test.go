package app

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"deskwidgets/internal/favicon"
	"deskwidgets/internal/orchestrator"
	"deskwidgets/internal/widget"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]string
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL, dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]string)
	}
	f.calls[dir] = pageURL
	return favicon.Path(dir), f.err
}

type fakeDirs struct{ root string }

func (d fakeDirs) WidgetDir(w *widget.Widget) (string, error) {
	if w.FileName == "" {
		return "", widget.ErrNoFileName
	}
	return filepath.Join(d.root, w.FileName), nil
}

func TestFaviconSyncFetchesURLWidgets(t *testing.T) {
	f := &fakeFetcher{}
	s := newFaviconSync(f, fakeDirs{root: "/w"}, zap.NewNop().Sugar())

	recs := []*widget.Widget{
		{ID: uuid.New(), URL: "https://a.example", FileName: "a"},
		{ID: uuid.New(), HTML: "index.html", FileName: "b"},
		{ID: uuid.New(), URL: "https://c.example"},
	}
	s.fetchAll(context.Background(), recs)
	s.wait()

	assert.Equal(t, map[string]string{filepath.Join("/w", "a"): "https://a.example"}, f.calls)
	assert.Equal(t, favicon.Path(filepath.Join("/w", "a")), s.iconPath(recs[0]))
	assert.Empty(t, s.iconPath(recs[2]))
}

func TestFaviconSyncOnChange(t *testing.T) {
	f := &fakeFetcher{err: errors.New("boom")}
	s := newFaviconSync(f, fakeDirs{root: "/w"}, zap.NewNop().Sugar())

	rec := &widget.Widget{ID: uuid.New(), URL: "https://a.example", FileName: "a"}
	s.onChange(context.Background(), orchestrator.ChangeEvent{Kind: orchestrator.ChangeDeleted, Widget: rec})
	s.wait()
	assert.Empty(t, f.calls)

	s.onChange(context.Background(), orchestrator.ChangeEvent{Kind: orchestrator.ChangeSaved, Widget: rec})
	s.wait()
	assert.Len(t, f.calls, 1)
}
