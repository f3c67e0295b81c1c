package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deskwidgets/internal/orchestrator"
	"deskwidgets/internal/widget"
	"deskwidgets/internal/window"
)

func TestFolderURL(t *testing.T) {
	assert.Equal(t, "file:///home/me/widgets", folderURL("/home/me/widgets").String())
	assert.Equal(t, "/C:/Users/me/widgets", folderURL("C:/Users/me/widgets").Path)
}

func TestStartupWindowFailureIsNotified(t *testing.T) {
	root := t.TempDir()
	body := `{"name": "Clock", "url": "https://time.is", "enabled": true, "width": 200, "height": 100}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "clock.widget.json"), []byte(body), 0o644))

	log := zap.NewNop().Sugar()
	failing := func(window.Host, *widget.Widget) (window.Handle, error) {
		return nil, errors.New("webview runtime missing")
	}
	a := &App{
		fyneApp: test.NewTempApp(t),
		log:     log,
		ctx:     context.Background(),
		widgets: orchestrator.New(widget.NewFileStore(root, log), failing, log),
	}
	defer func() {
		for _, fn := range a.unsubscribe {
			fn()
		}
	}()

	test.AssertNotificationSent(t, fyne.NewNotification("WinDash", "Clock could not be opened"), a.loadWidgets)
	assert.Len(t, a.widgets.Failed(), 1)
}
