//go:build windows

package browser

import (
	"errors"
	"net/url"
	"runtime"
	"sync"

	"github.com/jchv/go-webview2"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"deskwidgets/internal/platform"
	"deskwidgets/internal/widget"
)

const swShowNoActivate = 4

var (
	user32         = windows.NewLazySystemDLL("user32.dll")
	procShowWindow = user32.NewProc("ShowWindow")
)

// webView2Surface hosts a go-webview2 instance on its own locked OS thread.
// Every call after creation is marshalled onto that thread with Dispatch.
type webView2Surface struct {
	wv           webview2.WebView
	hwnd         platform.WindowHandle
	log          *zap.SugaredLogger
	openExternal func(*url.URL) error

	mu        sync.Mutex
	domReady  []func()
	messages  []func(string)
	newWindow []func(string) bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewWebView2 creates a WebView2-backed surface. It fails when the WebView2
// runtime is not installed.
func NewWebView2(cfg Config) (Surface, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &webView2Surface{
		log:          log,
		openExternal: cfg.OpenExternal,
		done:         make(chan struct{}),
	}

	created := make(chan error, 1)
	go func() {
		// The webview window and its message loop belong to this thread.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(s.done)

		wv := webview2.NewWithOptions(webview2.WebViewOptions{
			Debug:     cfg.DevTools,
			AutoFocus: false,
			DataPath:  cfg.DataPath,
			WindowOptions: webview2.WindowOptions{
				Title:  cfg.Title,
				Width:  uint(max(cfg.Bounds.Width, 1)),
				Height: uint(max(cfg.Bounds.Height, 1)),
			},
		})
		if wv == nil {
			created <- errors.New("failed to create WebView2 (is the WebView2 runtime installed?)")
			return
		}
		s.wv = wv
		s.hwnd = platform.WindowHandle(uintptr(wv.Window()))

		if err := s.bind(); err != nil {
			wv.Destroy()
			created <- err
			return
		}
		wv.Init(script("bridge.js"))

		created <- nil
		wv.Run()
		wv.Destroy()
	}()

	if err := <-created; err != nil {
		return nil, err
	}
	return s, nil
}

func (s *webView2Surface) bind() error {
	if err := s.wv.Bind(domReadyFunc, s.fireDOMReady); err != nil {
		return err
	}
	if err := s.wv.Bind(PostMessageFunc, s.fireMessage); err != nil {
		return err
	}
	return s.wv.Bind(newWindowFunc, s.fireNewWindow)
}

func (s *webView2Surface) fireDOMReady() {
	s.mu.Lock()
	handlers := append([]func(){}, s.domReady...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

func (s *webView2Surface) fireMessage(msg string) {
	s.mu.Lock()
	handlers := append([]func(string){}, s.messages...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(msg)
	}
}

func (s *webView2Surface) fireNewWindow(uri string) {
	s.mu.Lock()
	handlers := append([]func(string) bool{}, s.newWindow...)
	s.mu.Unlock()
	for _, fn := range handlers {
		if fn(uri) {
			return
		}
	}

	// Unclaimed popups open in the system browser.
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || s.openExternal == nil {
		s.log.Debugf("Dropped new-window request for %q", uri)
		return
	}
	if err := s.openExternal(u); err != nil {
		s.log.Warnf("Failed to open %s externally: %v", uri, err)
	}
}

func (s *webView2Surface) dispatch(fn func()) error {
	select {
	case <-s.done:
		return errors.New("browser surface is closed")
	default:
	}
	s.wv.Dispatch(fn)
	return nil
}

func (s *webView2Surface) Handle() platform.WindowHandle {
	return s.hwnd
}

func (s *webView2Surface) Navigate(url string) error {
	return s.dispatch(func() { s.wv.Navigate(url) })
}

func (s *webView2Surface) NavigateToString(html string) error {
	return s.dispatch(func() { s.wv.SetHtml(html) })
}

func (s *webView2Surface) AddInitScript(js string) error {
	return s.dispatch(func() { s.wv.Init(js) })
}

func (s *webView2Surface) Eval(js string) error {
	return s.dispatch(func() { s.wv.Eval(js) })
}

// SetUserAgentOverrides only changes navigator.userAgent as seen by page
// scripts; go-webview2 exposes no request-header hook.
func (s *webView2Surface) SetUserAgentOverrides(mappings []widget.UserAgentMapping) error {
	js, err := userAgentScript(mappings)
	if err != nil {
		return err
	}
	return s.AddInitScript(js)
}

func (s *webView2Surface) OnPermissionRequested(fn func(PermissionRequest) PermissionState) error {
	return ErrUnsupported
}

func (s *webView2Surface) CallDevToolsProtocolMethod(method, paramsJSON string) error {
	return ErrUnsupported
}

func (s *webView2Surface) OnNewWindowRequested(fn func(uri string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newWindow = append(s.newWindow, fn)
}

func (s *webView2Surface) OnDOMContentLoaded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domReady = append(s.domReady, fn)
}

func (s *webView2Surface) OnWebMessage(fn func(msg string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, fn)
}

func (s *webView2Surface) Show() {
	_ = s.dispatch(func() {
		procShowWindow.Call(uintptr(s.hwnd), swShowNoActivate)
	})
}

// Close terminates the message loop and destroys the window. It is safe to
// call more than once and after the user closed the window.
func (s *webView2Surface) Close() {
	s.closeOnce.Do(func() {
		_ = s.dispatch(func() { s.wv.Terminate() })
	})
}
