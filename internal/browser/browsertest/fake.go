// Package browsertest provides an in-memory browser.Surface for tests.
package browsertest

import (
	"sync"

	"deskwidgets/internal/browser"
	"deskwidgets/internal/platform"
	"deskwidgets/internal/widget"
)

// CDPCall records one DevTools protocol invocation.
type CDPCall struct {
	Method string
	Params string
}

// Surface records every call made to it. Handlers registered through the On*
// methods can be triggered with the Fire* helpers.
type Surface struct {
	mu sync.Mutex

	HandleValue platform.WindowHandle
	// Unsupported makes permission and DevTools calls fail with browser.ErrUnsupported.
	Unsupported bool
	// NavigateErr is returned by Navigate and NavigateToString when set.
	NavigateErr error

	Navigations []string
	HTML        []string
	InitScripts []string
	Evals       []string
	UserAgents  []widget.UserAgentMapping
	CDPCalls    []CDPCall
	Shown       int
	Closed      int

	permission func(browser.PermissionRequest) browser.PermissionState
	newWindow  []func(string) bool
	domReady   []func()
	messages   []func(string)
}

// New returns a fake surface with the given native handle.
func New(handle platform.WindowHandle) *Surface {
	return &Surface{HandleValue: handle}
}

func (s *Surface) Handle() platform.WindowHandle { return s.HandleValue }

func (s *Surface) Navigate(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.Navigations = append(s.Navigations, url)
	return nil
}

func (s *Surface) NavigateToString(html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.HTML = append(s.HTML, html)
	return nil
}

func (s *Surface) AddInitScript(js string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InitScripts = append(s.InitScripts, js)
	return nil
}

func (s *Surface) Eval(js string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Evals = append(s.Evals, js)
	return nil
}

func (s *Surface) SetUserAgentOverrides(mappings []widget.UserAgentMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserAgents = append([]widget.UserAgentMapping(nil), mappings...)
	return nil
}

func (s *Surface) OnPermissionRequested(fn func(browser.PermissionRequest) browser.PermissionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unsupported {
		return browser.ErrUnsupported
	}
	s.permission = fn
	return nil
}

func (s *Surface) CallDevToolsProtocolMethod(method, paramsJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unsupported {
		return browser.ErrUnsupported
	}
	s.CDPCalls = append(s.CDPCalls, CDPCall{Method: method, Params: paramsJSON})
	return nil
}

func (s *Surface) OnNewWindowRequested(fn func(uri string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newWindow = append(s.newWindow, fn)
}

func (s *Surface) OnDOMContentLoaded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domReady = append(s.domReady, fn)
}

func (s *Surface) OnWebMessage(fn func(msg string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, fn)
}

func (s *Surface) Show() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Shown++
}

func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed++
}

// RequestPermission asks the registered permission handler. Without one the
// browser default applies.
func (s *Surface) RequestPermission(kind widget.Permission) browser.PermissionState {
	s.mu.Lock()
	fn := s.permission
	s.mu.Unlock()
	if fn == nil {
		return browser.PermissionDefault
	}
	return fn(browser.PermissionRequest{Kind: kind})
}

// FireNewWindow reports whether any handler claimed uri.
func (s *Surface) FireNewWindow(uri string) bool {
	s.mu.Lock()
	handlers := append([]func(string) bool(nil), s.newWindow...)
	s.mu.Unlock()
	for _, fn := range handlers {
		if fn(uri) {
			return true
		}
	}
	return false
}

// FireDOMContentLoaded runs every DOM-ready handler.
func (s *Surface) FireDOMContentLoaded() {
	s.mu.Lock()
	handlers := append(([]func())(nil), s.domReady...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// FireWebMessage delivers msg to every message handler.
func (s *Surface) FireWebMessage(msg string) {
	s.mu.Lock()
	handlers := append(([]func(string))(nil), s.messages...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(msg)
	}
}

// ClosedCount returns how many times Close was called.
func (s *Surface) ClosedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closed
}
