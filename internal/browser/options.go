package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"deskwidgets/internal/widget"
)

// Option configures one aspect of a widget's browser surface.
type Option interface {
	Name() string
	Apply(w *widget.Widget, s Surface) error
}

// Env carries what options need beyond the widget and the surface.
type Env struct {
	OpenExternal func(*url.URL) error
	Log          *zap.SugaredLogger
}

// DefaultOptions returns the options applied to every widget window, in order.
func DefaultOptions(env Env) []Option {
	return []Option{
		FunctionKeysOption{env: env},
		UserAgentOption{},
		PermissionsOption{},
		TouchOption{},
		ForceInCurrentTabOption{},
		HideScrollbarOption{},
		MouseNavigationOption{},
		CustomScriptOption{},
	}
}

// ApplyAll applies every option. A failing option does not stop the others;
// all failures are joined.
func ApplyAll(opts []Option, w *widget.Widget, s Surface) error {
	var errs []error
	for _, opt := range opts {
		if err := opt.Apply(w, s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", opt.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// UserAgentOption applies the widget's per-domain user agent overrides.
type UserAgentOption struct{}

func (UserAgentOption) Name() string { return "user agent" }

func (UserAgentOption) Apply(w *widget.Widget, s Surface) error {
	if len(w.CustomUserAgent) == 0 {
		return nil
	}
	return s.SetUserAgentOverrides(w.CustomUserAgent)
}

// PermissionsOption answers permission requests from the widget's configured
// allow/deny map. Unconfigured kinds get the browser default.
type PermissionsOption struct{}

func (PermissionsOption) Name() string { return "permissions" }

func (PermissionsOption) Apply(w *widget.Widget, s Surface) error {
	if len(w.Permissions) == 0 {
		return nil
	}
	perms := w.Clone().Permissions
	return s.OnPermissionRequested(func(req PermissionRequest) PermissionState {
		return decidePermission(perms, req.Kind)
	})
}

func decidePermission(perms map[widget.Permission]*bool, kind widget.Permission) PermissionState {
	allow, ok := perms[kind]
	switch {
	case !ok || allow == nil:
		return PermissionDefault
	case *allow:
		return PermissionAllow
	default:
		return PermissionDeny
	}
}

// TouchOption toggles touch-event emulation for mouse input.
type TouchOption struct{}

const (
	touchMethod    = "Emulation.setEmitTouchEventsForMouse"
	touchParamsOn  = `{"enabled":true,"configuration":"mobile"}`
	touchParamsOff = `{"enabled":false}`
)

func (TouchOption) Name() string { return "touch" }

func (TouchOption) Apply(w *widget.Widget, s Surface) error {
	params := touchParamsOff
	if w.TouchEnabled {
		params = touchParamsOn
	}
	err := s.CallDevToolsProtocolMethod(touchMethod, params)
	if errors.Is(err, ErrUnsupported) && !w.TouchEnabled {
		// Emulation is off by default.
		return nil
	}
	return err
}

// ForceInCurrentTabOption navigates in place for new-window requests whose URL
// matches one of the widget's patterns.
type ForceInCurrentTabOption struct{}

func (ForceInCurrentTabOption) Name() string { return "force in current tab" }

func (ForceInCurrentTabOption) Apply(w *widget.Widget, s Surface) error {
	m, err := widget.CompilePatterns(w.ForceInCurrentTab)
	if err != nil {
		return err
	}
	if m.Empty() {
		return nil
	}
	s.OnNewWindowRequested(func(uri string) bool {
		if !m.Match(uri) {
			return false
		}
		return s.Navigate(uri) == nil
	})
	return nil
}

// HideScrollbarOption hides page scrollbars once the DOM is ready.
type HideScrollbarOption struct{}

func (HideScrollbarOption) Name() string { return "hide scrollbar" }

func (HideScrollbarOption) Apply(w *widget.Widget, s Surface) error {
	js := script("hide-scrollbar.js")
	s.OnDOMContentLoaded(func() {
		_ = s.Eval(js)
	})
	return nil
}

// MouseNavigationOption maps the mouse back/forward buttons to history navigation.
type MouseNavigationOption struct{}

func (MouseNavigationOption) Name() string { return "mouse navigation" }

func (MouseNavigationOption) Apply(w *widget.Widget, s Surface) error {
	return s.AddInitScript(script("mouse-navigation.js"))
}

// CustomScriptOption injects the widget's own script into every page.
type CustomScriptOption struct{}

func (CustomScriptOption) Name() string { return "custom script" }

func (CustomScriptOption) Apply(w *widget.Widget, s Surface) error {
	if strings.TrimSpace(w.CustomScript) == "" {
		return nil
	}
	return s.AddInitScript(w.CustomScript)
}

// FunctionKeysOption handles function keys pressed inside the page:
// F1 opens the widget's URL in the system browser.
type FunctionKeysOption struct {
	env Env
}

type keyboardMessage struct {
	Type string `json:"type"`
	Key  string `json:"key"`
	Code string `json:"code"`
}

func (FunctionKeysOption) Name() string { return "function keys" }

func (o FunctionKeysOption) Apply(w *widget.Widget, s Surface) error {
	js := script("keyboard-handler.js")
	s.OnDOMContentLoaded(func() {
		_ = s.Eval(js)
	})

	target := w.URL
	s.OnWebMessage(func(msg string) {
		var ev keyboardMessage
		if err := json.Unmarshal([]byte(msg), &ev); err != nil {
			return
		}
		if ev.Type == "keydown" && ev.Code == "F1" {
			o.openInBrowser(target)
		}
	})
	return nil
}

func (o FunctionKeysOption) openInBrowser(raw string) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		o.logf("Invalid widget URL: %q", raw)
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		o.logf("Blocked non-web URL scheme: %s", u.Scheme)
		return
	}
	if o.env.OpenExternal == nil {
		return
	}
	if err := o.env.OpenExternal(u); err != nil {
		o.logf("Failed to open %s: %v", u, err)
	}
}

func (o FunctionKeysOption) logf(format string, args ...interface{}) {
	if o.env.Log != nil {
		o.env.Log.Warnf(format, args...)
	}
}
