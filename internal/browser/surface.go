package browser

import (
	"embed"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"deskwidgets/internal/platform"
	"deskwidgets/internal/widget"
)

// ErrUnsupported is returned by surfaces that cannot provide a capability.
var ErrUnsupported = errors.New("browser: not supported by this surface")

// Names of the functions bound into every page.
const (
	PostMessageFunc = "__windashPost"
	domReadyFunc    = "__windashDomReady"
	newWindowFunc   = "__windashNewWindow"
)

//go:embed scripts/*.js
var scripts embed.FS

func script(name string) string {
	data, err := scripts.ReadFile("scripts/" + name)
	if err != nil {
		panic(err) // embedded at build time
	}
	return string(data)
}

// PermissionState is the answer to a permission request.
type PermissionState int

const (
	PermissionDefault PermissionState = iota
	PermissionAllow
	PermissionDeny
)

// PermissionRequest describes a page asking for a permission.
type PermissionRequest struct {
	Kind widget.Permission
	URI  string
}

// Surface is an embedded browser hosted in its own native window.
//
// Handler registrations accumulate: every DOMContentLoaded and web message
// handler is called, and new-window handlers are asked in order until one
// reports the request handled.
type Surface interface {
	Handle() platform.WindowHandle

	Navigate(url string) error
	NavigateToString(html string) error
	AddInitScript(js string) error
	Eval(js string) error

	SetUserAgentOverrides(mappings []widget.UserAgentMapping) error
	OnPermissionRequested(fn func(PermissionRequest) PermissionState) error
	CallDevToolsProtocolMethod(method, paramsJSON string) error

	OnNewWindowRequested(fn func(uri string) bool)
	OnDOMContentLoaded(fn func())
	OnWebMessage(fn func(msg string))

	Show()
	Close()
}

// Config describes a surface to create.
type Config struct {
	Title    string
	Bounds   platform.Rect
	DevTools bool
	// DataPath is the browser profile folder; empty uses the engine default.
	DataPath string
	// OpenExternal opens URLs no new-window handler claimed.
	OpenExternal func(*url.URL) error
	Log          *zap.SugaredLogger
}

// Factory creates surfaces.
type Factory func(cfg Config) (Surface, error)

// userAgentScript builds an init script that reports the first matching
// override as navigator.userAgent.
func userAgentScript(mappings []widget.UserAgentMapping) (string, error) {
	data, err := json.Marshal(mappings)
	if err != nil {
		return "", err
	}
	return strings.Replace(script("user-agent.js"), "MAPPINGS", string(data), 1), nil
}
