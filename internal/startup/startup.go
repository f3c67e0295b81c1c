// Package startup registers the app to run when the user logs in.
package startup

import "errors"

// AppName is the value name used for the login entry.
const AppName = "WinDash2"

// Manager toggles launch at login.
type Manager interface {
	IsEnabled() (bool, error)
	SetEnabled(enabled bool) error
}

// ErrNotSupported is returned where launch at login is not implemented.
var ErrNotSupported = errors.New("startup: launch at login is not supported on this OS")
