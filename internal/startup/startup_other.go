//go:build !windows

package startup

type unsupported struct{}

// New returns the login manager for this platform.
func New() Manager {
	return unsupported{}
}

func (unsupported) IsEnabled() (bool, error) { return false, nil }

func (unsupported) SetEnabled(enabled bool) error {
	if enabled {
		return ErrNotSupported
	}
	return nil
}
